package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"smali-lsp/src/internal/common"
	"smali-lsp/src/server/index"
	"smali-lsp/src/server/rename"
)

var indexCmd = &cobra.Command{
	Use:   "index <root>",
	Short: "Index a workspace once and print statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		idx := index.NewDocumentIndex()
		idx.SetDiagnosticsPublisher(printDiagnostics)
		loader := index.NewLoader(idx, cfg.Workspace.Pattern, cfg.Workspace.MaxParallelParses)
		if err := loader.Load(context.Background(), args[0]); err != nil {
			return err
		}

		classes, flagged := idx.Stats()
		fmt.Printf("indexed %d classes (%d flagged files)\n", classes, flagged)
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <file>:<line>:<col> <new-name>",
	Short: "Compute a cross-file rename offline",
	Long: `Classify the symbol at the given 1-based position, compute the full
cross-file edit batch, and print it as JSON. With --write the edits and
any class-file rename are applied to the workspace in place.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		file, pos, err := parsePositionArg(args[0])
		if err != nil {
			return err
		}
		newName := args[1]

		root, err := workspaceRootFor(file)
		if err != nil {
			return err
		}

		idx := index.NewDocumentIndex()
		loader := index.NewLoader(idx, cfg.Workspace.Pattern, cfg.Workspace.MaxParallelParses)
		if err := loader.Load(context.Background(), root); err != nil {
			return err
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}

		engine := rename.NewEngine(idx)
		target := engine.Classify(uri.File(file), string(data), pos)
		if target == nil {
			fmt.Println("nothing to rename at this position")
			return nil
		}

		batch, err := engine.Apply(context.Background(), target, newName)
		if err != nil {
			return err
		}

		if writeEdits {
			return applyBatch(batch)
		}
		return printBatch(batch)
	},
}

var renameRoot string

func init() {
	renameCmd.Flags().BoolVar(&writeEdits, "write", false, "apply the edits instead of printing them")
	renameCmd.Flags().StringVar(&renameRoot, "root", "", "workspace root (default: directory of the file)")
}

// parsePositionArg splits file:line:col with a 1-based line and column.
func parsePositionArg(arg string) (string, protocol.Position, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 3 {
		return "", protocol.Position{}, fmt.Errorf("position must be <file>:<line>:<col>, got %q", arg)
	}
	file := strings.Join(parts[:len(parts)-2], ":")
	line, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || line < 1 {
		return "", protocol.Position{}, fmt.Errorf("invalid line in %q", arg)
	}
	col, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || col < 1 {
		return "", protocol.Position{}, fmt.Errorf("invalid column in %q", arg)
	}
	return file, protocol.Position{Line: uint32(line - 1), Character: uint32(col - 1)}, nil
}

func workspaceRootFor(file string) (string, error) {
	if renameRoot != "" {
		return renameRoot, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	return filepath.Dir(abs), nil
}

func printBatch(batch *rename.EditBatch) error {
	if batch.Empty() {
		fmt.Println("no edits")
		return nil
	}
	out, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printDiagnostics(docURI uri.URI, diagnostics []protocol.Diagnostic) {
	for _, diag := range diagnostics {
		common.CLILogger.Warn("%s:%d:%d: %s",
			docURI.Filename(), diag.Range.Start.Line+1, diag.Range.Start.Character+1, diag.Message)
	}
}

// sortedURIs returns the batch's edited files in stable order.
func sortedURIs(changes map[protocol.DocumentURI][]protocol.TextEdit) []protocol.DocumentURI {
	uris := make([]protocol.DocumentURI, 0, len(changes))
	for docURI := range changes {
		uris = append(uris, docURI)
	}
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })
	return uris
}
