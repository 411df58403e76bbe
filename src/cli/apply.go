package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"smali-lsp/src/internal/common"
	"smali-lsp/src/server/rename"
	"smali-lsp/src/smali"
)

// applyBatch writes an edit batch to disk: per-file text edits first,
// then the class-file rename, mirroring how an LSP host applies a
// workspace edit.
func applyBatch(batch *rename.EditBatch) error {
	if batch.Empty() {
		fmt.Println("no edits")
		return nil
	}

	for _, docURI := range sortedURIs(batch.Changes) {
		path := uri.URI(docURI).Filename()
		if err := applyFileEdits(path, batch.Changes[docURI]); err != nil {
			return err
		}
		common.CLILogger.Info("edited %s", path)
	}

	for _, fileRename := range batch.Renames {
		oldPath := uri.URI(fileRename.OldURI).Filename()
		newPath := uri.URI(fileRename.NewURI).Filename()
		if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
			return err
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			return err
		}
		common.CLILogger.Info("renamed %s -> %s", oldPath, newPath)
	}
	return nil
}

// applyFileEdits applies range edits to one file, back to front so
// earlier offsets stay valid.
func applyFileEdits(path string, edits []protocol.TextEdit) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := string(data)

	type offsetEdit struct {
		start, end int
		newText    string
	}
	resolved := make([]offsetEdit, 0, len(edits))
	for _, edit := range edits {
		resolved = append(resolved, offsetEdit{
			start:   smali.PositionToOffset(text, edit.Range.Start),
			end:     smali.PositionToOffset(text, edit.Range.End),
			newText: edit.NewText,
		})
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].start > resolved[j].start })

	for _, edit := range resolved {
		text = text[:edit.start] + edit.newText + text[edit.end:]
	}
	return os.WriteFile(path, []byte(text), 0644)
}
