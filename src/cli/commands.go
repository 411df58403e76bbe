// Package cli wires the smali-lsp commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"smali-lsp/src/config"
	"smali-lsp/src/internal/common"
	versionpkg "smali-lsp/src/internal/version"
)

// CLI flags
var (
	configPath string
	verbose    bool
	writeEdits bool
)

// Root command
var rootCmd = &cobra.Command{
	Use:   "smali-lsp",
	Short: "smali-lsp - workspace indexing and rename refactoring for smali sources",
	Long: `smali-lsp indexes a workspace of smali (Android disassembly) files and
provides symbol-aware cross-file rename refactoring.

QUICK START:
  smali-lsp server                         # Run the LSP server on stdio
  smali-lsp index .                        # One-shot workspace index with stats
  smali-lsp rename Foo.smali:12:8 newName  # Compute (or apply) a rename offline

CORE FEATURES:
  - Workspace symbol index kept in sync under create/change/rename/delete
  - Class, field and method rename with cross-file reference rewriting
  - Class renames move the backing file to its identifier-derived path
  - Duplicate class declarations surfaced as diagnostics

Use 'smali-lsp <command> --help' for detailed command information.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			common.SetGlobalLevel(common.LogDebug)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionpkg.GetFullVersionInfo())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(renameCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig returns the configured or default configuration.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.GetDefaultConfig(), nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	common.CLILogger.Debug("loaded config from %s", configPath)
	cfg.Log.Level = firstNonEmpty(cfg.Log.Level, "info")
	common.SetGlobalLevel(common.ParseLogLevel(cfg.Log.Level))
	if verbose {
		common.SetGlobalLevel(common.LogDebug)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
