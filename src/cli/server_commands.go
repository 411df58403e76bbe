package cli

import (
	"context"

	"github.com/spf13/cobra"

	"smali-lsp/src/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the LSP server on stdio",
	Long: `Run the language server. The client decides the workspace root via the
initialize request; the server bulk-loads every smali file under it and
keeps the index in sync with document edits and file-system events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return server.NewServer(cfg).Run(context.Background())
	},
}
