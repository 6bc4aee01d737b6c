package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	mcpserver "github.com/joescharf/issues/internal/mcp"
	"github.com/joescharf/issues/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP stdio server backed by an in-memory issue store",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

The server owns its own in-memory store, independent of 'issues serve'.
Configure it in an MCP client with:

  {
    "mcpServers": {
      "issues": { "command": "issues", "args": ["mcp"] }
    }
  }

Available tools: issues_list, issues_create, issues_update,
issues_delete, issues_projects`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
		defer stop()

		return mcpserver.NewServer(store.NewMemoryStore(), buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
