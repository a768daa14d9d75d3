package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/crev/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Tools act as the configured auth.username. Configure an MCP client with:

  {
    "mcpServers": {
      "crev": { "command": "crev", "args": ["mcp"] }
    }
  }

Available tools: crev_submit_review, crev_list_reviews, crev_get_review,
crev_vote, crev_finalize_review, crev_suggest_tests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// stdout carries the protocol; user feedback and logs go to stderr.
	ui.Out = ui.ErrOut

	svc, err := newService()
	if err != nil {
		return err
	}
	sess, err := currentSession(ctx, svc)
	if err != nil {
		return err
	}
	if !sess.Authenticated() {
		ui.Warning("No auth.username configured; MCP tools run anonymously and can only read")
	}

	return mcp.NewServer(svc, sess, buildVersion, getLogger()).ServeStdio(ctx)
}
