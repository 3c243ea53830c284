package cmd

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"sayit/api/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve transcript tools over MCP on stdio",
	Long: `Serve transcript tools to MCP clients on stdin/stdout.

Logs go to stderr so they never mix with protocol messages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := buildRuntime(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		logger.Info().Str("version", appVersion).Msg("mcp server starting on stdio")
		return server.ServeStdio(mcpserver.New(rt.service, appVersion))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
