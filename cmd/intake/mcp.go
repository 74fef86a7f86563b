package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	intakemcp "github.com/hurttlocker/intake/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout with operator tools:
intake_record, intake_history, intake_progress, intake_jobs and intake_setting.

Client configuration:
  {
    "mcpServers": {
      "intake": {
        "command": "/path/to/intake",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// stdout carries the protocol; keep logs to warnings on stderr.
		a, err := openApp(openOpts{logMode: "quiet"})
		if err != nil {
			return err
		}
		defer a.close()

		srv := intakemcp.NewServer(intakemcp.ServerConfig{
			Engine:  a.engine,
			Store:   a.store,
			Catalog: a.catalog,
			Version: version,
		})
		return server.ServeStdio(srv)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("intake %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd, versionCmd)
}
