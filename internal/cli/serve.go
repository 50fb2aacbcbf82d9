package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	devserver "github.com/HendryAvila/devpulse/internal/server"
	"github.com/HendryAvila/devpulse/internal/tools"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Long: `Start the editor hook adapter as an MCP server on stdin/stdout.

Logs go to stderr and the log file only; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			var j tools.Journal
			if a.journal != nil {
				j = a.journal
			}
			return server.ServeStdio(devserver.New(a.eng, j))
		},
	}
}
