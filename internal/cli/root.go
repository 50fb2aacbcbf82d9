// Package cli implements the devpulse command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/devpulse/internal/server"
)

// NewRootCmd builds the devpulse command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:     "devpulse",
		Short:   "Infer task progress from code, commits and test runs",
		Version: server.Version,
		Long: `devpulse keeps the progress records of planned development work in step
with the code. It watches source files, polls git and the test command, and
measures each task against the files and functions its implementation plan
names.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.project, "project", "", "Project directory (default: nearest ancestor with .devflow/)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from settings)")

	root.AddCommand(monitorCmd(opts))
	root.AddCommand(hookCmd(opts))
	root.AddCommand(updateCmd(opts))
	root.AddCommand(statusCmd(opts))
	root.AddCommand(historyCmd(opts))
	root.AddCommand(serveCmd(opts))
	root.AddCommand(initCmd(opts))
	root.AddCommand(versionCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "devpulse v%s\n", server.Version)
			return err
		},
	}
}
