package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/devpulse/internal/monitor"
)

func monitorCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run the progress monitor until interrupted",
		Long: `Run the progress monitor in the foreground.

The monitor watches the configured source directories, polls git HEAD and
periodically runs the test command. Every signal is mapped to a task and
measured; updates that move progress by at least the configured threshold
are written and printed as one line each.

Stop it with Ctrl-C or SIGTERM. In-flight work gets the configured shutdown
timeout to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if !a.cfg.Enabled {
				fmt.Fprintln(out, "Progress monitoring is disabled in settings.")
				return nil
			}

			sources, err := monitor.DefaultSources(a.eng, a.logger)
			if err != nil {
				return err
			}
			mopts := monitor.Options{
				Sources: sources,
				Logger:  a.logger,
				Notify:  notifier(out),
			}
			if a.journal != nil {
				mopts.Pruner = a.journal
			}
			m := monitor.New(a.eng, mopts)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return m.Run(ctx)
		},
	}
}
