package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/devpulse/internal/journal"
)

func historyCmd(opts *globalOptions) *cobra.Command {
	var f journal.Filter
	var output string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent trigger outcomes from the journal",
		Long: `List recent trigger outcomes, newest first: which signal fired for which
task, and whether the update was applied, skipped or failed.

Examples:
  devpulse history --req REQ-001 --limit 20
  devpulse history --outcome skipped -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.journal == nil {
				return fmt.Errorf("journal is unavailable in %s", a.eng.CacheDir())
			}

			entries, err := a.journal.Recent(f)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []journal.Entry{}
			}
			out := cmd.OutOrStdout()
			return writeStructured(out, output, entries, func() error {
				if len(entries) == 0 {
					_, err := fmt.Fprintln(out, "No journal entries match.")
					return err
				}
				counts, err := a.journal.Count()
				if err != nil {
					return err
				}
				return printHistory(out, entries, counts)
			})
		},
	}
	cmd.Flags().StringVar(&f.ReqID, "req", "", "Only entries for this requirement")
	cmd.Flags().StringVar(&f.TaskID, "task", "", "Only entries for this task")
	cmd.Flags().StringVar(&f.Outcome, "outcome", "", "Only entries with this outcome (applied, skipped, failed)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "Maximum number of entries (default 50)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	return cmd
}

func printHistory(w io.Writer, entries []journal.Entry, counts map[string]int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		outcome := e.Outcome
		if e.Reason != "" {
			outcome += " (" + e.Reason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s > %s\t%s\t%s\t%.1f%% → %.1f%%\t%.2f\n",
			e.CreatedAt, e.ReqID, e.TaskID, e.Kind, outcome, e.PreviousProgress, e.Progress, e.Confidence)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTotal: %d applied, %d skipped, %d failed\n",
		counts[journal.OutcomeApplied], counts[journal.OutcomeSkipped], counts[journal.OutcomeFailed])
	return err
}
