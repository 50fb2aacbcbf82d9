package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/devpulse/internal/engine"
)

func updateCmd(opts *globalOptions) *cobra.Command {
	var force bool
	var kind string
	cmd := &cobra.Command{
		Use:   "update <req-id> [task-id]",
		Short: "Measure a task now and record the result",
		Long: `Measure one task against its plan section and record the result through
the usual threshold, confidence and terminal-status gates.

Without a task ID the requirement's current task is used: its in-progress
task, else the first planned task that is not completed or cancelled.

Examples:
  devpulse update REQ-001 TASK_003
  devpulse update REQ-001 TASK_003 --force`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != engine.KindManual && kind != engine.KindHook {
				return fmt.Errorf("invalid --kind %q: use %s or %s", kind, engine.KindManual, engine.KindHook)
			}
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			reqID, taskID := args[0], ""
			if len(args) == 2 {
				taskID = args[1]
			} else if taskID, err = a.eng.CurrentTask(reqID); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			o, err := a.eng.Trigger(cmd.Context(), engine.Request{
				ReqID:  reqID,
				TaskID: taskID,
				Kind:   kind,
				Force:  force,
			})
			if errors.Is(err, engine.ErrLowConfidence) {
				fmt.Fprintf(out, "No update for %s > %s: confidence %.2f is below %.2f (use --force to record anyway).\n",
					reqID, taskID, o.Confidence, a.cfg.MinConfidenceToApply)
				return nil
			}
			if err != nil {
				return err
			}
			if !o.Applied {
				fmt.Fprintf(out, "No update for %s > %s (%s): %s at %.1f%%, measured %.1f%%.\n",
					reqID, taskID, o.SkipReason, o.Status, o.PreviousProgress, o.Progress)
				return nil
			}
			printOutcome(out, o)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Write even below threshold or confidence, and for completed or cancelled tasks")
	cmd.Flags().StringVar(&kind, "kind", engine.KindManual, "Trigger kind recorded in the milestone (manual or hook)")
	return cmd
}
