package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/devpulse/internal/progress"
	"github.com/HendryAvila/devpulse/internal/state"
)

// taskView is the exported shape of a task in status output.
type taskView struct {
	TaskID       string          `json:"taskId" yaml:"taskId"`
	Status       progress.Status `json:"status" yaml:"status"`
	Progress     float64         `json:"progress" yaml:"progress"`
	Confidence   *float64        `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	UpdateMethod string          `json:"updateMethod,omitempty" yaml:"updateMethod,omitempty"`
	LastUpdated  string          `json:"lastUpdated,omitempty" yaml:"lastUpdated,omitempty"`
}

// requirementView is the exported shape of a requirement in status output.
type requirementView struct {
	ReqID           string          `json:"reqId" yaml:"reqId"`
	Status          progress.Status `json:"status" yaml:"status"`
	OverallProgress float64         `json:"overallProgress" yaml:"overallProgress"`
	CompletedTasks  int             `json:"completedTasks" yaml:"completedTasks"`
	TotalTasks      int             `json:"totalTasks" yaml:"totalTasks"`
	LastUpdated     string          `json:"lastUpdated,omitempty" yaml:"lastUpdated,omitempty"`
	Tasks           []taskView      `json:"tasks" yaml:"tasks"`
}

func statusCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status [req-id]",
		Short: "Show recorded progress",
		Long: `Show recorded progress of every requirement, or of one requirement and its
tasks.

Examples:
  devpulse status
  devpulse status REQ-001 --output yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			views, err := loadViews(a.eng.Store(), args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return writeStructured(out, output, views, func() error {
				if len(views) == 0 {
					_, err := fmt.Fprintln(out, "No requirements found.")
					return err
				}
				return printStatus(out, views)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	return cmd
}

func loadViews(store *state.FileStore, args []string) ([]requirementView, error) {
	var reqs []state.Requirement
	if len(args) == 1 {
		r, err := store.LoadRequirement(args[0])
		if err != nil {
			return nil, err
		}
		tasks, err := store.ListTasks(args[0])
		if err != nil {
			return nil, err
		}
		if r == nil && len(tasks) == 0 {
			return nil, fmt.Errorf("no recorded progress for %s", args[0])
		}
		if r == nil {
			r = &state.Requirement{ReqID: args[0], Status: progress.StatusPlanning}
		}
		reqs = []state.Requirement{*r}
	} else {
		all, err := store.ListRequirements()
		if err != nil {
			return nil, err
		}
		reqs = all
	}

	views := make([]requirementView, 0, len(reqs))
	for _, r := range reqs {
		tasks, err := store.ListTasks(r.ReqID)
		if err != nil {
			return nil, err
		}
		v := requirementView{
			ReqID:           r.ReqID,
			Status:          r.Status,
			OverallProgress: r.OverallProgress,
			CompletedTasks:  r.CompletedTasks,
			TotalTasks:      r.TotalTasks,
			LastUpdated:     r.LastUpdated,
			Tasks:           make([]taskView, 0, len(tasks)),
		}
		for _, t := range tasks {
			tv := taskView{
				TaskID:       t.TaskID,
				Status:       t.Status,
				Progress:     t.Progress,
				UpdateMethod: t.UpdateMethod,
				LastUpdated:  t.LastUpdated,
			}
			if t.AutoDetection != nil {
				c := t.AutoDetection.Confidence
				tv.Confidence = &c
			}
			v.Tasks = append(v.Tasks, tv)
		}
		views = append(views, v)
	}
	return views, nil
}

func printStatus(w io.Writer, views []requirementView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%5.1f%%\t%d/%d tasks\t\n",
			v.ReqID, statusColor(v.Status).Sprint(v.Status), v.OverallProgress, v.CompletedTasks, v.TotalTasks)
		for _, t := range v.Tasks {
			conf := "-"
			if t.Confidence != nil {
				conf = fmt.Sprintf("%.2f", *t.Confidence)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%5.1f%%\tconfidence %s\t%s\n",
				t.TaskID, statusColor(t.Status).Sprint(t.Status), t.Progress, conf, t.LastUpdated)
		}
	}
	return tw.Flush()
}
