package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/devpulse/internal/config"
	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/tools"
)

// HookEvent is the part of an editor hook payload the hook command reads.
type HookEvent struct {
	Cwd       string `json:"cwd"`
	ToolInput struct {
		FilePath string `json:"file_path"`
	} `json:"tool_input"`
}

func hookCmd(opts *globalOptions) *cobra.Command {
	var file string
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "One-shot progress update after an edit",
		Long: `Re-measure the task an edit belongs to and record it.

Meant to be called from an editor's post-edit hook. The task is found from
the edited file (--file, or tool_input.file_path of the JSON payload read
with --stdin) and otherwise from the feature/REQ-xxx branch. The hook never
fails: anything that cannot be resolved or measured is silently skipped.

Example:
  echo '{"cwd":"/src/app","tool_input":{"file_path":"src/models/User.js"}}' | devpulse hook --stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runHook(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), file, fromStdin)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path of the edited file")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read a JSON hook payload from stdin")
	return cmd
}

func runHook(ctx context.Context, opts *globalOptions, in io.Reader, out io.Writer, file string, fromStdin bool) {
	if fromStdin {
		var ev HookEvent
		data, err := io.ReadAll(in)
		// An unreadable payload is treated like an empty one.
		if err == nil && json.Unmarshal(data, &ev) == nil {
			if file == "" {
				file = ev.ToolInput.FilePath
			}
			if opts.project == "" && ev.Cwd != "" {
				opts.project = config.FindProjectRoot(ev.Cwd)
			}
		}
	}

	a, err := openApp(opts, false)
	if err != nil {
		return
	}
	defer a.Close()
	if !a.cfg.Enabled {
		return
	}

	ref, err := hookTarget(a.eng, file)
	if err != nil {
		return
	}
	o, err := a.eng.Trigger(ctx, engine.Request{
		ReqID:     ref.ReqID,
		TaskID:    ref.TaskID,
		Kind:      engine.KindHook,
		UpdatedBy: tools.HookUpdatedBy,
	})
	if err != nil {
		return
	}
	printOutcome(out, o)
}

// hookTarget maps the edited file to its task, falling back to the
// branch's current task.
func hookTarget(e *engine.Engine, file string) (engine.TaskRef, error) {
	if file != "" {
		if ref, err := e.TaskForFile(file); err == nil {
			return ref, nil
		}
	}
	return e.ResolveFromBranch()
}
