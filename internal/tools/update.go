package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devpulse/internal/engine"
)

// HookUpdatedBy marks records written through the editor hook.
const HookUpdatedBy = "editor-hook"

// UpdateTool handles the progress_update MCP tool: the on-edit hook. It
// re-analyzes one task and writes the result through the same gates the
// monitor uses.
type UpdateTool struct {
	eng *engine.Engine
}

// NewUpdateTool creates an UpdateTool.
func NewUpdateTool(eng *engine.Engine) *UpdateTool {
	return &UpdateTool{eng: eng}
}

// Definition returns the MCP tool definition for registration.
func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("progress_update",
		mcp.WithDescription(
			"Re-measure a task's implementation progress from the files and symbols its plan names, "+
				"and record it when it moved enough. Call after editing code. "+
				"If `req_id` is omitted, the requirement is taken from the checked-out "+
				"feature/REQ-xxx branch; if `task_id` is omitted, the requirement's current task is used.",
		),
		mcp.WithString("req_id",
			mcp.Description("Requirement ID, e.g. REQ-001."),
		),
		mcp.WithString("task_id",
			mcp.Description("Task ID, e.g. TASK_001. Requires req_id."),
		),
		mcp.WithString("kind",
			mcp.Description("Trigger kind recorded in the milestone."),
			mcp.Enum(engine.KindHook, engine.KindManual),
			mcp.DefaultString(engine.KindHook),
		),
		mcp.WithBoolean("force",
			mcp.Description("Write even below the threshold or confidence minimum, and even if the task is completed or cancelled."),
		),
	)
}

// Handle processes the progress_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := req.GetString("kind", engine.KindHook)
	if kind != engine.KindHook && kind != engine.KindManual {
		return mcp.NewToolResultError(fmt.Sprintf("invalid kind %q: use %s or %s", kind, engine.KindHook, engine.KindManual)), nil
	}

	ref, err := resolveTarget(t.eng, req.GetString("req_id", ""), req.GetString("task_id", ""))
	if err != nil {
		if engine.IsSoft(err) {
			return mcp.NewToolResultError(softMessage(err)), nil
		}
		return nil, fmt.Errorf("resolving task: %w", err)
	}

	out, err := t.eng.Trigger(ctx, engine.Request{
		ReqID:     ref.ReqID,
		TaskID:    ref.TaskID,
		Kind:      kind,
		UpdatedBy: HookUpdatedBy,
		Force:     boolArg(req, "force", false),
	})
	if err != nil {
		if errors.Is(err, engine.ErrLowConfidence) {
			return mcp.NewToolResultText(fmt.Sprintf(
				"No update for %s > %s: measured %s with confidence %.2f, below the %.2f minimum.",
				ref.ReqID, ref.TaskID, percent(out.Progress), out.Confidence,
				t.eng.Config().MinConfidenceToApply)), nil
		}
		if engine.IsSoft(err) {
			return mcp.NewToolResultError(softMessage(err)), nil
		}
		return nil, fmt.Errorf("updating %s/%s: %w", ref.ReqID, ref.TaskID, err)
	}

	if !out.Applied {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No update for %s > %s (%s): stays %s at %s, measured %s.",
			ref.ReqID, ref.TaskID, out.SkipReason, out.Status,
			percent(out.PreviousProgress), percent(out.Progress))), nil
	}

	response := fmt.Sprintf("# Progress Updated\n\n%s\n", out.Notification())
	if r := out.Requirement; r != nil {
		response += fmt.Sprintf("\n**%s:** %s %s (%d/%d tasks completed, %s)\n",
			r.ReqID, bar(r.OverallProgress), percent(r.OverallProgress),
			r.CompletedTasks, r.TotalTasks, r.Status)
	}
	return mcp.NewToolResultText(response), nil
}
