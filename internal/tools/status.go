package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/progress"
	"github.com/HendryAvila/devpulse/internal/state"
)

// StatusTool handles the progress_status MCP tool.
type StatusTool struct {
	eng *engine.Engine
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(eng *engine.Engine) *StatusTool {
	return &StatusTool{eng: eng}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("progress_status",
		mcp.WithDescription(
			"Show recorded progress. With `req_id`, lists that requirement's tasks with status, "+
				"progress, confidence and latest milestone. Without it, summarizes every requirement.",
		),
		mcp.WithString("req_id",
			mcp.Description("Requirement ID to inspect. If omitted, all requirements are listed."),
		),
	)
}

// Handle processes the progress_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := t.eng.Store()
	reqID := req.GetString("req_id", "")

	if reqID == "" {
		reqs, err := store.ListRequirements()
		if err != nil {
			return nil, fmt.Errorf("listing requirements: %w", err)
		}
		if len(reqs) == 0 {
			return mcp.NewToolResultText("No requirements found under `" + t.eng.Config().RequirementsDir + "`."), nil
		}
		var b strings.Builder
		b.WriteString("# Requirements\n\n")
		b.WriteString("| Requirement | Status | Progress | Tasks |\n")
		b.WriteString("|-------------|--------|----------|-------|\n")
		for _, r := range reqs {
			fmt.Fprintf(&b, "| %s | %s | %s | %d/%d |\n",
				r.ReqID, r.Status, percent(r.OverallProgress), r.CompletedTasks, r.TotalTasks)
		}
		return mcp.NewToolResultText(b.String()), nil
	}

	r, err := store.LoadRequirement(reqID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Requirement %q is unreadable: %v", reqID, err)), nil
	}
	tasks, err := store.ListTasks(reqID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks of %s: %w", reqID, err)
	}
	if r == nil && len(tasks) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("Requirement %q has no recorded progress.", reqID)), nil
	}
	if r == nil {
		r = &state.Requirement{ReqID: reqID, Status: progress.StatusPlanning}
	}

	return mcp.NewToolResultText(renderRequirement(r, tasks)), nil
}

func renderRequirement(r *state.Requirement, tasks []state.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.ReqID)
	fmt.Fprintf(&b, "**Status:** %s\n", r.Status)
	fmt.Fprintf(&b, "**Progress:** %s %s\n", bar(r.OverallProgress), percent(r.OverallProgress))
	fmt.Fprintf(&b, "**Completed:** %d/%d tasks\n", r.CompletedTasks, r.TotalTasks)
	if r.LastUpdated != "" {
		fmt.Fprintf(&b, "**Updated:** %s\n", r.LastUpdated)
	}

	if len(tasks) == 0 {
		return b.String()
	}
	b.WriteString("\n## Tasks\n\n")
	b.WriteString("| Task | Status | Progress | Confidence | Latest milestone |\n")
	b.WriteString("|------|--------|----------|------------|------------------|\n")
	for _, task := range tasks {
		conf := "—"
		if task.AutoDetection != nil {
			conf = fmt.Sprintf("%.2f", task.AutoDetection.Confidence)
		}
		latest := "—"
		if n := len(task.Milestones); n > 0 {
			latest = task.Milestones[n-1].Comment
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			task.TaskID, task.Status, percent(task.Progress), conf, latest)
	}
	return b.String()
}
