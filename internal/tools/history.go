package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devpulse/internal/journal"
)

// Journal is the read side of the update journal.
type Journal interface {
	Recent(f journal.Filter) ([]journal.Entry, error)
}

// HistoryTool handles the progress_history MCP tool.
type HistoryTool struct {
	journal Journal
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(j Journal) *HistoryTool {
	return &HistoryTool{journal: j}
}

// Definition returns the MCP tool definition for registration.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("progress_history",
		mcp.WithDescription(
			"List recent trigger outcomes from the update journal, newest first: which signal fired, "+
				"whether the update was applied or skipped and why.",
		),
		mcp.WithString("req_id",
			mcp.Description("Only entries for this requirement."),
		),
		mcp.WithString("task_id",
			mcp.Description("Only entries for this task."),
		),
		mcp.WithString("outcome",
			mcp.Description("Only entries with this outcome."),
			mcp.Enum(journal.OutcomeApplied, journal.OutcomeSkipped, journal.OutcomeFailed),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of entries (default 50)."),
		),
	)
}

// Handle processes the progress_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := intArg(req, "limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	entries, err := t.journal.Recent(journal.Filter{
		ReqID:   req.GetString("req_id", ""),
		TaskID:  req.GetString("task_id", ""),
		Outcome: req.GetString("outcome", ""),
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No journal entries match."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Update History (%d)\n\n", len(entries))
	b.WriteString("| When | Task | Kind | Outcome | Progress | Confidence |\n")
	b.WriteString("|------|------|------|---------|----------|------------|\n")
	for _, e := range entries {
		outcome := e.Outcome
		if e.Reason != "" {
			outcome += " (" + e.Reason + ")"
		}
		fmt.Fprintf(&b, "| %s | %s > %s | %s | %s | %s → %s | %.2f |\n",
			e.CreatedAt, e.ReqID, e.TaskID, e.Kind, outcome,
			percent(e.PreviousProgress), percent(e.Progress), e.Confidence)
	}
	return mcp.NewToolResultText(b.String()), nil
}
