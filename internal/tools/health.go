package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/monitor"
)

// HealthTool handles the progress_health MCP tool. It reads the snapshot
// the monitor persists on every supervisory tick, so it works from a
// process other than the monitor's.
type HealthTool struct {
	eng *engine.Engine
}

// NewHealthTool creates a HealthTool.
func NewHealthTool(eng *engine.Engine) *HealthTool {
	return &HealthTool{eng: eng}
}

// Definition returns the MCP tool definition for registration.
func (t *HealthTool) Definition() mcp.Tool {
	return mcp.NewTool("progress_health",
		mcp.WithDescription(
			"Show the progress monitor's last health snapshot: lifecycle state, active "+
				"requirements and tasks, running sources, and event counters.",
		),
	)
}

// Handle processes the progress_health tool call.
func (t *HealthTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h, err := monitor.LoadReport(t.eng)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Monitoring report is unreadable: %v", err)), nil
	}
	if h == nil {
		return mcp.NewToolResultText("The monitor has not run in this project yet. Start it with `devpulse monitor`."), nil
	}

	sources := "none"
	if len(h.Sources) > 0 {
		sources = strings.Join(h.Sources, ", ")
	}
	response := fmt.Sprintf(
		"# Monitor Health\n\n"+
			"**State:** %s\n"+
			"**Snapshot:** %s\n"+
			"**Active requirements:** %d\n"+
			"**Active tasks:** %d\n"+
			"**Sources:** %s\n"+
			"**Events received:** %d\n"+
			"**Updates applied:** %d\n",
		h.State, h.Timestamp, h.ActiveRequirementCount, h.ActiveTaskCount,
		sources, h.EventsReceived, h.UpdatesApplied,
	)
	return mcp.NewToolResultText(response), nil
}
