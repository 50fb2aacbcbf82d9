// Package tools implements the MCP tools of the editor hook adapter.
//
// Each tool is a struct holding its dependencies, with Definition()
// returning the mcp.Tool schema and Handle() processing a call. The
// server package registers them.
package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devpulse/internal/engine"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// resolveTarget fills in whatever the caller left out: the requirement
// comes from the checked-out feature branch, the task from the
// requirement's current task.
func resolveTarget(e *engine.Engine, reqID, taskID string) (engine.TaskRef, error) {
	if reqID == "" {
		if taskID != "" {
			return engine.TaskRef{}, fmt.Errorf("%w: task_id given without req_id", engine.ErrUnresolved)
		}
		return e.ResolveFromBranch()
	}
	if taskID == "" {
		id, err := e.CurrentTask(reqID)
		if err != nil {
			return engine.TaskRef{}, err
		}
		taskID = id
	}
	return engine.TaskRef{ReqID: reqID, TaskID: taskID}, nil
}

// softMessage turns an expected no-op condition into a sentence for the
// user.
func softMessage(err error) string {
	switch {
	case errors.Is(err, engine.ErrLowConfidence):
		return "Evidence too weak to update progress: " + err.Error()
	case errors.Is(err, engine.ErrSignalUnavailable):
		return "Signal unavailable: " + err.Error()
	default:
		return "Could not resolve a task: " + err.Error()
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// bar renders a 20-cell progress bar for markdown output.
func bar(pct float64) string {
	n := int(pct / 5)
	if n < 0 {
		n = 0
	}
	if n > 20 {
		n = 20
	}
	return strings.Repeat("█", n) + strings.Repeat("░", 20-n)
}
