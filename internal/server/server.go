// Package server wires the editor hook adapter: it creates the MCP server
// and registers the progress tools, prompts and resources.
//
// No business logic lives here, only wiring.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/prompts"
	"github.com/HendryAvila/devpulse/internal/resources"
	"github.com/HendryAvila/devpulse/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server. j may be nil when the
// journal could not be opened; progress_history is then not registered.
func New(eng *engine.Engine, j tools.Journal) *server.MCPServer {
	s := server.NewMCPServer(
		"devpulse",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Tools ---

	updateTool := tools.NewUpdateTool(eng)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	statusTool := tools.NewStatusTool(eng)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	healthTool := tools.NewHealthTool(eng)
	s.AddTool(healthTool.Definition(), healthTool.Handle)

	if j != nil {
		historyTool := tools.NewHistoryTool(j)
		s.AddTool(historyTool.Definition(), historyTool.Handle)
	}

	// --- Prompts ---

	reviewPrompt := prompts.NewReviewPrompt()
	s.AddPrompt(reviewPrompt.Definition(), reviewPrompt.Handle)

	checkinPrompt := prompts.NewCheckinPrompt()
	s.AddPrompt(checkinPrompt.Definition(), checkinPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(eng)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	return s
}

// serverInstructions tells the AI how to use the progress tools.
func serverInstructions() string {
	return `You have access to devpulse, which infers implementation progress of
planned tasks from the code itself.

Each requirement (REQ-xxx) has an IMPLEMENTATION_PLAN.md whose task sections
(TASK_xxx) name the files and functions to build. Progress is measured by
checking which of those files exist and which functions they define.

## When to call the tools
- After editing code for a task, call progress_update. Without arguments it
  uses the feature/REQ-xxx branch and that requirement's current task.
- When the user asks where things stand, call progress_status.
- When updates seem to be missing, call progress_health and progress_history.

## Rules
- A completed or cancelled task is never changed unless force is set. Only
  set force when the user explicitly asks.
- Small changes (below 5 points) and low-confidence measurements are not
  recorded. That is expected, not an error.
- Never edit the *_status.json files by hand; they are rewritten atomically.`
}
