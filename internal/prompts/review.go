// Package prompts implements MCP prompt handlers for progress tracking.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPrompt handles the progress-review MCP prompt.
// It instructs the AI to read and present recorded progress.
type ReviewPrompt struct{}

// NewReviewPrompt creates a ReviewPrompt.
func NewReviewPrompt() *ReviewPrompt {
	return &ReviewPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("progress-review",
		mcp.WithPromptDescription(
			"Review recorded progress across all requirements: what moved recently, "+
				"what is stale, and whether the monitor is healthy.",
		),
	)
}

// Handle processes the progress-review prompt request.
func (p *ReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Progress Review",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `progress_status` to list my requirements, then `progress_health` " +
						"and `progress_history` with limit 20.\n\n" +
						"Then:\n" +
						"1. Summarize each requirement's progress in a short table\n" +
						"2. Point out in-progress tasks that have not moved recently\n" +
						"3. Mention any skipped or failed updates and what they mean\n" +
						"4. Tell me if the monitor is not running",
				),
			},
		},
	}, nil
}
