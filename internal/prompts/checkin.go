package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// CheckinPrompt handles the progress-checkin MCP prompt.
// It re-measures one requirement after a work session.
type CheckinPrompt struct{}

// NewCheckinPrompt creates a CheckinPrompt.
func NewCheckinPrompt() *CheckinPrompt {
	return &CheckinPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *CheckinPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("progress-checkin",
		mcp.WithPromptDescription(
			"Re-measure a requirement's current task after a work session and explain "+
				"what evidence is still missing.",
		),
		mcp.WithArgument("req_id",
			mcp.ArgumentDescription("Requirement ID, e.g. REQ-001. Default: taken from the current feature branch"),
		),
	)
}

// Handle processes the progress-checkin prompt request.
func (p *CheckinPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	reqID := ""
	if args := req.Params.Arguments; args != nil {
		reqID = args["req_id"]
	}

	target := "the requirement of my current feature branch"
	call := "`progress_update` with no arguments"
	if reqID != "" {
		target = reqID
		call = fmt.Sprintf("`progress_update` with req_id='%s'", reqID)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Progress check-in: %s", target),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I just finished a work session on %s.\n\n"+
						"Please:\n"+
						"1. Run %s\n"+
						"2. Run `progress_status` for the same requirement\n"+
						"3. Compare the task's plan section with the code and list the planned files "+
						"or functions that do not exist yet\n"+
						"4. If the update was skipped, explain why in one sentence",
					target, call,
				)),
			},
		},
	}, nil
}
