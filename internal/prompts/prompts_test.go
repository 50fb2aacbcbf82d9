package prompts

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptText(t *testing.T, res *mcp.GetPromptResult) string {
	t.Helper()
	require.Len(t, res.Messages, 1)
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestReviewPrompt(t *testing.T) {
	p := NewReviewPrompt()
	assert.Equal(t, "progress-review", p.Definition().Name)

	res, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	require.NoError(t, err)
	text := promptText(t, res)
	assert.Contains(t, text, "progress_status")
	assert.Contains(t, text, "progress_health")
}

func TestCheckinPrompt_WithRequirement(t *testing.T) {
	p := NewCheckinPrompt()
	assert.Equal(t, "progress-checkin", p.Definition().Name)

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"req_id": "REQ-007"}
	res, err := p.Handle(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Progress check-in: REQ-007", res.Description)
	assert.Contains(t, promptText(t, res), "req_id='REQ-007'")
}

func TestCheckinPrompt_FromBranch(t *testing.T) {
	res, err := NewCheckinPrompt().Handle(context.Background(), mcp.GetPromptRequest{})
	require.NoError(t, err)

	assert.Contains(t, res.Description, "current feature branch")
	assert.Contains(t, promptText(t, res), "`progress_update` with no arguments")
}
