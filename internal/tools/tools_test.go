package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/devpulse/internal/config"
	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/journal"
	"github.com/HendryAvila/devpulse/internal/monitor"
	"github.com/HendryAvila/devpulse/internal/state"
)

// --- Test helpers ---

const userPlan = "# Plan\n\n" +
	"### TASK_001 User model\n" +
	"- `src/models/User.js`: `createUser(`, `getUserById(`\n\n" +
	"### TASK_002 Routes\n" +
	"- `src/routes/users.js`: `listUsers(`\n"

type project struct {
	root    string
	eng     *engine.Engine
	journal *journal.Store
}

// setupProject creates a temp project with a REQ-001 plan, a real state
// store and a journal.
func setupProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()

	j, err := journal.New(journal.DefaultConfig(config.Resolve(root, cfg.CacheDir)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	store := state.NewFileStore(config.Resolve(root, cfg.RequirementsDir), nil)
	p := &project{
		root:    root,
		eng:     engine.New(root, cfg, store, engine.Options{Journal: j}),
		journal: j,
	}
	p.write(t, filepath.Join(cfg.RequirementsDir, "REQ-001", cfg.PlanFile), userPlan)
	return p
}

func (p *project) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(p.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (p *project) writeUserModel(t *testing.T) {
	p.write(t, "src/models/User.js", "function createUser(data) {\n  return data;\n}\n")
}

func call(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handle(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

// isErrorResult checks if the result is a tool error.
func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Definitions ---

func TestDefinitions(t *testing.T) {
	p := setupProject(t)
	names := []string{
		NewUpdateTool(p.eng).Definition().Name,
		NewStatusTool(p.eng).Definition().Name,
		NewHealthTool(p.eng).Definition().Name,
		NewHistoryTool(p.journal).Definition().Name,
	}
	assert.Equal(t, []string{"progress_update", "progress_status", "progress_health", "progress_history"}, names)
}

// --- UpdateTool ---

func TestUpdateTool_Handle_Applied(t *testing.T) {
	p := setupProject(t)
	p.writeUserModel(t)
	tool := NewUpdateTool(p.eng)

	result := call(t, tool.Handle, map[string]interface{}{"req_id": "REQ-001", "task_id": "TASK_001"})
	require.False(t, isErrorResult(result), getResultText(result))

	text := getResultText(result)
	assert.Contains(t, text, "# Progress Updated")
	assert.Contains(t, text, "REQ-001 > TASK_001: planning → in_progress, 0.0% → 70.0% (confidence 0.90)")
	assert.Contains(t, text, "**REQ-001:**")

	task, err := p.eng.Store().LoadTask("REQ-001", "TASK_001")
	require.NoError(t, err)
	assert.Equal(t, 70.0, task.Progress)
	assert.Equal(t, HookUpdatedBy, task.UpdatedBy)
	assert.Equal(t, engine.KindHook, task.UpdateMethod)
}

func TestUpdateTool_Handle_BelowThreshold(t *testing.T) {
	p := setupProject(t)
	p.writeUserModel(t)
	tool := NewUpdateTool(p.eng)
	args := map[string]interface{}{"req_id": "REQ-001", "task_id": "TASK_001"}

	call(t, tool.Handle, args)
	result := call(t, tool.Handle, args)

	require.False(t, isErrorResult(result))
	text := getResultText(result)
	assert.Contains(t, text, "No update for REQ-001 > TASK_001 (below_threshold)")
	assert.Contains(t, text, "stays in_progress at 70.0%")
}

func TestUpdateTool_Handle_LowConfidence(t *testing.T) {
	p := setupProject(t)
	tool := NewUpdateTool(p.eng)

	result := call(t, tool.Handle, map[string]interface{}{"req_id": "REQ-001", "task_id": "TASK_001"})

	require.False(t, isErrorResult(result), "low confidence is a normal outcome")
	assert.Contains(t, getResultText(result), "confidence 0.50, below the 0.70 minimum")

	task, err := p.eng.Store().LoadTask("REQ-001", "TASK_001")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestUpdateTool_Handle_ForceBypassesGates(t *testing.T) {
	p := setupProject(t)
	tool := NewUpdateTool(p.eng)

	result := call(t, tool.Handle, map[string]interface{}{
		"req_id": "REQ-001", "task_id": "TASK_001", "force": true, "kind": "manual",
	})

	require.False(t, isErrorResult(result), getResultText(result))
	assert.Contains(t, getResultText(result), "# Progress Updated")

	task, err := p.eng.Store().LoadTask("REQ-001", "TASK_001")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, engine.KindManual, task.UpdateMethod)
}

func TestUpdateTool_Handle_TaskResolvedFromPlan(t *testing.T) {
	p := setupProject(t)
	p.writeUserModel(t)
	tool := NewUpdateTool(p.eng)

	result := call(t, tool.Handle, map[string]interface{}{"req_id": "REQ-001"})

	require.False(t, isErrorResult(result), getResultText(result))
	assert.Contains(t, getResultText(result), "REQ-001 > TASK_001")
}

func TestUpdateTool_Handle_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"invalid kind", map[string]interface{}{"req_id": "REQ-001", "task_id": "TASK_001", "kind": "git_commit"}, "invalid kind"},
		{"task without requirement", map[string]interface{}{"task_id": "TASK_001"}, "task_id given without req_id"},
		{"no plan", map[string]interface{}{"req_id": "REQ-404", "task_id": "TASK_001"}, "no plan for REQ-404"},
		{"no repository for branch lookup", map[string]interface{}{}, "Signal unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := setupProject(t)
			result := call(t, NewUpdateTool(p.eng).Handle, tt.args)
			require.True(t, isErrorResult(result))
			assert.Contains(t, getResultText(result), tt.want)
		})
	}
}

// --- StatusTool ---

func TestStatusTool_Handle_AllRequirements(t *testing.T) {
	p := setupProject(t)
	p.writeUserModel(t)
	call(t, NewUpdateTool(p.eng).Handle, map[string]interface{}{"req_id": "REQ-001", "task_id": "TASK_001"})

	result := call(t, NewStatusTool(p.eng).Handle, map[string]interface{}{})

	require.False(t, isErrorResult(result))
	text := getResultText(result)
	assert.Contains(t, text, "# Requirements")
	assert.Contains(t, text, "| REQ-001 | in_progress | 70.0% | 0/1 |")
}

func TestStatusTool_Handle_NoRequirements(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	store := state.NewFileStore(config.Resolve(root, cfg.RequirementsDir), nil)
	eng := engine.New(root, cfg, store, engine.Options{})

	result := call(t, NewStatusTool(eng).Handle, map[string]interface{}{})

	require.False(t, isErrorResult(result))
	assert.Contains(t, getResultText(result), "No requirements found")
}

func TestStatusTool_Handle_Requirement(t *testing.T) {
	p := setupProject(t)
	p.writeUserModel(t)
	call(t, NewUpdateTool(p.eng).Handle, map[string]interface{}{"req_id": "REQ-001", "task_id": "TASK_001"})

	result := call(t, NewStatusTool(p.eng).Handle, map[string]interface{}{"req_id": "REQ-001"})

	require.False(t, isErrorResult(result))
	text := getResultText(result)
	assert.Contains(t, text, "# REQ-001")
	assert.Contains(t, text, "**Status:** in_progress")
	assert.Contains(t, text, "| TASK_001 | in_progress | 70.0% | 0.90 | Auto-detected via hook |")
}

func TestStatusTool_Handle_UnknownRequirement(t *testing.T) {
	p := setupProject(t)

	result := call(t, NewStatusTool(p.eng).Handle, map[string]interface{}{"req_id": "REQ-999"})

	assert.True(t, isErrorResult(result))
	assert.Contains(t, getResultText(result), "no recorded progress")
}

// --- HealthTool ---

func TestHealthTool_Handle_NoReport(t *testing.T) {
	p := setupProject(t)

	result := call(t, NewHealthTool(p.eng).Handle, map[string]interface{}{})

	require.False(t, isErrorResult(result))
	assert.Contains(t, getResultText(result), "has not run")
}

func TestHealthTool_Handle_AfterMonitorRun(t *testing.T) {
	p := setupProject(t)
	m := monitor.New(p.eng, monitor.Options{})
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())

	result := call(t, NewHealthTool(p.eng).Handle, map[string]interface{}{})

	require.False(t, isErrorResult(result))
	text := getResultText(result)
	assert.Contains(t, text, "# Monitor Health")
	assert.Contains(t, text, "**State:** stopped")
	assert.Contains(t, text, "**Active requirements:** 1")
	assert.Contains(t, text, "**Sources:** none")
}

func TestHealthTool_Handle_CorruptReport(t *testing.T) {
	p := setupProject(t)
	require.NoError(t, os.MkdirAll(p.eng.CacheDir(), 0o755))
	require.NoError(t, os.WriteFile(monitor.ReportPath(p.eng), []byte("{"), 0o644))

	result := call(t, NewHealthTool(p.eng).Handle, map[string]interface{}{})

	assert.True(t, isErrorResult(result))
}

// --- HistoryTool ---

func TestHistoryTool_Handle(t *testing.T) {
	p := setupProject(t)
	p.writeUserModel(t)
	update := NewUpdateTool(p.eng)
	args := map[string]interface{}{"req_id": "REQ-001", "task_id": "TASK_001"}
	call(t, update.Handle, args)
	call(t, update.Handle, args)

	tool := NewHistoryTool(p.journal)

	result := call(t, tool.Handle, map[string]interface{}{})
	require.False(t, isErrorResult(result))
	text := getResultText(result)
	assert.Contains(t, text, "# Update History (2)")
	assert.Contains(t, text, "skipped (below_threshold)")
	assert.Contains(t, text, "| REQ-001 > TASK_001 | hook | applied | 0.0% → 70.0% | 0.90 |")

	result = call(t, tool.Handle, map[string]interface{}{"outcome": "applied", "limit": float64(5)})
	assert.Contains(t, getResultText(result), "# Update History (1)")
}

func TestHistoryTool_Handle_Empty(t *testing.T) {
	p := setupProject(t)

	result := call(t, NewHistoryTool(p.journal).Handle, map[string]interface{}{"req_id": "REQ-001"})

	require.False(t, isErrorResult(result))
	assert.Contains(t, getResultText(result), "No journal entries match.")
}

func TestHistoryTool_Handle_NegativeLimit(t *testing.T) {
	p := setupProject(t)

	result := call(t, NewHistoryTool(p.journal).Handle, map[string]interface{}{"limit": float64(-1)})

	assert.True(t, isErrorResult(result))
}
