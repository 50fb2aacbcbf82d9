package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/devpulse/internal/config"
	"github.com/HendryAvila/devpulse/internal/journal"
	"github.com/HendryAvila/devpulse/internal/progress"
	"github.com/HendryAvila/devpulse/internal/state"
)

const userPlan = "# Plan\n\n" +
	"### TASK_001 User model\n" +
	"- `src/models/User.js`: `createUser(`, `getUserById(`\n\n" +
	"### TASK_002 Routes\n" +
	"- `src/routes/users.js`: `listUsers(`\n\n" +
	"### TASK_003 Docs only\n" +
	"Write the README.\n"

type memRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *memRecorder) Record(e journal.Entry) (journal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memRecorder) outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Outcome)
	}
	return out
}

type fixture struct {
	root    string
	cfg     *config.Config
	store   *state.FileStore
	journal *memRecorder
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	store := state.NewFileStore(config.Resolve(root, cfg.RequirementsDir), nil)
	rec := &memRecorder{}
	f := &fixture{
		root:    root,
		cfg:     cfg,
		store:   store,
		journal: rec,
		engine:  New(root, cfg, store, Options{Journal: rec}),
	}
	f.write(t, filepath.Join(cfg.RequirementsDir, "REQ-001", cfg.PlanFile), userPlan)
	return f
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) writeUserModel(t *testing.T) {
	f.write(t, "src/models/User.js", "function createUser(data) {\n  return data;\n}\n")
}

// --- Analyze ---

func TestAnalyze_UserScenario(t *testing.T) {
	f := newFixture(t)
	f.writeUserModel(t)

	a, err := f.engine.Analyze("REQ-001", "TASK_001")
	require.NoError(t, err)
	assert.Equal(t, 70.0, a.Snapshot.Progress)
	assert.InDelta(t, 0.9, a.Snapshot.Confidence, 1e-9)
	assert.Equal(t, 1, a.Report.FilesImplemented)
	assert.Equal(t, 1, a.Report.FunctionsImplemented)
	assert.Nil(t, a.Snapshot.TestCoverage)
}

func TestAnalyze_MissingPlan(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Analyze("REQ-404", "TASK_001")
	assert.True(t, errors.Is(err, ErrUnresolved))
}

func TestAnalyze_TaskWithoutFiles(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Analyze("REQ-001", "TASK_003")
	assert.True(t, errors.Is(err, ErrUnresolved))

	_, err = f.engine.Analyze("REQ-001", "TASK_999")
	assert.True(t, errors.Is(err, ErrUnresolved))
}

func TestAnalyze_FoldsInCachedCoverage(t *testing.T) {
	f := newFixture(t)
	f.writeUserModel(t)
	require.NoError(t, f.engine.SaveCoverage(81.5, "jest"))

	a, err := f.engine.Analyze("REQ-001", "TASK_001")
	require.NoError(t, err)
	require.NotNil(t, a.Snapshot.TestCoverage)
	assert.Equal(t, 81.5, *a.Snapshot.TestCoverage)
	assert.InDelta(t, 1.0, a.Snapshot.Confidence, 1e-9)
}

func TestAnalyze_CorruptCoverageCacheIgnored(t *testing.T) {
	f := newFixture(t)
	f.writeUserModel(t)
	require.NoError(t, os.MkdirAll(f.engine.CacheDir(), 0o755))
	require.NoError(t, os.WriteFile(f.engine.TestMetricsPath(), []byte("nope"), 0o644))

	a, err := f.engine.Analyze("REQ-001", "TASK_001")
	require.NoError(t, err)
	assert.Nil(t, a.Snapshot.TestCoverage)
}

// --- Trigger ---

func TestTrigger_AppliesAndJournals(t *testing.T) {
	f := newFixture(t)
	f.writeUserModel(t)

	out, err := f.engine.Trigger(context.Background(), Request{ReqID: "REQ-001", TaskID: "TASK_001", Kind: KindFileChange})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, progress.StatusInProgress, out.Status)
	assert.Equal(t,
		"REQ-001 > TASK_001: planning → in_progress, 0.0% → 70.0% (confidence 0.90)",
		out.Notification())
	require.NotNil(t, out.Requirement)
	assert.Equal(t, 70.0, out.Requirement.OverallProgress)
	assert.Equal(t, []string{journal.OutcomeApplied}, f.journal.outcomes())

	task, err := f.store.LoadTask("REQ-001", "TASK_001")
	require.NoError(t, err)
	assert.Equal(t, KindFileChange, task.UpdateMethod)
	assert.Equal(t, "Auto-detected via file_change", task.Milestones[0].Comment)
}

func TestTrigger_SecondIdenticalRunSkipsBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.writeUserModel(t)
	ctx := context.Background()
	req := Request{ReqID: "REQ-001", TaskID: "TASK_001", Kind: KindGitCommit, Detail: "abc1234"}

	_, err := f.engine.Trigger(ctx, req)
	require.NoError(t, err)
	out, err := f.engine.Trigger(ctx, req)
	require.NoError(t, err)

	assert.False(t, out.Applied)
	assert.Equal(t, state.SkipBelowThreshold, out.SkipReason)
	assert.Empty(t, out.Notification())
	assert.Equal(t, []string{journal.OutcomeApplied, journal.OutcomeSkipped}, f.journal.outcomes())

	task, err := f.store.LoadTask("REQ-001", "TASK_001")
	require.NoError(t, err)
	assert.Equal(t, "Auto-detected via git_commit: abc1234", task.Milestones[0].Comment)
}

func TestTrigger_LowConfidenceDropped(t *testing.T) {
	f := newFixture(t)

	out, err := f.engine.Trigger(context.Background(), Request{ReqID: "REQ-001", TaskID: "TASK_001", Kind: KindFileChange})
	assert.True(t, errors.Is(err, ErrLowConfidence))
	assert.True(t, IsSoft(err))
	assert.Equal(t, SkipLowConfidence, out.SkipReason)

	task, err := f.store.LoadTask("REQ-001", "TASK_001")
	require.NoError(t, err)
	assert.Nil(t, task, "no state written")
}

func TestTrigger_ForceBypassesConfidence(t *testing.T) {
	f := newFixture(t)

	out, err := f.engine.Trigger(context.Background(), Request{
		ReqID: "REQ-001", TaskID: "TASK_002", Kind: KindManual, Force: true, UpdatedBy: "cli",
	})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, 0.0, out.Progress)
	assert.Equal(t, progress.StatusPlanning, out.Status)
}

func TestTrigger_UnresolvedIsSoftAndNotJournaled(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Trigger(context.Background(), Request{ReqID: "REQ-001", TaskID: "TASK_003"})
	assert.True(t, IsSoft(err))
	assert.Empty(t, f.journal.outcomes())

	_, err = f.engine.Trigger(context.Background(), Request{ReqID: "REQ-001"})
	assert.True(t, errors.Is(err, ErrUnresolved))
}

func TestTrigger_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Trigger(ctx, Request{ReqID: "REQ-001", TaskID: "TASK_001"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcome_NotificationSameStatus(t *testing.T) {
	o := Outcome{
		ReqID: "REQ-002", TaskID: "TASK_004", Applied: true,
		PreviousStatus: progress.StatusInProgress, Status: progress.StatusInProgress,
		PreviousProgress: 40, Progress: 47.5, Confidence: 0.9,
	}
	assert.Equal(t, "REQ-002 > TASK_004: in_progress, 40.0% → 47.5% (confidence 0.90)", o.Notification())
}

// --- Test metrics ---

func TestTestMetrics_RoundTrip(t *testing.T) {
	f := newFixture(t)
	orig := timeNow
	timeNow = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { timeNow = orig })

	m, err := f.engine.LoadTestMetrics()
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, f.engine.SaveCoverage(64.2, "nyc"))
	m, err = f.engine.LoadTestMetrics()
	require.NoError(t, err)
	assert.Equal(t, &TestMetrics{Coverage: 64.2, Format: "nyc", RecordedAt: "2026-03-01T09:30:00Z"}, m)
}

// --- Resolution ---

func TestActiveRequirements(t *testing.T) {
	f := newFixture(t)
	reqRoot := f.store.Root()
	f.write(t, filepath.Join(f.cfg.RequirementsDir, "REQ-002", f.cfg.PlanFile), userPlan)
	f.write(t, filepath.Join(f.cfg.RequirementsDir, "REQ-002", state.RequirementStatusFile),
		`{"reqId":"REQ-002","status":"completed"}`)
	require.NoError(t, os.MkdirAll(filepath.Join(reqRoot, "REQ-003"), 0o755))
	f.write(t, filepath.Join(f.cfg.RequirementsDir, "archive", f.cfg.PlanFile), userPlan)

	ids, err := f.engine.ActiveRequirements()
	require.NoError(t, err)
	assert.Equal(t, []string{"REQ-001"}, ids)
}

func TestCurrentTask(t *testing.T) {
	f := newFixture(t)

	id, err := f.engine.CurrentTask("REQ-001")
	require.NoError(t, err)
	assert.Equal(t, "TASK_001", id, "first planned task when nothing is in progress")

	f.write(t, filepath.Join(f.cfg.RequirementsDir, "REQ-001", state.TasksDir, "TASK_001"+state.TaskStatusSuffix),
		`{"taskId":"TASK_001","reqId":"REQ-001","status":"completed","progress":100}`)
	id, err = f.engine.CurrentTask("REQ-001")
	require.NoError(t, err)
	assert.Equal(t, "TASK_002", id, "terminal tasks are skipped")

	f.write(t, filepath.Join(f.cfg.RequirementsDir, "REQ-001", state.TasksDir, "TASK_003"+state.TaskStatusSuffix),
		`{"taskId":"TASK_003","reqId":"REQ-001","status":"in_progress","progress":20}`)
	id, err = f.engine.CurrentTask("REQ-001")
	require.NoError(t, err)
	assert.Equal(t, "TASK_003", id, "in-progress task wins")
}

func TestInProgressTasks(t *testing.T) {
	f := newFixture(t)
	f.write(t, filepath.Join(f.cfg.RequirementsDir, "REQ-001", state.TasksDir, "TASK_001"+state.TaskStatusSuffix),
		`{"taskId":"TASK_001","reqId":"REQ-001","status":"in_progress","progress":20}`)
	f.write(t, filepath.Join(f.cfg.RequirementsDir, "REQ-001", state.TasksDir, "TASK_002"+state.TaskStatusSuffix),
		`{"taskId":"TASK_002","reqId":"REQ-001","status":"completed","progress":100}`)

	refs, err := f.engine.InProgressTasks()
	require.NoError(t, err)
	assert.Equal(t, []TaskRef{{ReqID: "REQ-001", TaskID: "TASK_001"}}, refs)
}

func TestTaskForFile(t *testing.T) {
	f := newFixture(t)

	ref, err := f.engine.TaskForFile(filepath.Join(f.root, "src", "routes", "users.js"))
	require.NoError(t, err)
	assert.Equal(t, TaskRef{ReqID: "REQ-001", TaskID: "TASK_002"}, ref)

	_, err = f.engine.TaskForFile("src/other.js")
	assert.True(t, errors.Is(err, ErrUnresolved))
}

func TestResolveFromBranch(t *testing.T) {
	f := newFixture(t)
	repo, err := git.PlainInit(f.root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(filepath.ToSlash(filepath.Join(f.cfg.RequirementsDir, "REQ-001", f.cfg.PlanFile)))
	require.NoError(t, err)
	_, err = wt.Commit("chore: plan", &git.CommitOptions{
		Author: &object.Signature{Name: "Dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("feature/REQ-001-user-model"),
		Create: true,
		Keep:   true,
	}))

	ref, err := f.engine.ResolveFromBranch()
	require.NoError(t, err)
	assert.Equal(t, TaskRef{ReqID: "REQ-001", TaskID: "TASK_001"}, ref)

	branch, err := CurrentBranch(filepath.Join(f.root, f.cfg.RequirementsDir))
	require.NoError(t, err)
	assert.Equal(t, "feature/REQ-001-user-model", branch)
}

func TestResolveFromBranch_NoRequirementInBranch(t *testing.T) {
	f := newFixture(t)
	repo, err := git.PlainInit(f.root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Commit("init", &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            &object.Signature{Name: "Dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	_, err = f.engine.ResolveFromBranch()
	assert.True(t, errors.Is(err, ErrUnresolved))
}

func TestResolveFromBranch_NoRepository(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ResolveFromBranch()
	assert.True(t, errors.Is(err, ErrSignalUnavailable))
}
