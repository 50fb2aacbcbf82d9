package trigger

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/devpulse/internal/engine"
)

type fakeResolver struct {
	files      map[string]engine.TaskRef
	inProgress []engine.TaskRef
}

func (f *fakeResolver) TaskForFile(p string) (engine.TaskRef, error) {
	if ref, ok := f.files[filepath.Base(p)]; ok {
		return ref, nil
	}
	return engine.TaskRef{}, engine.ErrUnresolved
}

func (f *fakeResolver) InProgressTasks() ([]engine.TaskRef, error) {
	return f.inProgress, nil
}

type fakeSink struct {
	pct    float64
	format string
}

func (f *fakeSink) SaveCoverage(pct float64, format string) error {
	f.pct, f.format = pct, format
	return nil
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// --- Coverage parsing ---

func TestParseCoverage(t *testing.T) {
	tests := []struct {
		name   string
		output string
		pct    float64
		format string
		ok     bool
	}{
		{"jest", "----------|---------|\nAll files |   83.33 |    75 |\n", 83.33, "jest", true},
		{"jest integer", "All files | 90 | 80", 90, "jest", true},
		{"nyc", "Name    Stmts   Miss  Cover\nTOTAL     120     18    85%\n", 85, "nyc", true},
		{"go", "ok  \tgithub.com/x/y\t0.012s\tcoverage: 71.4% of statements\n", 71.4, "go", true},
		{"none", "PASS\n3 tests passed\n", 0, "", false},
		{"out of range", "coverage: 140% of statements", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, format, ok := ParseCoverage(tt.output)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.pct, pct)
			assert.Equal(t, tt.format, format)
		})
	}
}

// --- Commit parsing ---

func TestParseCommitSubject(t *testing.T) {
	reqRe := regexp.MustCompile(`\(?(REQ-\d+)\)?:`)
	taskRe := regexp.MustCompile(`TASK_\d+`)

	tests := []struct {
		subject string
		req     string
		task    string
	}{
		{"feat(REQ-001): add user model", "REQ-001", ""},
		{"REQ-002: TASK_003 wire routes", "REQ-002", "TASK_003"},
		{"fix: typo in REQ-004 docs", "", ""},
		{"chore: bump deps", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			req, task := ParseCommitSubject(tt.subject, reqRe, taskRe)
			assert.Equal(t, tt.req, req)
			assert.Equal(t, tt.task, task)
		})
	}
}

// --- Git source ---

func newTestGitSource(t *testing.T, r Resolver) *GitSource {
	t.Helper()
	s, err := NewGitSource(t.TempDir(), r, GitOptions{
		Interval:           time.Hour,
		RequirementPattern: `REQ-\d+`,
		TaskPattern:        `TASK_\d+`,
	})
	require.NoError(t, err)
	return s
}

func TestGitSource_PollFiresOnNewHashOnly(t *testing.T) {
	s := newTestGitSource(t, &fakeResolver{})
	head := Commit{Hash: "aaaaaaaaaa", Subject: "feat(REQ-001): TASK_002 routes"}
	s.readHead = func(string) (Commit, error) { return head, nil }
	c := &collector{}
	ctx := context.Background()

	s.poll(ctx, c.emit)
	s.poll(ctx, c.emit)
	require.Len(t, c.snapshot(), 1, "first observation fires, unchanged hash does not")

	ev := c.snapshot()[0]
	assert.Equal(t, "REQ-001", ev.ReqID)
	assert.Equal(t, "TASK_002", ev.TaskID)
	assert.Equal(t, engine.KindGitCommit, ev.Kind)
	assert.Equal(t, "aaaaaaa", ev.Detail)

	head = Commit{Hash: "bbbbbbbbbb", Subject: "REQ-001: TASK_002 more"}
	s.poll(ctx, c.emit)
	assert.Len(t, c.snapshot(), 2)
}

func TestGitSource_FallsBackToInProgressTask(t *testing.T) {
	s := newTestGitSource(t, &fakeResolver{inProgress: []engine.TaskRef{
		{ReqID: "REQ-009", TaskID: "TASK_001"},
		{ReqID: "REQ-001", TaskID: "TASK_004"},
	}})
	s.readHead = func(string) (Commit, error) { return Commit{Hash: "h1", Subject: "REQ-001: progress"}, nil }
	c := &collector{}

	s.poll(context.Background(), c.emit)
	require.Len(t, c.snapshot(), 1)
	assert.Equal(t, "TASK_004", c.snapshot()[0].TaskID)
}

func TestGitSource_DropsUnresolvable(t *testing.T) {
	s := newTestGitSource(t, &fakeResolver{})
	c := &collector{}

	s.readHead = func(string) (Commit, error) { return Commit{Hash: "h1", Subject: "REQ-001: nothing in progress"}, nil }
	s.poll(context.Background(), c.emit)
	s.readHead = func(string) (Commit, error) { return Commit{Hash: "h2", Subject: "chore: no requirement"}, nil }
	s.poll(context.Background(), c.emit)

	assert.Empty(t, c.snapshot())
}

func TestGitSource_HeadErrorAndTimeout(t *testing.T) {
	s := newTestGitSource(t, &fakeResolver{})
	s.readHead = func(string) (Commit, error) { return Commit{}, engine.ErrSignalUnavailable }
	_, err := s.head(context.Background())
	assert.True(t, errors.Is(err, engine.ErrSignalUnavailable))

	release := make(chan struct{})
	defer close(release)
	s.timeout = 20 * time.Millisecond
	s.readHead = func(string) (Commit, error) {
		<-release
		return Commit{}, nil
	}
	start := time.Now()
	_, err = s.head(context.Background())
	assert.True(t, errors.Is(err, engine.ErrSignalUnavailable))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewGitSource_Validation(t *testing.T) {
	_, err := NewGitSource(t.TempDir(), &fakeResolver{}, GitOptions{RequirementPattern: `REQ-\d+`})
	assert.Error(t, err, "interval required")

	_, err = NewGitSource(t.TempDir(), &fakeResolver{}, GitOptions{Interval: time.Second, RequirementPattern: `(`})
	assert.Error(t, err)
}

func TestReadHead_RealRepository(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("a.go")
	require.NoError(t, err)
	hash, err := wt.Commit("feat(REQ-007): TASK_001 scaffold\n\nLonger body.", &git.CommitOptions{
		Author: &object.Signature{Name: "Dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	c, err := ReadHead(dir)
	require.NoError(t, err)
	assert.Equal(t, hash.String(), c.Hash)
	assert.Equal(t, "feat(REQ-007): TASK_001 scaffold", c.Subject)
}

func TestGitSource_RunEmitsFirstObservation(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Commit("REQ-003: TASK_002 start", &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            &object.Signature{Name: "Dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	s, err := NewGitSource(dir, &fakeResolver{}, GitOptions{
		Interval: time.Hour, RequirementPattern: `REQ-\d+`, TaskPattern: `TASK_\d+`,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, c.emit) }()

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, "TASK_002", c.snapshot()[0].TaskID)
}

func TestReadHead_NoRepository(t *testing.T) {
	_, err := ReadHead(t.TempDir())
	assert.True(t, errors.Is(err, engine.ErrSignalUnavailable))
}

// --- Test source ---

func newTestTestSource(t *testing.T, r Resolver, sink CoverageSink) *TestSource {
	t.Helper()
	s, err := NewTestSource(t.TempDir(), r, sink, TestOptions{Command: []string{"npm", "test"}, Interval: time.Hour})
	require.NoError(t, err)
	return s
}

func TestTestSource_FansOutToEveryInProgressTask(t *testing.T) {
	r := &fakeResolver{inProgress: []engine.TaskRef{
		{ReqID: "REQ-001", TaskID: "TASK_001"},
		{ReqID: "REQ-002", TaskID: "TASK_003"},
	}}
	sink := &fakeSink{}
	s := newTestTestSource(t, r, sink)
	s.run = func(context.Context, string, []string) (string, error) {
		return "All files |   82.5 |", nil
	}
	c := &collector{}

	s.poll(context.Background(), c.emit)

	events := c.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "REQ-001/TASK_001", events[0].Key())
	assert.Equal(t, "REQ-002/TASK_003", events[1].Key())
	assert.Equal(t, engine.KindTestRun, events[1].Kind)
	assert.Equal(t, "82.5% jest", events[0].Detail)
	assert.Equal(t, 82.5, sink.pct)
	assert.Equal(t, "jest", sink.format)
}

func TestTestSource_FailureAndNoCoverageAreSkipped(t *testing.T) {
	r := &fakeResolver{inProgress: []engine.TaskRef{{ReqID: "REQ-001", TaskID: "TASK_001"}}}
	sink := &fakeSink{}
	s := newTestTestSource(t, r, sink)
	c := &collector{}

	s.run = func(context.Context, string, []string) (string, error) {
		return "All files | 50 |", errors.New("exit status 1")
	}
	s.poll(context.Background(), c.emit)

	s.run = func(context.Context, string, []string) (string, error) { return "ok", nil }
	s.poll(context.Background(), c.emit)

	assert.Empty(t, c.snapshot())
	assert.Zero(t, sink.pct)
}

func TestTestSource_TimeoutBoundsRun(t *testing.T) {
	s := newTestTestSource(t, &fakeResolver{}, &fakeSink{})
	s.timeout = 20 * time.Millisecond
	s.run = func(ctx context.Context, _ string, _ []string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	start := time.Now()
	s.poll(context.Background(), (&collector{}).emit)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func TestRunCommand_CombinedOutput(t *testing.T) {
	requireShell(t)

	out, err := runCommand(context.Background(), t.TempDir(), []string{"sh", "-c", "echo 'coverage: 81.5% of statements'; echo warn >&2"})
	require.NoError(t, err)
	pct, format, ok := ParseCoverage(out)
	require.True(t, ok)
	assert.Equal(t, 81.5, pct)
	assert.Equal(t, "go", format)
	assert.Contains(t, out, "warn")
}

func TestRunCommand_TimeoutKillsForkedChildren(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runCommand(ctx, t.TempDir(), []string{"sh", "-c", "sleep 4 & wait"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "a background child must not hold the run open")
}

func TestNewTestSource_Validation(t *testing.T) {
	_, err := NewTestSource(t.TempDir(), &fakeResolver{}, &fakeSink{}, TestOptions{Interval: time.Second})
	assert.Error(t, err)
	_, err = NewTestSource(t.TempDir(), &fakeResolver{}, &fakeSink{}, TestOptions{Command: []string{"go", "test"}})
	assert.Error(t, err)
}

// --- File source ---

func newTestFileSource(root string, r Resolver) *FileSource {
	return NewFileSource(root, r, FileOptions{
		Paths:      []string{"src"},
		Extensions: []string{".js", ".ts", ".go"},
		Excludes:   []string{"*.test.*", "*_test.go", "node_modules/", ".git/", "src/generated/*.ts"},
	})
}

func TestFileSource_Accept(t *testing.T) {
	s := newTestFileSource("/repo", &fakeResolver{})

	tests := []struct {
		path string
		want bool
	}{
		{"/repo/src/models/User.js", true},
		{"/repo/src/models/User.JS", true},
		{"/repo/src/models/User.test.js", false},
		{"/repo/src/store_test.go", false},
		{"/repo/src/node_modules/x/index.js", false},
		{"/repo/src/generated/api.ts", false},
		{"/repo/src/other/api.ts", true},
		{"/repo/README.md", false},
		{"src/relative.ts", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Accept(tt.path))
		})
	}
}

func TestFileSource_RunEmitsResolvedWrites(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "models"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "node_modules"), 0o755))

	r := &fakeResolver{files: map[string]engine.TaskRef{
		"User.js":  {ReqID: "REQ-001", TaskID: "TASK_001"},
		"Route.ts": {ReqID: "REQ-001", TaskID: "TASK_002"},
	}}
	s := newTestFileSource(root, r)
	c := &collector{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, c.emit) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "models", "User.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "models", "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "models", "Unknown.js"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(c.snapshot()) > 0 }, 5*time.Second, 10*time.Millisecond)

	// A directory created after start is picked up.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "routes"), 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "routes", "Route.ts"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		for _, e := range c.snapshot() {
			if e.TaskID == "TASK_002" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)

	for _, e := range c.snapshot() {
		assert.Equal(t, engine.KindFileChange, e.Kind)
		assert.Contains(t, []string{"src/models/User.js", "src/routes/Route.ts"}, e.Detail)
	}
}

func TestFileSource_MissingWatchPathsStillRunUntilCancelled(t *testing.T) {
	s := NewFileSource(t.TempDir(), &fakeResolver{}, FileOptions{Paths: []string{"nope"}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, func(Event) {}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
