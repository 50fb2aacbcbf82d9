package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/natefinch/atomic"

	"github.com/HendryAvila/devpulse/internal/logging"
	"github.com/HendryAvila/devpulse/internal/progress"
)

const (
	// RequirementStatusFile is the aggregate record inside a requirement dir.
	RequirementStatusFile = "requirement_status.json"
	// TasksDir is the subdirectory holding task records.
	TasksDir = "tasks"
	// TaskStatusSuffix completes a task record filename: TASK_001_status.json.
	TaskStatusSuffix = "_status.json"
)

// thresholdEpsilon absorbs float noise on one-decimal progress values.
const thresholdEpsilon = 1e-9

// RequirementPath returns the directory of a requirement.
func RequirementPath(root, reqID string) string {
	return filepath.Join(root, reqID)
}

// RequirementStatusPath returns the path of a requirement's aggregate record.
func RequirementStatusPath(root, reqID string) string {
	return filepath.Join(RequirementPath(root, reqID), RequirementStatusFile)
}

// TasksPath returns the directory holding a requirement's task records.
func TasksPath(root, reqID string) string {
	return filepath.Join(RequirementPath(root, reqID), TasksDir)
}

// TaskStatusPath returns the path of a task record.
func TaskStatusPath(root, reqID, taskID string) string {
	return filepath.Join(TasksPath(root, reqID), taskID+TaskStatusSuffix)
}

// FileStore implements the state store on the local filesystem.
type FileStore struct {
	root   string
	locks  *KeyLocks
	logger *log.Logger
}

// NewFileStore creates a store rooted at the requirements directory.
// A nil logger discards output.
func NewFileStore(root string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = logging.Discard()
	}
	return &FileStore{
		root:   root,
		locks:  NewKeyLocks(),
		logger: logger.With("component", "state"),
	}
}

// Root returns the requirements directory.
func (fs *FileStore) Root() string {
	return fs.root
}

// LoadTask reads a task record. A missing file returns (nil, nil); a file
// that cannot be decoded returns an error wrapping ErrMalformedState.
func (fs *FileStore) LoadTask(reqID, taskID string) (*Task, error) {
	var t Task
	ok, err := readJSON(TaskStatusPath(fs.root, reqID, taskID), &t)
	if err != nil || !ok {
		return nil, err
	}
	if t.Milestones == nil {
		t.Milestones = []Milestone{}
	}
	return &t, nil
}

// LoadRequirement reads a requirement record with the same contract as
// LoadTask.
func (fs *FileStore) LoadRequirement(reqID string) (*Requirement, error) {
	var r Requirement
	ok, err := readJSON(RequirementStatusPath(fs.root, reqID), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// Apply performs a locked read-modify-write of one task record and, when
// the write happened, recomputes the requirement aggregate.
//
// The write is skipped, leaving the file untouched, when the progress
// change is below u.Threshold or when the task is completed or cancelled.
// Force bypasses both checks.
func (fs *FileStore) Apply(u Update) (UpdateResult, error) {
	if u.ReqID == "" || u.TaskID == "" {
		return UpdateResult{}, fmt.Errorf("applying update: requirement and task IDs are required")
	}

	path := TaskStatusPath(fs.root, u.ReqID, u.TaskID)
	unlock, err := fs.lock(path)
	if err != nil {
		return UpdateResult{}, err
	}

	task, err := fs.LoadTask(u.ReqID, u.TaskID)
	if err != nil {
		if !errors.Is(err, ErrMalformedState) {
			unlock()
			return UpdateResult{}, err
		}
		fs.logger.Warn("replacing unreadable task record", "req", u.ReqID, "task", u.TaskID, "err", err)
		task = nil
	}
	if task == nil {
		task = newTask(u.ReqID, u.TaskID)
	}

	res := UpdateResult{
		PreviousStatus:   task.Status,
		PreviousProgress: task.Progress,
		Task:             task,
	}
	next := progress.Round(progress.Clamp(u.Snapshot.Progress, 0, 100))

	switch {
	case !u.Force && task.Status.IsTerminal():
		res.SkipReason = SkipTerminal
	case !u.Force && math.Abs(next-task.Progress)+thresholdEpsilon < u.Threshold:
		res.SkipReason = SkipBelowThreshold
	}
	if res.SkipReason != "" {
		unlock()
		return res, nil
	}

	updatedBy := u.UpdatedBy
	if updatedBy == "" {
		updatedBy = DefaultUpdatedBy
	}
	comment := u.Comment
	if comment == "" {
		comment = fmt.Sprintf("Auto-detected via %s", methodOrManual(u.Method))
	}
	snap := u.Snapshot
	snap.Progress = next

	now := stamp()
	task.Status = progress.DeriveStatus(next, task.Status)
	task.Progress = next
	task.LastUpdated = now
	task.UpdatedBy = updatedBy
	task.UpdateMethod = methodOrManual(u.Method)
	task.AutoDetection = &snap
	task.appendMilestone(Milestone{
		Timestamp:  now,
		Status:     task.Status,
		Progress:   next,
		Comment:    comment,
		Confidence: snap.Confidence,
	})

	err = writeJSON(path, task)
	unlock()
	if err != nil {
		return res, fmt.Errorf("writing task %s/%s: %w", u.ReqID, u.TaskID, err)
	}
	res.Applied = true

	req, err := fs.RecomputeRequirement(u.ReqID, updatedBy)
	if err != nil {
		return res, fmt.Errorf("recomputing requirement %s: %w", u.ReqID, err)
	}
	res.Requirement = req
	return res, nil
}

// RecomputeRequirement rebuilds the aggregate record from the task files
// under the requirement lock. Running it twice yields the same record
// apart from lastUpdated.
func (fs *FileStore) RecomputeRequirement(reqID, updatedBy string) (*Requirement, error) {
	path := RequirementStatusPath(fs.root, reqID)
	unlock, err := fs.lock(path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tasks, err := fs.ListTasks(reqID)
	if err != nil {
		return nil, err
	}

	req, err := fs.LoadRequirement(reqID)
	if err != nil {
		if !errors.Is(err, ErrMalformedState) {
			return nil, err
		}
		fs.logger.Warn("replacing unreadable requirement record", "req", reqID, "err", err)
		req = nil
	}
	if req == nil {
		req = &Requirement{ReqID: reqID, Status: progress.StatusPlanning}
	}

	aggregate(req, tasks)
	req.LastUpdated = stamp()
	if updatedBy == "" {
		updatedBy = DefaultUpdatedBy
	}
	req.UpdatedBy = updatedBy

	if err := writeJSON(path, req); err != nil {
		return nil, fmt.Errorf("writing requirement %s: %w", reqID, err)
	}
	return req, nil
}

// aggregate folds task records into req. A cancelled requirement keeps
// its status. Every task terminal with at least one completed forces
// completed regardless of the mean.
func aggregate(req *Requirement, tasks []Task) {
	req.TotalTasks = len(tasks)
	req.CompletedTasks = 0
	sum := 0.0
	allTerminal := len(tasks) > 0
	for _, t := range tasks {
		sum += t.Progress
		if t.Status == progress.StatusCompleted {
			req.CompletedTasks++
		}
		if !t.Status.IsTerminal() {
			allTerminal = false
		}
	}
	req.OverallProgress = 0
	if len(tasks) > 0 {
		req.OverallProgress = progress.Round(sum / float64(len(tasks)))
	}

	switch {
	case req.Status == progress.StatusCancelled:
	case allTerminal && req.CompletedTasks > 0:
		req.Status = progress.StatusCompleted
	default:
		req.Status = progress.DeriveStatus(req.OverallProgress, req.Status)
	}
}

// ListTasks returns every readable task record of a requirement, sorted
// by task ID. Unreadable records are logged and skipped.
func (fs *FileStore) ListTasks(reqID string) ([]Task, error) {
	entries, err := os.ReadDir(TasksPath(fs.root, reqID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tasks directory: %w", err)
	}

	var tasks []Task
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, TaskStatusSuffix) {
			continue
		}
		taskID := strings.TrimSuffix(name, TaskStatusSuffix)
		t, err := fs.LoadTask(reqID, taskID)
		if err != nil {
			fs.logger.Warn("skipping task record", "req", reqID, "task", taskID, "err", err)
			continue
		}
		if t == nil {
			continue
		}
		if t.TaskID == "" {
			t.TaskID = taskID
		}
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })
	return tasks, nil
}

// ListRequirements returns one record per requirement directory, sorted
// by ID. A directory without a readable status file yields a planning
// record that has never been written.
func (fs *FileStore) ListRequirements() ([]Requirement, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading requirements directory: %w", err)
	}

	var reqs []Requirement
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		r, err := fs.LoadRequirement(entry.Name())
		if err != nil {
			fs.logger.Warn("unreadable requirement record", "req", entry.Name(), "err", err)
		}
		if r == nil {
			r = &Requirement{ReqID: entry.Name(), Status: progress.StatusPlanning}
		}
		if r.ReqID == "" {
			r.ReqID = entry.Name()
		}
		reqs = append(reqs, *r)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ReqID < reqs[j].ReqID })
	return reqs, nil
}

func methodOrManual(method string) string {
	if method == "" {
		return "manual"
	}
	return method
}

// readFile is a package-level var to allow test injection.
var readFile = os.ReadFile

// readJSON decodes path into v. It reports false with no error when the
// file does not exist. Any other read failure counts as malformed state.
func readJSON(path string, v any) (bool, error) {
	data, err := readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: reading %s: %v", ErrMalformedState, filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrMalformedState, filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON replaces path atomically, creating its directory if needed.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return atomic.WriteFile(path, bytes.NewReader(append(data, '\n')))
}
