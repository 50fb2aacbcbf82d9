// Package state persists requirement and task progress records.
//
// Every requirement owns a directory under the requirements root:
//
//	<root>/<REQ>/requirement_status.json
//	<root>/<REQ>/tasks/<TASK>_status.json
//
// Task files are updated through a locked read-modify-write (Apply) and
// replaced atomically, so a reader never sees a torn file. The requirement
// file is derived data: RecomputeRequirement rebuilds it from the task
// files after every applied update.
package state

import (
	"errors"

	"github.com/HendryAvila/devpulse/internal/progress"
)

// MaxMilestones bounds a task's milestone history. Older entries are
// evicted first.
const MaxMilestones = 20

// DefaultUpdatedBy is stamped on records written by automatic updates.
const DefaultUpdatedBy = "progress-monitor"

// ErrMalformedState marks a state file that exists but cannot be read or
// decoded. Writers treat it as no prior state.
var ErrMalformedState = errors.New("malformed state file")

// Requirement is the aggregate record of a requirement.
type Requirement struct {
	ReqID           string          `json:"reqId"`
	OverallProgress float64         `json:"overallProgress"`
	CompletedTasks  int             `json:"completedTasks"`
	TotalTasks      int             `json:"totalTasks"`
	Status          progress.Status `json:"status"`
	LastUpdated     string          `json:"lastUpdated,omitempty"`
	UpdatedBy       string          `json:"updatedBy,omitempty"`
}

// Task is the progress record of a single task.
type Task struct {
	TaskID        string             `json:"taskId"`
	ReqID         string             `json:"reqId"`
	Status        progress.Status    `json:"status"`
	Progress      float64            `json:"progress"`
	LastUpdated   string             `json:"lastUpdated,omitempty"`
	UpdatedBy     string             `json:"updatedBy,omitempty"`
	UpdateMethod  string             `json:"updateMethod,omitempty"`
	AutoDetection *progress.Snapshot `json:"autoDetection,omitempty"`
	Milestones    []Milestone        `json:"milestones"`
}

// Milestone is one entry of a task's progress history.
type Milestone struct {
	Timestamp  string          `json:"timestamp"`
	Status     progress.Status `json:"status"`
	Progress   float64         `json:"progress"`
	Comment    string          `json:"comment"`
	Confidence float64         `json:"confidence"`
}

// newTask returns the record used when a task has no (readable) file yet.
func newTask(reqID, taskID string) *Task {
	return &Task{
		TaskID:     taskID,
		ReqID:      reqID,
		Status:     progress.StatusPlanning,
		Milestones: []Milestone{},
	}
}

// appendMilestone adds m and evicts the oldest entries past MaxMilestones.
func (t *Task) appendMilestone(m Milestone) {
	ms := append(t.Milestones, m)
	if len(ms) > MaxMilestones {
		ms = append([]Milestone(nil), ms[len(ms)-MaxMilestones:]...)
	}
	t.Milestones = ms
}

// Update is one requested progress write.
type Update struct {
	ReqID  string
	TaskID string
	// Snapshot carries the freshly computed progress and its evidence.
	Snapshot progress.Snapshot
	// Method names the trigger kind, e.g. file_change or git_commit.
	Method    string
	UpdatedBy string
	// Comment overrides the generated milestone comment.
	Comment string
	// Threshold is the minimum change in percentage points worth writing.
	Threshold float64
	// Force bypasses both the threshold and the terminal-status gate.
	Force bool
}

// Reasons an Update was not written.
const (
	SkipBelowThreshold = "below_threshold"
	SkipTerminal       = "terminal_status"
)

// UpdateResult describes what Apply did.
type UpdateResult struct {
	Applied          bool
	SkipReason       string
	PreviousStatus   progress.Status
	PreviousProgress float64
	Task             *Task
	// Requirement is the recomputed aggregate; nil when nothing was applied.
	Requirement *Requirement
}
