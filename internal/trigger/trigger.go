// Package trigger holds the producers of "something changed" events.
//
// Each Source runs until its context is cancelled and reports events
// through the emit callback. A source resolves its raw signal (a saved
// file, a new commit, a coverage figure) to requirement and task IDs
// before emitting; signals that cannot be resolved are dropped. Source
// failures are logged and retried on the next tick, never returned as
// fatal errors once the source is running.
package trigger

import (
	"context"
	"time"

	"github.com/HendryAvila/devpulse/internal/engine"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Event is one resolved trigger.
type Event struct {
	ReqID  string
	TaskID string
	Kind   string
	// Detail is a short human-readable origin: a path, a commit hash, a
	// coverage figure.
	Detail string
	At     time.Time
}

// Key identifies the task an event targets.
func (e Event) Key() string {
	return e.ReqID + "/" + e.TaskID
}

// Source produces events until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, emit func(Event)) error
}

// Resolver maps raw signals to tasks. *engine.Engine satisfies it.
type Resolver interface {
	TaskForFile(path string) (engine.TaskRef, error)
	InProgressTasks() ([]engine.TaskRef, error)
}

// CoverageSink persists a parsed coverage figure. *engine.Engine
// satisfies it.
type CoverageSink interface {
	SaveCoverage(pct float64, format string) error
}

// inProgressTask returns the first in_progress task of reqID.
func inProgressTask(r Resolver, reqID string) (string, bool) {
	refs, err := r.InProgressTasks()
	if err != nil {
		return "", false
	}
	for _, ref := range refs {
		if ref.ReqID == reqID {
			return ref.TaskID, true
		}
	}
	return "", false
}
