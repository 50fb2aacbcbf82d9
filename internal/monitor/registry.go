package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/progress"
	"github.com/HendryAvila/devpulse/internal/state"
)

// ReportFile is the health snapshot written to the cache directory on
// every supervisory tick.
const ReportFile = "monitoring_report.json"

// Registry is the monitor's periodically rebuilt view of active work.
type Registry struct {
	BuiltAt      time.Time
	Requirements []RequirementEntry
}

// RequirementEntry is one active requirement and its task records.
type RequirementEntry struct {
	ReqID string
	Tasks []state.Task
}

// BuildRegistry lists active requirements and their tasks.
func BuildRegistry(e *engine.Engine) (Registry, error) {
	ids, err := e.ActiveRequirements()
	if err != nil {
		return Registry{}, err
	}
	reg := Registry{BuiltAt: timeNow()}
	for _, id := range ids {
		tasks, err := e.Store().ListTasks(id)
		if err != nil {
			return Registry{}, fmt.Errorf("listing tasks of %s: %w", id, err)
		}
		reg.Requirements = append(reg.Requirements, RequirementEntry{ReqID: id, Tasks: tasks})
	}
	return reg, nil
}

// ActiveTaskCount counts in_progress tasks.
func (r Registry) ActiveTaskCount() int {
	n := 0
	for _, req := range r.Requirements {
		for _, t := range req.Tasks {
			if t.Status == progress.StatusInProgress {
				n++
			}
		}
	}
	return n
}

// Stale returns the in_progress tasks last updated before now-after.
// Tasks with an unparseable timestamp are treated as stale.
func (r Registry) Stale(now time.Time, after time.Duration) []engine.TaskRef {
	var refs []engine.TaskRef
	cutoff := now.Add(-after)
	for _, req := range r.Requirements {
		for _, t := range req.Tasks {
			if t.Status != progress.StatusInProgress {
				continue
			}
			ts, err := time.Parse(time.RFC3339, t.LastUpdated)
			if err != nil || ts.Before(cutoff) {
				refs = append(refs, engine.TaskRef{ReqID: req.ReqID, TaskID: t.TaskID})
			}
		}
	}
	return refs
}

// Health is the monitor's status snapshot.
type Health struct {
	Timestamp              string   `json:"timestamp" yaml:"timestamp"`
	Running                bool     `json:"running" yaml:"running"`
	State                  string   `json:"state" yaml:"state"`
	ActiveRequirementCount int      `json:"activeRequirementCount" yaml:"activeRequirementCount"`
	ActiveTaskCount        int      `json:"activeTaskCount" yaml:"activeTaskCount"`
	Sources                []string `json:"sources" yaml:"sources"`
	EventsReceived         uint64   `json:"eventsReceived" yaml:"eventsReceived"`
	UpdatesApplied         uint64   `json:"updatesApplied" yaml:"updatesApplied"`
}

// ReportPath returns where the health snapshot is written.
func ReportPath(e *engine.Engine) string {
	return filepath.Join(e.CacheDir(), ReportFile)
}

// LoadReport reads the last persisted health snapshot. A missing report
// returns (nil, nil).
func LoadReport(e *engine.Engine) (*Health, error) {
	data, err := os.ReadFile(ReportPath(e))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading monitoring report: %w", err)
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing monitoring report: %w", err)
	}
	return &h, nil
}

func writeReport(e *engine.Engine, h Health) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling monitoring report: %w", err)
	}
	if err := os.MkdirAll(e.CacheDir(), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return atomic.WriteFile(ReportPath(e), bytes.NewReader(data))
}
