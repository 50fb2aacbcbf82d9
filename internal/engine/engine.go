// Package engine implements the single progress-update operation shared by
// every trigger path.
//
// A trigger names a (requirement, task) pair and a kind. The engine reads
// the requirement's implementation plan, scans the planned files, folds in
// the cached test coverage, computes progress and confidence, and hands
// the result to the state store. The monitor loop, the editor hook and the
// CLI all go through Trigger, so they share one threshold and one
// confidence gate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/HendryAvila/devpulse/internal/config"
	"github.com/HendryAvila/devpulse/internal/evidence"
	"github.com/HendryAvila/devpulse/internal/journal"
	"github.com/HendryAvila/devpulse/internal/logging"
	"github.com/HendryAvila/devpulse/internal/plan"
	"github.com/HendryAvila/devpulse/internal/progress"
	"github.com/HendryAvila/devpulse/internal/state"
)

var (
	// ErrSignalUnavailable means an external signal (git, test command,
	// cache) could not be read. The trigger is skipped and retried later.
	ErrSignalUnavailable = errors.New("signal unavailable")
	// ErrUnresolved means no (requirement, task) pair could be resolved, or
	// the task has nothing planned to measure.
	ErrUnresolved = errors.New("unresolved requirement or task")
	// ErrLowConfidence means the computed update was dropped because its
	// confidence is below the configured minimum.
	ErrLowConfidence = errors.New("confidence below minimum")
)

// Trigger kinds. They end up in updateMethod, milestone comments and the
// journal.
const (
	KindFileChange = "file_change"
	KindGitCommit  = "git_commit"
	KindTestRun    = "test_run"
	KindStaleCheck = "stale_check"
	KindHook       = "hook"
	KindManual     = "manual"
)

// Recorder receives one entry per trigger outcome. *journal.Store
// satisfies it.
type Recorder interface {
	Record(e journal.Entry) (journal.Entry, error)
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	Journal Recorder
	Logger  *log.Logger
	Scanner *evidence.Scanner
}

// Engine runs progress analysis and updates for one project.
type Engine struct {
	root    string
	cfg     *config.Config
	store   *state.FileStore
	scanner *evidence.Scanner
	journal Recorder
	logger  *log.Logger
}

// New creates an Engine for the project at root.
func New(root string, cfg *config.Config, store *state.FileStore, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Scanner == nil {
		opts.Scanner = evidence.NewScanner(nil)
	}
	return &Engine{
		root:    root,
		cfg:     cfg,
		store:   store,
		scanner: opts.Scanner,
		journal: opts.Journal,
		logger:  opts.Logger.With("component", "engine"),
	}
}

// ProjectRoot returns the directory planned file paths are resolved against.
func (e *Engine) ProjectRoot() string { return e.root }

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Store returns the state store.
func (e *Engine) Store() *state.FileStore { return e.store }

// PlanPath returns the implementation plan path of a requirement.
func (e *Engine) PlanPath(reqID string) string {
	return filepath.Join(state.RequirementPath(e.store.Root(), reqID), e.cfg.PlanFile)
}

// LoadPlan reads and parses a requirement's plan. A missing plan wraps
// ErrUnresolved.
func (e *Engine) LoadPlan(reqID string) (*plan.Plan, error) {
	data, err := os.ReadFile(e.PlanPath(reqID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no plan for %s", ErrUnresolved, reqID)
		}
		return nil, fmt.Errorf("reading plan for %s: %w", reqID, err)
	}
	return plan.Parse(string(data), e.cfg.TaskRegexp()), nil
}

// Analysis is the result of measuring one task.
type Analysis struct {
	Snapshot progress.Snapshot `json:"snapshot"`
	Report   evidence.Report   `json:"report"`
}

// Analyze measures a task without writing anything.
func (e *Engine) Analyze(reqID, taskID string) (Analysis, error) {
	p, err := e.LoadPlan(reqID)
	if err != nil {
		return Analysis{}, err
	}
	sec := p.Section(taskID)
	if len(sec.Files()) == 0 {
		return Analysis{}, fmt.Errorf("%w: %s has no planned files for %s", ErrUnresolved, reqID, taskID)
	}

	targets := make([]evidence.Target, 0, len(sec.Files()))
	for _, f := range sec.Files() {
		targets = append(targets, evidence.Target{Path: f, Symbols: sec.Symbols(f)})
	}
	report := e.scanner.Scan(e.root, targets, sec.PoolSymbols())

	var coverage *float64
	if m, err := e.LoadTestMetrics(); err != nil {
		e.logger.Debug("test metrics unavailable", "err", err)
	} else if m != nil {
		c := m.Coverage
		coverage = &c
	}

	return Analysis{
		Snapshot: progress.Calculate(progress.FromReport(report, coverage)),
		Report:   report,
	}, nil
}

// Request is one trigger invocation.
type Request struct {
	ReqID  string
	TaskID string
	Kind   string
	// Detail is appended to the milestone comment, e.g. a commit hash.
	Detail    string
	UpdatedBy string
	// Force bypasses the confidence gate, the threshold and the terminal
	// status guard.
	Force bool
}

// Outcome describes what a trigger did.
type Outcome struct {
	ReqID            string             `json:"req_id"`
	TaskID           string             `json:"task_id"`
	Kind             string             `json:"kind"`
	Applied          bool               `json:"applied"`
	SkipReason       string             `json:"skip_reason,omitempty"`
	PreviousStatus   progress.Status    `json:"previous_status"`
	Status           progress.Status    `json:"status"`
	PreviousProgress float64            `json:"previous_progress"`
	Progress         float64            `json:"progress"`
	Confidence       float64            `json:"confidence"`
	Requirement      *state.Requirement `json:"requirement,omitempty"`
}

// Notification returns the one-line change summary of an applied update,
// or "" when nothing was written.
func (o Outcome) Notification() string {
	if !o.Applied {
		return ""
	}
	status := string(o.Status)
	if o.PreviousStatus != o.Status {
		status = fmt.Sprintf("%s → %s", o.PreviousStatus, o.Status)
	}
	return fmt.Sprintf("%s > %s: %s, %.1f%% → %.1f%% (confidence %.2f)",
		o.ReqID, o.TaskID, status, o.PreviousProgress, o.Progress, o.Confidence)
}

// SkipLowConfidence is the journal reason for updates dropped by the
// confidence gate.
const SkipLowConfidence = "low_confidence"

// Trigger analyzes a task and applies the result through the state store.
// Unresolvable tasks and low-confidence results are returned as errors
// wrapping ErrUnresolved and ErrLowConfidence; callers treat both as
// silent no-ops. Threshold and terminal-status skips are not errors: the
// Outcome reports them.
func (e *Engine) Trigger(ctx context.Context, r Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if r.ReqID == "" || r.TaskID == "" {
		return Outcome{}, fmt.Errorf("%w: missing requirement or task", ErrUnresolved)
	}
	if r.Kind == "" {
		r.Kind = KindManual
	}
	out := Outcome{ReqID: r.ReqID, TaskID: r.TaskID, Kind: r.Kind}

	a, err := e.Analyze(r.ReqID, r.TaskID)
	if err != nil {
		return out, err
	}
	out.Progress = a.Snapshot.Progress
	out.Confidence = a.Snapshot.Confidence

	if !r.Force && a.Snapshot.Confidence < e.cfg.MinConfidenceToApply {
		out.SkipReason = SkipLowConfidence
		e.logger.Debug("dropping low-confidence update",
			"req", r.ReqID, "task", r.TaskID, "confidence", a.Snapshot.Confidence)
		e.record(out, journal.OutcomeSkipped)
		return out, fmt.Errorf("%w: %.2f < %.2f", ErrLowConfidence, a.Snapshot.Confidence, e.cfg.MinConfidenceToApply)
	}

	comment := fmt.Sprintf("Auto-detected via %s", r.Kind)
	if r.Detail != "" {
		comment += ": " + r.Detail
	}
	res, err := e.store.Apply(state.Update{
		ReqID:     r.ReqID,
		TaskID:    r.TaskID,
		Snapshot:  a.Snapshot,
		Method:    r.Kind,
		UpdatedBy: r.UpdatedBy,
		Comment:   comment,
		Threshold: e.cfg.ThresholdPoints(),
		Force:     r.Force,
	})
	out.PreviousStatus = res.PreviousStatus
	out.PreviousProgress = res.PreviousProgress
	if res.Task != nil {
		out.Status = res.Task.Status
	}
	if err != nil {
		e.record(out, journal.OutcomeFailed)
		return out, err
	}

	out.Applied = res.Applied
	out.SkipReason = res.SkipReason
	out.Requirement = res.Requirement
	if out.Applied {
		e.record(out, journal.OutcomeApplied)
		e.logger.Info(out.Notification(), "kind", r.Kind)
	} else {
		e.record(out, journal.OutcomeSkipped)
		e.logger.Debug("update skipped", "req", r.ReqID, "task", r.TaskID, "reason", out.SkipReason)
	}
	return out, nil
}

func (e *Engine) record(o Outcome, outcome string) {
	if e.journal == nil {
		return
	}
	_, err := e.journal.Record(journal.Entry{
		ReqID:            o.ReqID,
		TaskID:           o.TaskID,
		Kind:             o.Kind,
		Outcome:          outcome,
		Reason:           o.SkipReason,
		PreviousStatus:   string(o.PreviousStatus),
		Status:           string(o.Status),
		PreviousProgress: o.PreviousProgress,
		Progress:         o.Progress,
		Confidence:       o.Confidence,
	})
	if err != nil {
		e.logger.Warn("journal write failed", "err", err)
	}
}
