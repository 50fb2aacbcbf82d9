package engine

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/go-git/go-git/v5"

	"github.com/HendryAvila/devpulse/internal/progress"
	"github.com/HendryAvila/devpulse/internal/state"
)

// TaskRef names one task of one requirement.
type TaskRef struct {
	ReqID  string `json:"req_id"`
	TaskID string `json:"task_id"`
}

// ActiveRequirements returns the IDs of requirements that are not
// completed or cancelled and have either a plan or task records. A
// directory whose name does not match the requirement pattern is ignored.
func (e *Engine) ActiveRequirements() ([]string, error) {
	reqs, err := e.store.ListRequirements()
	if err != nil {
		return nil, err
	}
	pattern := e.cfg.RequirementRegexp()

	var ids []string
	for _, r := range reqs {
		if r.Status.IsTerminal() || !pattern.MatchString(r.ReqID) {
			continue
		}
		if e.hasPlan(r.ReqID) || r.TotalTasks > 0 {
			ids = append(ids, r.ReqID)
			continue
		}
		if tasks, err := e.store.ListTasks(r.ReqID); err == nil && len(tasks) > 0 {
			ids = append(ids, r.ReqID)
		}
	}
	return ids, nil
}

// InProgressTasks returns every in_progress task of every active
// requirement.
func (e *Engine) InProgressTasks() ([]TaskRef, error) {
	reqIDs, err := e.ActiveRequirements()
	if err != nil {
		return nil, err
	}
	var refs []TaskRef
	for _, reqID := range reqIDs {
		tasks, err := e.store.ListTasks(reqID)
		if err != nil {
			e.logger.Warn("listing tasks", "req", reqID, "err", err)
			continue
		}
		for _, t := range tasks {
			if t.Status == progress.StatusInProgress {
				refs = append(refs, TaskRef{ReqID: reqID, TaskID: t.TaskID})
			}
		}
	}
	return refs, nil
}

// CurrentTask picks the task a requirement-level signal should update:
// the first in_progress task, else the first planned task that is not
// completed or cancelled.
func (e *Engine) CurrentTask(reqID string) (string, error) {
	tasks, err := e.store.ListTasks(reqID)
	if err != nil {
		return "", err
	}
	terminal := map[string]bool{}
	for _, t := range tasks {
		if t.Status == progress.StatusInProgress {
			return t.TaskID, nil
		}
		if t.Status.IsTerminal() {
			terminal[t.TaskID] = true
		}
	}

	p, err := e.LoadPlan(reqID)
	if err != nil {
		return "", err
	}
	for _, id := range p.TaskIDs() {
		if !terminal[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s has no open task", ErrUnresolved, reqID)
}

// TaskForFile maps a changed file to the task whose plan section mentions
// it. Active requirements are searched in ID order and the first match
// wins.
func (e *Engine) TaskForFile(path string) (TaskRef, error) {
	reqIDs, err := e.ActiveRequirements()
	if err != nil {
		return TaskRef{}, err
	}
	for _, reqID := range reqIDs {
		p, err := e.LoadPlan(reqID)
		if err != nil {
			continue
		}
		if taskID := p.TaskForFile(path); taskID != "" {
			return TaskRef{ReqID: reqID, TaskID: taskID}, nil
		}
	}
	return TaskRef{}, fmt.Errorf("%w: no task mentions %s", ErrUnresolved, path)
}

// ResolveFromBranch maps the checked-out branch (feature/REQ-123-...) to
// its requirement and current task.
func (e *Engine) ResolveFromBranch() (TaskRef, error) {
	branch, err := CurrentBranch(e.root)
	if err != nil {
		return TaskRef{}, err
	}
	re, err := regexp.Compile(`feature/(` + e.cfg.RequirementPattern + `)`)
	if err != nil {
		return TaskRef{}, fmt.Errorf("compiling branch pattern: %w", err)
	}
	m := re.FindStringSubmatch(branch)
	if m == nil {
		return TaskRef{}, fmt.Errorf("%w: branch %q names no requirement", ErrUnresolved, branch)
	}
	taskID, err := e.CurrentTask(m[1])
	if err != nil {
		return TaskRef{}, err
	}
	return TaskRef{ReqID: m[1], TaskID: taskID}, nil
}

// CurrentBranch returns the short name of the branch checked out in the
// repository containing dir.
func CurrentBranch(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("%w: opening repository: %v", ErrSignalUnavailable, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("%w: reading HEAD: %v", ErrSignalUnavailable, err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("%w: HEAD is detached", ErrUnresolved)
	}
	return head.Name().Short(), nil
}

func (e *Engine) hasPlan(reqID string) bool {
	_, err := os.Stat(e.PlanPath(reqID))
	return err == nil
}

// IsSoft reports whether err is one of the expected no-op conditions
// that callers log at debug level and otherwise ignore.
func IsSoft(err error) bool {
	return errors.Is(err, ErrUnresolved) ||
		errors.Is(err, ErrLowConfidence) ||
		errors.Is(err, ErrSignalUnavailable) ||
		errors.Is(err, state.ErrMalformedState)
}
