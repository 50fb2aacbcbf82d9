package trigger

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/logging"
)

// DefaultGitTimeout bounds each HEAD read.
const DefaultGitTimeout = 10 * time.Second

// Commit is the part of the latest commit the git source looks at.
type Commit struct {
	Hash    string
	Subject string
	When    time.Time
}

// GitSource polls the repository HEAD and emits a git_commit event when
// the commit hash changes. The first observation always fires, so a
// monitor restart catches up on commits made while it was down.
type GitSource struct {
	root     string
	interval time.Duration
	timeout  time.Duration
	reqRe    *regexp.Regexp
	taskRe   *regexp.Regexp
	resolver Resolver
	logger   *log.Logger

	readHead func(root string) (Commit, error)
	lastHash string
}

// GitOptions configures a GitSource.
type GitOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// RequirementPattern and TaskPattern are the ID regexps, e.g. REQ-\d+.
	RequirementPattern string
	TaskPattern        string
	Logger             *log.Logger
}

// NewGitSource creates a GitSource for the repository containing root.
func NewGitSource(root string, r Resolver, opts GitOptions) (*GitSource, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultGitTimeout
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("git poll interval must be positive")
	}
	reqRe, err := regexp.Compile(`\(?(` + opts.RequirementPattern + `)\)?:`)
	if err != nil {
		return nil, fmt.Errorf("compiling requirement pattern: %w", err)
	}
	taskRe, err := regexp.Compile(opts.TaskPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling task pattern: %w", err)
	}
	return &GitSource{
		root:     root,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		reqRe:    reqRe,
		taskRe:   taskRe,
		resolver: r,
		logger:   opts.Logger.With("source", "git"),
		readHead: ReadHead,
	}, nil
}

// Name implements Source.
func (s *GitSource) Name() string { return "git" }

// Run implements Source.
func (s *GitSource) Run(ctx context.Context, emit func(Event)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll(ctx, emit)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.poll(ctx, emit)
		}
	}
}

func (s *GitSource) poll(ctx context.Context, emit func(Event)) {
	c, err := s.head(ctx)
	if err != nil {
		s.logger.Debug("git head unavailable", "err", err)
		return
	}
	if c.Hash == s.lastHash {
		return
	}
	s.lastHash = c.Hash

	reqID, taskID := ParseCommitSubject(c.Subject, s.reqRe, s.taskRe)
	if reqID == "" {
		s.logger.Debug("commit names no requirement", "hash", short(c.Hash))
		return
	}
	if taskID == "" {
		id, ok := inProgressTask(s.resolver, reqID)
		if !ok {
			s.logger.Debug("no in-progress task for commit", "req", reqID, "hash", short(c.Hash))
			return
		}
		taskID = id
	}
	emit(Event{
		ReqID:  reqID,
		TaskID: taskID,
		Kind:   engine.KindGitCommit,
		Detail: short(c.Hash),
		At:     timeNow(),
	})
}

// head reads HEAD under the configured timeout. go-git is not
// context-aware, so an overrunning read is abandoned, not interrupted.
func (s *GitSource) head(ctx context.Context) (Commit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		c   Commit
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := s.readHead(s.root)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		return r.c, r.err
	case <-ctx.Done():
		return Commit{}, fmt.Errorf("%w: reading HEAD: %v", engine.ErrSignalUnavailable, ctx.Err())
	}
}

// ReadHead returns the commit HEAD points to in the repository containing
// root.
func ReadHead(root string) (Commit, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Commit{}, fmt.Errorf("%w: opening repository: %v", engine.ErrSignalUnavailable, err)
	}
	ref, err := repo.Head()
	if err != nil {
		return Commit{}, fmt.Errorf("%w: resolving HEAD: %v", engine.ErrSignalUnavailable, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Commit{}, fmt.Errorf("%w: reading commit: %v", engine.ErrSignalUnavailable, err)
	}
	subject, _, _ := strings.Cut(commit.Message, "\n")
	return Commit{
		Hash:    commit.Hash.String(),
		Subject: strings.TrimSpace(subject),
		When:    commit.Author.When,
	}, nil
}

// ParseCommitSubject extracts the requirement token ("REQ-123:" or
// "(REQ-123):") and an optional task token from a commit subject.
func ParseCommitSubject(subject string, reqRe, taskRe *regexp.Regexp) (reqID, taskID string) {
	if m := reqRe.FindStringSubmatch(subject); m != nil {
		reqID = m[1]
	}
	if taskRe != nil {
		taskID = taskRe.FindString(subject)
	}
	return reqID, taskID
}

func short(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
