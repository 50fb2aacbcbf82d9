package trigger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/logging"
)

// DefaultTestTimeout bounds each test command run.
const DefaultTestTimeout = 120 * time.Second

// coverageFormat pairs a report format with the regexp extracting its
// overall percentage.
type coverageFormat struct {
	name    string
	pattern *regexp.Regexp
}

var coverageFormats = []coverageFormat{
	{"jest", regexp.MustCompile(`All files\s+\|\s+(\d+(?:\.\d+)?)`)},
	{"nyc", regexp.MustCompile(`TOTAL\s+\d+\s+\d+\s+(\d+(?:\.\d+)?)%`)},
	{"go", regexp.MustCompile(`coverage:\s+(\d+(?:\.\d+)?)% of statements`)},
}

// ParseCoverage returns the first coverage figure recognized in output
// and the name of the format it came from.
func ParseCoverage(output string) (float64, string, bool) {
	for _, f := range coverageFormats {
		m := f.pattern.FindStringSubmatch(output)
		if m == nil {
			continue
		}
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil || pct < 0 || pct > 100 {
			continue
		}
		return pct, f.name, true
	}
	return 0, "", false
}

// TestSource periodically runs the project's test command. A parsed
// coverage figure is cached and fanned out as one test_run event per
// in-progress task across all active requirements.
type TestSource struct {
	root     string
	command  []string
	interval time.Duration
	timeout  time.Duration
	resolver Resolver
	sink     CoverageSink
	logger   *log.Logger

	run func(ctx context.Context, dir string, command []string) (string, error)
}

// TestOptions configures a TestSource.
type TestOptions struct {
	Command  []string
	Interval time.Duration
	Timeout  time.Duration
	Logger   *log.Logger
}

// NewTestSource creates a TestSource for the project at root.
func NewTestSource(root string, r Resolver, sink CoverageSink, opts TestOptions) (*TestSource, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("test command is empty")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("test poll interval must be positive")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &TestSource{
		root:     root,
		command:  opts.Command,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		resolver: r,
		sink:     sink,
		logger:   opts.Logger.With("source", "test"),
		run:      runCommand,
	}, nil
}

// Name implements Source.
func (s *TestSource) Name() string { return "test" }

// Run implements Source. The first run happens after one interval; test
// suites are too expensive to run on every monitor start.
func (s *TestSource) Run(ctx context.Context, emit func(Event)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.poll(ctx, emit)
		}
	}
}

func (s *TestSource) poll(ctx context.Context, emit func(Event)) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.run(ctx, s.root, s.command)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Warn("test command timed out", "timeout", s.timeout)
		} else {
			s.logger.Warn("test command failed", "err", err)
		}
		return
	}

	pct, format, ok := ParseCoverage(out)
	if !ok {
		s.logger.Debug("no coverage in test output")
		return
	}
	if err := s.sink.SaveCoverage(pct, format); err != nil {
		s.logger.Warn("caching coverage", "err", err)
	}

	refs, err := s.resolver.InProgressTasks()
	if err != nil {
		s.logger.Warn("listing in-progress tasks", "err", err)
		return
	}
	detail := strconv.FormatFloat(pct, 'f', 1, 64) + "% " + format
	for _, ref := range refs {
		emit(Event{
			ReqID:  ref.ReqID,
			TaskID: ref.TaskID,
			Kind:   engine.KindTestRun,
			Detail: detail,
			At:     timeNow(),
		})
	}
}

// waitDelay bounds how long a cancelled run waits for its output pipes to
// close after the kill.
const waitDelay = 3 * time.Second

// runCommand runs command in dir and returns its combined output. On
// cancellation the whole process group is killed, so runners that fork
// workers (npm test spawning jest) cannot hold the run open.
func runCommand(ctx context.Context, dir string, command []string) (string, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	err := cmd.Run()
	return buf.String(), err
}
