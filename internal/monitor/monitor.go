// Package monitor runs the trigger sources and serializes their events
// into progress updates.
//
// The lifecycle is stopped → starting → running → stopping → stopped.
// While running, every source runs in its own goroutine under an errgroup;
// events are debounced per task and handed to a bounded worker pool that
// calls the engine. A supervisory tick rebuilds the registry of active
// work, nudges stale in-progress tasks, and persists a health snapshot.
package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/logging"
	"github.com/HendryAvila/devpulse/internal/trigger"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// State is a lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// queueSize bounds the debounced events waiting for a worker.
const queueSize = 64

// Pruner trims the journal. *journal.Store satisfies it.
type Pruner interface {
	Prune() (int64, error)
}

// Options carries the optional collaborators of a Monitor.
type Options struct {
	Sources []trigger.Source
	Logger  *log.Logger
	// Notify receives every applied update.
	Notify func(engine.Outcome)
	Pruner Pruner
}

// Monitor owns the running sources, the worker pool and the supervisor.
type Monitor struct {
	eng     *engine.Engine
	sources []trigger.Source
	logger  *log.Logger
	notify  func(engine.Outcome)
	pruner  Pruner
	trigger func(ctx context.Context, r engine.Request) (engine.Outcome, error)

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	registry Registry
	debounce *debouncer

	received atomic.Uint64
	applied  atomic.Uint64
}

// New creates a stopped Monitor.
func New(eng *engine.Engine, opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Notify == nil {
		opts.Notify = func(engine.Outcome) {}
	}
	return &Monitor{
		eng:     eng,
		sources: opts.Sources,
		logger:  opts.Logger.With("component", "monitor"),
		notify:  opts.Notify,
		pruner:  opts.Pruner,
		trigger: eng.Trigger,
		state:   StateStopped,
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the sources, workers and supervisor. It is a no-op
// unless the monitor is stopped. A cache directory that cannot be created
// is a startup failure.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateStopped {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStarting
	m.mu.Unlock()

	if err := os.MkdirAll(m.eng.CacheDir(), 0o755); err != nil {
		m.setState(StateStopped)
		return fmt.Errorf("monitor: cache dir: %w", err)
	}
	reg, err := BuildRegistry(m.eng)
	if err != nil {
		m.logger.Warn("initial registry build failed", "err", err)
	}

	cfg := m.eng.Config()
	runCtx, cancel := context.WithCancel(ctx)
	queue := make(chan trigger.Event, queueSize)
	deb := newDebouncer(runCtx, cfg.Debounce(), queue)
	g, gctx := errgroup.WithContext(runCtx)

	for _, src := range m.sources {
		g.Go(func() error {
			m.logger.Debug("source started", "source", src.Name())
			if err := src.Run(gctx, m.enqueue); err != nil && gctx.Err() == nil {
				m.logger.Warn("source stopped", "source", src.Name(), "err", err)
			}
			return nil
		})
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			m.work(gctx, queue)
			return nil
		})
	}
	g.Go(func() error {
		m.supervise(gctx, cfg.SupervisorInterval())
		return nil
	})

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	m.mu.Lock()
	m.state = StateRunning
	m.cancel = cancel
	m.done = done
	m.registry = reg
	m.debounce = deb
	m.mu.Unlock()

	m.writeHealth()
	m.logger.Info("monitor started",
		"sources", len(m.sources), "workers", workers,
		"requirements", len(reg.Requirements))
	return nil
}

// Stop cancels the sources and waits up to the shutdown timeout for
// in-flight work. Work still running after that is abandoned; atomic
// state writes guarantee it cannot leave a torn file. Stopping a monitor
// that is not running is a no-op.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	cancel, done, deb := m.cancel, m.done, m.debounce
	m.mu.Unlock()

	cancel()
	deb.stop()

	timeout := m.eng.Config().ShutdownTimeout()
	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("abandoning in-flight work", "timeout", timeout)
	}

	m.mu.Lock()
	m.state = StateStopped
	m.cancel, m.done, m.debounce = nil, nil, nil
	m.mu.Unlock()

	m.writeHealth()
	m.logger.Info("monitor stopped")
	return nil
}

// Run starts the monitor, blocks until ctx is cancelled, then stops it.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	<-ctx.Done()
	return m.Stop()
}

// Health returns the current status snapshot.
func (m *Monitor) Health() Health {
	m.mu.Lock()
	st, reg := m.state, m.registry
	m.mu.Unlock()

	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name())
	}
	return Health{
		Timestamp:              timeNow().UTC().Format(time.RFC3339),
		Running:                st == StateRunning,
		State:                  string(st),
		ActiveRequirementCount: len(reg.Requirements),
		ActiveTaskCount:        reg.ActiveTaskCount(),
		Sources:                names,
		EventsReceived:         m.received.Load(),
		UpdatesApplied:         m.applied.Load(),
	}
}

// enqueue is the emit callback handed to every source.
func (m *Monitor) enqueue(ev trigger.Event) {
	m.mu.Lock()
	deb := m.debounce
	m.mu.Unlock()
	if deb == nil {
		return
	}
	m.received.Add(1)
	deb.add(ev)
}

func (m *Monitor) work(ctx context.Context, queue <-chan trigger.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			m.process(ctx, ev)
		}
	}
}

func (m *Monitor) process(ctx context.Context, ev trigger.Event) {
	out, err := m.trigger(ctx, engine.Request{
		ReqID:  ev.ReqID,
		TaskID: ev.TaskID,
		Kind:   ev.Kind,
		Detail: ev.Detail,
	})
	if err != nil {
		if engine.IsSoft(err) || ctx.Err() != nil {
			m.logger.Debug("trigger dropped", "req", ev.ReqID, "task", ev.TaskID, "kind", ev.Kind, "err", err)
		} else {
			m.logger.Warn("trigger failed", "req", ev.ReqID, "task", ev.TaskID, "kind", ev.Kind, "err", err)
		}
		return
	}
	if out.Applied {
		m.applied.Add(1)
		m.notify(out)
	}
}

func (m *Monitor) supervise(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick is one supervisory pass.
func (m *Monitor) tick(ctx context.Context) {
	reg, err := BuildRegistry(m.eng)
	if err != nil {
		m.logger.Warn("registry rebuild failed", "err", err)
	} else {
		m.mu.Lock()
		m.registry = reg
		m.mu.Unlock()

		for _, ref := range reg.Stale(timeNow(), m.eng.Config().StaleAfter()) {
			if ctx.Err() != nil {
				return
			}
			m.process(ctx, trigger.Event{
				ReqID:  ref.ReqID,
				TaskID: ref.TaskID,
				Kind:   engine.KindStaleCheck,
				At:     timeNow(),
			})
		}
	}

	if m.pruner != nil {
		if n, err := m.pruner.Prune(); err != nil {
			m.logger.Warn("journal prune failed", "err", err)
		} else if n > 0 {
			m.logger.Debug("journal pruned", "entries", n)
		}
	}
	m.writeHealth()
}

func (m *Monitor) writeHealth() {
	if err := writeReport(m.eng, m.Health()); err != nil {
		m.logger.Warn("writing monitoring report", "err", err)
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
