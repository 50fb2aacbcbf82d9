package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/HendryAvila/devpulse/internal/trigger"
)

// debouncer coalesces bursts of events for the same task. Only the latest
// event of a burst is forwarded, once the task has been quiet for window.
type debouncer struct {
	ctx    context.Context
	window time.Duration
	out    chan<- trigger.Event

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]trigger.Event
}

func newDebouncer(ctx context.Context, window time.Duration, out chan<- trigger.Event) *debouncer {
	return &debouncer{
		ctx:     ctx,
		window:  window,
		out:     out,
		timers:  map[string]*time.Timer{},
		pending: map[string]trigger.Event{},
	}
}

func (d *debouncer) add(ev trigger.Event) {
	if d.window <= 0 {
		d.forward(ev)
		return
	}

	key := ev.Key()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() != nil {
		return
	}
	d.pending[key] = ev
	if t, ok := d.timers[key]; ok {
		t.Reset(d.window)
		return
	}
	d.timers[key] = time.AfterFunc(d.window, func() { d.fire(key) })
}

func (d *debouncer) fire(key string) {
	d.mu.Lock()
	ev, ok := d.pending[key]
	delete(d.pending, key)
	delete(d.timers, key)
	d.mu.Unlock()

	if ok {
		d.forward(ev)
	}
}

func (d *debouncer) forward(ev trigger.Event) {
	select {
	case d.out <- ev:
	case <-d.ctx.Done():
	}
}

// stop cancels every pending timer. Pending events are dropped.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
		delete(d.pending, key)
	}
}
