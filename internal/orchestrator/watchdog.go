package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// watchdog aborts a worker turn when no text chunk has arrived for the
// inactivity window. The clock resets on every text chunk, so a slow but
// active stream never trips it.
type watchdog struct {
	window   time.Duration
	tick     time.Duration
	lastText atomic.Int64 // unix nanos of the last text chunk
	tripped  atomic.Bool

	stop   chan struct{}
	stopMu sync.Mutex
	done   bool
}

const (
	defaultInactivityWindow = 60 * time.Second
	watchdogTick            = time.Second
)

func newWatchdog(window time.Duration) *watchdog {
	if window <= 0 {
		window = defaultInactivityWindow
	}
	tick := watchdogTick
	if window < tick {
		// Short windows only show up in tests; tick fast enough to notice.
		tick = window / 4
		if tick <= 0 {
			tick = time.Millisecond
		}
	}
	w := &watchdog{
		window: window,
		tick:   tick,
		stop:   make(chan struct{}),
	}
	w.lastText.Store(time.Now().UnixNano())
	return w
}

// Touch records stream activity.
func (w *watchdog) Touch() {
	w.lastText.Store(time.Now().UnixNano())
}

// Tripped reports whether the watchdog fired.
func (w *watchdog) Tripped() bool {
	return w.tripped.Load()
}

// Run ticks until the turn ends or inactivity exceeds the window, in which
// case it cancels the turn and records the trip.
func (w *watchdog) Run(cancel context.CancelFunc) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			last := time.Unix(0, w.lastText.Load())
			if time.Since(last) > w.window {
				w.tripped.Store(true)
				cancel()
				return
			}
		}
	}
}

// Stop ends the watchdog. Safe to call more than once.
func (w *watchdog) Stop() {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	if !w.done {
		w.done = true
		close(w.stop)
	}
}
