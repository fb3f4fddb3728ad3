// Package jobtimer implements JobTimer: a periodic tick source that
// delivers onTimeout to a sink at a configured frequency.
package jobtimer

import (
	"sync"
	"time"
)

// Sink receives one OnTimeout call per tick.
type Sink interface {
	OnTimeout()
}

// Timer drives a Sink at a fixed frequency on its own goroutine. It is the
// one-generator-per-base-frame-rate tick source described in spec.md §4.3.
type Timer struct {
	period time.Duration
	sink   Sink

	mu      sync.Mutex
	ticker  *time.Ticker
	stopCh  chan struct{}
	stopped chan struct{}
	running bool
}

// New creates a Timer that calls sink.OnTimeout once every 1/fps seconds.
// fps must be > 0.
func New(fps uint32, sink Sink) *Timer {
	return &Timer{
		period: time.Second / time.Duration(fps),
		sink:   sink,
	}
}

// Start begins ticking on a new goroutine. Calling Start twice without an
// intervening Stop is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.ticker = time.NewTicker(t.period)
	t.stopCh = make(chan struct{})
	t.stopped = make(chan struct{})
	t.running = true

	ticker := t.ticker
	stopCh := t.stopCh
	stopped := t.stopped
	go func() {
		defer close(stopped)
		for {
			select {
			case <-ticker.C:
				t.sink.OnTimeout()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop halts ticking and blocks until the timer's goroutine has exited, so
// that no OnTimeout call can fire after Stop returns.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	ticker := t.ticker
	stopCh := t.stopCh
	stopped := t.stopped
	t.mu.Unlock()

	ticker.Stop()
	close(stopCh)
	<-stopped
}
