// Package registry holds in-memory state for every actively ticking
// timer and owns the periodic scheduler. The registry is an owned
// collection with a lifecycle, not process-global state; tests run
// several side by side.
package registry

import (
	"sync"
	"time"

	"github.com/sadopc/marktime/internal/clock"
	"github.com/sadopc/marktime/internal/timer"
)

// TickFunc is the per-id hook the scheduler invokes once per period.
// Calls for one id never overlap: each id has exactly one scheduler
// goroutine delivering ticks sequentially.
type TickFunc func(id string)

type active struct {
	ticker clock.Ticker
	done   chan struct{}
}

// Registry tracks active timers and which ids were started in this
// process lifetime, as opposed to merely reloaded from a document left
// over by a previous session.
type Registry struct {
	mu      sync.Mutex
	clk     clock.Clock
	period  time.Duration
	states  map[string]timer.State
	active  map[string]*active
	started map[string]bool // ids begun by this session's start action
}

func New(clk clock.Clock, period time.Duration) *Registry {
	return &Registry{
		clk:     clk,
		period:  period,
		states:  make(map[string]timer.State),
		active:  make(map[string]*active),
		started: make(map[string]bool),
	}
}

// StartTicking schedules onTick for id and records the id as started
// this session. No-op if the id is already ticking.
func (r *Registry) StartTicking(id string, st timer.State, onTick TickFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[id] = true
	r.startLocked(id, st, onTick)
}

// ResumeTicking schedules onTick for a timer reloaded from a reopened
// document. Mechanically identical to StartTicking but the id is not
// counted as a fresh start, which the auto-stop policy relies on.
func (r *Registry) ResumeTicking(id string, st timer.State, onTick TickFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked(id, st, onTick)
}

func (r *Registry) startLocked(id string, st timer.State, onTick TickFunc) {
	r.states[id] = st
	if _, ok := r.active[id]; ok {
		return
	}
	a := &active{ticker: r.clk.NewTicker(r.period), done: make(chan struct{})}
	r.active[id] = a
	go func() {
		for {
			select {
			case <-a.done:
				return
			case <-a.ticker.C():
				onTick(id)
			}
		}
	}()
}

// StopTicking cancels id's scheduler entry and drops its bookkeeping.
// Unknown ids are a no-op.
func (r *Registry) StopTicking(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked(id)
}

func (r *Registry) stopLocked(id string) {
	if a, ok := r.active[id]; ok {
		a.ticker.Stop()
		close(a.done)
		delete(r.active, id)
	}
	delete(r.states, id)
}

// SetState replaces the in-memory state for an active id.
func (r *Registry) SetState(id string, st timer.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[id]; ok {
		r.states[id] = st
	}
}

// State returns the in-memory state for id.
func (r *Registry) State(id string) (timer.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	return st, ok
}

// Active reports whether id currently has a scheduler entry.
func (r *Registry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// StartedThisSession reports whether id was begun by a start action in
// this process lifetime.
func (r *Registry) StartedThisSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started[id]
}

// SnapshotAll returns a copy of every tracked state, used for the
// flush-on-shutdown pass.
func (r *Registry) SnapshotAll() map[string]timer.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]timer.State, len(r.states))
	for id, st := range r.states {
		out[id] = st
	}
	return out
}

// Clear stops every active timer. Used on full shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.states {
		r.stopLocked(id)
	}
}
