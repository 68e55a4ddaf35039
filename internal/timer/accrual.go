// Package timer implements the accrual state machine. It is pure: state
// transitions never touch the document, the ledger, or the clock.
package timer

// Status is a timer's run state.
type Status int

const (
	Running Status = iota
	Paused
)

func (s Status) String() string {
	if s == Paused {
		return "paused"
	}
	return "running"
}

// State is the machine-readable content of one marker.
type State struct {
	ID          string
	Status      Status
	Accumulated int64 // total credited seconds, never decreases
	LastEvent   int64 // epoch seconds of the last transition or tick
}

// Action is an input to Apply.
type Action int

const (
	ActionStart Action = iota
	ActionContinue
	ActionPause
	ActionTick
	ActionRestore
	ActionForcePause
)

// Limits bound how much wall time a single accrual step may credit.
type Limits struct {
	// SleepGapSeconds: a gap strictly larger than this is treated as host
	// suspension and credited as zero. Must comfortably exceed the tick
	// period.
	SleepGapSeconds int64

	// MaxStepSeconds caps any single step's contribution, bounding the
	// effect of scheduler delay or a forward clock jump.
	MaxStepSeconds int64
}

// DefaultLimits matches a one-second tick cadence.
var DefaultLimits = Limits{SleepGapSeconds: 60, MaxStepSeconds: 5}

// New returns the state produced by a fresh start: running, zero
// accumulated time, last event at now.
func New(id string, now int64) State {
	return State{ID: id, Status: Running, LastEvent: now}
}

// Apply computes the successor of s under a at wall time now. It is
// total: every (a, s, now) yields a state, unknown actions return s
// unchanged. Delete has no entry here; deletion is termination, not a
// transition.
func Apply(a Action, s State, now int64, lim Limits) State {
	switch a {
	case ActionStart:
		return New(s.ID, now)

	case ActionContinue, ActionRestore:
		// No backfill: the pause (or app-closed) gap is discarded so
		// wall time spent away is never credited as work.
		s.Status = Running
		s.LastEvent = now
		return s

	case ActionPause:
		if s.Status == Running {
			s.Accumulated += cappedElapsed(now, s.LastEvent, lim)
		}
		s.Status = Paused
		s.LastEvent = now
		return s

	case ActionTick:
		if s.Status != Running {
			return s
		}
		s.Accumulated += cappedElapsed(now, s.LastEvent, lim)
		s.LastEvent = now
		return s

	case ActionForcePause:
		// Stop without crediting anything, regardless of prior status.
		s.Status = Paused
		s.LastEvent = now
		return s
	}
	return s
}

// cappedElapsed credits the wall-time gap since the last event, zeroed
// entirely when it exceeds the sleep gap and otherwise capped at the
// maximum step. The sleep-gap comparison is strict: a gap exactly equal
// to the limit still credits a (capped) step.
func cappedElapsed(now, last int64, lim Limits) int64 {
	gap := now - last
	if gap < 0 {
		gap = 0
	}
	if gap > lim.SleepGapSeconds {
		return 0
	}
	if gap > lim.MaxStepSeconds {
		return lim.MaxStepSeconds
	}
	return gap
}
