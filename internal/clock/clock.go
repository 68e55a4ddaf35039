// Package clock abstracts wall time and periodic tickers so the accrual
// engine and registry can be driven deterministically in tests.
package clock

import "time"

// Clock is the time source injected into everything that reads the wall
// clock or schedules periodic work.
type Clock interface {
	// Now returns the current wall time.
	Now() time.Time

	// NewTicker returns a ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks on C until Stop is called.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// System is the real clock backed by the time package.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// Unix returns c's current time truncated to whole epoch seconds.
func Unix(c Clock) int64 { return c.Now().Unix() }
