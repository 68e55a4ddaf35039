package clock

import (
	"sync"
	"time"
)

// Mock is a manually advanced clock for tests. Tickers created from it
// never fire on their own; tests call Fire to deliver a tick carrying
// the mock's current time.
type Mock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*mockTicker
}

// NewMock returns a Mock pinned at t.
func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set pins the clock at t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *Mock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTicker{ch: make(chan time.Time, 1)}
	m.tickers = append(m.tickers, t)
	return t
}

// Fire delivers one tick to every live ticker and blocks until each
// consumer has received it.
func (m *Mock) Fire() {
	m.mu.Lock()
	now := m.now
	tickers := make([]*mockTicker, 0, len(m.tickers))
	for _, t := range m.tickers {
		if !t.stopped() {
			tickers = append(tickers, t)
		}
	}
	m.mu.Unlock()

	for _, t := range tickers {
		t.ch <- now
	}
}

type mockTicker struct {
	mu   sync.Mutex
	ch   chan time.Time
	done bool
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }

func (t *mockTicker) Stop() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

func (t *mockTicker) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
