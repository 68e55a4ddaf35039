// Package ledger is the append-only analytics log. The whole file is
// the database: every mutation is a read-modify-write of a single JSON
// array, rewritten atomically. Single-writer by contract; there is no
// transaction support and none is needed while only one process owns
// the file.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sadopc/marktime/internal/clock"
)

// ManualEdit is the source sentinel for entries that did not come from
// a document flush.
const ManualEdit = "manual-edit"

// KindAdjust marks a compensating entry appended by SetTotalForPeriod.
const KindAdjust = "adjust"

// ErrInvalidAdjustment rejects a user-supplied total before any ledger
// mutation happens.
var ErrInvalidAdjustment = errors.New("ledger: adjustment total must be a non-negative number")

// Entry is one immutable ledger record. Corrections append new entries;
// nothing ever rewrites an existing one.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Duration  int64     `json:"duration"` // seconds; negative only on adjustments
	File      string    `json:"file"`
	Tags      []string  `json:"tags"`
	Kind      string    `json:"type,omitempty"`
}

// Ledger owns one ledger file.
type Ledger struct {
	mu            sync.Mutex
	path          string
	clk           clock.Clock
	retentionDays int
}

func New(path string, retentionDays int, clk clock.Clock) *Ledger {
	return &Ledger{path: path, clk: clk, retentionDays: retentionDays}
}

// Append adds one entry at the end of the log.
func (l *Ledger) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Tags == nil {
		// The layout promises an array; a tagless flush must not
		// persist null.
		e.Tags = []string{}
	}
	entries, err := l.load()
	if err != nil {
		return err
	}
	return l.store(append(entries, e))
}

// ReadAll returns the entries inside the retention window, computed
// fresh against the current clock. It never mutates the file; pruning
// is a separate, lazy operation.
func (l *Ledger) ReadAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	cutoff := l.cutoff()
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

// Prune physically removes entries older than the retention cutoff.
// The file is rewritten only when something was dropped.
func (l *Ledger) Prune() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.load()
	if err != nil {
		return err
	}
	cutoff := l.cutoff()
	kept := entries[:0]
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return l.store(kept)
}

// SumInRange sums durations of entries tagged tag with timestamps in
// [start, end], floored at zero so over-correcting adjustments never
// surface a negative total.
func (l *Ledger) SumInRange(tag string, start, end time.Time) (int64, error) {
	entries, err := l.ReadAll()
	if err != nil {
		return 0, err
	}
	return sumInRange(entries, tag, start, end), nil
}

func sumInRange(entries []Entry, tag string, start, end time.Time) int64 {
	var total int64
	for _, e := range entries {
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		for _, t := range e.Tags {
			if t == tag {
				total += e.Duration
				break
			}
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// SetTotalForPeriod makes the visible total for tag over [start, end]
// equal newTotal by appending one signed adjustment entry at anchor.
// History is never rewritten; a zero delta appends nothing.
func (l *Ledger) SetTotalForPeriod(tag string, newTotal int64, start, end, anchor time.Time) error {
	if newTotal < 0 {
		return ErrInvalidAdjustment
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.load()
	if err != nil {
		return err
	}
	cutoff := l.cutoff()
	inWindow := entries[:0:0]
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			inWindow = append(inWindow, e)
		}
	}
	delta := newTotal - sumInRange(inWindow, tag, start, end)
	if delta == 0 {
		return nil
	}
	return l.store(append(entries, Entry{
		Timestamp: anchor,
		Duration:  delta,
		File:      ManualEdit,
		Tags:      []string{tag},
		Kind:      KindAdjust,
	}))
}

// MiddayAnchor returns noon of t's day, the fixed instant adjustment
// entries are timestamped at so they sort stably inside their period.
func MiddayAnchor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, t.Location())
}

func (l *Ledger) cutoff() time.Time {
	return l.clk.Now().AddDate(0, 0, -l.retentionDays)
}

func (l *Ledger) load() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return entries, nil
}

func (l *Ledger) store(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
