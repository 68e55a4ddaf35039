// Package docsync persists timer state into documents: it rewrites a
// known marker span in place, inserts brand-new markers according to a
// placement policy, and relocates markers that ordinary editing has
// moved. Cached locations are treated as hints, never as truth.
package docsync

import (
	"errors"
	"strings"
	"sync"

	"github.com/sadopc/marktime/internal/marker"
	"github.com/sadopc/marktime/internal/timer"
)

// ErrNotFound reports that an id resolved nowhere in its document after
// an exhaustive scan. The caller is expected to stop that timer.
var ErrNotFound = errors.New("docsync: marker not found in document")

// Location is the last known position of a marker. It can go stale the
// moment the user edits the document, so every use is re-verified.
type Location struct {
	Path  string
	Line  int
	Start int
	End   int
}

// Syncer owns the location cache and the insertion policy.
type Syncer struct {
	mu        sync.Mutex
	position  InsertPosition
	locations map[string]Location
}

func NewSyncer(position InsertPosition) *Syncer {
	return &Syncer{position: position, locations: make(map[string]Location)}
}

// CachedLocation returns the last recorded location for id.
func (s *Syncer) CachedLocation(id string) (Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	return loc, ok
}

// Forget drops id's cached location.
func (s *Syncer) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locations, id)
}

func (s *Syncer) store(id string, loc Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[id] = loc
}

// WriteTimer renders st and persists it on line lineIndex of doc. When
// known carries a span previously decoded for the same id, the line is
// re-parsed and the matched span replaced exactly; everything else on
// the line survives. Otherwise the marker is brand new and is inserted
// at the policy position (cursor gives the offset for InsertCursor).
func (s *Syncer) WriteTimer(doc Document, st timer.State, lineIndex int, known *marker.Decoded, cursor int) error {
	rendered := marker.Render(st)
	line, err := doc.Line(lineIndex)
	if err != nil {
		return err
	}

	if known != nil && known.State.ID == st.ID {
		if d := marker.Parse(line, st.ID); d != nil {
			if err := doc.ReplaceRange(lineIndex, d.Start, d.End, rendered); err != nil {
				return err
			}
			s.store(st.ID, Location{Path: doc.Path(), Line: lineIndex, Start: d.Start, End: d.Start + len(rendered)})
			return nil
		}
		// The span vanished from this line; treat the write as a fresh
		// insertion rather than guessing at stale offsets.
	}

	at := insertOffset(line, s.position, cursor)
	text := padded(line, at, rendered)
	if err := doc.ReplaceRange(lineIndex, at, at, text); err != nil {
		return err
	}
	start := at
	if strings.HasPrefix(text, " ") {
		start++
	}
	s.store(st.ID, Location{Path: doc.Path(), Line: lineIndex, Start: start, End: start + len(rendered)})
	return nil
}

// Locate resolves id inside doc. The cached line is checked first; on a
// miss every line is scanned. A hit refreshes the cache. ErrNotFound
// after a full scan means the marker is gone and its timer should stop.
func (s *Syncer) Locate(doc Document, id string) (Location, *marker.Decoded, error) {
	if loc, ok := s.CachedLocation(id); ok && loc.Path == doc.Path() {
		if line, err := doc.Line(loc.Line); err == nil {
			if d := marker.Parse(line, id); d != nil {
				fresh := Location{Path: loc.Path, Line: loc.Line, Start: d.Start, End: d.End}
				s.store(id, fresh)
				return fresh, d, nil
			}
		}
	}

	text, err := doc.Text()
	if err != nil {
		return Location{}, nil, err
	}
	for i, line := range strings.Split(text, "\n") {
		if d := marker.Parse(line, id); d != nil {
			loc := Location{Path: doc.Path(), Line: i, Start: d.Start, End: d.End}
			s.store(id, loc)
			return loc, d, nil
		}
	}
	return Location{}, nil, ErrNotFound
}

// ScanAll decodes every marker in doc, one hit per line, first span
// wins. Used on reopen to find timers left behind by a prior session.
func (s *Syncer) ScanAll(doc Document) ([]marker.Decoded, []int, error) {
	text, err := doc.Text()
	if err != nil {
		return nil, nil, err
	}
	var decoded []marker.Decoded
	var lines []int
	for i, line := range strings.Split(text, "\n") {
		if d := marker.Parse(line, ""); d != nil {
			decoded = append(decoded, *d)
			lines = append(lines, i)
			s.store(d.State.ID, Location{Path: doc.Path(), Line: i, Start: d.Start, End: d.End})
		}
	}
	return decoded, lines, nil
}

