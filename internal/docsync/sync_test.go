package docsync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sadopc/marktime/internal/marker"
	"github.com/sadopc/marktime/internal/timer"
)

func runningState(id string, dur int64) timer.State {
	return timer.State{ID: id, Status: timer.Running, Accumulated: dur, LastEvent: 1000}
}

// ============================================================
// Insertion offsets and padding
// ============================================================

func TestInsertOffset(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		pos    InsertPosition
		cursor int
		want   int
	}{
		{"plain line start", "write report", InsertLineStart, 0, 0},
		{"bullet", "- write report", InsertLineStart, 0, 2},
		{"task item", "- [ ] write report", InsertLineStart, 0, 6},
		{"indented bullet", "  * write report", InsertLineStart, 0, 4},
		{"ordered list", "3. write report", InsertLineStart, 0, 3},
		{"heading", "## Plans", InsertLineStart, 0, 3},
		{"quote", "> quoted", InsertLineStart, 0, 2},
		{"line end", "- write report", InsertLineEnd, 0, 14},
		{"cursor", "write report", InsertCursor, 5, 5},
		{"cursor clamped high", "abc", InsertCursor, 99, 3},
		{"cursor clamped low", "abc", InsertCursor, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := insertOffset(tt.line, tt.pos, tt.cursor); got != tt.want {
				t.Fatalf("insertOffset(%q) = %d, want %d", tt.line, got, tt.want)
			}
		})
	}
}

func TestPadded(t *testing.T) {
	if got := padded("ab", 1, "X"); got != " X " {
		t.Fatalf("mid-word padding = %q", got)
	}
	if got := padded("a b", 2, "X"); got != "X " {
		t.Fatalf("after-space padding = %q", got)
	}
	if got := padded("ab", 2, "X"); got != " X" {
		t.Fatalf("line-end padding = %q", got)
	}
	if got := padded("", 0, "X"); got != "X" {
		t.Fatalf("empty-line padding = %q", got)
	}
}

// ============================================================
// WriteTimer
// ============================================================

func TestWriteTimerReplacesKnownSpan(t *testing.T) {
	st := runningState("a1", 5)
	line := "- [ ] draft #work " + marker.Render(st) + " trailing"
	doc := NewBuffer("today.md", "header\n"+line+"\nfooter")
	s := NewSyncer(InsertLineStart)

	known := marker.Parse(line, "a1")
	next := timer.Apply(timer.ActionTick, st, 1003, timer.DefaultLimits)
	if err := s.WriteTimer(doc, next, 1, known, 0); err != nil {
		t.Fatal(err)
	}

	got, _ := doc.Line(1)
	want := "- [ ] draft #work " + marker.Render(next) + " trailing"
	if got != want {
		t.Fatalf("line = %q\nwant %q", got, want)
	}
	if l0, _ := doc.Line(0); l0 != "header" {
		t.Fatal("unrelated line touched")
	}
}

func TestWriteTimerInsertsAfterListPrefix(t *testing.T) {
	st := runningState("b2", 0)
	doc := NewBuffer("today.md", "- [ ] draft #work")
	s := NewSyncer(InsertLineStart)

	if err := s.WriteTimer(doc, st, 0, nil, 0); err != nil {
		t.Fatal(err)
	}
	got, _ := doc.Line(0)
	want := "- [ ] " + marker.Render(st) + " draft #work"
	if got != want {
		t.Fatalf("line = %q\nwant %q", got, want)
	}

	loc, ok := s.CachedLocation("b2")
	if !ok {
		t.Fatal("location not cached")
	}
	if got[loc.Start:loc.End] != marker.Render(st) {
		t.Fatalf("cached span selects %q", got[loc.Start:loc.End])
	}
}

func TestWriteTimerInsertsAtLineEnd(t *testing.T) {
	st := runningState("c3", 0)
	doc := NewBuffer("today.md", "- draft")
	s := NewSyncer(InsertLineEnd)

	if err := s.WriteTimer(doc, st, 0, nil, 0); err != nil {
		t.Fatal(err)
	}
	got, _ := doc.Line(0)
	if got != "- draft "+marker.Render(st) {
		t.Fatalf("line = %q", got)
	}
}

func TestWriteTimerStaleSpanFallsBackToInsert(t *testing.T) {
	st := runningState("d4", 9)
	stale := &marker.Decoded{State: st, Start: 50, End: 90}
	doc := NewBuffer("today.md", "the marker is gone from here")
	s := NewSyncer(InsertLineEnd)

	if err := s.WriteTimer(doc, st, 0, stale, 0); err != nil {
		t.Fatal(err)
	}
	got, _ := doc.Line(0)
	if !strings.HasSuffix(got, marker.Render(st)) {
		t.Fatalf("stale span not re-inserted: %q", got)
	}
}

// ============================================================
// Locate
// ============================================================

func TestLocateUsesCacheThenRescans(t *testing.T) {
	st := runningState("e5", 3)
	doc := NewBuffer("today.md", "alpha\nbeta "+marker.Render(st)+"\ngamma")
	s := NewSyncer(InsertLineStart)

	loc, d, err := s.Locate(doc, "e5")
	if err != nil {
		t.Fatal(err)
	}
	if loc.Line != 1 || d.State.ID != "e5" {
		t.Fatalf("located %+v", loc)
	}

	// Move the marker two lines down; the cached line goes stale and
	// the scan must find it again.
	text, _ := doc.Text()
	moved := strings.Replace(text, " "+marker.Render(st), "", 1)
	doc.Update(func(string) (string, error) {
		return strings.Replace(moved, "gamma", "gamma "+marker.Render(st), 1), nil
	})

	loc, _, err = s.Locate(doc, "e5")
	if err != nil {
		t.Fatal(err)
	}
	if loc.Line != 2 {
		t.Fatalf("relocated to line %d, want 2", loc.Line)
	}
}

func TestLocateNotFoundAfterFullScan(t *testing.T) {
	doc := NewBuffer("today.md", "nothing\nto\nsee")
	s := NewSyncer(InsertLineStart)
	if _, _, err := s.Locate(doc, "zz"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestScanAll(t *testing.T) {
	a := runningState("a1", 1)
	b := timer.State{ID: "b2", Status: timer.Paused, Accumulated: 7, LastEvent: 20}
	doc := NewBuffer("today.md", marker.Render(a)+"\nplain\n- "+marker.Render(b))
	s := NewSyncer(InsertLineStart)

	decoded, lines, err := s.ScanAll(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 || lines[0] != 0 || lines[1] != 2 {
		t.Fatalf("scan = %+v at %v", decoded, lines)
	}
	if _, ok := s.CachedLocation("b2"); !ok {
		t.Fatal("scan did not warm the cache")
	}
}

// ============================================================
// FileDocument
// ============================================================

func TestFileDocumentReplaceRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	os.WriteFile(path, []byte("one\ntwo xx two\nthree"), 0o644)
	doc := NewFile(path)

	if err := doc.ReplaceRange(1, 4, 6, "yy"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "one\ntwo yy two\nthree" {
		t.Fatalf("file = %q", data)
	}
}

func TestFileDocumentUpdatePreservesConcurrentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	os.WriteFile(path, []byte("a\nb\nc"), 0o644)
	doc := NewFile(path)

	// The modify function sees whatever is on disk at call time, so an
	// edit landing before Update is folded in rather than clobbered.
	os.WriteFile(path, []byte("a\nb\nc\nd"), 0o644)
	err := doc.Update(func(content string) (string, error) {
		return strings.Replace(content, "b", "B", 1), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a\nB\nc\nd" {
		t.Fatalf("file = %q", data)
	}
}

func TestFileDocumentLineOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	os.WriteFile(path, []byte("only"), 0o644)
	doc := NewFile(path)
	if _, err := doc.Line(5); err == nil {
		t.Fatal("expected error for out-of-range line")
	}
}
