package marker

import (
	"strings"
	"testing"
	"time"

	"github.com/sadopc/marktime/internal/clock"
	"github.com/sadopc/marktime/internal/timer"
)

// ============================================================
// Render / Parse round trip
// ============================================================

func TestRoundTrip(t *testing.T) {
	states := []timer.State{
		{ID: "1aB", Status: timer.Running, Accumulated: 0, LastEvent: 0},
		{ID: "x9", Status: timer.Paused, Accumulated: 42, LastEvent: 1700000000},
		{ID: "Zz0", Status: timer.Running, Accumulated: 86461, LastEvent: 123456789},
	}
	for _, s := range states {
		d := Parse(Render(s), "")
		if d == nil {
			t.Fatalf("render of %+v did not re-parse", s)
		}
		if d.State != s {
			t.Fatalf("round trip changed state: %+v -> %+v", s, d.State)
		}
	}
}

func TestParseOffsetsCoverExactSpan(t *testing.T) {
	s := timer.State{ID: "a1", Status: timer.Running, Accumulated: 5, LastEvent: 100}
	line := "- task before " + Render(s) + " after #work"
	d := Parse(line, "")
	if d == nil {
		t.Fatal("no marker found")
	}
	if line[d.Start:d.End] != Render(s) {
		t.Fatalf("offsets select %q", line[d.Start:d.End])
	}
}

func TestParseTargetID(t *testing.T) {
	a := timer.State{ID: "aaa", Status: timer.Running, Accumulated: 1, LastEvent: 10}
	b := timer.State{ID: "bbb", Status: timer.Paused, Accumulated: 2, LastEvent: 20}
	line := Render(a) + " and " + Render(b)

	if d := Parse(line, "bbb"); d == nil || d.State.ID != "bbb" {
		t.Fatalf("target lookup failed: %+v", d)
	}
	if d := Parse(line, ""); d == nil || d.State.ID != "aaa" {
		t.Fatalf("first-match lookup failed: %+v", d)
	}
	if d := Parse(line, "ccc"); d != nil {
		t.Fatalf("unknown target matched: %+v", d)
	}
}

func TestParseMalformedIsAbsent(t *testing.T) {
	lines := []string{
		"no marker here at all",
		`<span class="sprinting" id="a1" data-dur="5" data-ts="10">[x]</span>`,
		`<span class="running" id="a1" data-dur="oops" data-ts="10">[x]</span>`,
		`<span class="running" id="a1" data-dur="5">[missing ts]</span>`,
	}
	for _, line := range lines {
		if d := Parse(line, ""); d != nil {
			t.Fatalf("parsed malformed line %q: %+v", line, d)
		}
	}
}

func TestGlyphAlternates(t *testing.T) {
	even := Render(timer.State{ID: "a", Accumulated: 2})
	odd := Render(timer.State{ID: "a", Accumulated: 3})
	if strings.Contains(even, glyphs[1]) || strings.Contains(odd, glyphs[0]) {
		t.Fatalf("glyph did not alternate: %q vs %q", even, odd)
	}
}

func TestFormatClock(t *testing.T) {
	if got := formatClock(3661); got != "01:01:01" {
		t.Fatalf("formatClock(3661) = %q", got)
	}
	if got := formatClock(90 * 3600); got != "90:00:00" {
		t.Fatalf("hours should not wrap at 24: %q", got)
	}
}

// ============================================================
// Legacy decoding
// ============================================================

func TestLegacyDecode(t *testing.T) {
	line := `notes <span timer-id="12345" status="Running" acc="99" start="500">old label</span>`
	d := Parse(line, "")
	if d == nil {
		t.Fatal("legacy span not decoded")
	}
	want := timer.State{ID: Base62(12345), Status: timer.Running, Accumulated: 99, LastEvent: 500}
	if d.State != want {
		t.Fatalf("legacy decode = %+v, want %+v", d.State, want)
	}
	if line[d.Start:d.End] != `<span timer-id="12345" status="Running" acc="99" start="500">old label</span>` {
		t.Fatalf("legacy offsets select %q", line[d.Start:d.End])
	}
}

func TestLegacyDecodeIsStable(t *testing.T) {
	line := `<span timer-id="777" status="Stopped" acc="10" start="20">x</span>`
	a := Parse(line, "")
	b := Parse(line, "")
	if a == nil || b == nil || a.State.ID != b.State.ID {
		t.Fatal("legacy id mapping is not deterministic")
	}
	if a.State.Status != timer.Paused {
		t.Fatalf("non-Running legacy status should decode paused: %+v", a.State)
	}
}

func TestCurrentFormatWinsOverLegacy(t *testing.T) {
	cur := timer.State{ID: "q1", Status: timer.Paused, Accumulated: 7, LastEvent: 70}
	line := `<span timer-id="1" status="Running" acc="2" start="3">x</span> ` + Render(cur)
	d := Parse(line, "")
	if d == nil || d.State.ID != "q1" {
		t.Fatalf("legacy span shadowed current format: %+v", d)
	}
}

// ============================================================
// IDs and tags
// ============================================================

func TestBase62(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{9, "9"},
		{10, "a"},
		{35, "z"},
		{36, "A"},
		{61, "Z"},
		{62, "10"},
		{12345, "3d7"},
	}
	for _, tt := range tests {
		if got := Base62(tt.n); got != tt.want {
			t.Fatalf("Base62(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestIDSourceMonotonic(t *testing.T) {
	clk := clock.NewMock(time.UnixMilli(1700000000000))
	g := NewIDSource(clk)
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id := g.Next() // clock frozen: every id after the first is a bump
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestTags(t *testing.T) {
	line := "work on #api review, #api again, also #deep_work and # not-a-tag"
	got := Tags(line)
	want := []string{"api", "deep_work"}
	if len(got) != len(want) {
		t.Fatalf("Tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tags = %v, want %v", got, want)
		}
	}
	if Tags("no tags here") != nil {
		t.Fatal("expected nil for tagless line")
	}
}
