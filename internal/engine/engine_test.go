package engine

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/sadopc/marktime/internal/clock"
	"github.com/sadopc/marktime/internal/config"
	"github.com/sadopc/marktime/internal/docsync"
	"github.com/sadopc/marktime/internal/ledger"
	"github.com/sadopc/marktime/internal/marker"
	"github.com/sadopc/marktime/internal/timer"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

func newTestEngine(t *testing.T, reopen string) (*Engine, *clock.Mock, *ledger.Ledger) {
	t.Helper()
	clk := clock.NewMock(t0)
	cfg := config.Default()
	cfg.NotesDir = t.TempDir()
	cfg.LedgerPath = filepath.Join(t.TempDir(), "ledger.json")
	cfg.Insertion = config.InsertLineEnd
	cfg.Reopen = reopen
	led := ledger.New(cfg.LedgerPath, cfg.RetentionDays, clk)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg, clk, led, log)
	t.Cleanup(e.Shutdown)
	return e, clk, led
}

func lineOf(t *testing.T, doc docsync.Document, i int) string {
	t.Helper()
	line, err := doc.Line(i)
	if err != nil {
		t.Fatalf("line %d: %v", i, err)
	}
	return line
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

// ============================================================
// Start / tick / pause / continue
// ============================================================

func TestStartInsertsMarkerAndTicks(t *testing.T) {
	e, _, _ := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "- [ ] write report #work")

	res, err := e.Start(doc, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.State.Status != timer.Running || res.State.Accumulated != 0 {
		t.Fatalf("start state: %+v", res.State)
	}
	if !e.Registry().Active(res.State.ID) {
		t.Fatal("timer not ticking after start")
	}
	if !e.Registry().StartedThisSession(res.State.ID) {
		t.Fatal("fresh start not recorded for session")
	}

	line := lineOf(t, doc, 0)
	d := marker.Parse(line, res.State.ID)
	if d == nil {
		t.Fatalf("no marker in line %q", line)
	}
	if d.State != res.State {
		t.Fatalf("document state %+v != result %+v", d.State, res.State)
	}
}

func TestTickAccruesAndRewrites(t *testing.T) {
	e, clk, _ := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "task #work")
	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	clk.Advance(3 * time.Second)
	clk.Fire()

	waitFor(t, func() bool {
		d := marker.Parse(lineOf(t, doc, 0), id)
		return d != nil && d.State.Accumulated == 3
	})
}

func TestPauseFlushesIncrementWithTags(t *testing.T) {
	e, clk, led := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "review api #work #api")
	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	clk.Advance(4 * time.Second)
	pres, err := e.Pause(doc, id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if pres.State.Status != timer.Paused || pres.State.Accumulated != 4 {
		t.Fatalf("pause state: %+v", pres.State)
	}
	if pres.Divergent {
		t.Fatal("unexpected divergence")
	}
	if e.Registry().Active(id) {
		t.Fatal("still ticking after pause")
	}

	entries, _ := led.ReadAll()
	if len(entries) != 1 {
		t.Fatalf("ledger entries: %+v", entries)
	}
	got := entries[0]
	if got.Duration != 4 || got.File != "today.md" {
		t.Fatalf("entry: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "work" || got.Tags[1] != "api" {
		t.Fatalf("tags: %v", got.Tags)
	}
}

func TestPauseWithZeroIncrementAppendsNothing(t *testing.T) {
	e, _, led := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "task")
	res, _ := e.Start(doc, 0, 0)

	if _, err := e.Pause(doc, res.State.ID, nil); err != nil {
		t.Fatal(err)
	}
	entries, _ := led.ReadAll()
	if len(entries) != 0 {
		t.Fatalf("zero increment flushed: %+v", entries)
	}
}

func TestContinueNoBackfill(t *testing.T) {
	e, clk, _ := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "task #work")
	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	clk.Advance(3 * time.Second)
	e.Pause(doc, id, nil)

	clk.Advance(time.Hour)
	cres, err := e.Continue(doc, id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cres.State.Accumulated != 3 || cres.State.Status != timer.Running {
		t.Fatalf("continue backfilled: %+v", cres.State)
	}
	if !e.Registry().Active(id) {
		t.Fatal("not ticking after continue")
	}
}

// ============================================================
// Delete / forcePause
// ============================================================

func TestDeleteRemovesMarkerAndFlushes(t *testing.T) {
	e, clk, led := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "- [ ] task #work")
	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	clk.Advance(2 * time.Second)
	clk.Fire()
	waitFor(t, func() bool {
		d := marker.Parse(lineOf(t, doc, 0), id)
		return d != nil && d.State.Accumulated == 2
	})

	if _, err := e.Delete(doc, id, nil); err != nil {
		t.Fatal(err)
	}
	line := lineOf(t, doc, 0)
	if line != "- [ ] task #work" {
		t.Fatalf("marker not cleanly removed: %q", line)
	}
	if e.Registry().Active(id) {
		t.Fatal("still ticking after delete")
	}
	entries, _ := led.ReadAll()
	if len(entries) != 1 || entries[0].Duration != 2 {
		t.Fatalf("final flush missing: %+v", entries)
	}
}

func TestForcePauseCreditsAndFlushesNothing(t *testing.T) {
	e, clk, led := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "task #work")
	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	clk.Advance(3 * time.Second)
	fres, err := e.ForcePause(doc, id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if fres.State.Accumulated != 0 || fres.State.Status != timer.Paused {
		t.Fatalf("forcePause state: %+v", fres.State)
	}
	entries, _ := led.ReadAll()
	if len(entries) != 0 {
		t.Fatalf("forcePause flushed: %+v", entries)
	}
}

// ============================================================
// Reopen policies
// ============================================================

func TestOpenDocumentRestoresRunningMarkers(t *testing.T) {
	e, _, _ := newTestEngine(t, config.ReopenRestore)
	st := timer.State{ID: "old1", Status: timer.Running, Accumulated: 42, LastEvent: 100}
	doc := docsync.NewBuffer("today.md", "- carried over #work "+marker.Render(st))

	if err := e.OpenDocument(doc); err != nil {
		t.Fatal(err)
	}
	d := marker.Parse(lineOf(t, doc, 0), "old1")
	if d == nil || d.State.Accumulated != 42 || d.State.Status != timer.Running {
		t.Fatalf("restored marker: %+v", d)
	}
	if d.State.LastEvent != t0.Unix() {
		t.Fatal("restore did not rebase the event time")
	}
	if !e.Registry().Active("old1") {
		t.Fatal("restored timer not ticking")
	}
	if e.Registry().StartedThisSession("old1") {
		t.Fatal("reloaded marker counted as fresh start")
	}
}

func TestOpenDocumentForcePausePolicy(t *testing.T) {
	e, _, _ := newTestEngine(t, config.ReopenForcePause)
	st := timer.State{ID: "old1", Status: timer.Running, Accumulated: 42, LastEvent: 100}
	doc := docsync.NewBuffer("today.md", marker.Render(st))

	if err := e.OpenDocument(doc); err != nil {
		t.Fatal(err)
	}
	d := marker.Parse(lineOf(t, doc, 0), "old1")
	if d == nil || d.State.Status != timer.Paused || d.State.Accumulated != 42 {
		t.Fatalf("force-paused marker: %+v", d)
	}
	if e.Registry().Active("old1") {
		t.Fatal("force-paused timer is ticking")
	}
}

func TestOpenDocumentLeavesPausedMarkersAlone(t *testing.T) {
	e, _, _ := newTestEngine(t, config.ReopenRestore)
	st := timer.State{ID: "p1", Status: timer.Paused, Accumulated: 7, LastEvent: 100}
	content := marker.Render(st)
	doc := docsync.NewBuffer("today.md", content)

	e.OpenDocument(doc)
	if lineOf(t, doc, 0) != content {
		t.Fatal("paused marker rewritten on open")
	}
	if e.Registry().Active("p1") {
		t.Fatal("paused marker started ticking")
	}
}

// ============================================================
// Auto-stop and divergence
// ============================================================

func TestAutoStopOnVanishedMarker(t *testing.T) {
	e, clk, led := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "task #work")
	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	clk.Advance(3 * time.Second)
	clk.Fire()
	waitFor(t, func() bool {
		d := marker.Parse(lineOf(t, doc, 0), id)
		return d != nil && d.State.Accumulated == 3
	})

	// The user deletes the marker with an ordinary edit.
	doc.Update(func(string) (string, error) { return "task #work", nil })

	clk.Advance(time.Second)
	clk.Fire()
	waitFor(t, func() bool { return !e.Registry().Active(id) })

	// Best-effort final flush from the last known context. The stopping
	// tick's one-second step is part of the increment.
	entries, _ := led.ReadAll()
	if len(entries) != 1 || entries[0].Duration != 4 || entries[0].File != "today.md" {
		t.Fatalf("final flush: %+v", entries)
	}
}

func TestPauseOnVanishedMarkerIsDivergent(t *testing.T) {
	e, clk, _ := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "task #work")
	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	doc.Update(func(string) (string, error) { return "wiped", nil })

	clk.Advance(2 * time.Second)
	pres, err := e.Pause(doc, id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !pres.Divergent {
		t.Fatal("divergence not reported")
	}
	if pres.State.Status != timer.Paused || pres.State.Accumulated != 2 {
		t.Fatalf("in-memory transition incomplete: %+v", pres.State)
	}
}

func TestActionOnUnknownID(t *testing.T) {
	e, _, _ := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "nothing")
	if _, err := e.Pause(doc, "nope", nil); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

// ============================================================
// Relocate / shutdown
// ============================================================

func TestRelocateAfterExternalEdit(t *testing.T) {
	e, clk, _ := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "task #work")
	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	// An external edit pushes the marker down two lines.
	line := lineOf(t, doc, 0)
	doc.Update(func(string) (string, error) {
		return "intro\nmore\n" + line, nil
	})
	e.Relocate("today.md")

	loc, ok := e.syncer.CachedLocation(id)
	if !ok || loc.Line != 2 {
		t.Fatalf("relocate cache: %+v", loc)
	}

	// Ticking keeps working at the new location.
	clk.Advance(time.Second)
	clk.Fire()
	waitFor(t, func() bool {
		d := marker.Parse(lineOf(t, doc, 2), id)
		return d != nil && d.State.Accumulated == 1
	})
}

func TestShutdownFlushesRunningTimers(t *testing.T) {
	e, clk, led := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "task #work")
	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	clk.Advance(3 * time.Second)
	e.Shutdown()

	if e.Registry().Active(id) {
		t.Fatal("timer survived shutdown")
	}
	entries, _ := led.ReadAll()
	if len(entries) != 1 || entries[0].Duration != 3 {
		t.Fatalf("shutdown flush: %+v", entries)
	}
	d := marker.Parse(lineOf(t, doc, 0), id)
	if d == nil || d.State.Accumulated != 3 {
		t.Fatalf("shutdown did not persist final state: %+v", d)
	}
}

func TestScenarioEndToEnd(t *testing.T) {
	e, clk, led := newTestEngine(t, config.ReopenRestore)
	doc := docsync.NewBuffer("today.md", "- [ ] deep work #focus")

	res, _ := e.Start(doc, 0, 0)
	id := res.State.ID

	clk.Advance(3 * time.Second)
	clk.Fire()
	waitFor(t, func() bool {
		d := marker.Parse(lineOf(t, doc, 0), id)
		return d != nil && d.State.Accumulated == 3
	})

	pres, _ := e.Pause(doc, id, nil)
	if pres.State.Accumulated != 3 {
		t.Fatalf("pause: %+v", pres.State)
	}

	clk.Advance(7 * time.Second)
	cres, _ := e.Continue(doc, id, nil)
	if cres.State.Accumulated != 3 {
		t.Fatalf("continue backfilled: %+v", cres.State)
	}

	// A 61 second stall past the continue: the whole gap is discarded.
	clk.Advance(61 * time.Second)
	clk.Fire()
	waitFor(t, func() bool {
		d := marker.Parse(lineOf(t, doc, 0), id)
		return d != nil && d.State.LastEvent == t0.Unix()+71
	})
	d := marker.Parse(lineOf(t, doc, 0), id)
	if d.State.Accumulated != 3 {
		t.Fatalf("sleep gap credited: %+v", d.State)
	}

	e.Delete(doc, id, nil)
	total, _ := led.SumInRange("focus", t0.Add(-time.Hour), t0.Add(time.Hour))
	if total != 3 {
		t.Fatalf("ledger total = %d, want 3", total)
	}
}
