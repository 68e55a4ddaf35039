// Package engine wires the accrual machine, the registry, the document
// syncer and the ledger into the action entry points. Every entry point
// is a serialized command on in-memory state; persistence is issued
// after the transition and is idempotent, so an in-flight write racing
// the next tick is harmless.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sadopc/marktime/internal/clock"
	"github.com/sadopc/marktime/internal/config"
	"github.com/sadopc/marktime/internal/docsync"
	"github.com/sadopc/marktime/internal/ledger"
	"github.com/sadopc/marktime/internal/marker"
	"github.com/sadopc/marktime/internal/registry"
	"github.com/sadopc/marktime/internal/timer"
)

// ErrUnknownTimer reports an action against an id the engine is not
// tracking and could not resolve in the given document.
var ErrUnknownTimer = errors.New("engine: unknown timer id")

// Result is the outcome of an action. Divergent is set when the
// in-memory transition completed but persisting it failed: memory and
// storage disagree until the next successful write. The engine reports
// this instead of rolling back or silently swallowing it.
type Result struct {
	State     timer.State
	Divergent bool
}

// flushCtx is the last known ledger context for a timer, kept so a
// final flush still has a source file and tags after the marker itself
// has become unresolvable.
type flushCtx struct {
	path string
	tags []string
}

// Engine owns all per-timer state for one process.
type Engine struct {
	mu     sync.Mutex
	clk    clock.Clock
	limits timer.Limits
	reg    *registry.Registry
	syncer *docsync.Syncer
	led    *ledger.Ledger
	ids    *marker.IDSource
	log    *slog.Logger
	reopen string

	docs    map[string]docsync.Document // path -> handle
	flushed map[string]int64            // id -> seconds already in the ledger
	lastCtx map[string]flushCtx
}

func New(cfg config.Config, clk clock.Clock, led *ledger.Ledger, log *slog.Logger) *Engine {
	return &Engine{
		clk:     clk,
		limits:  cfg.Limits(),
		reg:     registry.New(clk, cfg.TickPeriod()),
		syncer:  docsync.NewSyncer(cfg.InsertPosition()),
		led:     led,
		ids:     marker.NewIDSource(clk),
		log:     log,
		reopen:  cfg.Reopen,
		docs:    make(map[string]docsync.Document),
		flushed: make(map[string]int64),
		lastCtx: make(map[string]flushCtx),
	}
}

// Registry exposes the active-timer collection to presentation layers.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// OpenDocument registers doc and applies the reopen policy to every
// marker found in it: running markers either resume ticking with no
// backfill or are force-paused without crediting the downtime; paused
// markers only warm the location cache.
func (e *Engine) OpenDocument(doc docsync.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[doc.Path()] = doc

	decoded, lines, err := e.syncer.ScanAll(doc)
	if err != nil {
		return fmt.Errorf("scan %s: %w", doc.Path(), err)
	}
	now := clock.Unix(e.clk)
	for i, d := range decoded {
		st := d.State
		e.flushed[st.ID] = st.Accumulated
		e.rememberCtx(doc, st.ID, lines[i])

		if st.Status != timer.Running {
			continue
		}
		switch e.reopen {
		case config.ReopenForcePause:
			st = timer.Apply(timer.ActionForcePause, st, now, e.limits)
			if err := e.syncer.WriteTimer(doc, st, lines[i], &d, 0); err != nil {
				e.log.Warn("force-pause write failed", "id", st.ID, "err", err)
			}
		default:
			st = timer.Apply(timer.ActionRestore, st, now, e.limits)
			if err := e.syncer.WriteTimer(doc, st, lines[i], &d, 0); err != nil {
				e.log.Warn("restore write failed", "id", st.ID, "err", err)
			}
			e.reg.ResumeTicking(st.ID, st, e.handleTick)
		}
	}
	e.log.Info("document opened", "path", doc.Path(), "markers", len(decoded))
	return nil
}

// Start creates a fresh timer on line lineIndex of doc, inserting its
// marker per the configured policy (cursor supplies the offset for the
// cursor policy).
func (e *Engine) Start(doc docsync.Document, lineIndex, cursor int) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[doc.Path()] = doc

	st := timer.New(e.ids.Next(), clock.Unix(e.clk))
	res := Result{State: st}
	if err := e.syncer.WriteTimer(doc, st, lineIndex, nil, cursor); err != nil {
		// Nothing was started; a marker that never reached the document
		// has no state to diverge from.
		return res, fmt.Errorf("write marker: %w", err)
	}
	e.flushed[st.ID] = 0
	e.rememberCtx(doc, st.ID, lineIndex)
	e.reg.StartTicking(st.ID, st, e.handleTick)
	e.log.Info("timer started", "id", st.ID, "path", doc.Path(), "line", lineIndex)
	return res, nil
}

// Pause stops accrual for id, credits the capped elapsed step, writes
// the marker and flushes the unrecorded increment to the ledger.
func (e *Engine) Pause(doc docsync.Document, id string, known *marker.Decoded) (Result, error) {
	return e.terminalish(doc, id, known, timer.ActionPause, false, true)
}

// Continue resumes a paused timer with no backfill.
func (e *Engine) Continue(doc docsync.Document, id string, known *marker.Decoded) (Result, error) {
	return e.transition(doc, id, known, timer.ActionContinue)
}

// Restore resumes a timer regardless of prior status with no backfill.
func (e *Engine) Restore(doc docsync.Document, id string, known *marker.Decoded) (Result, error) {
	return e.transition(doc, id, known, timer.ActionRestore)
}

// ForcePause stops a timer without crediting any time and without
// flushing; its whole point is not to credit time the host was gone.
func (e *Engine) ForcePause(doc docsync.Document, id string, known *marker.Decoded) (Result, error) {
	return e.terminalish(doc, id, known, timer.ActionForcePause, false, false)
}

// Delete flushes the final unrecorded increment, removes the marker
// span from the document and destroys the timer. No extra time is
// credited on the way out.
func (e *Engine) Delete(doc docsync.Document, id string, known *marker.Decoded) (Result, error) {
	return e.terminalish(doc, id, known, timer.ActionForcePause, true, true)
}

// transition handles the non-flushing actions (continue, restore).
func (e *Engine) transition(doc docsync.Document, id string, known *marker.Decoded, a timer.Action) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[doc.Path()] = doc

	st, loc, d, err := e.resolve(doc, id, known)
	if err != nil {
		return Result{}, err
	}
	st = timer.Apply(a, st, clock.Unix(e.clk), e.limits)
	res := Result{State: st}

	if d == nil {
		// Marker unresolvable but state known: the transition stands,
		// the document write does not happen.
		res.Divergent = true
	} else if err := e.syncer.WriteTimer(doc, st, loc.Line, d, 0); err != nil {
		e.log.Warn("action write failed", "id", id, "err", err)
		res.Divergent = true
	} else {
		e.rememberCtx(doc, id, loc.Line)
	}
	if e.reg.Active(id) {
		e.reg.SetState(id, st)
	} else {
		e.reg.ResumeTicking(id, st, e.handleTick)
	}
	return res, nil
}

// terminalish handles pause, forcePause and delete: the in-memory
// transition always completes; persistence failure is reported as
// divergence, never rolled back.
func (e *Engine) terminalish(doc docsync.Document, id string, known *marker.Decoded, a timer.Action, remove, flush bool) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[doc.Path()] = doc

	st, loc, d, err := e.resolve(doc, id, known)
	if err != nil {
		return Result{}, err
	}
	st = timer.Apply(a, st, clock.Unix(e.clk), e.limits)
	res := Result{State: st}
	e.reg.StopTicking(id)

	switch {
	case d == nil:
		res.Divergent = true
	case remove:
		e.rememberCtx(doc, id, loc.Line)
		if err := removeSpan(doc, loc); err != nil {
			e.log.Warn("marker removal failed", "id", id, "err", err)
			res.Divergent = true
		}
		e.syncer.Forget(id)
	default:
		e.rememberCtx(doc, id, loc.Line)
		if err := e.syncer.WriteTimer(doc, st, loc.Line, d, 0); err != nil {
			e.log.Warn("terminal write failed", "id", id, "err", err)
			res.Divergent = true
		}
	}

	if flush {
		if err := e.flushLocked(id, st); err != nil {
			e.log.Warn("ledger flush failed", "id", id, "err", err)
			res.Divergent = true
		}
	}
	if remove {
		delete(e.flushed, id)
		delete(e.lastCtx, id)
	}
	return res, nil
}

// resolve finds id's current state and location: the document span is
// the base, in-memory registry state wins when present (it is ahead of
// the document between writes), and the caller's previously decoded
// span is the last resort when the marker no longer resolves. A nil
// decoded return with a nil error means "state known, location lost".
func (e *Engine) resolve(doc docsync.Document, id string, known *marker.Decoded) (timer.State, docsync.Location, *marker.Decoded, error) {
	loc, d, err := e.syncer.Locate(doc, id)
	if err != nil {
		st, ok := e.reg.State(id)
		if !ok && known != nil && known.State.ID == id {
			st, ok = known.State, true
		}
		if !ok {
			return timer.State{}, docsync.Location{}, nil, fmt.Errorf("%w: %s", ErrUnknownTimer, id)
		}
		return st, docsync.Location{Path: doc.Path()}, nil, nil
	}
	st := d.State
	if reg, ok := e.reg.State(id); ok {
		st = reg
	}
	return st, loc, d, nil
}

// handleTick is the per-id scheduler hook. A failed persistence write
// is a skipped cycle: the timer keeps running and the next write
// carries the full state anyway. An unresolvable marker stops the
// timer with a best-effort final flush.
func (e *Engine) handleTick(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.reg.State(id)
	if !ok || st.Status != timer.Running {
		return
	}
	st = timer.Apply(timer.ActionTick, st, clock.Unix(e.clk), e.limits)
	e.reg.SetState(id, st)

	ctx, ok := e.lastCtx[id]
	if !ok {
		return
	}
	doc, ok := e.docs[ctx.path]
	if !ok {
		return
	}
	loc, d, err := e.syncer.Locate(doc, id)
	if errors.Is(err, docsync.ErrNotFound) {
		e.autoStopLocked(id, st)
		return
	}
	if err != nil {
		e.log.Warn("tick read failed, skipping cycle", "id", id, "err", err)
		return
	}
	if err := e.syncer.WriteTimer(doc, st, loc.Line, d, 0); err != nil {
		e.log.Warn("tick write failed, skipping cycle", "id", id, "err", err)
		return
	}
	e.rememberCtx(doc, id, loc.Line)
}

// autoStopLocked handles a marker that vanished from its document: the
// timer stops, and a final flush is attempted from the last known
// context when the active policy credits reloaded time at all.
func (e *Engine) autoStopLocked(id string, st timer.State) {
	e.log.Info("marker unresolvable, stopping timer", "id", id)
	e.reg.StopTicking(id)
	if e.reopen != config.ReopenForcePause {
		if err := e.flushLocked(id, st); err != nil {
			e.log.Warn("final flush failed", "id", id, "err", err)
		}
	}
	e.syncer.Forget(id)
	delete(e.flushed, id)
	delete(e.lastCtx, id)
}

// flushLocked appends the unrecorded increment for id. Zero and
// negative increments append nothing.
func (e *Engine) flushLocked(id string, st timer.State) error {
	inc := st.Accumulated - e.flushed[id]
	if inc <= 0 {
		return nil
	}
	ctx := e.lastCtx[id]
	if ctx.path == "" {
		ctx.path = ledger.ManualEdit
	}
	err := e.led.Append(ledger.Entry{
		Timestamp: e.clk.Now(),
		Duration:  inc,
		File:      ctx.path,
		Tags:      ctx.tags,
	})
	if err != nil {
		return err
	}
	e.flushed[id] = st.Accumulated
	return nil
}

// rememberCtx records the ledger context (file and same-line tags) for
// id from line lineIndex of doc.
func (e *Engine) rememberCtx(doc docsync.Document, id string, lineIndex int) {
	ctx := flushCtx{path: doc.Path()}
	if line, err := doc.Line(lineIndex); err == nil {
		ctx.tags = marker.Tags(line)
	}
	e.lastCtx[id] = ctx
}

// TimerInfo is a presentation-layer snapshot of one known timer.
type TimerInfo struct {
	State timer.State
	Path  string
	Tags  []string
}

// Timers returns a snapshot of every timer the engine knows about:
// ticking ones from the registry, paused ones re-read from their
// documents. Sorted by id for stable display.
func (e *Engine) Timers() []TimerInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []TimerInfo
	for id, ctx := range e.lastCtx {
		info := TimerInfo{Path: ctx.path, Tags: ctx.tags}
		if st, ok := e.reg.State(id); ok {
			info.State = st
		} else {
			doc, ok := e.docs[ctx.path]
			if !ok {
				continue
			}
			_, d, err := e.syncer.Locate(doc, id)
			if err != nil {
				continue
			}
			info.State = d.State
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State.ID < out[j].State.ID })
	return out
}

// documentFor resolves the document handle a timer was last seen in.
func (e *Engine) documentFor(id string) (docsync.Document, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, ok := e.lastCtx[id]
	if !ok {
		return nil, false
	}
	doc, ok := e.docs[ctx.path]
	return doc, ok
}

// PauseByID, ContinueByID and DeleteByID are conveniences for callers
// that hold only an id, like the dashboard.
func (e *Engine) PauseByID(id string) (Result, error) {
	doc, ok := e.documentFor(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTimer, id)
	}
	return e.Pause(doc, id, nil)
}

func (e *Engine) ContinueByID(id string) (Result, error) {
	doc, ok := e.documentFor(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTimer, id)
	}
	return e.Continue(doc, id, nil)
}

func (e *Engine) DeleteByID(id string) (Result, error) {
	doc, ok := e.documentFor(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTimer, id)
	}
	return e.Delete(doc, id, nil)
}

// Relocate re-resolves every tracked timer cached in the document at
// path after an external edit, applying the auto-stop policy to any
// marker that is gone.
// Tracks reports whether the engine has opened the document at path.
func (e *Engine) Tracks(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.docs[path]
	return ok
}

func (e *Engine) Relocate(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.docs[path]
	if !ok {
		return
	}
	for id := range e.reg.SnapshotAll() {
		if ctx, ok := e.lastCtx[id]; !ok || ctx.path != path {
			continue
		}
		loc, _, err := e.syncer.Locate(doc, id)
		if errors.Is(err, docsync.ErrNotFound) {
			st, _ := e.reg.State(id)
			e.autoStopLocked(id, st)
			continue
		}
		if err != nil {
			e.log.Warn("relocate read failed", "path", path, "id", id, "err", err)
			continue
		}
		e.rememberCtx(doc, id, loc.Line)
	}
}

// Shutdown credits a final capped step to every running timer, writes
// markers, flushes unrecorded increments and stops the scheduler.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := clock.Unix(e.clk)
	for id, st := range e.reg.SnapshotAll() {
		if st.Status == timer.Running {
			st = timer.Apply(timer.ActionTick, st, now, e.limits)
		}
		if ctx, ok := e.lastCtx[id]; ok {
			if doc, ok := e.docs[ctx.path]; ok {
				if loc, d, err := e.syncer.Locate(doc, id); err == nil {
					if err := e.syncer.WriteTimer(doc, st, loc.Line, d, 0); err != nil {
						e.log.Warn("shutdown write failed", "id", id, "err", err)
					}
				}
			}
		}
		if err := e.flushLocked(id, st); err != nil {
			e.log.Warn("shutdown flush failed", "id", id, "err", err)
		}
	}
	e.reg.Clear()
	e.log.Info("engine shut down")
}

// removeSpan deletes loc's span from its line, absorbing one adjacent
// padding space so deletion undoes insertion.
func removeSpan(doc docsync.Document, loc docsync.Location) error {
	line, err := doc.Line(loc.Line)
	if err != nil {
		return err
	}
	start, end := loc.Start, loc.End
	if start > 0 && line[start-1] == ' ' {
		start--
	} else if end < len(line) && line[end] == ' ' {
		end++
	}
	return doc.ReplaceRange(loc.Line, start, end, "")
}
