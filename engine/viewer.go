package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drummonds/goPageTurn/engine/pagecache"
	"github.com/drummonds/goPageTurn/engine/pdfrenderer"
	"github.com/drummonds/goPageTurn/engine/present"
	"github.com/drummonds/goPageTurn/engine/turn"
)

// ErrViewerClosed reports an operation on a closed viewer.
var ErrViewerClosed = errors.New("viewer is closed")

// Viewer binds one open document to its render cache and page-turn state
// machine. It is the single source of truth for what is displayed: the
// current page changes exactly once per completed turn, at the instant the
// turn goes idle.
type Viewer struct {
	doc       pdfrenderer.Document
	cache     *pagecache.Cache
	scheduler *pagecache.Scheduler

	mu          sync.Mutex
	machine     *turn.Machine
	currentPage int
	viewport    present.Size
	subscribers []func(present.DrawPlan)
	closed      bool
}

// NewViewer creates a viewer over an already-open document. The viewer takes
// ownership of the document and closes it with Close.
func NewViewer(doc pdfrenderer.Document, scale float64, duration time.Duration, viewport present.Size) *Viewer {
	cache := pagecache.New(doc, scale)
	return &Viewer{
		doc:       doc,
		cache:     cache,
		scheduler: pagecache.NewScheduler(cache),
		machine:   turn.NewMachine(duration),
		viewport:  viewport,
	}
}

// PageCount reports the document's page count.
func (v *Viewer) PageCount() int {
	return v.doc.PageCount()
}

// CurrentPage reports the page the viewer is showing (the source page while
// a turn is in flight).
func (v *Viewer) CurrentPage() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentPage
}

// Turning reports whether a page turn is in progress.
func (v *Viewer) Turning() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.machine.Active()
}

// SetViewport updates the viewport the draw plans are laid out for.
func (v *Viewer) SetViewport(viewport present.Size) {
	v.mu.Lock()
	v.viewport = viewport
	v.mu.Unlock()
	v.notify()
}

// Show navigates directly to a page, rendering it before it becomes current.
// Rejected while a turn is active and for out-of-range pages; a rejected
// request changes nothing.
func (v *Viewer) Show(ctx context.Context, pageIndex int) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewerClosed
	}
	if v.machine.Active() {
		v.mu.Unlock()
		return turn.ErrTurnActive
	}
	v.mu.Unlock()

	if pageIndex < 0 || pageIndex >= v.doc.PageCount() {
		return fmt.Errorf("%w: page %d of %d", pdfrenderer.ErrPageOutOfRange, pageIndex, v.doc.PageCount())
	}
	if err := v.scheduler.EnsureVisible(ctx, pageIndex); err != nil {
		// A failed render still navigates; the page draws as a placeholder.
		Logger.Warn("Navigated to a page that failed to render", "pageIndex", pageIndex, "error", err)
	}

	// The render ran without the lock, so the viewer may have changed
	// underneath us. A turn accepted in that window wins: committing the
	// navigation now would change the current page mid-animation.
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewerClosed
	}
	if v.machine.Active() {
		v.mu.Unlock()
		return turn.ErrTurnActive
	}
	v.currentPage = pageIndex
	v.mu.Unlock()
	v.notify()
	return nil
}

// RequestTurn asks for a page turn and reports whether it was accepted.
// Rejections (already turning, target out of range) leave state untouched.
// On acceptance the target page is prefetched immediately so it is resolved,
// or close to it, by the time the animation needs to paint it.
func (v *Viewer) RequestTurn(direction turn.Direction) bool {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	requested, err := v.machine.Request(direction, v.currentPage, v.doc.PageCount())
	v.mu.Unlock()
	if err != nil {
		Logger.Debug("Turn request rejected", "direction", direction.String(), "reason", err)
		return false
	}

	v.scheduler.Prefetch(requested.TargetPage)
	Logger.Debug("Turn started", "direction", direction.String(),
		"sourcePage", requested.SourcePage, "targetPage", requested.TargetPage)
	v.notify()
	return true
}

// Advance moves the animation clock forward. Completing a turn swaps the
// current page to the turn's target; that is the only path that changes the
// current page. Subscribers are notified on every sample while a turn is
// active and once more on completion.
func (v *Viewer) Advance(dt time.Duration) {
	v.mu.Lock()
	if !v.machine.Active() {
		v.mu.Unlock()
		return
	}
	completed, done := v.machine.Advance(dt)
	if done {
		v.currentPage = completed.TargetPage
	}
	v.mu.Unlock()

	if done {
		Logger.Debug("Turn completed", "currentPage", completed.TargetPage)
	}
	v.notify()
}

// Run drives the animation clock until ctx is cancelled. Ticks advance the
// turn machine only; rendering happens on its own goroutines, so a slow
// rasterize never stalls a tick.
func (v *Viewer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			v.Advance(now.Sub(last))
			last = now
		}
	}
}

// Page returns the rendered bitmap for a page, rendering on first request.
func (v *Viewer) Page(ctx context.Context, pageIndex int) (*pagecache.RenderedPage, error) {
	return v.cache.GetOrRender(ctx, pageIndex)
}

// RetryPage re-attempts a failed page render.
func (v *Viewer) RetryPage(ctx context.Context, pageIndex int) (*pagecache.RenderedPage, error) {
	return v.cache.Retry(ctx, pageIndex)
}

// PageState reports the cache state of a page without triggering a render.
func (v *Viewer) PageState(pageIndex int) pagecache.Entry {
	return v.cache.Lookup(pageIndex)
}

// Warm prefetches the pages around the current one so either turn direction
// paints without waiting.
func (v *Viewer) Warm(ctx context.Context, radius int) error {
	return v.scheduler.WarmNeighbors(ctx, v.CurrentPage(), radius)
}

// Snapshot exposes the page cache's current entries for compositing.
func (v *Viewer) Snapshot() map[int]pagecache.Entry {
	return v.cache.Snapshot()
}

// Plan computes the current drawable description.
func (v *Viewer) Plan() present.DrawPlan {
	v.mu.Lock()
	plan := v.planLocked()
	v.mu.Unlock()
	return plan
}

// Subscribe registers a draw-plan listener. Listeners fire whenever the idle
// flat page changes and on every animation sample while a turn is active.
func (v *Viewer) Subscribe(fn func(present.DrawPlan)) {
	v.mu.Lock()
	v.subscribers = append(v.subscribers, fn)
	v.mu.Unlock()
}

// Close invalidates the cache and releases the document. Idempotent.
func (v *Viewer) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()

	v.cache.InvalidateAll()
	return v.doc.Close()
}

func (v *Viewer) planLocked() present.DrawPlan {
	state := present.State{CurrentPage: v.currentPage}
	if active, ok := v.machine.Current(); ok {
		state.Turning = true
		state.Turn = active
		state.Eased = v.machine.Eased()
	}
	return present.ComputePlan(state, v.cache.Snapshot(), v.viewport)
}

// notify recomputes the plan and fans it out without holding the lock during
// the callbacks.
func (v *Viewer) notify() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	plan := v.planLocked()
	listeners := make([]func(present.DrawPlan), len(v.subscribers))
	copy(listeners, v.subscribers)
	v.mu.Unlock()

	for _, fn := range listeners {
		fn(plan)
	}
}
