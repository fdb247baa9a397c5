package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/drummonds/goPageTurn/engine/pagecache"
	"github.com/drummonds/goPageTurn/engine/pdfrenderer"
	"github.com/drummonds/goPageTurn/engine/present"
	"github.com/drummonds/goPageTurn/engine/turn"
)

// fakeDocument implements pdfrenderer.Document without MuPDF.
type fakeDocument struct {
	pages int

	mu        sync.Mutex
	failPages map[int]error
	gates     map[int]*renderGate
	closed    bool
}

// renderGate stalls one page's rasterize until released.
type renderGate struct {
	started chan struct{}
	release chan struct{}
}

func newFakeDocument(pages int) *fakeDocument {
	return &fakeDocument{
		pages:     pages,
		failPages: make(map[int]error),
		gates:     make(map[int]*renderGate),
	}
}

// gatePage makes the next rasterize of pageIndex block: started closes when
// the render begins, and the render finishes only after release is closed.
func (d *fakeDocument) gatePage(pageIndex int) (started, release chan struct{}) {
	gate := &renderGate{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	d.mu.Lock()
	d.gates[pageIndex] = gate
	d.mu.Unlock()
	return gate.started, gate.release
}

func (d *fakeDocument) PageCount() int { return d.pages }

func (d *fakeDocument) PageSize(pageIndex int) (float64, float64, error) {
	if pageIndex < 0 || pageIndex >= d.pages {
		return 0, 0, fmt.Errorf("%w: page %d", pdfrenderer.ErrPageOutOfRange, pageIndex)
	}
	return 100, 141, nil
}

func (d *fakeDocument) Rasterize(pageIndex, targetWidth, targetHeight int) (*image.RGBA, error) {
	d.mu.Lock()
	failErr := d.failPages[pageIndex]
	gate := d.gates[pageIndex]
	delete(d.gates, pageIndex)
	closed := d.closed
	d.mu.Unlock()
	if gate != nil {
		close(gate.started)
		<-gate.release
	}
	if closed {
		return nil, pdfrenderer.ErrDocumentClosed
	}
	if pageIndex < 0 || pageIndex >= d.pages {
		return nil, fmt.Errorf("%w: page %d", pdfrenderer.ErrPageOutOfRange, pageIndex)
	}
	if failErr != nil {
		return nil, failErr
	}
	return image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight)), nil
}

func (d *fakeDocument) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func newTestViewer(pages int) (*Viewer, *fakeDocument) {
	doc := newFakeDocument(pages)
	viewer := NewViewer(doc, 2.0, 650*time.Millisecond, present.Size{Width: 800, Height: 600})
	return viewer, doc
}

// Full turn lifecycle: rejection at the edge, acceptance, progress to
// completion and the terminal page swap.
func TestViewerTurnLifecycle(t *testing.T) {
	viewer, _ := newTestViewer(5)
	defer viewer.Close()

	if err := viewer.Show(context.Background(), 0); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	if viewer.RequestTurn(turn.Backward) {
		t.Fatal("Backward turn at page 0 must be rejected")
	}
	if viewer.Turning() || viewer.CurrentPage() != 0 {
		t.Fatal("Rejected turn must leave the viewer unchanged")
	}

	if !viewer.RequestTurn(turn.Forward) {
		t.Fatal("Forward turn at page 0 must be accepted")
	}
	if !viewer.Turning() {
		t.Fatal("Viewer must report an active turn")
	}
	if viewer.CurrentPage() != 0 {
		t.Error("Current page must not change mid-turn")
	}

	// Re-entrancy is rejected, not queued.
	if viewer.RequestTurn(turn.Forward) || viewer.RequestTurn(turn.Backward) {
		t.Error("Turn requests while active must be rejected")
	}

	viewer.Advance(650 * time.Millisecond)
	if viewer.Turning() {
		t.Error("Turn must be idle after a full-duration advance")
	}
	if viewer.CurrentPage() != 1 {
		t.Errorf("Expected current page 1 after completion, got %d", viewer.CurrentPage())
	}

	// A follow-up turn computes its target from the new current page.
	if !viewer.RequestTurn(turn.Forward) {
		t.Fatal("Follow-up forward turn must be accepted")
	}
	plan := viewer.Plan()
	if plan.Turn == nil || plan.Turn.Front.PageIndex != 1 || plan.Turn.Back.PageIndex != 2 {
		t.Errorf("Expected turn 1 -> 2, got %+v", plan.Turn)
	}
}

func TestViewerRejectsForwardAtLastPage(t *testing.T) {
	viewer, _ := newTestViewer(5)
	defer viewer.Close()

	if err := viewer.Show(context.Background(), 4); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if viewer.RequestTurn(turn.Forward) {
		t.Error("Forward turn at the last page must be rejected")
	}
	if !viewer.RequestTurn(turn.Backward) {
		t.Error("Backward turn at the last page must be accepted")
	}
}

func TestViewerPrefetchesTargetOnTurn(t *testing.T) {
	viewer, _ := newTestViewer(5)
	defer viewer.Close()

	if err := viewer.Show(context.Background(), 0); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if !viewer.RequestTurn(turn.Forward) {
		t.Fatal("Turn request failed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if viewer.PageState(1).State == pagecache.StateReady {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Target page never prefetched, state: %v", viewer.PageState(1).State)
}

func TestViewerSubscribersSeeTurnSamples(t *testing.T) {
	viewer, _ := newTestViewer(5)
	defer viewer.Close()

	var mu sync.Mutex
	var plans []present.DrawPlan
	viewer.Subscribe(func(plan present.DrawPlan) {
		mu.Lock()
		plans = append(plans, plan)
		mu.Unlock()
	})

	if err := viewer.Show(context.Background(), 0); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	viewer.RequestTurn(turn.Forward)
	for i := 0; i < 10; i++ {
		viewer.Advance(65 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(plans) < 11 {
		t.Fatalf("Expected a plan per show, request and advance, got %d", len(plans))
	}

	// The first post-request plan carries the turn layer at zero progress;
	// the last plan is idle on the target page.
	start := plans[1]
	if start.Turn == nil || start.Turn.Progress != 0 {
		t.Errorf("Expected turn layer at zero progress, got %+v", start.Turn)
	}
	final := plans[len(plans)-1]
	if final.Turn != nil {
		t.Error("Expected an idle plan after completion")
	}
	if final.Flat == nil || final.Flat.PageIndex != 1 {
		t.Errorf("Expected idle plan on page 1, got %+v", final.Flat)
	}

	// Progress samples never decrease across the animation.
	last := -1.0
	for _, plan := range plans {
		if plan.Turn == nil {
			continue
		}
		if plan.Turn.Progress < last {
			t.Fatalf("Progress regressed: %f after %f", plan.Turn.Progress, last)
		}
		last = plan.Turn.Progress
	}
}

// A failed render never stalls the animation: the turn completes while the
// target page surfaces as a placeholder.
func TestViewerTurnSurvivesFailedTarget(t *testing.T) {
	viewer, doc := newTestViewer(5)
	defer viewer.Close()
	doc.mu.Lock()
	doc.failPages[1] = errors.New("decode error")
	doc.mu.Unlock()

	if err := viewer.Show(context.Background(), 0); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if !viewer.RequestTurn(turn.Forward) {
		t.Fatal("Turn request failed")
	}

	viewer.Advance(325 * time.Millisecond)
	plan := viewer.Plan()
	if plan.Turn == nil {
		t.Fatal("Expected an active turn plan")
	}
	if plan.Turn.Progress <= 0 {
		t.Error("Progress must advance independent of render completion")
	}

	viewer.Advance(325 * time.Millisecond)
	if viewer.Turning() {
		t.Error("Turn must complete despite the failed target render")
	}
	if viewer.CurrentPage() != 1 {
		t.Errorf("Expected current page 1, got %d", viewer.CurrentPage())
	}
	if plan := viewer.Plan(); plan.Flat == nil || !plan.Flat.Placeholder {
		t.Error("Failed page must draw as a placeholder")
	}
}

// A turn accepted while Show's render is in flight wins: the navigation is
// rejected and the current page changes only when the turn completes.
func TestShowRejectedWhenTurnStartsMidRender(t *testing.T) {
	viewer, doc := newTestViewer(5)
	defer viewer.Close()

	if err := viewer.Show(context.Background(), 0); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	started, release := doc.gatePage(3)
	showErr := make(chan error, 1)
	go func() {
		showErr <- viewer.Show(context.Background(), 3)
	}()

	<-started
	if !viewer.RequestTurn(turn.Forward) {
		t.Fatal("Turn request during the render must be accepted")
	}
	close(release)

	if err := <-showErr; !errors.Is(err, turn.ErrTurnActive) {
		t.Fatalf("Expected ErrTurnActive from the stale navigation, got %v", err)
	}
	if viewer.CurrentPage() != 0 {
		t.Errorf("Current page must not move while the turn is active, got %d", viewer.CurrentPage())
	}
	if !viewer.Turning() {
		t.Error("The accepted turn must still be active")
	}

	viewer.Advance(650 * time.Millisecond)
	if viewer.CurrentPage() != 1 {
		t.Errorf("Expected the completed turn's target page 1, got %d", viewer.CurrentPage())
	}
	// The rejected navigation's render is not wasted: page 3 stays cached.
	if state := viewer.PageState(3); state.State != pagecache.StateReady {
		t.Errorf("Expected page 3 ready in the cache, got %v", state.State)
	}
}

func TestViewerShowOutOfRange(t *testing.T) {
	viewer, _ := newTestViewer(5)
	defer viewer.Close()

	if err := viewer.Show(context.Background(), 10); !errors.Is(err, pdfrenderer.ErrPageOutOfRange) {
		t.Fatalf("Expected ErrPageOutOfRange, got %v", err)
	}
	if viewer.CurrentPage() != 0 {
		t.Error("Rejected navigation must not change the current page")
	}
}

func TestViewerClosedRejectsWork(t *testing.T) {
	viewer, doc := newTestViewer(5)
	if err := viewer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := viewer.Close(); err != nil {
		t.Fatalf("Second close must be a no-op, got %v", err)
	}
	if viewer.RequestTurn(turn.Forward) {
		t.Error("Closed viewer must reject turns")
	}
	if err := viewer.Show(context.Background(), 0); !errors.Is(err, ErrViewerClosed) {
		t.Errorf("Expected ErrViewerClosed, got %v", err)
	}
	doc.mu.Lock()
	closed := doc.closed
	doc.mu.Unlock()
	if !closed {
		t.Error("Closing the viewer must close the document")
	}
}

// Shutdown tears every session down: CloseAll must stop the clocks and
// release the underlying documents.
func TestRegistryCloseAllReleasesDocuments(t *testing.T) {
	registry := NewSessionRegistry()
	var docs []*fakeDocument
	for i := 0; i < 3; i++ {
		viewer, doc := newTestViewer(5)
		docs = append(docs, doc)
		ctx, cancel := context.WithCancel(context.Background())
		go viewer.Run(ctx, 5*time.Millisecond)
		registry.Add(&Session{
			ID:       ulid.Make(),
			Viewer:   viewer,
			OpenedAt: time.Now(),
			cancel:   cancel,
		})
	}

	registry.CloseAll()
	if registry.Len() != 0 {
		t.Fatalf("Expected an empty registry, got %d sessions", registry.Len())
	}
	for i, doc := range docs {
		doc.mu.Lock()
		closed := doc.closed
		doc.mu.Unlock()
		if !closed {
			t.Errorf("Document %d not closed by CloseAll", i)
		}
	}
}

func TestViewerRunAdvancesClock(t *testing.T) {
	viewer, _ := newTestViewer(5)
	defer viewer.Close()

	if err := viewer.Show(context.Background(), 0); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go viewer.Run(ctx, 5*time.Millisecond)

	if !viewer.RequestTurn(turn.Forward) {
		t.Fatal("Turn request failed")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !viewer.Turning() && viewer.CurrentPage() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Clock-driven turn never completed; page=%d turning=%v",
		viewer.CurrentPage(), viewer.Turning())
}
