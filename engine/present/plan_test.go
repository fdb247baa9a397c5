package present

import (
	"image"
	"math"
	"testing"

	"github.com/drummonds/goPageTurn/engine/pagecache"
	"github.com/drummonds/goPageTurn/engine/turn"
)

func readyEntry(pageIndex, width, height int) pagecache.Entry {
	return pagecache.Entry{
		State: pagecache.StateReady,
		Page: &pagecache.RenderedPage{
			PageIndex: pageIndex,
			Image:     image.NewRGBA(image.Rect(0, 0, width, height)),
			Width:     width,
			Height:    height,
		},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestIdlePlanIsSingleFittedLayer(t *testing.T) {
	snapshot := map[int]pagecache.Entry{0: readyEntry(0, 200, 282)}
	viewport := Size{Width: 400, Height: 400}

	plan := ComputePlan(State{CurrentPage: 0}, snapshot, viewport)

	if plan.Turn != nil {
		t.Fatal("Idle plan must not carry a turn layer")
	}
	if plan.Flat == nil {
		t.Fatal("Idle plan must carry a flat layer")
	}
	if plan.Flat.Placeholder {
		t.Error("Expected a ready page, not a placeholder")
	}

	// 200x282 fits 400x400 at scale 400/282: height fills, width centers.
	rect := plan.Flat.Rect
	wantW := 200.0 * 400.0 / 282.0
	if !almostEqual(rect.H, 400) {
		t.Errorf("Expected fitted height 400, got %f", rect.H)
	}
	if !almostEqual(rect.W, wantW) {
		t.Errorf("Expected fitted width %f, got %f", wantW, rect.W)
	}
	if !almostEqual(rect.X, (400-wantW)/2) || !almostEqual(rect.Y, 0) {
		t.Errorf("Expected centered rect, got %+v", rect)
	}
}

func TestIdlePlanPlaceholderWhenNotReady(t *testing.T) {
	viewport := Size{Width: 400, Height: 400}

	for name, snapshot := range map[string]map[int]pagecache.Entry{
		"not requested": {},
		"pending":       {0: {State: pagecache.StatePending}},
		"failed":        {0: {State: pagecache.StateFailed}},
	} {
		plan := ComputePlan(State{CurrentPage: 0}, snapshot, viewport)
		if plan.Flat == nil || !plan.Flat.Placeholder {
			t.Errorf("%s: expected a placeholder flat layer", name)
		}
		if plan.Flat.Rect.W <= 0 || plan.Flat.Rect.H <= 0 {
			t.Errorf("%s: placeholder card must still have a fitted rect", name)
		}
	}
}

func TestActivePlanForwardGeometry(t *testing.T) {
	snapshot := map[int]pagecache.Entry{
		0: readyEntry(0, 200, 282),
		1: readyEntry(1, 200, 282),
	}
	viewport := Size{Width: 800, Height: 600}
	eased := 0.5

	plan := ComputePlan(State{
		CurrentPage: 0,
		Turning:     true,
		Turn:        turn.Turn{Direction: turn.Forward, SourcePage: 0, TargetPage: 1},
		Eased:       eased,
	}, snapshot, viewport)

	if plan.Flat != nil {
		t.Fatal("Active plan must not carry a flat layer")
	}
	tl := plan.Turn
	if tl == nil {
		t.Fatal("Active plan must carry a turn layer")
	}

	if tl.Front.PageIndex != 0 || tl.Back.PageIndex != 1 {
		t.Errorf("Expected front=source(0) back=target(1), got front=%d back=%d",
			tl.Front.PageIndex, tl.Back.PageIndex)
	}
	if tl.Hinge != HingeLeft {
		t.Errorf("Forward turns hinge at the left edge, got %v", tl.Hinge)
	}
	if wantAngle := -0.45 * math.Pi * eased; !almostEqual(tl.Angle, wantAngle) {
		t.Errorf("Expected angle %f, got %f", wantAngle, tl.Angle)
	}
	if wantTilt := 0.06 * (1 - eased); !almostEqual(tl.BackTilt, wantTilt) {
		t.Errorf("Expected back tilt %f, got %f", wantTilt, tl.BackTilt)
	}
	if !almostEqual(tl.Shade.Opacity, 0.6*eased) || !almostEqual(tl.Shade.Extent, 0.6) {
		t.Errorf("Unexpected shade %+v", tl.Shade)
	}
	if !almostEqual(tl.Curl.Width, 0.25*800*eased) || !almostEqual(tl.Curl.Opacity, 0.25*eased) {
		t.Errorf("Unexpected curl %+v", tl.Curl)
	}
}

func TestActivePlanBackwardMirrorsGeometry(t *testing.T) {
	snapshot := map[int]pagecache.Entry{
		1: readyEntry(1, 200, 282),
		2: readyEntry(2, 200, 282),
	}
	eased := 0.25

	plan := ComputePlan(State{
		CurrentPage: 2,
		Turning:     true,
		Turn:        turn.Turn{Direction: turn.Backward, SourcePage: 2, TargetPage: 1},
		Eased:       eased,
	}, snapshot, Size{Width: 800, Height: 600})

	tl := plan.Turn
	if tl.Hinge != HingeRight {
		t.Errorf("Backward turns hinge at the right edge, got %v", tl.Hinge)
	}
	if wantAngle := 0.45 * math.Pi * eased; !almostEqual(tl.Angle, wantAngle) {
		t.Errorf("Expected mirrored angle %f, got %f", wantAngle, tl.Angle)
	}
	if tl.BackTilt >= 0 {
		t.Errorf("Expected counter-tilt opposing the rotation, got %f", tl.BackTilt)
	}
}

func TestActivePlanEndpoints(t *testing.T) {
	snapshot := map[int]pagecache.Entry{
		0: readyEntry(0, 200, 282),
		1: readyEntry(1, 200, 282),
	}
	state := State{
		CurrentPage: 0,
		Turning:     true,
		Turn:        turn.Turn{Direction: turn.Forward, SourcePage: 0, TargetPage: 1},
	}
	viewport := Size{Width: 800, Height: 600}

	state.Eased = 0
	start := ComputePlan(state, snapshot, viewport).Turn
	if !almostEqual(start.Angle, 0) || !almostEqual(start.Shade.Opacity, 0) || !almostEqual(start.Curl.Width, 0) {
		t.Errorf("Expected quiet overlays at p=0, got %+v", start)
	}
	if !almostEqual(start.BackTilt, 0.06) {
		t.Errorf("Expected full counter-tilt at p=0, got %f", start.BackTilt)
	}

	state.Eased = 1
	end := ComputePlan(state, snapshot, viewport).Turn
	if !almostEqual(end.Angle, -0.45*math.Pi) {
		t.Errorf("Expected full rotation at p=1, got %f", end.Angle)
	}
	if !almostEqual(end.BackTilt, 0) {
		t.Errorf("Expected flat back layer at p=1, got %f", end.BackTilt)
	}
}

// Placeholder layers never stall the animation: the plan still carries the
// full turn geometry while bitmaps are pending.
func TestActivePlanPlaceholdersKeepAnimating(t *testing.T) {
	snapshot := map[int]pagecache.Entry{
		0: readyEntry(0, 200, 282),
		1: {State: pagecache.StatePending},
	}

	plan := ComputePlan(State{
		CurrentPage: 0,
		Turning:     true,
		Turn:        turn.Turn{Direction: turn.Forward, SourcePage: 0, TargetPage: 1},
		Eased:       0.7,
	}, snapshot, Size{Width: 800, Height: 600})

	if !plan.Turn.Back.Placeholder {
		t.Error("Expected pending target page to surface as a placeholder")
	}
	if plan.Turn.Front.Placeholder {
		t.Error("Expected ready source page to draw its bitmap")
	}
	if !almostEqual(plan.Turn.Progress, 0.7) {
		t.Errorf("Progress must track the sample regardless of renders, got %f", plan.Turn.Progress)
	}
}

func TestComputePlanClampsEasedSample(t *testing.T) {
	plan := ComputePlan(State{
		CurrentPage: 0,
		Turning:     true,
		Turn:        turn.Turn{Direction: turn.Forward, SourcePage: 0, TargetPage: 1},
		Eased:       1.7,
	}, nil, Size{Width: 100, Height: 100})
	if plan.Turn.Progress != 1 {
		t.Errorf("Expected clamped progress 1.0, got %f", plan.Turn.Progress)
	}
}

func TestFitRectDegenerateInputs(t *testing.T) {
	if r := fitRect(0, 100, Size{Width: 100, Height: 100}); r != (Rect{}) {
		t.Errorf("Expected empty rect for zero width, got %+v", r)
	}
	if r := fitRect(100, 100, Size{}); r != (Rect{}) {
		t.Errorf("Expected empty rect for empty viewport, got %+v", r)
	}
}
