// Package present turns viewer state, a page-cache snapshot and a viewport
// into a DrawPlan: a declarative description of what to paint. ComputePlan is
// pure; it never blocks on rendering and never mutates the cache, so it can
// be re-run on every animation progress sample.
package present

import (
	"math"

	"github.com/drummonds/goPageTurn/engine/pagecache"
	"github.com/drummonds/goPageTurn/engine/turn"
)

// Geometry constants of the turn composite. All of the overlay parameters
// derive from the eased progress sample, never from page identity.
const (
	// maxAngle is the full rotation of the turning page about its hinge.
	maxAngle = 0.45 * math.Pi
	// backTiltMax is the slight counter-rotation of the page underneath,
	// scaled by (1 - easedProgress).
	backTiltMax = 0.06
	// shadeOpacity scales the hinge-edge darkening gradient.
	shadeOpacity = 0.6
	// shadeExtent is how far across the turning page the shade reaches.
	shadeExtent = 0.6
	// curlWidthFrac sizes the trailing-edge highlight band against the
	// viewport width, scaled by easedProgress.
	curlWidthFrac = 0.25
	// curlOpacity scales the highlight band's gradient.
	curlOpacity = 0.25

	// placeholderAspect is the width:height ratio of the loading card shown
	// for pages whose bitmap is not Ready (ISO paper proportions).
	placeholderAspect = 1 / math.Sqrt2
)

// Size is a viewport or bitmap size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is an axis-aligned rectangle in viewport pixels.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// HingeSide locates the vertical axis the turning page rotates about: the
// viewport's left edge for forward turns, the right edge for backward turns.
type HingeSide string

const (
	HingeLeft  HingeSide = "left"
	HingeRight HingeSide = "right"
)

// PageLayer is one flat page image fitted into the viewport. When
// Placeholder is set the bitmap is not Ready (still pending, or failed) and
// the UI draws a loading card in Rect instead.
type PageLayer struct {
	PageIndex   int  `json:"pageIndex"`
	Placeholder bool `json:"placeholder"`
	Rect        Rect `json:"rect"`
}

// EdgeShade is the horizontal gradient darkening the turning page from the
// hinge edge outward.
type EdgeShade struct {
	Opacity float64 `json:"opacity"` // at the hinge edge
	Extent  float64 `json:"extent"`  // fraction of the page width it reaches
}

// CurlBand is the vertical gradient highlight at the trailing edge of the
// turning page, opposite the hinge.
type CurlBand struct {
	Width   float64 `json:"width"`   // pixels
	Opacity float64 `json:"opacity"` // at the band's strong end
}

// TurnLayer describes the animated composite while a turn is active: the
// target page held almost flat underneath, the source page rotating about
// the hinge on top, and two purely cosmetic overlays.
type TurnLayer struct {
	Direction turn.Direction `json:"direction"`
	Progress  float64        `json:"progress"` // eased
	Back      PageLayer      `json:"back"`
	BackTilt  float64        `json:"backTilt"` // radians
	Front     PageLayer      `json:"front"`
	Hinge     HingeSide      `json:"hinge"`
	Angle     float64        `json:"angle"` // radians about the hinge
	Shade     EdgeShade      `json:"shade"`
	Curl      CurlBand       `json:"curl"`
}

// DrawPlan is everything the UI needs to paint one frame. Exactly one of
// Flat (idle) or Turn (animation in progress) is set.
type DrawPlan struct {
	Viewport Size       `json:"viewport"`
	Flat     *PageLayer `json:"flat,omitempty"`
	Turn     *TurnLayer `json:"turn,omitempty"`
}

// State is the viewer snapshot the mapper renders from.
type State struct {
	CurrentPage int
	Turning     bool
	Turn        turn.Turn
	Eased       float64
}

// ComputePlan computes the drawable description for one frame. Pages whose
// bitmaps are not Ready come back as placeholder layers; animation progress
// is independent of render completion.
func ComputePlan(state State, snapshot map[int]pagecache.Entry, viewport Size) DrawPlan {
	plan := DrawPlan{Viewport: viewport}

	if !state.Turning {
		flat := pageLayer(state.CurrentPage, snapshot, viewport)
		plan.Flat = &flat
		return plan
	}

	p := clamp01(state.Eased)
	sign := state.Turn.Direction.Sign()
	hinge := HingeLeft
	if state.Turn.Direction == turn.Backward {
		hinge = HingeRight
	}

	plan.Turn = &TurnLayer{
		Direction: state.Turn.Direction,
		Progress:  p,
		Back:      pageLayer(state.Turn.TargetPage, snapshot, viewport),
		BackTilt:  -sign * backTiltMax * (1 - p),
		Front:     pageLayer(state.Turn.SourcePage, snapshot, viewport),
		Hinge:     hinge,
		Angle:     sign * maxAngle * p,
		Shade:     EdgeShade{Opacity: shadeOpacity * p, Extent: shadeExtent},
		Curl: CurlBand{
			Width:   curlWidthFrac * float64(viewport.Width) * p,
			Opacity: curlOpacity * p,
		},
	}
	return plan
}

// pageLayer resolves one page against the snapshot: a fitted bitmap when
// Ready, a fitted placeholder card otherwise.
func pageLayer(pageIndex int, snapshot map[int]pagecache.Entry, viewport Size) PageLayer {
	if entry, ok := snapshot[pageIndex]; ok && entry.State == pagecache.StateReady && entry.Page != nil {
		return PageLayer{
			PageIndex: pageIndex,
			Rect:      fitRect(float64(entry.Page.Width), float64(entry.Page.Height), viewport),
		}
	}
	return PageLayer{
		PageIndex:   pageIndex,
		Placeholder: true,
		Rect:        fitRect(placeholderAspect, 1, viewport),
	}
}

// fitRect scales width x height to fit the viewport, preserving aspect ratio
// and centering the result.
func fitRect(width, height float64, viewport Size) Rect {
	if width <= 0 || height <= 0 || viewport.Width <= 0 || viewport.Height <= 0 {
		return Rect{}
	}
	scale := math.Min(float64(viewport.Width)/width, float64(viewport.Height)/height)
	fittedW := width * scale
	fittedH := height * scale
	return Rect{
		X: (float64(viewport.Width) - fittedW) / 2,
		Y: (float64(viewport.Height) - fittedH) / 2,
		W: fittedW,
		H: fittedH,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
