package present

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/drummonds/goPageTurn/engine/pagecache"
)

var (
	backdropColor = color.NRGBA{R: 0x26, G: 0x26, B: 0x2b, A: 0xff}
	cardColor     = color.NRGBA{R: 0xe8, G: 0xe6, B: 0xe1, A: 0xff}
)

// Composite rasterizes a DrawPlan into a single frame. It is a software
// reference renderer for the plan: fitted page blits, the turning page
// foreshortened to |cos(angle)| of its fitted width anchored at the hinge,
// and the two gradient overlays. The UI layer is free to paint plans with
// real 3D transforms instead; this compositor backs the frame endpoint.
func Composite(plan DrawPlan, snapshot map[int]pagecache.Entry) *image.NRGBA {
	width, height := plan.Viewport.Width, plan.Viewport.Height
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	frame := imaging.New(width, height, backdropColor)

	if plan.Flat != nil {
		drawPage(frame, *plan.Flat, snapshot)
	}
	if plan.Turn != nil {
		// The back tilt never exceeds 0.06 rad; its foreshortening is
		// under a pixel at viewer sizes, so the back layer draws flat.
		drawPage(frame, plan.Turn.Back, snapshot)
		drawTurning(frame, plan.Turn, snapshot)
	}
	return frame
}

// drawPage blits one flat layer: the cached bitmap resized into its fitted
// rect, or the loading card for placeholders.
func drawPage(frame *image.NRGBA, layer PageLayer, snapshot map[int]pagecache.Entry) {
	dst := roundRect(layer.Rect)
	if dst.Empty() {
		return
	}
	entry, ok := snapshot[layer.PageIndex]
	if layer.Placeholder || !ok || entry.State != pagecache.StateReady || entry.Page == nil {
		draw.Draw(frame, dst, image.NewUniform(cardColor), image.Point{}, draw.Src)
		return
	}
	resized := imaging.Resize(entry.Page.Image, dst.Dx(), dst.Dy(), imaging.Lanczos)
	draw.Draw(frame, dst, resized, image.Point{}, draw.Over)
}

// drawTurning paints the rotating front page and its overlays.
func drawTurning(frame *image.NRGBA, turnLayer *TurnLayer, snapshot map[int]pagecache.Entry) {
	rect := turnLayer.Front.Rect
	squeeze := math.Abs(math.Cos(turnLayer.Angle))
	squeezedW := rect.W * squeeze
	if squeezedW < 1 {
		// Edge-on: the turning page has no visible face this sample.
		return
	}

	x := rect.X
	if turnLayer.Hinge == HingeRight {
		x = rect.X + rect.W - squeezedW
	}
	dst := image.Rect(
		int(math.Round(x)), int(math.Round(rect.Y)),
		int(math.Round(x+squeezedW)), int(math.Round(rect.Y+rect.H)))
	dst = dst.Intersect(frame.Bounds())
	if dst.Empty() {
		return
	}

	entry, ok := snapshot[turnLayer.Front.PageIndex]
	if turnLayer.Front.Placeholder || !ok || entry.State != pagecache.StateReady || entry.Page == nil {
		draw.Draw(frame, dst, image.NewUniform(cardColor), image.Point{}, draw.Src)
	} else {
		src := entry.Page.Image
		xdraw.CatmullRom.Scale(frame, dst, src, src.Bounds(), xdraw.Over, nil)
	}

	applyEdgeShade(frame, dst, turnLayer)
	applyCurlBand(frame, dst, turnLayer)
}

// applyEdgeShade darkens the turning page from the hinge edge outward,
// fading to transparent at the shade's extent.
func applyEdgeShade(frame *image.NRGBA, dst image.Rectangle, turnLayer *TurnLayer) {
	if turnLayer.Shade.Opacity <= 0 {
		return
	}
	extentPx := turnLayer.Shade.Extent * float64(dst.Dx())
	if extentPx < 1 {
		return
	}
	for x := dst.Min.X; x < dst.Max.X; x++ {
		fromHinge := float64(x - dst.Min.X)
		if turnLayer.Hinge == HingeRight {
			fromHinge = float64(dst.Max.X - 1 - x)
		}
		frac := fromHinge / extentPx
		if frac >= 1 {
			continue
		}
		alpha := turnLayer.Shade.Opacity * (1 - frac)
		for y := dst.Min.Y; y < dst.Max.Y; y++ {
			blendPixel(frame, x, y, 0, 0, 0, alpha)
		}
	}
}

// applyCurlBand paints the highlight strip at the trailing edge (opposite
// the hinge), fading vertically from the band's opacity to transparent.
func applyCurlBand(frame *image.NRGBA, dst image.Rectangle, turnLayer *TurnLayer) {
	bandW := int(math.Round(math.Min(turnLayer.Curl.Width, float64(dst.Dx()))))
	if bandW < 1 || turnLayer.Curl.Opacity <= 0 || dst.Dy() < 1 {
		return
	}
	band := image.Rect(dst.Max.X-bandW, dst.Min.Y, dst.Max.X, dst.Max.Y)
	if turnLayer.Hinge == HingeRight {
		band = image.Rect(dst.Min.X, dst.Min.Y, dst.Min.X+bandW, dst.Max.Y)
	}
	height := float64(dst.Dy())
	for y := band.Min.Y; y < band.Max.Y; y++ {
		alpha := turnLayer.Curl.Opacity * (1 - float64(y-band.Min.Y)/height)
		for x := band.Min.X; x < band.Max.X; x++ {
			blendPixel(frame, x, y, 0xff, 0xff, 0xff, alpha)
		}
	}
}

// blendPixel composes an rgb value over the frame at the given alpha. The
// frame is opaque, so only the color channels change.
func blendPixel(frame *image.NRGBA, x, y int, r, g, b uint8, alpha float64) {
	if alpha <= 0 || !image.Pt(x, y).In(frame.Bounds()) {
		return
	}
	if alpha > 1 {
		alpha = 1
	}
	i := frame.PixOffset(x, y)
	px := frame.Pix[i : i+3 : i+3]
	px[0] = uint8(float64(px[0])*(1-alpha) + float64(r)*alpha)
	px[1] = uint8(float64(px[1])*(1-alpha) + float64(g)*alpha)
	px[2] = uint8(float64(px[2])*(1-alpha) + float64(b)*alpha)
}

func roundRect(r Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)), int(math.Round(r.Y)),
		int(math.Round(r.X+r.W)), int(math.Round(r.Y+r.H)))
}
