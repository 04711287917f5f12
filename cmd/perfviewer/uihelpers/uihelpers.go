package uihelpers

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
)

// Chart size bounds in pixels.
const (
	MinChartWidth  = 320
	MinChartHeight = 160
	MaxChartHeight = 520
)

// ComputeChartDimensions fits the chart into the area left for it in the window.
// A zero-sized area yields 0x0 so the card reports itself hidden (minimised window).
// Otherwise the width follows the area and the height keeps a ~3:1 ratio, clamped
// to the available height.
func ComputeChartDimensions(availW, availH float32) (int, int) {
	if availW <= 0 || availH <= 0 {
		return 0, 0
	}
	w := int(availW) - 12
	if w < MinChartWidth {
		w = MinChartWidth
	}
	h := int(float32(w) * 0.33)
	if h < MinChartHeight {
		h = MinChartHeight
	}
	if h > MaxChartHeight {
		h = MaxChartHeight
	}
	if maxH := int(availH); h > maxH && maxH >= MinChartHeight {
		h = maxH
	}
	return w, h
}

// Rect is an area in canvas units.
type Rect struct {
	X, Y, W, H float32
}

// ContainRect returns where an image of imgW x imgH lands inside a box of
// boxW x boxH when scaled with aspect-preserving "contain" fill and centred.
func ContainRect(boxW, boxH float32, imgW, imgH int) Rect {
	if boxW <= 0 || boxH <= 0 || imgW <= 0 || imgH <= 0 {
		return Rect{}
	}
	scale := float32(math.Min(float64(boxW)/float64(imgW), float64(boxH)/float64(imgH)))
	w := float32(imgW) * scale
	h := float32(imgH) * scale
	return Rect{X: (boxW - w) / 2, Y: (boxH - h) / 2, W: w, H: h}
}

// ViewToImage maps a position inside the box onto image pixel coordinates.
// ok is false when the position falls into the letterbox around the image.
func ViewToImage(x, y, boxW, boxH float32, imgW, imgH int) (image.Point, bool) {
	r := ContainRect(boxW, boxH, imgW, imgH)
	if r.W <= 0 || r.H <= 0 {
		return image.Point{}, false
	}
	if x < r.X || y < r.Y || x >= r.X+r.W || y >= r.Y+r.H {
		return image.Point{}, false
	}
	px := int((x - r.X) * float32(imgW) / r.W)
	py := int((y - r.Y) * float32(imgH) / r.H)
	return image.Pt(min(px, imgW-1), min(py, imgH-1)), true
}

// CursorText renders the hover readout shown next to the crosshair.
func CursorText(cur *analysis.Cursor) string {
	if cur == nil {
		return ""
	}
	s := fmt.Sprintf("%s\n%s: %.1f%% of time\nplayers %d", cur.Time.Local().Format("Jan 2 15:04"), cur.Label, cur.Share*100, cur.Players)
	if cur.AvgTickMs > 0 {
		s += fmt.Sprintf(", avg tick %.2f ms", cur.AvgTickMs)
	}
	return s
}

// StatusText is the one-line status shown under the thread selector. withTicks
// counts the lifespans that have a tick time line in the overlay.
func StatusText(updated time.Time, lifespans, withTicks, skipped int) string {
	if updated.IsZero() {
		return ""
	}
	s := fmt.Sprintf("%d lifespan(s), updated %s", lifespans, updated.Local().Format("15:04:05"))
	if n := lifespans - withTicks; n > 0 {
		s += fmt.Sprintf(", %d without tick data", n)
	}
	if skipped > 0 {
		s += fmt.Sprintf(", %d snapshot(s) skipped", skipped)
	}
	return s
}
