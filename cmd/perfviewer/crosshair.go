package main

import (
	"image"
	"image/color"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/iafilius/ThreadPerfMonitor/cmd/perfviewer/uihelpers"
	"github.com/iafilius/ThreadPerfMonitor/src/perfcard"
)

// crosshairOverlay sits on top of the chart images. It forwards the pointer to the
// card and draws a crosshair with the readout of the cell under it.
type crosshairOverlay struct {
	widget.BaseWidget
	state    *uiState
	enabled  bool
	mouse    fyne.Position
	hovering bool
	text     string
}

func newCrosshairOverlay(state *uiState) *crosshairOverlay {
	c := &crosshairOverlay{state: state, enabled: state != nil && state.crosshairEnabled}
	c.ExtendBaseWidget(c)
	return c
}

func (c *crosshairOverlay) setEnabled(b bool) {
	c.enabled = b
	if !b {
		c.text = ""
		if c.state != nil && c.state.card != nil {
			c.state.card.SetCursor(nil)
		}
	}
	c.Refresh()
}

// pointAt maps an overlay position onto chart pixels. The chart images use
// contain fill, so the overlay may be larger than the drawn chart.
func (c *crosshairOverlay) pointAt(pos fyne.Position, v perfcard.View) (image.Point, bool) {
	sz := c.Size()
	return uihelpers.ViewToImage(pos.X, pos.Y, sz.Width, sz.Height, v.Width, v.Height)
}

func (c *crosshairOverlay) CreateRenderer() fyne.WidgetRenderer {
	// background to ensure full hit-area for hover events
	bg := canvas.NewRectangle(color.Transparent)
	lineV := canvas.NewLine(theme.Color(theme.ColorNameDisabled))
	lineV.StrokeWidth = 1
	lineH := canvas.NewLine(theme.Color(theme.ColorNameDisabled))
	lineH.StrokeWidth = 1
	labelBG := canvas.NewRectangle(color.RGBA{A: 170})
	label := canvas.NewText("", color.White)
	label.TextSize = theme.CaptionTextSize()
	label2 := canvas.NewText("", color.White)
	label2.TextSize = theme.CaptionTextSize()
	label3 := canvas.NewText("", color.White)
	label3.TextSize = theme.CaptionTextSize()
	lines := []*canvas.Text{label, label2, label3}
	objs := []fyne.CanvasObject{bg, lineV, lineH, labelBG, label, label2, label3}
	return &crosshairRenderer{c: c, bg: bg, lineV: lineV, lineH: lineH, labelBG: labelBG, lines: lines, objs: objs}
}

type crosshairRenderer struct {
	c       *crosshairOverlay
	bg      *canvas.Rectangle
	lineV   *canvas.Line
	lineH   *canvas.Line
	labelBG *canvas.Rectangle
	lines   []*canvas.Text
	objs    []fyne.CanvasObject
}

func (r *crosshairRenderer) Destroy() {}

func (r *crosshairRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))
	if !r.c.enabled || !r.c.hovering || r.c.text == "" {
		off := fyne.NewPos(-10, -10)
		r.lineV.Position1, r.lineV.Position2 = off, off
		r.lineH.Position1, r.lineH.Position2 = off, off
		r.labelBG.Resize(fyne.NewSize(0, 0))
		r.labelBG.Move(fyne.NewPos(-1000, -1000))
		for _, t := range r.lines {
			t.Text = ""
			t.Move(fyne.NewPos(-1000, -1000))
		}
		return
	}
	x := min(max(r.c.mouse.X, 0), size.Width)
	y := min(max(r.c.mouse.Y, 0), size.Height)
	r.lineV.Position1 = fyne.NewPos(x, 0)
	r.lineV.Position2 = fyne.NewPos(x, size.Height)
	r.lineH.Position1 = fyne.NewPos(0, y)
	r.lineH.Position2 = fyne.NewPos(size.Width, y)

	texts := splitLines(r.c.text, len(r.lines))
	var boxW, lineH float32
	for i, t := range r.lines {
		t.Text = texts[i]
		ms := t.MinSize()
		boxW = max(boxW, ms.Width)
		lineH = max(lineH, ms.Height)
	}
	const pad = 4
	boxW += 2 * pad
	boxH := lineH*float32(len(r.lines)) + 2*pad
	// keep the readout inside the chart
	lx, ly := x+12, y+12
	if lx+boxW > size.Width {
		lx = x - 12 - boxW
	}
	if ly+boxH > size.Height {
		ly = y - 12 - boxH
	}
	lx, ly = max(lx, 0), max(ly, 0)
	r.labelBG.Resize(fyne.NewSize(boxW, boxH))
	r.labelBG.Move(fyne.NewPos(lx, ly))
	for i, t := range r.lines {
		t.Move(fyne.NewPos(lx+pad, ly+pad+float32(i)*lineH))
	}
}

func (r *crosshairRenderer) MinSize() fyne.Size           { return fyne.NewSize(10, 10) }
func (r *crosshairRenderer) Objects() []fyne.CanvasObject { return r.objs }

func (r *crosshairRenderer) Refresh() {
	r.Layout(r.c.Size())
	r.lineV.StrokeColor = theme.Color(theme.ColorNameDisabled)
	r.lineH.StrokeColor = theme.Color(theme.ColorNameDisabled)
	for _, o := range r.objs {
		o.Refresh()
	}
}

func (c *crosshairOverlay) MouseMoved(ev *desktop.MouseEvent) {
	if !c.enabled || c.state == nil || c.state.card == nil {
		return
	}
	c.hovering = true
	c.mouse = ev.Position
	v := c.state.card.View()
	pt, ok := c.pointAt(ev.Position, v)
	if !ok {
		pt = image.Pt(-1, -1)
	}
	c.text = uihelpers.CursorText(c.state.card.Pointer(pt))
	c.Refresh()
}

func (c *crosshairOverlay) MouseIn(*desktop.MouseEvent) { c.hovering = true; c.Refresh() }

func (c *crosshairOverlay) MouseOut() {
	c.hovering = false
	c.text = ""
	if c.state != nil && c.state.card != nil {
		c.state.card.SetCursor(nil)
	}
	c.Refresh()
}

var _ desktop.Hoverable = (*crosshairOverlay)(nil)

// splitLines returns exactly n lines of s, padding with empty strings.
func splitLines(s string, n int) []string {
	out := make([]string, n)
	copy(out, strings.SplitN(s, "\n", n))
	return out
}
