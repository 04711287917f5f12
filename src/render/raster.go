package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// minLabelBand is the smallest band height (px) that still gets its own label.
const minLabelBand = 12

// drawRaster paints the heat-map layer: background, grid, one cell per snapshot
// and bucket, the axes and their labels.
func drawRaster(dst draw.Image, l *Layout, pal palette) {
	origin := dst.Bounds().Min
	fill := func(r image.Rectangle, c color.Color) {
		draw.Draw(dst, r.Add(origin), image.NewUniform(c), image.Point{}, draw.Src)
	}

	fill(image.Rect(0, 0, l.Width, l.Height), pal.background)
	fill(l.Plot, pal.plot)

	// horizontal grid on bucket edges
	for b := 1; b < l.buckets(); b++ {
		r := l.bandRect(b, l.Plot.Min.X, l.Plot.Max.X)
		fill(image.Rect(r.Min.X, r.Max.Y, r.Max.X, r.Max.Y+1), pal.grid)
	}
	ticks := makeTimeTicks(l.Start, l.End, time.Local)
	for _, tk := range ticks {
		x := int(math.Round(l.XFor(tk.At)))
		fill(image.Rect(x, l.Plot.Min.Y, x+1, l.Plot.Max.Y), pal.grid)
	}

	for _, ls := range l.model.Lifespans {
		for _, s := range ls.Snaps {
			x0 := int(math.Floor(l.XFor(s.Start)))
			x1 := int(math.Ceil(l.XFor(s.End)))
			if x1 <= x0 {
				x1 = x0 + 1
			}
			for b, w := range s.Weights {
				if w <= 0 {
					continue
				}
				cell := l.bandRect(b, x0, x1).Intersect(l.Plot)
				if cell.Empty() {
					continue
				}
				fill(cell, pal.heatColor(w))
			}
		}
	}

	// axes
	aw := l.Margins.Axis
	if aw > 0 {
		fill(image.Rect(l.Plot.Min.X-aw, l.Plot.Min.Y, l.Plot.Min.X, l.Plot.Max.Y+aw), pal.axis)
		fill(image.Rect(l.Plot.Min.X-aw, l.Plot.Max.Y, l.Plot.Max.X, l.Plot.Max.Y+aw), pal.axis)
	}

	face := basicfont.Face7x13
	ascent := face.Metrics().Ascent.Ceil()

	// bucket labels, thinned out when the bands get narrow
	every := 1
	if bh := l.bandHeight(); bh < minLabelBand {
		every = int(math.Ceil(minLabelBand / bh))
	}
	for b := 0; b < l.buckets(); b += every {
		r := l.bandRect(b, 0, 0)
		label := l.model.BucketLabels[b]
		tw := measure(face, label)
		x := l.Plot.Min.X - aw - 4 - tw
		if x < 0 {
			x = 0
		}
		y := (r.Min.Y+r.Max.Y)/2 + ascent/2
		drawText(dst, face, x+origin.X, y+origin.Y, label, pal.text)
	}

	// time labels
	lastRight := math.MinInt
	for _, tk := range ticks {
		x := int(math.Round(l.XFor(tk.At)))
		fill(image.Rect(x, l.Plot.Max.Y+aw, x+1, l.Plot.Max.Y+aw+4), pal.axis)
		tw := measure(face, tk.Label)
		lx := x - tw/2
		if lx < 0 {
			lx = 0
		}
		if lx+tw > l.Width {
			lx = l.Width - tw
		}
		if lx <= lastRight+4 {
			continue
		}
		drawText(dst, face, lx+origin.X, l.Plot.Max.Y+aw+4+ascent+origin.Y, tk.Label, pal.text)
		lastRight = lx + tw
	}
}

func measure(face font.Face, s string) int {
	return (&font.Drawer{Face: face}).MeasureString(s).Ceil()
}

func drawText(dst draw.Image, face font.Face, x, y int, s string, c color.Color) {
	dr := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	dr.DrawString(s)
}
