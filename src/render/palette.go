package render

import (
	"image/color"
	"math"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

type palette struct {
	background color.RGBA
	plot       color.RGBA
	grid       color.RGBA
	axis       color.RGBA
	text       color.RGBA
	// heat stops from a small share to the whole interval
	heat    []color.RGBA
	players drawing.Color
	tick    drawing.Color
}

var darkPalette = palette{
	background: color.RGBA{R: 18, G: 18, B: 18, A: 255},
	plot:       color.RGBA{R: 28, G: 28, B: 32, A: 255},
	grid:       color.RGBA{R: 45, G: 45, B: 45, A: 255},
	axis:       color.RGBA{R: 120, G: 120, B: 120, A: 255},
	text:       color.RGBA{R: 220, G: 220, B: 220, A: 255},
	heat: []color.RGBA{
		{R: 40, G: 60, B: 120, A: 255},
		{R: 60, G: 160, B: 200, A: 255},
		{R: 250, G: 200, B: 60, A: 255},
		{R: 240, G: 70, B: 50, A: 255},
	},
	players: drawing.Color{R: 240, G: 240, B: 240, A: 220},
	tick:    drawing.Color{R: 120, G: 200, B: 255, A: 220},
}

var lightPalette = palette{
	background: color.RGBA{R: 255, G: 255, B: 255, A: 255},
	plot:       color.RGBA{R: 248, G: 248, B: 250, A: 255},
	grid:       color.RGBA{R: 220, G: 220, B: 225, A: 255},
	axis:       color.RGBA{R: 90, G: 90, B: 90, A: 255},
	text:       color.RGBA{R: 40, G: 40, B: 40, A: 255},
	heat: []color.RGBA{
		{R: 210, G: 225, B: 245, A: 255},
		{R: 90, G: 150, B: 220, A: 255},
		{R: 245, G: 170, B: 60, A: 255},
		{R: 200, G: 40, B: 40, A: 255},
	},
	players: drawing.Color{R: 30, G: 30, B: 30, A: 220},
	tick:    drawing.Color{R: 20, G: 100, B: 200, A: 220},
}

func paletteFor(dark bool) palette {
	if dark {
		return darkPalette
	}
	return lightPalette
}

// heatColor maps a time share in [0,1] onto the heat gradient. The square root
// keeps small shares visible.
func (p palette) heatColor(share float64) color.RGBA {
	if share <= 0 || math.IsNaN(share) {
		return p.plot
	}
	if share > 1 {
		share = 1
	}
	t := math.Sqrt(share)
	segs := len(p.heat) - 1
	pos := t * float64(segs)
	i := int(pos)
	if i >= segs {
		return p.heat[segs]
	}
	return lerp(p.heat[i], p.heat[i+1], pos-float64(i))
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t)) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}
