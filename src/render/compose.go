package render

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"

	chart "github.com/wcharczuk/go-chart/v2"
	"golang.org/x/image/font/basicfont"

	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
)

// Compose stacks the vector layer on top of the raster layer into a new image.
func Compose(raster, vector image.Image) *image.RGBA {
	var b image.Rectangle
	if raster != nil {
		b = raster.Bounds()
	} else if vector != nil {
		b = vector.Bounds()
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if raster != nil {
		draw.Draw(out, out.Bounds(), raster, raster.Bounds().Min, draw.Src)
	}
	if vector != nil {
		draw.Draw(out, out.Bounds(), vector, vector.Bounds().Min, draw.Over)
	}
	return out
}

// RenderPNG draws model into a single flattened image. The overlay is rendered as
// PNG so it can be composited.
func RenderPNG(width, height int, m Margins, dark bool, model *analysis.ChartModel) (*image.RGBA, *Layout, error) {
	raster := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	layout, err := DrawPerfChart(Targets{Vector: &buf, VectorFormat: chart.PNG, Raster: raster}, width, height, m, dark, model)
	if err != nil {
		return nil, layout, err
	}
	overlay, err := png.Decode(&buf)
	if err != nil {
		return nil, layout, err
	}
	return Compose(raster, overlay), layout, nil
}

// Placeholder fills a width x height image with the chart background and centres
// lines of text on it. Front ends show it while loading or on errors.
func Placeholder(width, height int, dark bool, lines ...string) *image.RGBA {
	if width <= 0 || height <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	pal := paletteFor(dark)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(pal.background), image.Point{}, draw.Src)
	face := basicfont.Face7x13
	lh := face.Metrics().Height.Ceil() + 4
	y := (height-lh*len(lines))/2 + face.Metrics().Ascent.Ceil()
	for _, ln := range lines {
		x := (width - measure(face, ln)) / 2
		if x < 4 {
			x = 4
		}
		drawText(img, face, x, y, ln, pal.text)
		y += lh
	}
	return img
}
