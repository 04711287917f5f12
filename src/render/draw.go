// Package render draws a thread performance chart onto two stacked targets: a
// raster heat-map of the time-weighted histograms and a transparent vector overlay
// with the player count and average tick time lines.
package render

import (
	"errors"
	"image"
	"image/draw"
	"io"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
)

var (
	ErrTargetsNotMounted = errors.New("render: draw targets not mounted")
	ErrZeroSize          = errors.New("render: chart size is zero")
	ErrNoLifespans       = errors.New("render: no data lifespans to draw")
	ErrPlotTooSmall      = errors.New("render: margins leave no plot area")
	ErrNoBuckets         = errors.New("render: model has no histogram buckets")
)

// Targets are the two drawing surfaces of the chart. Both must be set.
type Targets struct {
	// Vector receives the overlay rendered by go-chart in VectorFormat.
	Vector io.Writer
	// VectorFormat is chart.SVG or chart.PNG; nil means SVG.
	VectorFormat chart.RendererProvider
	// Raster receives the heat-map; its bounds must cover width x height.
	Raster draw.Image
}

// Margins around the plot area in pixels. Axis is the axis line width.
type Margins struct {
	Top    int
	Right  int
	Bottom int
	Left   int
	Axis   int
}

// DefaultMargins leave room for bucket labels on the left and time labels below.
var DefaultMargins = Margins{Top: 8, Right: 8, Bottom: 24, Left: 56, Axis: 1}

// DrawPerfChart renders model onto both targets. It refuses to draw unless both
// targets are mounted, both dimensions are non-zero and at least one lifespan exists.
func DrawPerfChart(t Targets, width, height int, m Margins, dark bool, model *analysis.ChartModel) (*Layout, error) {
	if t.Vector == nil || t.Raster == nil {
		return nil, ErrTargetsNotMounted
	}
	if width <= 0 || height <= 0 {
		return nil, ErrZeroSize
	}
	if model == nil || len(model.Lifespans) == 0 {
		return nil, ErrNoLifespans
	}
	if len(model.BucketLabels) == 0 {
		return nil, ErrNoBuckets
	}
	defer monitor.TimeTrack(time.Now(), "draw perf chart")

	layout, err := newLayout(width, height, m, model)
	if err != nil {
		return nil, err
	}
	pal := paletteFor(dark)
	drawRaster(t.Raster, layout, pal)

	provider := t.VectorFormat
	if provider == nil {
		provider = chart.SVG
	}
	if err := drawVector(t.Vector, provider, layout, pal); err != nil {
		return layout, err
	}
	return layout, nil
}

// Layout is the geometry of a drawn chart, used for pointer hit-testing.
type Layout struct {
	Width   int
	Height  int
	Margins Margins
	// Plot is the heat-map area in target pixel coordinates (origin at 0,0).
	Plot  image.Rectangle
	Start time.Time
	End   time.Time
	model *analysis.ChartModel
}

func newLayout(width, height int, m Margins, model *analysis.ChartModel) (*Layout, error) {
	// image.Rect would swap inverted corners, so check the raw edges
	if width-m.Right <= m.Left || height-m.Bottom <= m.Top {
		return nil, ErrPlotTooSmall
	}
	plot := image.Rect(m.Left, m.Top, width-m.Right, height-m.Bottom)
	start, end, _ := model.TimeDomain()
	if !end.After(start) {
		end = start.Add(time.Second)
	}
	return &Layout{Width: width, Height: height, Margins: m, Plot: plot, Start: start, End: end, model: model}, nil
}

// Model returns the model the layout was drawn from.
func (l *Layout) Model() *analysis.ChartModel { return l.model }

// XFor maps a time onto the plot's x axis.
func (l *Layout) XFor(t time.Time) float64 {
	span := l.End.Sub(l.Start).Seconds()
	frac := t.Sub(l.Start).Seconds() / span
	return float64(l.Plot.Min.X) + frac*float64(l.Plot.Dx())
}

// TimeAt maps an x pixel back to a time.
func (l *Layout) TimeAt(x int) time.Time {
	frac := float64(x-l.Plot.Min.X) / float64(l.Plot.Dx())
	return l.Start.Add(time.Duration(frac * float64(l.End.Sub(l.Start))))
}

func (l *Layout) buckets() int { return len(l.model.BucketLabels) }

// bandHeight is the pixel height of one bucket row.
func (l *Layout) bandHeight() float64 {
	n := l.buckets()
	if n == 0 {
		return float64(l.Plot.Dy())
	}
	return float64(l.Plot.Dy()) / float64(n)
}

// bandRect returns rows bottom-up: bucket 0 is the fastest and drawn lowest.
func (l *Layout) bandRect(bucket int, x0, x1 int) image.Rectangle {
	bh := l.bandHeight()
	yBottom := float64(l.Plot.Max.Y) - float64(bucket)*bh
	yTop := yBottom - bh
	return image.Rect(x0, int(yTop+0.5), x1, int(yBottom+0.5))
}

// HitTest maps a pixel to the snapshot and bucket under it.
func (l *Layout) HitTest(pt image.Point) (*analysis.Cursor, bool) {
	if l == nil || l.buckets() == 0 || !pt.In(l.Plot) {
		return nil, false
	}
	at := l.TimeAt(pt.X)
	bucket := int(float64(l.Plot.Max.Y-pt.Y) / l.bandHeight())
	if bucket >= l.buckets() {
		bucket = l.buckets() - 1
	}
	if bucket < 0 {
		bucket = 0
	}
	for li, ls := range l.model.Lifespans {
		if at.Before(ls.Start) || at.After(ls.End) {
			continue
		}
		for si, s := range ls.Snaps {
			if at.Before(s.Start) || at.After(s.End) {
				continue
			}
			c := &analysis.Cursor{
				Time:      at,
				Lifespan:  li,
				Snap:      si,
				Bucket:    bucket,
				Label:     l.model.BucketLabels[bucket],
				Players:   s.Players,
				AvgTickMs: s.AvgTickMs,
			}
			if bucket < len(s.Weights) {
				c.Share = s.Weights[bucket]
			}
			return c, true
		}
	}
	return nil, false
}

// Pointer reports the cursor under pt (or nil) through the model's SetCursor.
func (l *Layout) Pointer(pt image.Point) *analysis.Cursor {
	c, ok := l.HitTest(pt)
	if !ok {
		c = nil
	}
	if l != nil && l.model != nil && l.model.SetCursor != nil {
		l.model.SetCursor(c)
	}
	return c
}
