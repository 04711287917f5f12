package render

import (
	"io"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
)

// A zero drawing.Color means "use the default" to go-chart, so transparency
// needs a non-zero color with zero alpha.
var transparent = drawing.Color{R: 255, G: 255, B: 255, A: 0}

// drawVector renders the overlay lines with go-chart. All axes are hidden and the
// padding equals the margins, so the chart canvas lines up with l.Plot.
func drawVector(w io.Writer, provider chart.RendererProvider, l *Layout, pal palette) error {
	maxPlayers, maxTick := 0.0, 0.0
	for _, ls := range l.model.Lifespans {
		for _, s := range ls.Snaps {
			maxPlayers = math.Max(maxPlayers, float64(s.Players))
			if s.TickCount > 0 {
				maxTick = math.Max(maxTick, s.AvgTickMs)
			}
		}
	}
	if maxPlayers <= 0 {
		maxPlayers = 1
	}
	if maxTick <= 0 {
		maxTick = 1
	}

	playersStyle := chart.Style{StrokeColor: pal.players, StrokeWidth: 1.5}
	tickStyle := chart.Style{StrokeColor: pal.tick, StrokeWidth: 1, StrokeDashArray: []float64{4, 3}}

	var series []chart.Series
	for _, ls := range l.model.Lifespans {
		var pt, tt []time.Time
		var py, ty []float64
		for _, s := range ls.Snaps {
			mid := s.Start.Add(s.End.Sub(s.Start) / 2)
			pt = append(pt, mid)
			py = append(py, float64(s.Players))
			if s.TickCount > 0 {
				tt = append(tt, mid)
				ty = append(ty, s.AvgTickMs)
			}
		}
		if len(pt) > 0 {
			pt, py = padSingle(pt, py)
			series = append(series, chart.TimeSeries{Name: "players", XValues: pt, YValues: py, Style: playersStyle})
		}
		if len(tt) > 0 {
			tt, ty = padSingle(tt, ty)
			series = append(series, chart.TimeSeries{Name: "avg tick", XValues: tt, YValues: ty, Style: tickStyle, YAxis: chart.YAxisSecondary})
		}
	}

	hidden := chart.Style{Hidden: true}
	ch := chart.Chart{
		Width:  l.Width,
		Height: l.Height,
		Background: chart.Style{
			FillColor: transparent,
			Padding: chart.Box{
				Top:    l.Plot.Min.Y,
				Left:   l.Plot.Min.X,
				Right:  l.Width - l.Plot.Max.X,
				Bottom: l.Height - l.Plot.Max.Y,
				IsSet:  true,
			},
		},
		Canvas: chart.Style{FillColor: transparent},
		XAxis: chart.XAxis{
			Style: hidden,
			Range: &chart.ContinuousRange{Min: chart.TimeToFloat64(l.Start), Max: chart.TimeToFloat64(l.End)},
		},
		YAxis:          chart.YAxis{Style: hidden, Range: &chart.ContinuousRange{Min: 0, Max: maxPlayers * 1.15}},
		YAxisSecondary: chart.YAxis{Style: hidden, Range: &chart.ContinuousRange{Min: 0, Max: maxTick * 1.15}},
		Series:         series,
	}
	return ch.Render(provider, w)
}

// padSingle turns a lone point into a short flat segment; go-chart needs two.
func padSingle(xs []time.Time, ys []float64) ([]time.Time, []float64) {
	if len(xs) != 1 {
		return xs, ys
	}
	return []time.Time{xs[0], xs[0].Add(time.Second)}, []float64{ys[0], ys[0]}
}

// SeriesSummary counts the overlay lines of a model: one player line per lifespan
// with snapshots and one tick time line per lifespan that recorded ticks.
func SeriesSummary(m *analysis.ChartModel) (players, ticks int) {
	if m == nil {
		return 0, 0
	}
	for _, ls := range m.Lifespans {
		hasTick := false
		for _, s := range ls.Snaps {
			if s.TickCount > 0 {
				hasTick = true
				break
			}
		}
		if len(ls.Snaps) > 0 {
			players++
		}
		if hasTick {
			ticks++
		}
	}
	return players, ticks
}
