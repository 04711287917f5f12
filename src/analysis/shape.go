// Package analysis turns raw perf chart responses into chart-ready aggregates:
// bucket labels, time-weighted histograms per snapshot and server lifespans.
//
// Design notes:
//   - Bucket counts arrive per sampling interval (not cumulative). Each bucket is
//     weighted by an estimated tick duration so the histogram shows where the
//     thread spent its time, not how many ticks fell into each bucket.
//   - A lifespan is a run of data snapshots of one server process. svBoot/svClose
//     entries and long gaps split lifespans; the chart leaves the gaps blank.
package analysis

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// BucketLabel formats one boundary for display.
func BucketLabel(b types.Boundary) string {
	if b.IsInf() {
		return "+Inf"
	}
	v := b.Seconds()
	// the unit follows the rounded value, so 0.99995 reads "1 s"
	if roundTo(v*1000, 1) < 1000 {
		return trimFloat(v*1000) + " ms"
	}
	return trimFloat(v) + " s"
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// trimFloat prints v with one decimal and no trailing zero. A positive v that
// would print as 0 gets up to six decimals instead.
func trimFloat(v float64) string {
	r := roundTo(v, 1)
	for d := 2; r == 0 && v != 0 && d <= 6; d++ {
		r = roundTo(v, d)
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// BucketLabels formats every boundary in order.
func BucketLabels(bs types.Boundaries) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = BucketLabel(b)
	}
	return out
}

// EstimatedBucketTimes returns the estimated duration in seconds of a tick that fell
// into each bucket: the midpoint of the bucket, or 1.5x the lower edge for the
// open-ended last bucket.
func EstimatedBucketTimes(bs types.Boundaries) []float64 {
	out := make([]float64, len(bs))
	lower := 0.0
	for i, b := range bs {
		if b.IsInf() {
			if lower <= 0 {
				out[i] = 1
			} else {
				out[i] = lower * 1.5
			}
			continue
		}
		upper := b.Seconds()
		out[i] = (lower + upper) / 2
		lower = upper
	}
	return out
}

// TimeWeightedHistogram returns the share of time spent in each bucket. The result
// sums to 1, or is all zeros when no time was recorded.
func TimeWeightedHistogram(buckets []int, est []float64) []float64 {
	out := make([]float64, len(buckets))
	total := 0.0
	for i, c := range buckets {
		if i >= len(est) || c <= 0 {
			continue
		}
		w := float64(c) * est[i]
		out[i] = w
		total += w
	}
	if total <= 0 {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// medianBucket returns the first bucket where the cumulative tick count reaches half
// of the total, or -1 when there are no ticks.
func medianBucket(buckets []int) int {
	total := 0
	for _, c := range buckets {
		if c > 0 {
			total += c
		}
	}
	if total == 0 {
		return -1
	}
	half := float64(total) / 2
	acc := 0
	for i, c := range buckets {
		if c > 0 {
			acc += c
		}
		if float64(acc) >= half {
			return i
		}
	}
	return len(buckets) - 1
}

// ShapedSnap is one data snapshot ready for drawing.
type ShapedSnap struct {
	Start      time.Time
	End        time.Time
	Players    int
	FxsMemory  float64 // MB, NaN when unknown
	NodeMemory float64 // MB, NaN when unknown
	TickCount  int
	TickRate   float64 // ticks per second over the interval
	AvgTickMs  float64
	// Weights is the time-weighted histogram, one share per bucket.
	Weights      []float64
	MedianBucket int
}

// Lifespan is a contiguous run of snapshots from one server process.
type Lifespan struct {
	Start time.Time
	End   time.Time
	Snaps []ShapedSnap
}

// ShapeOptions tunes lifespan splitting.
type ShapeOptions struct {
	SnapInterval time.Duration
	// MaxGap is the largest distance between consecutive snapshots of one lifespan.
	MaxGap time.Duration
}

// DefaultShapeOptions match the server's 5 minute sampling.
func DefaultShapeOptions() ShapeOptions {
	return ShapeOptions{SnapInterval: types.SnapInterval, MaxGap: 3 * types.SnapInterval}
}

// SplitLifespans orders the log by timestamp and shapes data snapshots into
// lifespans. It returns the lifespans and the number of skipped data snapshots.
func SplitLifespans(log []types.PerfSnap, bs types.Boundaries, opts ShapeOptions) ([]Lifespan, int) {
	if opts.SnapInterval <= 0 {
		opts.SnapInterval = types.SnapInterval
	}
	if opts.MaxGap <= 0 {
		opts.MaxGap = 3 * opts.SnapInterval
	}
	est := EstimatedBucketTimes(bs)
	entries := make([]types.PerfSnap, len(log))
	copy(entries, log)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TS < entries[j].TS })

	var (
		out      []Lifespan
		cur      *Lifespan
		prevTS   time.Time
		bootTS   time.Time
		skipped  int
		haveBoot bool
	)
	closeCurrent := func() {
		if cur != nil && len(cur.Snaps) > 0 {
			cur.Start = cur.Snaps[0].Start
			cur.End = cur.Snaps[len(cur.Snaps)-1].End
			out = append(out, *cur)
		}
		cur = nil
	}

	for _, e := range entries {
		ts := e.Time()
		switch e.Type {
		case types.SnapSvBoot:
			closeCurrent()
			bootTS = ts
			haveBoot = true
			continue
		case types.SnapSvClose:
			closeCurrent()
			haveBoot = false
			continue
		case types.SnapData:
		default:
			monitor.Debugf("[shape] ignoring log entry of type %q", e.Type)
			continue
		}
		if e.Perf == nil || len(e.Perf.Buckets) != len(bs) {
			skipped++
			continue
		}
		if cur != nil && ts.Sub(prevTS) > opts.MaxGap {
			closeCurrent()
			haveBoot = false
		}
		start := ts.Add(-opts.SnapInterval)
		if cur == nil {
			cur = &Lifespan{}
			if haveBoot && bootTS.After(start) && bootTS.Before(ts) {
				start = bootTS
			}
		} else {
			start = prevTS
		}
		cur.Snaps = append(cur.Snaps, shapeSnap(e, start, ts, est))
		prevTS = ts
	}
	closeCurrent()
	if skipped > 0 {
		monitor.Warnf("[shape] skipped %d snapshots without matching buckets", skipped)
	}
	return out, skipped
}

func shapeSnap(e types.PerfSnap, start, end time.Time, est []float64) ShapedSnap {
	s := ShapedSnap{
		Start:        start,
		End:          end,
		Players:      e.Players,
		FxsMemory:    math.NaN(),
		NodeMemory:   math.NaN(),
		TickCount:    e.Perf.Count,
		Weights:      TimeWeightedHistogram(e.Perf.Buckets, est),
		MedianBucket: medianBucket(e.Perf.Buckets),
	}
	if e.FxsMemory != nil {
		s.FxsMemory = *e.FxsMemory
	}
	if e.NodeMemory != nil {
		s.NodeMemory = *e.NodeMemory
	}
	if secs := end.Sub(start).Seconds(); secs > 0 {
		s.TickRate = float64(e.Perf.Count) / secs
	}
	if e.Perf.Count > 0 {
		s.AvgTickMs = e.Perf.Sum / float64(e.Perf.Count) * 1000
	}
	return s
}
