package replay

import (
	"math"
	"math/rand"
	"time"

	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// DefaultBoundaries mirror the tick-time buckets a game server reports, in seconds.
var DefaultBoundaries = types.Boundaries{
	0.001, 0.002, 0.004, 0.006, 0.008, 0.010, 0.015, 0.020, 0.030, 0.050, 0.070, 0.100, 0.150, 0.250,
	types.InfBoundary,
}

// SyntheticOptions shape a generated perf log.
type SyntheticOptions struct {
	Thread types.ThreadName
	// End is the timestamp of the last snapshot; zero means now.
	End time.Time
	// Lifespans is the number of server runs; each ends with a close entry except the last.
	Lifespans int
	// Snaps is the number of data snapshots per lifespan.
	Snaps      int
	MaxPlayers int
	Seed       int64
}

func DefaultSyntheticOptions(thread types.ThreadName) SyntheticOptions {
	return SyntheticOptions{Thread: thread, Lifespans: 2, Snaps: 36, MaxPlayers: 48, Seed: 1}
}

// ticksPerSecond of each server thread.
var ticksPerSecond = map[types.ThreadName]float64{
	types.ThreadMain:    20,
	types.ThreadSync:    30,
	types.ThreadNetwork: 60,
}

// Synthetic builds a deterministic perf log for opts.Seed.
func Synthetic(opts SyntheticOptions) *types.PerfChartData {
	if opts.Lifespans <= 0 {
		opts.Lifespans = 1
	}
	if opts.Snaps <= 0 {
		opts.Snaps = 1
	}
	if opts.End.IsZero() {
		opts.End = time.Now()
	}
	if !opts.Thread.Valid() {
		opts.Thread = types.DefaultThread
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	interval := types.SnapInterval
	// runs are separated by one interval of downtime
	steps := (opts.Lifespans-1)*(opts.Snaps+1) + opts.Snaps
	start := opts.End.Add(-time.Duration(steps) * interval)

	var log []types.PerfSnap
	at := start
	for run := 0; run < opts.Lifespans; run++ {
		log = append(log, types.PerfSnap{TS: at.UnixMilli(), Type: types.SnapSvBoot, Duration: 20 + rng.Float64()*20})
		for i := 0; i < opts.Snaps; i++ {
			at = at.Add(interval)
			phase := float64(i) / float64(opts.Snaps)
			players := int(math.Round(float64(opts.MaxPlayers) * (0.3 + 0.7*math.Sin(math.Pi*phase))))
			load := float64(players) / float64(max(opts.MaxPlayers, 1))
			fxs := 400 + 600*load + rng.Float64()*50
			node := 80 + 40*load
			log = append(log, types.PerfSnap{
				TS:         at.UnixMilli(),
				Type:       types.SnapData,
				Players:    players,
				FxsMemory:  &fxs,
				NodeMemory: &node,
				Perf:       syntheticPerf(rng, opts.Thread, load, interval),
			})
		}
		if run < opts.Lifespans-1 {
			at = at.Add(interval / 2)
			log = append(log, types.PerfSnap{TS: at.UnixMilli(), Type: types.SnapSvClose, Reason: "scheduled restart"})
			at = at.Add(interval / 2)
		}
	}
	return &types.PerfChartData{Boundaries: DefaultBoundaries, ThreadPerfLog: log}
}

// syntheticPerf spreads one interval of ticks over the buckets; higher load
// shifts the distribution towards slower buckets.
func syntheticPerf(rng *rand.Rand, thread types.ThreadName, load float64, interval time.Duration) *types.ThreadPerf {
	tps := ticksPerSecond[thread]
	total := int(tps * interval.Seconds())
	centre := 1 + load*4 + rng.Float64()
	n := len(DefaultBoundaries)
	weights := make([]float64, n)
	wsum := 0.0
	for i := range weights {
		d := float64(i) - centre
		weights[i] = math.Exp(-d * d / 2)
		wsum += weights[i]
	}
	perf := &types.ThreadPerf{Buckets: make([]int, n)}
	for i, w := range weights {
		c := int(float64(total) * w / wsum)
		perf.Buckets[i] = c
		perf.Count += c
		upper := float64(DefaultBoundaries[i])
		if DefaultBoundaries[i].IsInf() {
			upper = float64(DefaultBoundaries[i-1]) * 1.5
		}
		perf.Sum += float64(c) * upper * 0.75
	}
	return perf
}
