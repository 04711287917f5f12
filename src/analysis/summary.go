package analysis

import (
	"math"
	"time"
)

// LifespanSummary captures aggregate metrics for one lifespan.
type LifespanSummary struct {
	Index      int       `json:"index"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Snapshots  int       `json:"snapshots"`
	AvgPlayers float64   `json:"avg_players"`
	MaxPlayers int       `json:"max_players"`
	// AvgTickMs is the tick-count weighted average tick time.
	AvgTickMs float64 `json:"avg_tick_ms"`
	// MedianLabel is the most frequent per-snapshot median bucket.
	MedianLabel string `json:"median_bucket"`
	// SlowShare is the average share of time spent in the two slowest buckets.
	SlowShare float64 `json:"slow_share"`
}

// Duration returns the covered span.
func (s LifespanSummary) Duration() time.Duration { return s.End.Sub(s.Start) }

// Summarize reduces a model to one summary row per lifespan.
func Summarize(m *ChartModel) []LifespanSummary {
	if m == nil {
		return nil
	}
	out := make([]LifespanSummary, 0, len(m.Lifespans))
	for i, l := range m.Lifespans {
		s := LifespanSummary{Index: i, Start: l.Start, End: l.End, Snapshots: len(l.Snaps)}
		if len(l.Snaps) == 0 {
			out = append(out, s)
			continue
		}
		var playersSum, tickMsSum, slowSum float64
		var ticks int
		medianVotes := map[int]int{}
		for _, sn := range l.Snaps {
			playersSum += float64(sn.Players)
			if sn.Players > s.MaxPlayers {
				s.MaxPlayers = sn.Players
			}
			tickMsSum += sn.AvgTickMs * float64(sn.TickCount)
			ticks += sn.TickCount
			if sn.MedianBucket >= 0 {
				medianVotes[sn.MedianBucket]++
			}
			n := len(sn.Weights)
			for b := n - 2; b < n; b++ {
				if b >= 0 {
					slowSum += sn.Weights[b]
				}
			}
		}
		s.AvgPlayers = playersSum / float64(len(l.Snaps))
		if ticks > 0 {
			s.AvgTickMs = tickMsSum / float64(ticks)
		}
		s.SlowShare = slowSum / float64(len(l.Snaps))
		best, bestVotes := -1, 0
		for b, v := range medianVotes {
			if v > bestVotes || (v == bestVotes && b < best) {
				best, bestVotes = b, v
			}
		}
		if best >= 0 && best < len(m.BucketLabels) {
			s.MedianLabel = m.BucketLabels[best]
		}
		if math.IsNaN(s.SlowShare) {
			s.SlowShare = 0
		}
		out = append(out, s)
	}
	return out
}
