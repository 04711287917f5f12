// Package types holds the wire types of the perfChartData endpoint shared by the
// fetch layer, the shaper, the replay server and the front ends.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ThreadName identifies one of the server threads that report performance counters.
type ThreadName string

const (
	ThreadMain    ThreadName = "svMain"
	ThreadSync    ThreadName = "svSync"
	ThreadNetwork ThreadName = "svNetwork"

	// DefaultThread is preselected by every front end.
	DefaultThread = ThreadMain
)

// SnapInterval is the sampling period of the server perf log.
const SnapInterval = 5 * time.Minute

// MinDataCollection is how much history the server needs before it serves a chart.
const MinDataCollection = 30 * time.Minute

// Threads returns the selectable threads in display order.
func Threads() []ThreadName {
	return []ThreadName{ThreadMain, ThreadSync, ThreadNetwork}
}

// ThreadStrings is Threads as plain strings (selector options).
func ThreadStrings() []string {
	ts := Threads()
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

// ParseThreadName validates s against the fixed thread set.
func ParseThreadName(s string) (ThreadName, error) {
	for _, t := range Threads() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid thread name %q", s)
}

// Valid reports whether t is one of the fixed threads.
func (t ThreadName) Valid() bool {
	_, err := ParseThreadName(string(t))
	return err == nil
}

// Boundary is the upper edge of a histogram bucket in seconds. The last bucket of
// a set is open ended and encoded as the string "+Inf".
type Boundary float64

// InfBoundary marks the open-ended last bucket.
var InfBoundary = Boundary(math.Inf(1))

const infLiteral = "+Inf"

// IsInf reports whether b is the open-ended bucket edge.
func (b Boundary) IsInf() bool { return math.IsInf(float64(b), 1) }

// Seconds returns the edge as float seconds (+Inf for the open bucket).
func (b Boundary) Seconds() float64 { return float64(b) }

func (b Boundary) MarshalJSON() ([]byte, error) {
	if b.IsInf() {
		return []byte(`"` + infLiteral + `"`), nil
	}
	return []byte(strconv.FormatFloat(float64(b), 'g', -1, 64)), nil
}

func (b *Boundary) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != infLiteral {
			return fmt.Errorf("invalid boundary %q", s)
		}
		*b = InfBoundary
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid boundary %s: %w", string(data), err)
	}
	*b = Boundary(f)
	return nil
}

// Boundaries is the ordered bucket edge list of a perf histogram.
type Boundaries []Boundary

// Validate checks that edges are positive, strictly increasing and that only the
// last one may be +Inf.
func (bs Boundaries) Validate() error {
	if len(bs) == 0 {
		return fmt.Errorf("no bucket boundaries")
	}
	prev := 0.0
	for i, b := range bs {
		if b.IsInf() {
			if i != len(bs)-1 {
				return fmt.Errorf("boundary %d: +Inf must be the last bucket", i)
			}
			continue
		}
		v := b.Seconds()
		if math.IsNaN(v) || v <= 0 {
			return fmt.Errorf("boundary %d: non-positive value %v", i, v)
		}
		if v <= prev {
			return fmt.Errorf("boundary %d: %v not greater than %v", i, v, prev)
		}
		prev = v
	}
	return nil
}

// SnapType discriminates threadPerfLog entries.
type SnapType string

const (
	SnapData    SnapType = "data"
	SnapSvBoot  SnapType = "svBoot"
	SnapSvClose SnapType = "svClose"
)

// ThreadPerf holds the tick counters of one sampling interval. Buckets are
// per-interval counts, not cumulative.
type ThreadPerf struct {
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Buckets []int   `json:"buckets"`
}

// PerfSnap is one entry of the server's thread perf log.
type PerfSnap struct {
	TS         int64       `json:"ts"`
	Type       SnapType    `json:"type"`
	Players    int         `json:"players,omitempty"`
	FxsMemory  *float64    `json:"fxsMemory,omitempty"`
	NodeMemory *float64    `json:"nodeMemory,omitempty"`
	Perf       *ThreadPerf `json:"perf,omitempty"`
	// Duration is the boot time in seconds (svBoot only).
	Duration float64 `json:"duration,omitempty"`
	// Reason is the close reason (svClose only).
	Reason string `json:"reason,omitempty"`
}

// Time returns the entry timestamp.
func (s PerfSnap) Time() time.Time { return time.UnixMilli(s.TS) }

// PerfChartData is the success body of GET /perfChartData/:thread/.
type PerfChartData struct {
	Boundaries    Boundaries `json:"boundaries"`
	ThreadPerfLog []PerfSnap `json:"threadPerfLog"`
}

// DataSpan returns the time covered by data snapshots (first to last).
func (d *PerfChartData) DataSpan() time.Duration {
	if d == nil {
		return 0
	}
	var first, last int64
	seen := false
	for _, s := range d.ThreadPerfLog {
		if s.Type != SnapData {
			continue
		}
		if !seen || s.TS < first {
			first = s.TS
		}
		if !seen || s.TS > last {
			last = s.TS
		}
		seen = true
	}
	if !seen {
		return 0
	}
	return time.Duration(last-first) * time.Millisecond
}

// FailResponse is the failure body of the endpoint.
type FailResponse struct {
	FailReason string `json:"fail_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}
