package analysis

import (
	"sync"
	"time"

	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// Cursor describes the chart cell under the pointer.
type Cursor struct {
	Time     time.Time
	Lifespan int
	Snap     int
	Bucket   int
	Label    string
	// Share is the fraction of time spent in Bucket during the snapshot.
	Share     float64
	Players   int
	AvgTickMs float64
}

// ChartModel is the derived view model handed to the drawing routine.
type ChartModel struct {
	Thread         types.ThreadName
	Dark           bool
	Boundaries     types.Boundaries
	BucketLabels   []string
	EstimatedTimes []float64
	Lifespans      []Lifespan
	Skipped        int
	// SetCursor receives hover updates from the chart surface. May be nil.
	SetCursor func(*Cursor)
}

// TimeDomain returns the first start and last end over all lifespans.
func (m *ChartModel) TimeDomain() (time.Time, time.Time, bool) {
	if m == nil || len(m.Lifespans) == 0 {
		return time.Time{}, time.Time{}, false
	}
	start := m.Lifespans[0].Start
	end := m.Lifespans[0].End
	for _, l := range m.Lifespans[1:] {
		if l.Start.Before(start) {
			start = l.Start
		}
		if l.End.After(end) {
			end = l.End
		}
	}
	return start, end, true
}

// BuildChartModel derives a model from a response. It is pure apart from logging.
func BuildChartModel(data *types.PerfChartData, thread types.ThreadName, dark bool, setCursor func(*Cursor)) *ChartModel {
	if data == nil {
		return nil
	}
	lifespans, skipped := SplitLifespans(data.ThreadPerfLog, data.Boundaries, DefaultShapeOptions())
	return &ChartModel{
		Thread:         thread,
		Dark:           dark,
		Boundaries:     data.Boundaries,
		BucketLabels:   BucketLabels(data.Boundaries),
		EstimatedTimes: EstimatedBucketTimes(data.Boundaries),
		Lifespans:      lifespans,
		Skipped:        skipped,
		SetCursor:      setCursor,
	}
}

type memoKey struct {
	data   *types.PerfChartData
	thread types.ThreadName
	dark   bool
}

// ChartModelMemo recomputes the model only when the response identity, the thread
// or the dark flag change. Otherwise the previous *ChartModel is returned.
type ChartModelMemo struct {
	mu     sync.Mutex
	valid  bool
	key    memoKey
	model  *ChartModel
	builds int
}

// Get returns the memoised model for the key. setCursor is not part of the key.
func (m *ChartModelMemo) Get(data *types.PerfChartData, thread types.ThreadName, dark bool, setCursor func(*Cursor)) *ChartModel {
	k := memoKey{data: data, thread: thread, dark: dark}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.key == k {
		return m.model
	}
	m.key = k
	m.valid = true
	m.model = BuildChartModel(data, thread, dark, setCursor)
	m.builds++
	return m.model
}

// Builds reports how many times the model was recomputed.
func (m *ChartModelMemo) Builds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builds
}
