package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the Fetcher.
type Metrics struct {
	FetchTotal    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	CacheHits     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfchart_fetch_total",
				Help: "Total number of perf chart fetches by thread and outcome",
			},
			[]string{"thread", "outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perfchart_fetch_duration_seconds",
				Help:    "Backend fetch duration in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"thread"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfchart_cache_hits_total",
				Help: "Perf chart responses served from cache by level",
			},
			[]string{"level"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.FetchTotal, m.FetchDuration, m.CacheHits)
	}
	return m
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if be, ok := AsBackendAPIError(err); ok {
		return be.Code
	}
	return "error"
}
