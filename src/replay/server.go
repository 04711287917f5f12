// Package replay serves recorded or synthetic perf logs over the perfChartData
// endpoint so the client, the CLI and the viewer can be exercised without a game
// server. It mirrors the endpoint's failure answers and can inject them on demand.
package replay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// Store holds the response served for each thread.
type Store struct {
	mu   sync.RWMutex
	data map[types.ThreadName]*types.PerfChartData
}

func NewStore() *Store {
	return &Store{data: map[types.ThreadName]*types.PerfChartData{}}
}

// SyntheticStore fills every thread with generated data ending at end.
func SyntheticStore(end time.Time, seed int64) *Store {
	s := NewStore()
	for _, th := range types.Threads() {
		opts := DefaultSyntheticOptions(th)
		opts.End = end
		opts.Seed = seed
		s.Set(th, Synthetic(opts))
	}
	return s
}

func (s *Store) Set(thread types.ThreadName, d *types.PerfChartData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[thread] = d
}

func (s *Store) Get(thread types.ThreadName) (*types.PerfChartData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[thread]
	return d, ok
}

// LoadFile reads a recorded response (as saved by perfmon fetch --save) for thread.
func (s *Store) LoadFile(thread types.ThreadName, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	d, err := monitor.DecodePerfChartData(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.Set(thread, d)
	return nil
}

type serverMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   *prometheus.GaugeVec
	failures *prometheus.CounterVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfreplay_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perfreplay_http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perfreplay_http_requests_active",
			Help: "Number of active HTTP requests",
		}, []string{"method", "endpoint"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfreplay_fail_reason_total",
			Help: "Failure answers sent, by fail_reason",
		}, []string{"fail_reason"}),
	}
	reg.MustRegister(m.requests, m.duration, m.active, m.failures)
	return m
}

// Server routes perfChartData requests to a Store.
type Server struct {
	store   *Store
	router  *mux.Router
	metrics *serverMetrics
	// MinSpan is the data span below which not_enough_data is answered.
	MinSpan time.Duration
}

// NewServer builds the router. reg receives the HTTP metrics and is served on
// /metrics when it is also a Gatherer.
func NewServer(store *Store, reg prometheus.Registerer) *Server {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{store: store, router: mux.NewRouter(), metrics: newServerMetrics(reg), MinSpan: types.MinDataCollection}
	s.router.Use(s.metricsMiddleware)
	s.router.HandleFunc("/perfChartData/{thread}/", s.handlePerfChartData).Methods(http.MethodGet)
	s.router.HandleFunc("/perfChartData/{thread}", s.handlePerfChartData).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if g, ok := reg.(prometheus.Gatherer); ok {
		s.router.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// handlePerfChartData answers like the real endpoint. Query parameters for tests:
// fail_reason=<code> answers that failure, error=<text> a generic error,
// status=<code> a bare HTTP status and delay=<duration> sleeps first.
func (s *Server) handlePerfChartData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if d := q.Get("delay"); d != "" {
		if dur, err := time.ParseDuration(d); err == nil && dur > 0 {
			select {
			case <-time.After(dur):
			case <-r.Context().Done():
				return
			}
		}
	}
	if st := q.Get("status"); st != "" {
		code, err := strconv.Atoi(st)
		if err != nil || code < 400 || code > 599 {
			http.Error(w, "bad status parameter", http.StatusBadRequest)
			return
		}
		http.Error(w, http.StatusText(code), code)
		return
	}
	if reason := q.Get("fail_reason"); reason != "" {
		s.fail(w, reason)
		return
	}
	if msg := q.Get("error"); msg != "" {
		writeJSON(w, http.StatusInternalServerError, types.FailResponse{Error: msg})
		return
	}

	thread, err := types.ParseThreadName(mux.Vars(r)["thread"])
	if err != nil {
		s.fail(w, monitor.CodeInvalidThreadName)
		return
	}
	d, ok := s.store.Get(thread)
	if !ok || d == nil {
		s.fail(w, monitor.CodeDataUnavailable)
		return
	}
	if d.DataSpan() < s.MinSpan {
		s.fail(w, monitor.CodeNotEnoughData)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// fail mirrors the backend: failures are answered with 200 and a fail_reason body.
func (s *Server) fail(w http.ResponseWriter, reason string) {
	s.metrics.failures.WithLabelValues(reason).Inc()
	writeJSON(w, http.StatusOK, types.FailResponse{FailReason: reason})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitor.Warnf("[replay] encode response: %v", err)
	}
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		s.metrics.active.WithLabelValues(r.Method, endpoint).Inc()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.metrics.active.WithLabelValues(r.Method, endpoint).Dec()
		s.metrics.duration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		s.metrics.requests.WithLabelValues(r.Method, endpoint, strconv.Itoa(rw.status)).Inc()
		monitor.Debugf("[replay] %s %s -> %d (%s)", r.Method, r.URL.RequestURI(), rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
