package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// fakeSource replays queued results per call and counts calls per thread.
type fakeSource struct {
	mu      sync.Mutex
	calls   map[types.ThreadName]int
	errs    []error
	release chan struct{}
}

func newFakeSource(errs ...error) *fakeSource {
	return &fakeSource{calls: map[types.ThreadName]int{}, errs: errs}
}

func (s *fakeSource) FetchRaw(ctx context.Context, thread types.ThreadName) ([]byte, error) {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[thread]++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []byte(sampleBody), nil
}

func (s *fakeSource) count(thread types.ThreadName) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[thread]
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memStore) Set(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestFetcherCachesByThread(t *testing.T) {
	src := newFakeSource()
	metrics := NewMetrics(prometheus.NewRegistry())
	f := NewFetcher(src, FetcherOptions{TTL: time.Minute, Metrics: metrics})
	ctx := context.Background()

	a, err := f.FetchPerfChart(ctx, types.ThreadMain)
	require.NoError(t, err)
	b, err := f.FetchPerfChart(ctx, types.ThreadMain)
	require.NoError(t, err)
	assert.Same(t, a, b, "cached response must keep its identity")
	assert.Equal(t, 1, src.count(types.ThreadMain))

	_, err = f.FetchPerfChart(ctx, types.ThreadSync)
	require.NoError(t, err)
	assert.Equal(t, 1, src.count(types.ThreadSync))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHits.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FetchTotal.WithLabelValues("svMain", "ok")))

	f.Invalidate(ctx, types.ThreadMain)
	c, err := f.FetchPerfChart(ctx, types.ThreadMain)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, src.count(types.ThreadMain))
}

func TestFetcherRetriesTransientErrors(t *testing.T) {
	src := newFakeSource(&HTTPError{StatusCode: 503}, errors.New("read: connection reset by peer"), nil)
	f := NewFetcher(src, FetcherOptions{
		RetryMaxElapsed: 2 * time.Second,
		RetryInitial:    time.Millisecond,
		RetryMaxWait:    5 * time.Millisecond,
	})
	d, err := f.FetchPerfChart(context.Background(), types.ThreadMain)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 3, src.count(types.ThreadMain))
}

func TestFetcherDoesNotRetryBackendErrors(t *testing.T) {
	src := newFakeSource(&BackendAPIError{Code: CodeNotEnoughData})
	metrics := NewMetrics(nil)
	f := NewFetcher(src, FetcherOptions{
		RetryMaxElapsed: 2 * time.Second,
		RetryInitial:    time.Millisecond,
		Metrics:         metrics,
	})
	_, err := f.FetchPerfChart(context.Background(), types.ThreadMain)
	be, ok := AsBackendAPIError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, CodeNotEnoughData, be.Code)
	assert.Equal(t, 1, src.count(types.ThreadMain))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FetchTotal.WithLabelValues("svMain", CodeNotEnoughData)))

	// errors are not cached
	_, err = f.FetchPerfChart(context.Background(), types.ThreadMain)
	require.NoError(t, err)
	assert.Equal(t, 2, src.count(types.ThreadMain))
}

func TestFetcherWithoutRetryBudgetFailsFast(t *testing.T) {
	src := newFakeSource(&HTTPError{StatusCode: 500})
	f := NewFetcher(src, FetcherOptions{})
	_, err := f.FetchPerfChart(context.Background(), types.ThreadSync)
	require.Error(t, err)
	assert.Equal(t, 1, src.count(types.ThreadSync))
}

func TestFetcherDeduplicatesConcurrentRequests(t *testing.T) {
	src := newFakeSource()
	src.release = make(chan struct{})
	f := NewFetcher(src, FetcherOptions{})

	var wg sync.WaitGroup
	var okCount int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.FetchPerfChart(context.Background(), types.ThreadNetwork); err == nil {
				atomic.AddInt32(&okCount, 1)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()
	assert.Equal(t, int32(5), okCount)
	assert.Equal(t, 1, src.count(types.ThreadNetwork))
}

func TestFetcherSharedStore(t *testing.T) {
	store := &memStore{data: map[string][]byte{}}
	metrics := NewMetrics(prometheus.NewRegistry())
	first := NewFetcher(newFakeSource(), FetcherOptions{Shared: store})
	_, err := first.FetchPerfChart(context.Background(), types.ThreadMain)
	require.NoError(t, err)
	require.Contains(t, store.data, "svMain")

	// a second process shares the entry without touching the backend
	src := newFakeSource()
	second := NewFetcher(src, FetcherOptions{Shared: store, Metrics: metrics})
	d, err := second.FetchPerfChart(context.Background(), types.ThreadMain)
	require.NoError(t, err)
	require.Len(t, d.ThreadPerfLog, 1)
	assert.Equal(t, 0, src.count(types.ThreadMain))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHits.WithLabelValues("shared")))

	second.Invalidate(context.Background(), types.ThreadMain)
	assert.NotContains(t, store.data, "svMain")
}
