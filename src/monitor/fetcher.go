package monitor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// RawSource yields raw success bodies for a thread. *Client implements it.
type RawSource interface {
	FetchRaw(ctx context.Context, thread types.ThreadName) ([]byte, error)
}

// FetcherOptions tunes caching and retry behaviour.
type FetcherOptions struct {
	// TTL of cached responses; 0 means 1 minute.
	TTL time.Duration
	// RetryMaxElapsed bounds the total retry time for transient errors; 0 disables retries.
	RetryMaxElapsed time.Duration
	RetryInitial    time.Duration
	RetryMaxWait    time.Duration
	// Shared is an optional second-level cache (Redis).
	Shared  SharedStore
	Metrics *Metrics
}

// Fetcher is the keyed fetch layer used by the presentation code: cache, request
// de-duplication and retry of transient failures. Backend-declared failures are
// surfaced immediately.
type Fetcher struct {
	src   RawSource
	opts  FetcherOptions
	cache *responseCache
	group singleflight.Group
}

// NewFetcher wraps src.
func NewFetcher(src RawSource, opts FetcherOptions) *Fetcher {
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 500 * time.Millisecond
	}
	if opts.RetryMaxWait <= 0 {
		opts.RetryMaxWait = 5 * time.Second
	}
	return &Fetcher{src: src, opts: opts, cache: newResponseCache(opts.TTL)}
}

// FetchPerfChart returns the chart data of thread, from cache when fresh.
func (f *Fetcher) FetchPerfChart(ctx context.Context, thread types.ThreadName) (*types.PerfChartData, error) {
	if d, ok := f.cache.get(thread); ok {
		f.hit("memory")
		Debugf("[fetch] %s served from memory cache", thread)
		return d, nil
	}
	v, err, shared := f.group.Do(string(thread), func() (interface{}, error) {
		return f.load(ctx, thread)
	})
	if shared {
		Debugf("[fetch] %s joined an in-flight request", thread)
	}
	if err != nil {
		return nil, err
	}
	return v.(*types.PerfChartData), nil
}

// Invalidate drops cached entries for thread so the next fetch hits the backend.
func (f *Fetcher) Invalidate(ctx context.Context, thread types.ThreadName) {
	f.cache.delete(thread)
	if f.opts.Shared != nil {
		if err := f.opts.Shared.Delete(ctx, string(thread)); err != nil {
			Warnf("[fetch] shared cache delete %s: %v", thread, err)
		}
	}
}

func (f *Fetcher) load(ctx context.Context, thread types.ThreadName) (*types.PerfChartData, error) {
	if f.opts.Shared != nil {
		raw, ok, err := f.opts.Shared.Get(ctx, string(thread))
		if err != nil {
			Warnf("[fetch] shared cache get %s: %v", thread, err)
		} else if ok {
			if d, derr := DecodePerfChartData(raw); derr == nil {
				f.hit("shared")
				f.cache.set(thread, d)
				return d, nil
			} else {
				Warnf("[fetch] discarding undecodable shared entry for %s: %v", thread, derr)
			}
		}
	}

	start := time.Now()
	raw, err := f.fetchWithRetry(ctx, thread)
	if f.opts.Metrics != nil {
		f.opts.Metrics.FetchDuration.WithLabelValues(string(thread)).Observe(time.Since(start).Seconds())
		f.opts.Metrics.FetchTotal.WithLabelValues(string(thread), outcomeOf(err)).Inc()
	}
	if err != nil {
		WithFields(logrus.Fields{"thread": thread, "outcome": outcomeOf(err)}).Warnf("[fetch] failed: %v", err)
		return nil, err
	}
	d, err := DecodePerfChartData(raw)
	if err != nil {
		return nil, err
	}
	f.cache.set(thread, d)
	if f.opts.Shared != nil {
		if err := f.opts.Shared.Set(ctx, string(thread), raw, f.opts.TTL); err != nil {
			Warnf("[fetch] shared cache set %s: %v", thread, err)
		}
	}
	WithFields(logrus.Fields{
		"thread":  thread,
		"entries": len(d.ThreadPerfLog),
		"took":    time.Since(start).Round(time.Millisecond),
	}).Debug("[fetch] loaded perf chart data")
	return d, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, thread types.ThreadName) ([]byte, error) {
	var raw []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := f.src.FetchRaw(ctx, thread)
		if err == nil {
			raw = b
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		Debugf("[fetch] %s attempt %d failed, will retry: %v", thread, attempt, err)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(f.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return raw, nil
}

func (f *Fetcher) newBackOff() backoff.BackOff {
	if f.opts.RetryMaxElapsed <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.RetryInitial
	b.MaxInterval = f.opts.RetryMaxWait
	b.MaxElapsedTime = f.opts.RetryMaxElapsed
	return b
}

func (f *Fetcher) hit(level string) {
	if f.opts.Metrics != nil {
		f.opts.Metrics.CacheHits.WithLabelValues(level).Inc()
	}
}
