package main

import (
	"image"
	_ "image/png" // register PNG decoder
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/replay"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

func replayFetcher(t *testing.T, store *replay.Store) *monitor.Fetcher {
	t.Helper()
	ts := httptest.NewServer(replay.NewServer(store, prometheus.NewRegistry()))
	t.Cleanup(ts.Close)
	cfg := monitor.DefaultClientConfig(ts.URL)
	cfg.Timeout = 5 * time.Second
	return monitor.NewFetcher(monitor.NewClient(cfg), monitor.FetcherOptions{})
}

// TestScreenshotsWritesEveryThreadAndTheme checks file names and that all images share the requested size.
func TestScreenshotsWritesEveryThreadAndTheme(t *testing.T) {
	store := replay.SyntheticStore(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 3)
	// one thread without data renders its error text instead
	store.Set(types.ThreadSync, replay.Synthetic(replay.SyntheticOptions{Thread: types.ThreadSync, Snaps: 2}))

	out := t.TempDir()
	files, err := RunScreenshotsMode(replayFetcher(t, store), out, 480, 200)
	if err != nil {
		t.Fatalf("screenshots: %v", err)
	}
	if len(files) != 2*len(types.Threads()) {
		t.Fatalf("expected %d files, got %d: %v", 2*len(types.Threads()), len(files), files)
	}
	for _, name := range []string{"perf_svMain_dark.png", "perf_svMain_light.png", "perf_svSync_dark.png", "perf_svNetwork_light.png"} {
		f, err := os.Open(filepath.Join(out, name))
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if cfg.Width != 480 || cfg.Height != 200 {
			t.Fatalf("%s is %dx%d, want 480x200", name, cfg.Width, cfg.Height)
		}
	}
}

func TestScreenshotsRejectsZeroSize(t *testing.T) {
	if _, err := RunScreenshotsMode(nil, t.TempDir(), 0, 200); err == nil {
		t.Fatal("expected an error for a zero width")
	}
}
