// perfreplay serves recorded or synthetic perf logs on /perfChartData/{thread}/ so
// perfmon and perfviewer can be run without a game server.
//
// Example:
//
//	perfreplay -addr :40120 -file svMain=./saved/svMain.json
//	curl 'http://127.0.0.1:40120/perfChartData/svSync/?fail_reason=not_enough_data'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/replay"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// fileFlags collects repeated -file thread=path arguments.
type fileFlags map[types.ThreadName]string

func (f fileFlags) String() string {
	parts := make([]string, 0, len(f))
	for th, p := range f {
		parts = append(parts, string(th)+"="+p)
	}
	return strings.Join(parts, ",")
}

func (f fileFlags) Set(s string) error {
	th, path, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return fmt.Errorf("want thread=path, got %q", s)
	}
	name, err := types.ParseThreadName(th)
	if err != nil {
		return err
	}
	f[name] = path
	return nil
}

func main() {
	var (
		addr     string
		seed     int64
		minSpan  time.Duration
		refresh  time.Duration
		logLevel string
	)
	files := fileFlags{}
	flag.StringVar(&addr, "addr", ":40120", "listen address")
	flag.Int64Var(&seed, "seed", 1, "seed of the synthetic perf logs")
	flag.DurationVar(&minSpan, "min-span", types.MinDataCollection, "data span below which not_enough_data is answered")
	flag.DurationVar(&refresh, "refresh", 0, "regenerate synthetic logs ending at now on this interval (0 = never)")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	flag.Var(files, "file", "recorded response for a thread, thread=path (repeatable)")
	flag.Parse()
	monitor.SetLogLevel(logLevel)

	store := replay.SyntheticStore(time.Now(), seed)
	for th, path := range files {
		if err := store.LoadFile(th, path); err != nil {
			fmt.Fprintln(os.Stderr, "perfreplay:", err)
			os.Exit(1)
		}
		monitor.Infof("[perfreplay] %s from %s", th, path)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := replay.NewServer(store, reg)
	srv.MinSpan = minSpan

	httpSrv := &http.Server{
		Handler:      srv,
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if refresh > 0 {
		go regenerate(ctx, store, files, seed, refresh)
	}

	go func() {
		monitor.Infof("[perfreplay] listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitor.Errorf("[perfreplay] listen: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	monitor.Infof("[perfreplay] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		monitor.Errorf("[perfreplay] forced shutdown: %v", err)
	}
}

// regenerate keeps the synthetic threads current; recorded threads are left alone.
func regenerate(ctx context.Context, store *replay.Store, recorded fileFlags, seed int64, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			for _, th := range types.Threads() {
				if _, ok := recorded[th]; ok {
					continue
				}
				opts := replay.DefaultSyntheticOptions(th)
				opts.End = now
				opts.Seed = seed
				store.Set(th, replay.Synthetic(opts))
			}
			monitor.Debugf("[perfreplay] regenerated synthetic logs ending %s", now.Format(time.RFC3339))
		}
	}
}
