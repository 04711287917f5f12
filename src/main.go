// perfmon entrypoint.
//
// Commands:
//  1. fetch: load the perf chart data of one or all server threads and print per-lifespan summaries;
//     optionally save the raw responses (replayable with perfreplay) and a JSON summary report.
//  2. render: draw the chart of one thread to a flattened PNG plus the SVG overlay, written to the
//     export directory or uploaded to the configured bucket.
//  3. watch: re-fetch on an interval and print one line per refresh; --metrics-addr serves the
//     fetch metrics for Prometheus while it runs.
//
// Design notes:
// - Settings come from an optional YAML file and PERFMON_* variables (see src/config); flags win.
// - Responses go through monitor.Fetcher, so a configured Redis is shared with other perfmon processes.
// - Backend failures are printed with the same texts the viewer shows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/iafilius/ThreadPerfMonitor/src/config"
	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/perfcard"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// app carries the resolved settings and collaborators of one invocation.
type app struct {
	cfgFile  string
	logLevel string
	baseURL  string
	token    string

	// metricsAddr is set by watch --metrics-addr.
	metricsAddr string

	cfg      *config.Config
	registry *prometheus.Registry
	fetcher  *monitor.Fetcher
	closers  []func() error
}

func newRootCmd() *cobra.Command { return newRootCmdFor(&app{}) }

func newRootCmdFor(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "perfmon",
		Short: "perfmon - thread performance charts of a game server",
		Long: `perfmon reads the per-thread tick time histograms a game server records every
five minutes and turns them into lifespan summaries and heat-map charts.

Example:
  perfmon fetch --thread all
  perfmon render --thread svNetwork --out ./charts
  perfmon watch --interval 1m`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&a.baseURL, "base-url", "", "backend base URL, e.g. http://127.0.0.1:40120")
	root.PersistentFlags().StringVar(&a.token, "token", "", "bearer token for the backend")

	root.AddCommand(newFetchCmd(a), newRenderCmd(a), newWatchCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.Backend.BaseURL = a.baseURL
	}
	if flags.Changed("token") {
		cfg.Backend.Token = a.token
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	monitor.SetLogLevel(cfg.LogLevel)
	a.cfg = cfg

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector())
	fetcher, closeFetcher := cfg.OpenFetcher(cmd.Context(), "perfmon:", monitor.NewMetrics(a.registry))
	a.fetcher = fetcher
	a.closers = append(a.closers, closeFetcher)
	monitor.Debugf("[perfmon] backend %s", cfg.Backend.BaseURL)
	return nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			monitor.Debugf("[perfmon] close: %v", err)
		}
	}
	a.closers = nil
}

// threadArgs expands "all" into every thread.
func threadArgs(s string) ([]types.ThreadName, error) {
	if s == "all" {
		return types.Threads(), nil
	}
	th, err := types.ParseThreadName(s)
	if err != nil {
		return nil, err
	}
	return []types.ThreadName{th}, nil
}

// describe turns a fetch error into the user-facing text.
func describe(thread types.ThreadName, err error) error {
	txt := perfcard.DescribeError(err)
	if txt.Note != "" {
		return fmt.Errorf("%s: %s (%s)", thread, txt.Message, txt.Note)
	}
	return fmt.Errorf("%s: %s", thread, txt.Message)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "perfmon:", err)
		os.Exit(1)
	}
}
