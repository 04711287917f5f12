package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
	"github.com/iafilius/ThreadPerfMonitor/src/export"
	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/render"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

func newFetchCmd(a *app) *cobra.Command {
	var thread, saveDir, reportPath string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch perf chart data and print lifespan summaries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			threads, err := threadArgs(thread)
			if err != nil {
				return err
			}
			report := summaryReport{GeneratedAt: time.Now().UTC(), BaseURL: a.cfg.Backend.BaseURL}
			var firstErr error
			for _, th := range threads {
				data, err := a.fetcher.FetchPerfChart(cmd.Context(), th)
				if err != nil {
					err = describe(th, err)
					report.Errors = append(report.Errors, err.Error())
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if saveDir != "" {
					if err := saveResponse(saveDir, th, data); err != nil {
						return err
					}
				}
				m := analysis.BuildChartModel(data, th, false, nil)
				sums := analysis.Summarize(m)
				printSummaries(cmd.OutOrStdout(), th, m, sums)
				report.Threads = append(report.Threads, threadReport{Thread: th, Skipped: m.Skipped, Lifespans: sums})
			}
			if reportPath != "" {
				if err := writeSummaryJSON(reportPath, report); err != nil {
					return err
				}
			}
			// every requested thread failed
			if len(report.Threads) == 0 && firstErr != nil {
				return firstErr
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&thread, "thread", "t", string(types.DefaultThread), "thread (svMain|svSync|svNetwork|all)")
	cmd.Flags().StringVar(&saveDir, "save", "", "directory to save the raw responses into (<thread>.json)")
	cmd.Flags().StringVar(&reportPath, "report-json", "", "path to write a JSON summary report")
	return cmd
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		thread string
		outDir string
		upload bool
		width  int
		height int
		dark   bool
		light  bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the chart of a thread to PNG and SVG",
		RunE: func(cmd *cobra.Command, _ []string) error {
			th, err := types.ParseThreadName(thread)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("width") {
				width = a.cfg.Chart.Width
			}
			if !cmd.Flags().Changed("height") {
				height = a.cfg.Chart.Height
			}
			isDark := a.cfg.Chart.Dark
			if cmd.Flags().Changed("dark") {
				isDark = dark
			}
			if light {
				isDark = false
			}

			data, err := a.fetcher.FetchPerfChart(cmd.Context(), th)
			if err != nil {
				return describe(th, err)
			}
			model := analysis.BuildChartModel(data, th, isDark, nil)
			arts, err := renderArtifacts(model, width, height)
			if err != nil {
				return fmt.Errorf("%s: %w", th, err)
			}

			var sink export.Sink = export.DirSink{Dir: a.cfg.ExportDir}
			if cmd.Flags().Changed("out") {
				sink = export.DirSink{Dir: outDir}
			}
			if upload {
				if sink, err = export.FromConfig(cmd.Context(), a.cfg); err != nil {
					return err
				}
			}
			now := time.Now()
			for _, art := range arts {
				where, err := sink.Put(cmd.Context(), export.ObjectName(th, now, art.ext), art.contentType, art.data)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), where)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&thread, "thread", "t", string(types.DefaultThread), "thread (svMain|svSync|svNetwork)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default export.dir)")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload to the configured object storage instead")
	cmd.Flags().IntVar(&width, "width", 960, "chart width in pixels")
	cmd.Flags().IntVar(&height, "height", 360, "chart height in pixels")
	cmd.Flags().BoolVar(&dark, "dark", true, "dark palette")
	cmd.Flags().BoolVar(&light, "light", false, "light palette (overrides --dark)")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		thread   string
		interval time.Duration
		count    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-fetch periodically and print the latest lifespan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			th, err := types.ParseThreadName(thread)
			if err != nil {
				return err
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			if a.metricsAddr != "" {
				srv, addr, err := serveMetrics(a.metricsAddr, a.registry)
				if err != nil {
					return err
				}
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(ctx)
				}()
				fmt.Fprintf(cmd.ErrOrStderr(), "metrics on http://%s/metrics\n", addr)
			}
			return watch(cmd.Context(), a.fetcher, th, interval, count, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&thread, "thread", "t", string(types.DefaultThread), "thread (svMain|svSync|svNetwork)")
	cmd.Flags().DurationVar(&interval, "interval", types.SnapInterval, "refresh interval")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many refreshes (0 = until interrupted)")
	cmd.Flags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve fetch metrics on this address, e.g. :9120")
	return cmd
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// serveMetrics listens on addr and serves g until the returned server is shut down.
func serveMetrics(addr string, g prometheus.Gatherer) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listen: %w", err)
	}
	srv := &http.Server{Handler: metricsHandler(g), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitor.Warnf("[perfmon] metrics server: %v", err)
		}
	}()
	return srv, ln.Addr(), nil
}

// watch prints one line per refresh. Errors are printed and do not stop the loop.
func watch(ctx context.Context, f *monitor.Fetcher, th types.ThreadName, interval time.Duration, count int, w io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for n := 1; ; n++ {
		f.Invalidate(ctx, th)
		data, err := f.FetchPerfChart(ctx, th)
		switch {
		case err != nil:
			fmt.Fprintf(w, "%s %s\n", time.Now().Format("15:04:05"), describe(th, err))
		default:
			sums := analysis.Summarize(analysis.BuildChartModel(data, th, false, nil))
			fmt.Fprintf(w, "%s %s\n", time.Now().Format("15:04:05"), watchLine(th, sums))
		}
		if count > 0 && n >= count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func watchLine(th types.ThreadName, sums []analysis.LifespanSummary) string {
	if len(sums) == 0 {
		return fmt.Sprintf("%s: no data snapshots", th)
	}
	s := sums[len(sums)-1]
	return fmt.Sprintf("%s: up %s, %d snaps, players avg %.1f max %d, tick avg %.2f ms, median %s, slow %.1f%%",
		th, s.Duration().Round(time.Minute), s.Snapshots, s.AvgPlayers, s.MaxPlayers, s.AvgTickMs, s.MedianLabel, s.SlowShare*100)
}

func printSummaries(w io.Writer, th types.ThreadName, m *analysis.ChartModel, sums []analysis.LifespanSummary) {
	fmt.Fprintf(w, "== %s: %d lifespan(s)", th, len(sums))
	if m != nil && m.Skipped > 0 {
		fmt.Fprintf(w, ", %d snapshot(s) skipped", m.Skipped)
	}
	fmt.Fprintln(w)
	if len(sums) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTART\tDURATION\tSNAPS\tPLAYERS(AVG/MAX)\tTICK AVG\tMEDIAN\tSLOW")
	for _, s := range sums {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.1f/%d\t%.2f ms\t%s\t%.1f%%\n",
			s.Index+1, s.Start.Format("2006-01-02 15:04"), s.Duration().Round(time.Minute), s.Snapshots,
			s.AvgPlayers, s.MaxPlayers, s.AvgTickMs, s.MedianLabel, s.SlowShare*100)
	}
	_ = tw.Flush()
}

type artifact struct {
	ext         string
	contentType string
	data        []byte
}

// renderArtifacts draws the flattened PNG and the SVG overlay of model.
func renderArtifacts(model *analysis.ChartModel, width, height int) ([]artifact, error) {
	img, _, err := render.RenderPNG(width, height, render.DefaultMargins, model.Dark, model)
	if err != nil {
		return nil, err
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, err
	}
	var svgBuf bytes.Buffer
	if _, err := render.DrawPerfChart(render.Targets{Vector: &svgBuf, Raster: image.NewRGBA(img.Bounds())}, width, height, render.DefaultMargins, model.Dark, model); err != nil {
		return nil, err
	}
	return []artifact{
		{ext: "png", contentType: "image/png", data: pngBuf.Bytes()},
		{ext: "svg", contentType: "image/svg+xml", data: svgBuf.Bytes()},
	}, nil
}

func saveResponse(dir string, th types.ThreadName, data *types.PerfChartData) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, string(th)+".json"), b, 0o644)
}

type threadReport struct {
	Thread    types.ThreadName           `json:"thread"`
	Skipped   int                        `json:"skipped_snapshots"`
	Lifespans []analysis.LifespanSummary `json:"lifespans"`
}

type summaryReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	BaseURL     string         `json:"base_url"`
	Threads     []threadReport `json:"threads"`
	// Errors is always present, possibly empty.
	Errors []string `json:"errors"`
}

// writeSummaryJSON writes the report, creating parent directories.
func writeSummaryJSON(path string, r summaryReport) error {
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
