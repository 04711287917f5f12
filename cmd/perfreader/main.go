package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

func main() {
	var file, thread string
	var asJSON bool
	flag.StringVar(&file, "file", "svMain.json", "Path to a saved perfChartData response")
	flag.StringVar(&thread, "thread", "", "Thread the response belongs to (default: file name without .json)")
	flag.BoolVar(&asJSON, "json", false, "Print the summaries as JSON")
	flag.Parse()
	if err := run(os.Stdout, file, thread, asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, file, thread string, asJSON bool) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	data, err := monitor.DecodePerfChartData(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	th := threadFor(file, thread)
	m := analysis.BuildChartModel(data, th, false, nil)
	sums := analysis.Summarize(m)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sums)
	}
	fmt.Fprintf(w, "Thread: %s\n", th)
	fmt.Fprintf(w, "Log entries: %d (%d skipped)\n", len(data.ThreadPerfLog), m.Skipped)
	fmt.Fprintf(w, "Data span: %s\n", data.DataSpan().Round(time.Minute))
	fmt.Fprintf(w, "Lifespans: %d\n", len(sums))
	for _, s := range sums {
		fmt.Fprintf(w, "  #%d %s +%s: %d snaps, players %.1f/%d, tick %.2f ms, median %s\n",
			s.Index+1, s.Start.Format(time.RFC3339), s.Duration().Round(time.Minute), s.Snapshots,
			s.AvgPlayers, s.MaxPlayers, s.AvgTickMs, s.MedianLabel)
	}
	return nil
}

// threadFor prefers the explicit flag, then a thread-named file, then svMain.
func threadFor(file, flagValue string) types.ThreadName {
	if th, err := types.ParseThreadName(flagValue); err == nil {
		return th
	}
	base := strings.TrimSuffix(filepath.Base(file), ".json")
	if th, err := types.ParseThreadName(base); err == nil {
		return th
	}
	return types.DefaultThread
}
