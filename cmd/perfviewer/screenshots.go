package main

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/perfcard"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// RunScreenshotsMode renders the card of every thread in both themes and writes them
// as PNGs under outDir. It runs headlessly without creating a UI window. Failed
// fetches are rendered as their error text, like the viewer shows them.
func RunScreenshotsMode(f perfcard.Fetcher, outDir string, width, height int) ([]string, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("screenshot size must be positive, got %dx%d", width, height)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create out dir: %w", err)
	}
	var written []string
	for _, th := range types.Threads() {
		for _, dark := range []bool{true, false} {
			name := fmt.Sprintf("perf_%s_%s.png", th, themeName(dark))
			card := perfcard.New(f, perfcard.Options{Thread: th, Dark: dark})
			card.Resize(width, height)
			card.Start()
			card.Wait()
			v := card.View()
			raster, overlay, err := chartLayers(card, v)
			card.Close()
			if err != nil {
				return written, fmt.Errorf("%s: %w", name, err)
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, flatten(raster, overlay)); err != nil {
				return written, fmt.Errorf("encode %s: %w", name, err)
			}
			path := filepath.Join(outDir, name)
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return written, fmt.Errorf("write %s: %w", name, err)
			}
			monitor.Infof("[screenshots] %s (%s)", path, v.State)
			written = append(written, path)
		}
	}
	return written, nil
}

func themeName(dark bool) string {
	if dark {
		return "dark"
	}
	return "light"
}
