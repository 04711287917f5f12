package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/iafilius/ThreadPerfMonitor/cmd/perfviewer/uihelpers"
	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
	"github.com/iafilius/ThreadPerfMonitor/src/config"
	"github.com/iafilius/ThreadPerfMonitor/src/export"
	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/perfcard"
	"github.com/iafilius/ThreadPerfMonitor/src/render"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

type uiState struct {
	app    fyne.App
	window fyne.Window
	cfg    *config.Config
	card   *perfcard.Card
	queue  *cardQueue
	resize *perfcard.Debouncer

	threadSel    *widget.Select
	darkChk      *widget.Check
	crosshairChk *widget.Check
	progress     *widget.ProgressBarInfinite
	errMsg       *widget.Label
	errNote      *widget.Label
	errBox       *fyne.Container
	status       *widget.Label
	top          *fyne.Container
	chartImg     *canvas.Image
	overlayImg   *canvas.Image
	crosshair    *crosshairOverlay

	dark             bool
	crosshairEnabled bool

	mu      sync.Mutex
	shown   viewKey
	updated time.Time
}

// viewKey is the part of a View that changes what is drawn; cursor moves only
// update the crosshair label.
type viewKey struct {
	state         perfcard.State
	thread        types.ThreadName
	width, height int
	dark          bool
	model         *analysis.ChartModel
	err           perfcard.ErrorText
}

func keyOf(v perfcard.View) viewKey {
	k := viewKey{state: v.State, thread: v.Thread, width: v.Width, height: v.Height, dark: v.Dark, model: v.Model}
	if v.Error != nil {
		k.err = *v.Error
	}
	return k
}

// variantTheme pins the default theme to one variant.
type variantTheme struct{ variant fyne.ThemeVariant }

var (
	darkTheme  = &variantTheme{variant: theme.VariantDark}
	lightTheme = &variantTheme{variant: theme.VariantLight}
)

func (t *variantTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	return theme.DefaultTheme().Color(name, t.variant)
}
func (t *variantTheme) Font(style fyne.TextStyle) fyne.Resource { return theme.DefaultTheme().Font(style) }
func (t *variantTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}
func (t *variantTheme) Size(name fyne.ThemeSizeName) float32 { return theme.DefaultTheme().Size(name) }

func themeFor(dark bool) fyne.Theme {
	if dark {
		return darkTheme
	}
	return lightTheme
}

func main() {
	var (
		cfgFile     string
		baseURL     string
		threadFlag  string
		logLevel    string
		screenshots bool
		outDir      string
		shotW       int
		shotH       int
	)
	flag.StringVar(&cfgFile, "config", "", "config file (YAML)")
	flag.StringVar(&baseURL, "base-url", "", "backend base URL (overrides config)")
	flag.StringVar(&threadFlag, "thread", "", "initial thread (svMain|svSync|svNetwork)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")
	flag.BoolVar(&screenshots, "screenshots", false, "render every thread to PNG headlessly and exit")
	flag.StringVar(&outDir, "screenshots-out", "docs/images", "output directory for -screenshots")
	flag.IntVar(&shotW, "width", 0, "screenshot width (default chart.width)")
	flag.IntVar(&shotH, "height", 0, "screenshot height (default chart.height)")
	flag.Parse()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "perfviewer:", err)
		os.Exit(1)
	}
	if baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "perfviewer:", err)
		os.Exit(1)
	}
	monitor.SetLogLevel(cfg.LogLevel)

	fetcher, closeFetcher := cfg.OpenFetcher(context.Background(), "perfviewer:", nil)
	defer closeFetcher()

	if screenshots {
		if shotW <= 0 {
			shotW = cfg.Chart.Width
		}
		if shotH <= 0 {
			shotH = cfg.Chart.Height
		}
		files, err := RunScreenshotsMode(fetcher, outDir, shotW, shotH)
		if err != nil {
			fmt.Fprintln(os.Stderr, "screenshots:", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %d screenshot(s) to %s\n", len(files), outDir)
		return
	}

	a := app.NewWithID("com.threadperf.viewer")
	w := a.NewWindow("Thread Performance")
	w.Resize(fyne.NewSize(1100, 520))

	state := &uiState{app: a, window: w, cfg: cfg}
	prefs := a.Preferences()
	state.dark = prefs.BoolWithFallback("dark", cfg.Chart.Dark)
	state.crosshairEnabled = prefs.BoolWithFallback("crosshair", true)
	thread := types.DefaultThread
	if th, err := types.ParseThreadName(prefs.StringWithFallback("thread", string(thread))); err == nil {
		thread = th
	}
	if threadFlag != "" {
		th, err := types.ParseThreadName(threadFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "perfviewer:", err)
			os.Exit(1)
		}
		thread = th
	}
	a.Settings().SetTheme(themeFor(state.dark))

	state.card = perfcard.New(fetcher, perfcard.Options{Thread: thread, Dark: state.dark, FetchTimeout: cfg.Backend.RetryMaxElapsed + cfg.Backend.Timeout})
	state.queue = newCardQueue(64)
	buildUI(state)
	buildMenus(state)

	state.resize = perfcard.NewDebouncer(250*time.Millisecond, state.card.Resize)
	state.card.Resize(chartArea(state))
	state.card.OnChange(func(v perfcard.View) {
		if !state.markShown(v) {
			return
		}
		fyne.Do(func() { applyView(state, state.card.View()) })
	})
	applyView(state, state.card.View())
	state.markShown(state.card.View())

	// Re-measure the chart area when the window is resized or minimised.
	done := make(chan struct{})
	w.SetOnClosed(func() {
		savePrefs(state)
		close(done)
		state.resize.Stop()
		state.queue.Close()
		state.card.Close()
	})
	a.Lifecycle().SetOnStarted(func() {
		state.queue.Do(state.card.Start)
		go func() {
			prevW, prevH := chartArea(state)
			t := time.NewTicker(300 * time.Millisecond)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-t.C:
					cw, ch := chartArea(state)
					if cw != prevW || ch != prevH {
						prevW, prevH = cw, ch
						state.resize.Notify(cw, ch)
					}
				}
			}
		}()
	})
	w.ShowAndRun()
}

func buildUI(state *uiState) {
	state.threadSel = widget.NewSelect(types.ThreadStrings(), nil)
	state.threadSel.Selected = string(state.card.Thread())
	state.threadSel.OnChanged = func(s string) {
		if err := chooseThread(state.queue, state.card, s); err != nil {
			monitor.Warnf("[viewer] select %s: %v", s, err)
			return
		}
		state.app.Preferences().SetString("thread", s)
	}
	state.darkChk = widget.NewCheck("Dark", func(b bool) {
		state.dark = b
		state.app.Settings().SetTheme(themeFor(b))
		savePrefs(state)
		state.queue.Do(func() { state.card.SetDarkMode(b) })
	})
	state.darkChk.Checked = state.dark
	state.crosshairChk = widget.NewCheck("Crosshair", func(b bool) {
		state.crosshairEnabled = b
		savePrefs(state)
		if state.crosshair != nil {
			state.crosshair.setEnabled(b)
		}
	})
	state.crosshairChk.Checked = state.crosshairEnabled
	reload := widget.NewButtonWithIcon("", theme.ViewRefreshIcon(), func() { state.queue.Do(state.card.Reload) })

	state.progress = widget.NewProgressBarInfinite()
	state.progress.Hide()
	state.errMsg = widget.NewLabel("")
	state.errMsg.Importance = widget.DangerImportance
	state.errMsg.Wrapping = fyne.TextWrapWord
	state.errNote = widget.NewLabel("")
	state.errNote.Wrapping = fyne.TextWrapWord
	state.errNote.TextStyle = fyne.TextStyle{Italic: true}
	state.errBox = container.NewVBox(state.errMsg, state.errNote)
	state.errBox.Hide()
	state.status = widget.NewLabel("")

	title := widget.NewLabelWithStyle("Thread performance", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	state.top = container.NewVBox(
		container.NewHBox(widget.NewIcon(theme.ComputerIcon()), title, state.threadSel, reload, state.darkChk, state.crosshairChk),
		state.progress,
		state.errBox,
	)

	state.chartImg = canvas.NewImageFromImage(render.Placeholder(10, 10, state.dark))
	state.chartImg.FillMode = canvas.ImageFillContain
	state.overlayImg = canvas.NewImageFromImage(nil)
	state.overlayImg.FillMode = canvas.ImageFillContain
	state.crosshair = newCrosshairOverlay(state)
	chartStack := container.NewStack(state.chartImg, state.overlayImg, state.crosshair)

	state.window.SetContent(container.NewBorder(state.top, state.status, nil, nil, chartStack))
}

// chartArea measures the space left for the chart below the controls.
func chartArea(state *uiState) (int, int) {
	if state == nil || state.window == nil || state.window.Canvas() == nil {
		return 0, 0
	}
	sz := state.window.Canvas().Size()
	availH := sz.Height
	if state.top != nil {
		availH -= state.top.MinSize().Height
	}
	if state.status != nil {
		availH -= state.status.MinSize().Height
	}
	return uihelpers.ComputeChartDimensions(sz.Width, availH)
}

// markShown records v and reports whether it differs from what is on screen.
func (s *uiState) markShown(v perfcard.View) bool {
	k := keyOf(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if k == s.shown {
		return false
	}
	if v.State == perfcard.StateReady && v.Model != s.shown.model {
		s.updated = time.Now()
	}
	s.shown = k
	return true
}

// applyView updates the widgets for v. Must run on the UI goroutine.
func applyView(state *uiState, v perfcard.View) {
	if v.State == perfcard.StateLoading {
		state.progress.Show()
		state.progress.Start()
	} else {
		state.progress.Stop()
		state.progress.Hide()
	}
	if v.State == perfcard.StateError && v.Error != nil {
		state.errMsg.SetText(v.Error.Message)
		state.errNote.SetText(v.Error.Note)
		if v.Error.Note == "" {
			state.errNote.Hide()
		} else {
			state.errNote.Show()
		}
		state.errBox.Show()
	} else {
		state.errBox.Hide()
	}
	if state.threadSel.Selected != string(v.Thread) {
		state.threadSel.Selected = string(v.Thread)
		state.threadSel.Refresh()
	}

	if v.State == perfcard.StateHidden {
		return
	}
	raster, overlay, err := chartLayers(state.card, v)
	if err != nil {
		monitor.Warnf("[viewer] draw %s: %v", v.Thread, err)
		raster, overlay = render.Placeholder(v.Width, v.Height, v.Dark, "Failed to draw the chart.", err.Error()), nil
	}
	state.chartImg.Image = raster
	state.chartImg.SetMinSize(fyne.NewSize(float32(v.Width), float32(v.Height)))
	state.chartImg.Refresh()
	state.overlayImg.Image = overlay
	state.overlayImg.Refresh()
	state.crosshair.Refresh()

	state.mu.Lock()
	updated := state.updated
	state.mu.Unlock()
	state.status.SetText(statusFor(v, updated))
}

func statusFor(v perfcard.View, updated time.Time) string {
	if v.State != perfcard.StateReady || v.Model == nil {
		return ""
	}
	lifespans, withTicks := render.SeriesSummary(v.Model)
	return uihelpers.StatusText(updated, lifespans, withTicks, v.Model.Skipped)
}

func buildMenus(state *uiState) {
	if state == nil || state.window == nil || state.app == nil {
		return
	}
	reload := func() { state.queue.Do(state.card.Reload) }
	items := []*fyne.MenuItem{
		fyne.NewMenuItem("Reload", reload),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Export Chart PNG…", func() { exportChartPNG(state) }),
		fyne.NewMenuItem("Export Overlay SVG…", func() { exportOverlaySVG(state) }),
	}
	if state.cfg != nil && state.cfg.Minio.Endpoint != "" {
		items = append(items, fyne.NewMenuItem("Upload Chart", func() { uploadChart(state) }))
	}
	items = append(items, fyne.NewMenuItemSeparator(), fyne.NewMenuItem("Quit", func() { state.window.Close() }))

	var threadItems []*fyne.MenuItem
	for _, th := range types.Threads() {
		th := th
		threadItems = append(threadItems, fyne.NewMenuItem(string(th), func() { state.threadSel.SetSelected(string(th)) }))
	}
	state.window.SetMainMenu(fyne.NewMainMenu(fyne.NewMenu("File", items...), fyne.NewMenu("Thread", threadItems...)))

	canv := state.window.Canvas()
	if canv != nil {
		for _, mod := range []fyne.KeyModifier{fyne.KeyModifierSuper, fyne.KeyModifierControl} {
			canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyR, Modifier: mod}, func(fyne.Shortcut) { reload() })
			canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyE, Modifier: mod}, func(fyne.Shortcut) { exportChartPNG(state) })
			canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyW, Modifier: mod}, func(fyne.Shortcut) { state.window.Close() })
		}
	}
}

func savePrefs(state *uiState) {
	if state == nil || state.app == nil {
		return
	}
	prefs := state.app.Preferences()
	prefs.SetBool("dark", state.dark)
	prefs.SetBool("crosshair", state.crosshairEnabled)
	if state.card != nil {
		prefs.SetString("thread", string(state.card.Thread()))
	}
}

// export PNG
func exportChartPNG(state *uiState) {
	img := flatten(state.chartImg.Image, state.overlayImg.Image)
	if img == nil || state.card.View().State != perfcard.StateReady {
		dialog.ShowInformation("Export", "No chart to export.", state.window)
		return
	}
	fs := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil || wc == nil {
			return
		}
		defer wc.Close()
		if err := png.Encode(wc, img); err != nil {
			dialog.ShowError(err, state.window)
		}
	}, state.window)
	fs.SetFileName(export.ObjectName(state.card.Thread(), time.Now(), "png"))
	fs.Show()
}

func overlaySVG(state *uiState) ([]byte, error) {
	v := state.card.View()
	if v.State != perfcard.StateReady || !v.Drawable {
		return nil, nil
	}
	var svg bytes.Buffer
	layout, err := state.card.Draw(render.Targets{Vector: &svg, Raster: image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))})
	if err != nil || layout == nil {
		return nil, err
	}
	return svg.Bytes(), nil
}

func exportOverlaySVG(state *uiState) {
	data, err := overlaySVG(state)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if data == nil {
		dialog.ShowInformation("Export", "No chart to export.", state.window)
		return
	}
	fs := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil || wc == nil {
			return
		}
		defer wc.Close()
		if _, err := wc.Write(data); err != nil {
			dialog.ShowError(err, state.window)
		}
	}, state.window)
	fs.SetFileName(export.ObjectName(state.card.Thread(), time.Now(), "svg"))
	fs.Show()
}

// uploadChart puts the flattened PNG into the configured bucket.
func uploadChart(state *uiState) {
	img := flatten(state.chartImg.Image, state.overlayImg.Image)
	if img == nil || state.card.View().State != perfcard.StateReady {
		dialog.ShowInformation("Upload", "No chart to upload.", state.window)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	thread := state.card.Thread()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sink, err := export.FromConfig(ctx, state.cfg)
		var where string
		if err == nil {
			where, err = sink.Put(ctx, export.ObjectName(thread, time.Now(), "png"), "image/png", buf.Bytes())
		}
		fyne.Do(func() {
			if err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			dialog.ShowInformation("Upload", "Uploaded to "+where, state.window)
		})
	}()
}
