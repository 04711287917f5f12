// Package perfcard holds the presentation state of the thread performance card:
// which thread is selected, the chart size, the fetch phase and the hover cursor.
// Front ends render the View it publishes and forward user input to its methods.
package perfcard

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/render"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

var ErrInvalidThread = errors.New("perfcard: invalid thread name")

// Fetcher loads chart data for one thread.
type Fetcher interface {
	FetchPerfChart(ctx context.Context, thread types.ThreadName) (*types.PerfChartData, error)
}

// Invalidator is implemented by fetchers that cache responses.
type Invalidator interface {
	Invalidate(ctx context.Context, thread types.ThreadName)
}

// DrawFunc is the drawing collaborator; render.DrawPerfChart by default.
type DrawFunc func(t render.Targets, width, height int, m render.Margins, dark bool, model *analysis.ChartModel) (*render.Layout, error)

type Options struct {
	Thread       types.ThreadName
	Dark         bool
	Margins      render.Margins
	FetchTimeout time.Duration
	Draw         DrawFunc
}

type phase int

const (
	phaseIdle phase = iota
	phaseLoading
	phaseError
	phaseReady
)

// Card is safe for concurrent use. Observers registered with OnChange are called
// after every state transition, from the goroutine that caused it.
type Card struct {
	fetcher Fetcher
	draw    DrawFunc
	margins render.Margins
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	thread    types.ThreadName
	width     int
	height    int
	dark      bool
	gen       uint64
	phase     phase
	data      *types.PerfChartData
	err       error
	cursor    *analysis.Cursor
	layout    *render.Layout
	observers []func(View)

	memo analysis.ChartModelMemo
}

func New(f Fetcher, opts Options) *Card {
	if opts.Thread == "" {
		opts.Thread = types.DefaultThread
	}
	if opts.Margins == (render.Margins{}) {
		opts.Margins = render.DefaultMargins
	}
	if opts.Draw == nil {
		opts.Draw = render.DrawPerfChart
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Card{
		fetcher: f,
		draw:    opts.Draw,
		margins: opts.Margins,
		timeout: opts.FetchTimeout,
		ctx:     ctx,
		cancel:  cancel,
		thread:  opts.Thread,
		dark:    opts.Dark,
	}
}

// OnChange registers an observer.
func (c *Card) OnChange(fn func(View)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Start issues the initial fetch for the current thread. Calling it again is a no-op.
func (c *Card) Start() {
	c.mu.Lock()
	if c.phase != phaseIdle {
		c.mu.Unlock()
		return
	}
	g := c.beginFetchLocked()
	thread := c.thread
	c.mu.Unlock()
	c.notify()
	c.fetch(g, thread)
}

// Select switches the card to thread. Selecting the current thread does nothing.
func (c *Card) Select(thread types.ThreadName) error {
	if !thread.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidThread, thread)
	}
	c.mu.Lock()
	if thread == c.thread && c.phase != phaseIdle {
		c.mu.Unlock()
		return nil
	}
	c.thread = thread
	g := c.beginFetchLocked()
	c.mu.Unlock()
	monitor.Debugf("[card] selected %s (gen %d)", thread, g)
	c.notify()
	c.fetch(g, thread)
	return nil
}

// Reload drops the cached response of the current thread and fetches it again.
func (c *Card) Reload() {
	thread := c.Thread()
	if inv, ok := c.fetcher.(Invalidator); ok {
		inv.Invalidate(c.ctx, thread)
	}
	c.mu.Lock()
	if c.thread != thread {
		// a selection raced the reload and already fetches fresh data
		c.mu.Unlock()
		return
	}
	g := c.beginFetchLocked()
	c.mu.Unlock()
	c.notify()
	c.fetch(g, thread)
}

func (c *Card) beginFetchLocked() uint64 {
	c.gen++
	c.phase = phaseLoading
	c.data = nil
	c.err = nil
	c.cursor = nil
	c.layout = nil
	return c.gen
}

func (c *Card) fetch(g uint64, thread types.ThreadName) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx := c.ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		data, err := c.fetcher.FetchPerfChart(ctx, thread)
		c.apply(g, thread, data, err)
	}()
}

// apply stores a fetch result unless a newer selection superseded it.
func (c *Card) apply(g uint64, thread types.ThreadName, data *types.PerfChartData, err error) {
	c.mu.Lock()
	if g != c.gen {
		c.mu.Unlock()
		monitor.Debugf("[card] discarding stale %s response (gen %d, current %d)", thread, g, c.gen)
		return
	}
	if err != nil {
		c.phase = phaseError
		c.err = err
		c.mu.Unlock()
		monitor.Warnf("[card] %s fetch failed: %v", thread, err)
		c.notify()
		return
	}
	c.phase = phaseReady
	c.data = data
	c.mu.Unlock()
	c.notify()
}

// Resize applies a new chart size.
func (c *Card) Resize(width, height int) {
	c.mu.Lock()
	if width == c.width && height == c.height {
		c.mu.Unlock()
		return
	}
	c.width, c.height = width, height
	c.layout = nil
	c.mu.Unlock()
	c.notify()
}

func (c *Card) SetDarkMode(dark bool) {
	c.mu.Lock()
	if dark == c.dark {
		c.mu.Unlock()
		return
	}
	c.dark = dark
	c.layout = nil
	c.mu.Unlock()
	c.notify()
}

// SetCursor is handed to the chart model as its hover callback.
func (c *Card) SetCursor(cur *analysis.Cursor) {
	c.mu.Lock()
	c.cursor = cur
	c.mu.Unlock()
	c.notify()
}

// Thread returns the current selection.
func (c *Card) Thread() types.ThreadName {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thread
}

// View returns a snapshot of what should be shown.
func (c *Card) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Card) viewLocked() View {
	v := View{
		Thread: c.thread,
		Width:  c.width,
		Height: c.height,
		Dark:   c.dark,
		Cursor: c.cursor,
	}
	switch {
	case c.width <= 0 || c.height <= 0:
		v.State = StateHidden
	case c.phase == phaseError:
		v.State = StateError
		txt := DescribeError(c.err)
		v.Error = &txt
	case c.phase == phaseReady && c.data != nil:
		v.State = StateReady
		v.Model = c.memo.Get(c.data, c.thread, c.dark, c.SetCursor)
		v.Drawable = v.Model != nil && len(v.Model.Lifespans) > 0
	default:
		v.State = StateLoading
	}
	return v
}

// Draw renders the current chart onto t. It returns a nil layout without calling
// the drawing routine when there is nothing to draw.
func (c *Card) Draw(t render.Targets) (*render.Layout, error) {
	c.mu.Lock()
	v := c.viewLocked()
	c.mu.Unlock()
	if v.State != StateReady || !v.Drawable {
		return nil, nil
	}
	layout, err := c.draw(t, v.Width, v.Height, c.margins, v.Dark, v.Model)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.layout = layout
	c.mu.Unlock()
	return layout, nil
}

// Pointer forwards a pointer position on the chart to the last drawn layout.
func (c *Card) Pointer(pt image.Point) *analysis.Cursor {
	c.mu.Lock()
	l := c.layout
	c.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Pointer(pt)
}

// ModelBuilds reports how many times the chart model was derived.
func (c *Card) ModelBuilds() int { return c.memo.Builds() }

// Wait blocks until in-flight fetches have returned.
func (c *Card) Wait() { c.wg.Wait() }

// Close cancels in-flight fetches.
func (c *Card) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Card) notify() {
	c.mu.Lock()
	v := c.viewLocked()
	obs := append(([]func(View))(nil), c.observers...)
	c.mu.Unlock()
	for _, fn := range obs {
		fn(v)
	}
}
