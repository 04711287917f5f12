package perfcard

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/render"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

const t0 = int64(1_700_000_000_000)

func chartData(players int) *types.PerfChartData {
	snap := func(min int) types.PerfSnap {
		return types.PerfSnap{
			TS:      t0 + int64(min)*60_000,
			Type:    types.SnapData,
			Players: players,
			Perf:    &types.ThreadPerf{Count: 10, Sum: 0.02, Buckets: []int{8, 2, 0}},
		}
	}
	return &types.PerfChartData{
		Boundaries:    types.Boundaries{0.002, 0.01, types.InfBoundary},
		ThreadPerfLog: []types.PerfSnap{snap(5), snap(10), snap(15)},
	}
}

type result struct {
	data *types.PerfChartData
	err  error
}

// gatedFetcher blocks every call until the test releases it.
type gatedFetcher struct {
	mu          sync.Mutex
	calls       []types.ThreadName
	gates       map[types.ThreadName]chan result
	invalidated []types.ThreadName
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: map[types.ThreadName]chan result{}}
}

func (f *gatedFetcher) gate(thread types.ThreadName) chan result {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[thread]
	if !ok {
		g = make(chan result, 4)
		f.gates[thread] = g
	}
	return g
}

func (f *gatedFetcher) FetchPerfChart(ctx context.Context, thread types.ThreadName) (*types.PerfChartData, error) {
	f.mu.Lock()
	f.calls = append(f.calls, thread)
	f.mu.Unlock()
	select {
	case r := <-f.gate(thread):
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *gatedFetcher) Invalidate(_ context.Context, thread types.ThreadName) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, thread)
	f.mu.Unlock()
}

func (f *gatedFetcher) release(thread types.ThreadName, data *types.PerfChartData, err error) {
	f.gate(thread) <- result{data: data, err: err}
}

func (f *gatedFetcher) callList() []types.ThreadName {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.ThreadName(nil), f.calls...)
}

// recordingDraw counts draw calls without touching the targets.
type recordingDraw struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingDraw) draw(t render.Targets, w, h int, m render.Margins, dark bool, model *analysis.ChartModel) (*render.Layout, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return render.DrawPerfChart(t, w, h, m, dark, model)
}

func targets(w, h int) render.Targets {
	return render.Targets{Vector: &discard{}, Raster: image.NewRGBA(image.Rect(0, 0, w, h))}
}

type discard struct{ n int }

func (d *discard) Write(p []byte) (int, error) { d.n += len(p); return len(p), nil }

func TestSelectFetchesOncePerThread(t *testing.T) {
	for _, thread := range types.Threads() {
		t.Run(string(thread), func(t *testing.T) {
			f := newGatedFetcher()
			start := types.ThreadSync
			if thread == types.ThreadSync {
				start = types.ThreadMain
			}
			c := New(f, Options{Thread: start})
			defer c.Close()
			f.release(start, chartData(1), nil)
			c.Start()
			c.Wait()

			f.release(thread, chartData(2), nil)
			require.NoError(t, c.Select(thread))
			c.Wait()
			require.NoError(t, c.Select(thread), "reselecting is a no-op")
			c.Wait()

			assert.Equal(t, []types.ThreadName{start, thread}, f.callList())
			assert.Equal(t, thread, c.Thread())
		})
	}
}

func TestSelectRejectsUnknownThread(t *testing.T) {
	c := New(newGatedFetcher(), Options{})
	defer c.Close()
	err := c.Select("svBogus")
	require.ErrorIs(t, err, ErrInvalidThread)
	assert.Equal(t, types.DefaultThread, c.Thread())
}

func TestViewStates(t *testing.T) {
	f := newGatedFetcher()
	c := New(f, Options{})
	defer c.Close()

	assert.Equal(t, StateHidden, c.View().State, "zero size renders nothing")
	c.Start()
	c.Resize(400, 0)
	assert.Equal(t, StateHidden, c.View().State)
	c.Resize(400, 200)
	assert.Equal(t, StateLoading, c.View().State)

	f.release(types.ThreadMain, chartData(3), nil)
	c.Wait()
	v := c.View()
	require.Equal(t, StateReady, v.State)
	assert.True(t, v.Drawable)
	assert.Equal(t, types.ThreadMain, v.Model.Thread)

	c.Resize(0, 200)
	assert.Equal(t, StateHidden, c.View().State)
}

func TestEmptyLogIsNeverDrawn(t *testing.T) {
	f := newGatedFetcher()
	rd := &recordingDraw{}
	c := New(f, Options{Draw: rd.draw})
	defer c.Close()
	c.Resize(400, 200)
	f.release(types.ThreadMain, &types.PerfChartData{Boundaries: types.Boundaries{0.01, types.InfBoundary}}, nil)
	c.Start()
	c.Wait()

	v := c.View()
	require.Equal(t, StateReady, v.State)
	assert.False(t, v.Drawable)
	layout, err := c.Draw(targets(400, 200))
	require.NoError(t, err)
	assert.Nil(t, layout)
	assert.Zero(t, rd.calls)
}

func TestDrawOnlyWhenSized(t *testing.T) {
	f := newGatedFetcher()
	rd := &recordingDraw{}
	c := New(f, Options{Draw: rd.draw})
	defer c.Close()
	f.release(types.ThreadMain, chartData(3), nil)
	c.Start()
	c.Wait()

	layout, err := c.Draw(targets(400, 200))
	require.NoError(t, err)
	assert.Nil(t, layout)
	assert.Zero(t, rd.calls)

	c.Resize(400, 200)
	layout, err = c.Draw(targets(400, 200))
	require.NoError(t, err)
	require.NotNil(t, layout)
	assert.Equal(t, 1, rd.calls)

	// hover goes through the model callback into the card
	cur := c.Pointer(image.Pt(layout.Plot.Min.X+2, layout.Plot.Max.Y-2))
	require.NotNil(t, cur)
	assert.Equal(t, cur, c.View().Cursor)
}

func TestLastSelectionWinsOutOfOrder(t *testing.T) {
	f := newGatedFetcher()
	c := New(f, Options{})
	defer c.Close()
	c.Resize(400, 200)
	c.Start() // svMain pending
	require.NoError(t, c.Select(types.ThreadNetwork))

	netData := chartData(7)
	// svNetwork resolves first, then the stale svMain answer arrives
	f.release(types.ThreadNetwork, netData, nil)
	require.Eventually(t, func() bool { return c.View().State == StateReady }, time.Second, 5*time.Millisecond)
	f.release(types.ThreadMain, chartData(1), nil)
	c.Wait()

	v := c.View()
	require.Equal(t, StateReady, v.State)
	assert.Equal(t, types.ThreadNetwork, v.Thread)
	assert.Equal(t, types.ThreadNetwork, v.Model.Thread)
	assert.Equal(t, 7, v.Model.Lifespans[0].Snaps[0].Players)
}

func TestLastSelectionWinsStaleFirst(t *testing.T) {
	f := newGatedFetcher()
	c := New(f, Options{})
	defer c.Close()
	c.Resize(400, 200)
	c.Start()
	require.NoError(t, c.Select(types.ThreadNetwork))

	f.release(types.ThreadMain, nil, errors.New("boom"))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, StateLoading, c.View().State, "stale error must not surface")

	f.release(types.ThreadNetwork, chartData(5), nil)
	c.Wait()
	assert.Equal(t, StateReady, c.View().State)
}

func TestErrorsRenderInline(t *testing.T) {
	f := newGatedFetcher()
	c := New(f, Options{})
	defer c.Close()
	c.Resize(400, 200)
	f.release(types.ThreadMain, nil, &monitor.BackendAPIError{Code: monitor.CodeNotEnoughData, StatusCode: 200})
	c.Start()
	c.Wait()

	v := c.View()
	require.Equal(t, StateError, v.State)
	require.NotNil(t, v.Error)
	assert.Equal(t, backendMessages[monitor.CodeNotEnoughData], *v.Error)
	layout, err := c.Draw(targets(400, 200))
	assert.NoError(t, err)
	assert.Nil(t, layout)
}

func TestModelIsMemoised(t *testing.T) {
	f := newGatedFetcher()
	c := New(f, Options{})
	defer c.Close()
	c.Resize(400, 200)
	f.release(types.ThreadMain, chartData(2), nil)
	c.Start()
	c.Wait()

	m1 := c.View().Model
	c.Resize(500, 250)
	c.SetCursor(nil)
	m2 := c.View().Model
	assert.Same(t, m1, m2, "size and cursor are not part of the model key")
	builds := c.ModelBuilds()

	c.SetDarkMode(true)
	m3 := c.View().Model
	assert.NotSame(t, m2, m3)
	assert.True(t, m3.Dark)
	assert.Equal(t, builds+1, c.ModelBuilds())
}

func TestReloadInvalidatesAndRefetches(t *testing.T) {
	f := newGatedFetcher()
	c := New(f, Options{Thread: types.ThreadSync})
	defer c.Close()
	f.release(types.ThreadSync, chartData(1), nil)
	c.Start()
	c.Wait()

	f.release(types.ThreadSync, chartData(9), nil)
	c.Reload()
	c.Wait()
	assert.Equal(t, []types.ThreadName{types.ThreadSync}, f.invalidated)
	assert.Equal(t, []types.ThreadName{types.ThreadSync, types.ThreadSync}, f.callList())
	c.Resize(10, 10)
	assert.Equal(t, 9, c.View().Model.Lifespans[0].Snaps[0].Players)
}

func TestObserversSeeTransitions(t *testing.T) {
	f := newGatedFetcher()
	c := New(f, Options{})
	defer c.Close()
	var mu sync.Mutex
	var states []State
	c.OnChange(func(v View) {
		mu.Lock()
		states = append(states, v.State)
		mu.Unlock()
	})
	c.Resize(100, 100)
	f.release(types.ThreadMain, chartData(1), nil)
	c.Start()
	c.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, StateReady, states[len(states)-1])
}
