// Package trendchart is the interactive trend widget: a viewport engine, a
// gesture recognizer and the series renderer behind one mutex, rendered as an
// SVG panel with zoom controls.
package trendchart

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/recera/pactrend/pkg/reactive"
	"github.com/recera/pactrend/pkg/scheduler"
	"github.com/recera/pactrend/pkg/trend/gesture"
	"github.com/recera/pactrend/pkg/trend/series"
	"github.com/recera/pactrend/pkg/trend/viewport"
)

// Control actions carried by the zoom buttons' data-action attribute.
const (
	ActionZoomIn  = "zoom-in"
	ActionZoomOut = "zoom-out"
	ActionReset   = "reset"
)

// Default surface size used until the host reports its own.
const (
	DefaultWidth  = 600
	DefaultHeight = 200
)

// Options configures a chart. Zero fields take defaults.
type Options struct {
	// ID names the chart in markup (data-chart, clip path id).
	ID       string
	Title    string
	Subtitle string
	Width    float64
	Height   float64
	Viewport viewport.Config
	Series   series.Options
	Logger   *slog.Logger
}

// view is the published engine state. Fibers that render the chart subscribe
// to it; Rev moves on option changes that leave the transform alone.
type view struct {
	Transform  viewport.Transform
	Dimensions viewport.Dimensions
	Rev        uint64
}

// Chart is safe for concurrent use. Host errors (bad dimensions, degenerate
// pinches, short series) are absorbed and logged at debug level.
type Chart struct {
	mu       sync.Mutex
	opts     Options
	engine   *viewport.Engine
	gestures *gesture.Recognizer
	logger   *slog.Logger

	mount   mountPoint
	fiber   *scheduler.Fiber
	samples *reactive.State[[]series.Sample]
	view    *reactive.State[view]
	// memo holds the scene until the samples or the view change
	memo *reactive.Computed[series.Scene]
}

// mountPoint forwards dirty marks to whichever scheduler the chart is mounted
// on. Before Mount there is nobody to repaint.
type mountPoint struct {
	s atomic.Pointer[scheduler.Scheduler]
}

func (m *mountPoint) MarkDirty(f *scheduler.Fiber) {
	if s := m.s.Load(); s != nil {
		s.MarkDirty(f)
	}
}

// New returns a chart at the identity transform with no samples loaded.
func New(opts Options) *Chart {
	if opts.ID == "" {
		opts.ID = "chart"
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Chart{
		opts:   opts,
		engine: viewport.New(opts.Viewport),
		logger: logger.With("chart", opts.ID),
	}
	c.gestures = gesture.New(c.engine)
	if err := c.engine.SetDimensions(opts.Width, opts.Height); err != nil {
		c.logger.Debug("initial dimensions rejected", "width", opts.Width, "height", opts.Height, "err", err)
	}
	c.samples = reactive.NewState[[]series.Sample](nil, &c.mount)
	c.view = reactive.NewState(c.snapshot(0), &c.mount)
	c.memo = reactive.NewComputed(func() series.Scene {
		samples := c.samples.Peek()
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.scene(samples)
	}, &c.mount)
	reactive.DependsOn(c.memo, c.samples)
	reactive.DependsOn(c.memo, c.view)
	return c
}

// ID returns the chart id used in markup
func (c *Chart) ID() string { return c.opts.ID }

// snapshot must be called with c.mu held (or before the chart is shared).
func (c *Chart) snapshot(rev uint64) view {
	return view{
		Transform:  c.engine.Transform(),
		Dimensions: c.engine.Dimensions(),
		Rev:        rev,
	}
}

// publish pushes the engine state to subscribers when it changed.
// Called with c.mu held.
func (c *Chart) publish(force bool) {
	prev := c.view.Peek()
	rev := prev.Rev
	if force {
		rev++
	}
	next := c.snapshot(rev)
	if next == prev {
		return
	}
	c.view.Set(next)
}

// SetSamples replaces the series atomically. A nil or short slice renders
// the empty state. Out-of-order input is stable-sorted by timestamp.
func (c *Chart) SetSamples(samples []series.Sample) {
	cp := make([]series.Sample, len(samples))
	copy(cp, samples)
	if !series.Ordered(cp) {
		c.logger.Debug("samples out of order, sorting", "count", len(cp))
		sort.SliceStable(cp, func(i, j int) bool {
			return cp[i].Timestamp.Before(cp[j].Timestamp)
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	reactive.RunBatch(func() {
		c.samples.Set(cp)
		c.publish(false)
	})
}

// Samples returns the current series. Nil means nothing has been loaded yet.
func (c *Chart) Samples() []series.Sample {
	return c.samples.Peek()
}

// Resize records a new surface size. Invalid sizes are ignored.
func (c *Chart) Resize(width, height float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.SetDimensions(width, height); err != nil {
		c.logger.Debug("resize ignored", "width", width, "height", height, "err", err)
		return false
	}
	c.publish(false)
	return true
}

// Handle feeds one input event to the gesture recognizer and reports
// whether the transform changed.
func (c *Chart) Handle(ev gesture.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed, err := c.gestures.Handle(ev)
	if err != nil {
		if errors.Is(err, gesture.ErrDegenerateGesture) {
			c.logger.Debug("degenerate gesture", "kind", ev.Kind.String())
		} else {
			c.logger.Debug("gesture rejected", "kind", ev.Kind.String(), "err", err)
		}
	}
	if changed {
		c.publish(false)
	}
	return changed
}

// GestureState returns the recognizer state name
func (c *Chart) GestureState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gestures.State().String()
}

// ZoomIn applies one zoom step
func (c *Chart) ZoomIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.ZoomIn()
	c.publish(false)
}

// ZoomOut undoes one zoom step
func (c *Chart) ZoomOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.ZoomOut()
	c.publish(false)
}

// ZoomAt scales by factor around focalX (surface pixels). Invalid factors
// return false.
func (c *Chart) ZoomAt(factor, focalX float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.ZoomAt(factor, focalX); err != nil {
		c.logger.Debug("zoom rejected", "factor", factor, "err", err)
		return false
	}
	c.publish(false)
	return true
}

// Pan moves the content by dx surface pixels, clamped to the offset bounds
func (c *Chart) Pan(dx float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.PanBy(dx, c.engine.Offset())
	c.publish(false)
}

// Reset restores the identity transform and drops any gesture in progress
func (c *Chart) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Reset()
	c.gestures.Reset()
	c.publish(false)
}

// Control runs a toolbar action by name. Unknown actions return false.
func (c *Chart) Control(action string) bool {
	switch action {
	case ActionZoomIn:
		c.ZoomIn()
	case ActionZoomOut:
		c.ZoomOut()
	case ActionReset:
		c.Reset()
	default:
		c.logger.Debug("unknown control action", "action", action)
		return false
	}
	return true
}

// SetOptions replaces the render options and repaints
func (c *Chart) SetOptions(opts series.Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Series = opts
	c.publish(true)
}

// Transform returns the engine snapshot
func (c *Chart) Transform() viewport.Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Transform()
}

// Scene returns the rendered state. It is recomputed only after the samples
// or the transform change, so terminal redraws on every mouse move are cheap.
func (c *Chart) Scene() series.Scene {
	return c.memo.Get()
}

// scene is called with c.mu held
func (c *Chart) scene(samples []series.Sample) series.Scene {
	sc, err := series.Render(samples, c.engine, c.opts.Series)
	if err != nil {
		c.logger.Debug("render degraded", "samples", len(samples), "err", err)
	}
	return sc
}

// Mount creates a fiber that re-renders the chart whenever its samples or
// transform change and sends the patches to sink. The fiber starts dirty
// with no previous tree, so its first patch replaces the whole root.
func (c *Chart) Mount(sched *scheduler.Scheduler, sink scheduler.PatchSink) *scheduler.Fiber {
	c.mount.s.Store(sched)
	fiber := sched.CreateFiber(c.Render, sink)
	c.mu.Lock()
	c.fiber = fiber
	c.mu.Unlock()
	sched.MarkDirty(fiber)
	return fiber
}

// Unmount detaches the chart from its scheduler.
func (c *Chart) Unmount() {
	c.mu.Lock()
	fiber := c.fiber
	c.fiber = nil
	c.mu.Unlock()

	sched := c.mount.s.Swap(nil)
	if fiber == nil {
		return
	}
	c.samples.Unsubscribe(fiber)
	c.view.Unsubscribe(fiber)
	c.memo.Unsubscribe(fiber)
	if sched != nil {
		sched.RemoveFiber(fiber)
	}
}

// Readout names the sample nearest to surface pixel x, e.g. "08:01 150.5".
// It reports false when x falls outside the series.
func (c *Chart) Readout(x float64) (string, bool) {
	samples := c.samples.Peek()
	if len(samples) == 0 {
		return "", false
	}
	c.mu.Lock()
	idx := c.engine.PixelToDataIndex(x, len(samples))
	loc := c.opts.Series.Location
	c.mu.Unlock()

	i := int(math.Round(idx))
	if math.IsNaN(idx) || i < 0 || i >= len(samples) {
		return "", false
	}
	if loc == nil {
		loc = time.Local
	}
	s := samples[i]
	value := strconv.FormatFloat(math.Round(s.Value*10)/10, 'f', -1, 64)
	return s.Timestamp.In(loc).Format("15:04:05") + " " + value, true
}

// statusLine summarises the visible window for the card footer.
func statusLine(sc series.Scene, samples []series.Sample, first, last int, loc *time.Location) string {
	if sc.Empty || len(samples) == 0 {
		return fmt.Sprintf("zoom %.2fx", sc.Scale)
	}
	if loc == nil {
		loc = time.Local
	}
	from := samples[first].Timestamp.In(loc).Format("15:04")
	to := samples[last].Timestamp.In(loc).Format("15:04")
	return fmt.Sprintf("%d samples, %s to %s, zoom %.2fx", len(samples), from, to, sc.Scale)
}

// visibleRange returns the first and last sample indices inside the plot box.
// Called with c.mu held.
func (c *Chart) visibleRange(sc series.Scene, n int) (first, last int) {
	if n == 0 {
		return 0, 0
	}
	lo := c.engine.PixelToDataIndex(sc.Plot.X0, n)
	hi := c.engine.PixelToDataIndex(sc.Plot.X1, n)
	first = clampIndex(int(math.Ceil(lo-1e-9)), n)
	last = clampIndex(int(math.Floor(hi+1e-9)), n)
	if last < first {
		last = first
	}
	return first, last
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
