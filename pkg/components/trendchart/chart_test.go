package trendchart

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recera/pactrend/pkg/components"
	"github.com/recera/pactrend/pkg/reactive"
	"github.com/recera/pactrend/pkg/renderer/html"
	"github.com/recera/pactrend/pkg/scheduler"
	"github.com/recera/pactrend/pkg/trend/gesture"
	"github.com/recera/pactrend/pkg/trend/series"
	"github.com/recera/pactrend/pkg/vango/vdom"
)

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newChart(t *testing.T) *Chart {
	t.Helper()
	return New(Options{
		ID:     "speed-7",
		Title:  "Speed",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Series: series.Options{Padding: 15, MaxValue: 300, Location: time.UTC},
	})
}

func threeSamples() []series.Sample {
	return []series.Sample{
		{Timestamp: epoch, Value: 0},
		{Timestamp: epoch.Add(time.Second), Value: 150},
		{Timestamp: epoch.Add(2 * time.Second), Value: 300},
	}
}

func findClass(root *vdom.VNode, class string) *vdom.VNode {
	want := components.Theme.Class(class)
	return root.Find(func(n *vdom.VNode) bool {
		for _, c := range strings.Fields(n.Attr("class")) {
			if c == want {
				return true
			}
		}
		return false
	})
}

func svgOf(t *testing.T, root *vdom.VNode) *vdom.VNode {
	t.Helper()
	svg := root.Find(func(n *vdom.VNode) bool { return n.Tag == "svg" })
	require.NotNil(t, svg)
	require.Len(t, svg.Kids, SlotOverlay+1)
	return svg
}

func TestChart_InitialState(t *testing.T) {
	c := newChart(t)
	tr := c.Transform()
	assert.Equal(t, 1.0, tr.Scale)
	assert.Equal(t, 0.0, tr.Offset)
	assert.Nil(t, c.Samples())
	assert.Equal(t, "idle", c.GestureState())

	svg := svgOf(t, c.Render())
	assert.NotEmpty(t, svg.Kids[SlotOverlay].Kids, "loading spinner expected before first batch")
	assert.Empty(t, svg.Kids[SlotLine].Attr("d"))
}

func TestChart_SetSamplesRendersLine(t *testing.T) {
	c := newChart(t)
	c.SetSamples(threeSamples())

	sc := c.Scene()
	assert.Equal(t, "M 40,185 L 300,92.5 L 560,0", sc.Path)

	root := c.Render()
	svg := svgOf(t, root)
	assert.Equal(t, sc.Path, svg.Kids[SlotLine].Attr("d"))
	assert.Empty(t, svg.Kids[SlotOverlay].Kids)
	assert.Len(t, svg.Kids[SlotGrid].Kids, len(sc.Grid))
	assert.Equal(t, "speed-7", root.Attr("data-chart"))

	status := findClass(root, "chart-status")
	require.NotNil(t, status)
	assert.Equal(t, "3 samples, 08:00 to 08:00, zoom 1.00x", status.Kids[0].Text)
}

func TestChart_EmptySeries(t *testing.T) {
	c := newChart(t)
	c.SetSamples(threeSamples()[:1])

	svg := svgOf(t, c.Render())
	require.Len(t, svg.Kids[SlotOverlay].Kids, 1)
	assert.Equal(t, "No data", svg.Kids[SlotOverlay].Kids[0].Kids[0].Text)
	assert.NotNil(t, c.Samples())
}

func TestChart_SortsOutOfOrderSamples(t *testing.T) {
	c := newChart(t)
	in := threeSamples()
	in[0], in[2] = in[2], in[0]
	c.SetSamples(in)

	got := c.Samples()
	assert.True(t, series.Ordered(got))
	assert.Equal(t, 300.0, in[0].Value, "caller slice must not be reordered")
}

func TestChart_Resize(t *testing.T) {
	c := newChart(t)
	assert.False(t, c.Resize(0, 200))
	assert.False(t, c.Resize(800, -1))
	assert.Equal(t, 600.0, c.Scene().Width)

	require.True(t, c.Resize(800, 300))
	sc := c.Scene()
	assert.Equal(t, 800.0, sc.Width)
	assert.Equal(t, 300.0, sc.Height)
}

func TestChart_Gestures(t *testing.T) {
	tests := []struct {
		name       string
		events     []gesture.Event
		wantScale  float64
		wantOffset float64
		wantState  string
	}{
		{
			name: "pan after zoom",
			events: []gesture.Event{
				{Kind: gesture.Wheel, DeltaY: -1, Modifier: true},
				{Kind: gesture.Wheel, DeltaY: -1, Modifier: true},
				{Kind: gesture.PointerDown, X: 300},
				{Kind: gesture.PointerMove, X: 250},
			},
			wantScale:  1.1 * 1.1,
			wantOffset: -50,
			wantState:  "panning",
		},
		{
			name: "pinch",
			events: []gesture.Event{
				{Kind: gesture.TouchStart, Touches: []gesture.Touch{{ID: 1, X: 100}, {ID: 2, X: 200}}},
				{Kind: gesture.TouchMove, Touches: []gesture.Touch{{ID: 1, X: 50}, {ID: 2, X: 250}}},
			},
			wantScale:  2,
			wantOffset: -110,
			wantState:  "pinching",
		},
		{
			name: "degenerate pinch absorbed",
			events: []gesture.Event{
				{Kind: gesture.TouchStart, Touches: []gesture.Touch{{ID: 1, X: 100}, {ID: 2, X: 100}}},
				{Kind: gesture.TouchMove, Touches: []gesture.Touch{{ID: 1, X: 100}, {ID: 2, X: 100}}},
			},
			wantScale:  1,
			wantOffset: 0,
			wantState:  "pinching",
		},
		{
			name: "wheel without modifier ignored",
			events: []gesture.Event{
				{Kind: gesture.Wheel, DeltaY: -1},
			},
			wantScale: 1,
			wantState: "idle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChart(t)
			c.SetSamples(threeSamples())
			for _, ev := range tt.events {
				c.Handle(ev)
			}
			tr := c.Transform()
			assert.InDelta(t, tt.wantScale, tr.Scale, 1e-9)
			assert.InDelta(t, tt.wantOffset, tr.Offset, 1e-9)
			assert.Equal(t, tt.wantState, c.GestureState())
		})
	}
}

func TestChart_Controls(t *testing.T) {
	c := newChart(t)

	assert.True(t, c.Control(ActionZoomIn))
	assert.InDelta(t, 1.2, c.Transform().Scale, 1e-9)
	assert.True(t, c.Control(ActionZoomOut))
	assert.True(t, c.Control(ActionZoomOut))
	assert.InDelta(t, 1/1.2, c.Transform().Scale, 1e-9)
	assert.False(t, c.Control("rotate"))

	c.Handle(gesture.Event{Kind: gesture.PointerDown, X: 10})
	assert.True(t, c.Control(ActionReset))
	assert.Equal(t, 1.0, c.Transform().Scale)
	assert.Equal(t, "idle", c.GestureState())
}

func TestChart_ZoomAtAndPan(t *testing.T) {
	c := newChart(t)

	// The left plot edge is the focal point, so the offset stays put.
	assert.True(t, c.ZoomAt(2, 40))
	assert.InDelta(t, 2.0, c.Transform().Scale, 1e-9)
	assert.Equal(t, 0.0, c.Transform().Offset)

	c.Pan(-100)
	assert.InDelta(t, -100, c.Transform().Offset, 1e-9)
	c.Pan(500)
	assert.Equal(t, 0.0, c.Transform().Offset)

	assert.False(t, c.ZoomAt(0, 40))
	assert.InDelta(t, 2.0, c.Transform().Scale, 1e-9)
}

func TestChart_Readout(t *testing.T) {
	c := newChart(t)
	_, ok := c.Readout(300)
	assert.False(t, ok, "no samples yet")

	c.SetSamples(threeSamples())
	got, ok := c.Readout(310)
	require.True(t, ok)
	assert.Equal(t, "08:00:01 150", got)

	got, ok = c.Readout(40)
	require.True(t, ok)
	assert.Equal(t, "08:00:00 0", got)

	_, ok = c.Readout(700)
	assert.False(t, ok)

	// Zoomed in around the middle sample it stays under the same pixel.
	c.ZoomAt(2, 300)
	got, _ = c.Readout(300)
	assert.Equal(t, "08:00:01 150", got)
}

func TestChart_ControlsMarkup(t *testing.T) {
	c := newChart(t)
	c.SetSamples(threeSamples())

	out, err := html.RenderToString(c.Render())
	require.NoError(t, err)
	assert.Contains(t, out, `data-action="zoom-in"`)
	assert.Contains(t, out, `data-action="zoom-out"`)
	assert.Contains(t, out, `data-chart="speed-7"`)
	assert.Contains(t, out, `d="M 40,185 L 300,92.5 L 560,0"`)
	assert.NotContains(t, out, "\n")

	// At scale 1 reset has nothing to undo.
	reset := c.Render().Find(func(n *vdom.VNode) bool { return n.Attr("data-action") == ActionReset })
	require.NotNil(t, reset)
	assert.Equal(t, "true", reset.Attr("disabled"))

	for i := 0; i < 20; i++ {
		c.ZoomIn()
	}
	zoomIn := c.Render().Find(func(n *vdom.VNode) bool { return n.Attr("data-action") == ActionZoomIn })
	require.NotNil(t, zoomIn)
	assert.Equal(t, "true", zoomIn.Attr("disabled"))
}

func TestChart_MountStreamsPatches(t *testing.T) {
	sched := scheduler.NewScheduler()
	reactive.Track(sched)

	var batches [][]vdom.Patch
	c := newChart(t)
	fiber := c.Mount(sched, func(_ *scheduler.Fiber, p []vdom.Patch) {
		batches = append(batches, p)
	})
	require.NotNil(t, fiber)

	require.Equal(t, 1, sched.Flush())
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, vdom.OpReplaceNode, batches[0][0].Op)
	assert.Empty(t, batches[0][0].Path)

	c.SetSamples(threeSamples())
	assert.Equal(t, 1, sched.Flush(), "samples and transform repaint once")

	c.ZoomIn()
	require.Equal(t, 1, sched.Flush())
	last := batches[len(batches)-1]
	require.NotEmpty(t, last)
	for _, p := range last {
		assert.False(t, p.Op == vdom.OpReplaceNode && len(p.Path) == 0, "zoom should not replace the root")
	}

	// Same transform again: nothing to send.
	c.Resize(600, 200)
	assert.Equal(t, 0, sched.Flush())

	c.Unmount()
	assert.Equal(t, 0, sched.FiberCount())
	c.ZoomIn()
	assert.Equal(t, 0, sched.Flush())
}

func TestChart_SceneFollowsState(t *testing.T) {
	c := newChart(t)
	first := c.Scene()
	assert.True(t, first.Empty)

	c.SetSamples(threeSamples())
	assert.False(t, c.Scene().Empty)

	c.ZoomIn()
	assert.InDelta(t, 1.2, c.Scene().Scale, 1e-9)

	c.SetOptions(series.Options{Padding: 15, MaxValue: 600, Location: time.UTC})
	assert.Equal(t, 600.0, c.Scene().MaxValue)

	require.True(t, c.Resize(800, 300))
	assert.Equal(t, 800.0, c.Scene().Width)
}
