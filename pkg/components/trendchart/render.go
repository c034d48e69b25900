package trendchart

import (
	"math"

	"github.com/recera/pactrend/pkg/components"
	"github.com/recera/pactrend/pkg/trend/series"
	"github.com/recera/pactrend/pkg/vango/vdom"
	"github.com/recera/pactrend/pkg/vex/builder"
)

// Child positions inside the chart <svg>. The live shim and the tests rely
// on them staying fixed; only the contents of the groups vary in length.
const (
	SlotDefs = iota
	SlotPlot
	SlotGrid
	SlotValueLabels
	SlotTimeLabels
	SlotLine
	SlotOverlay
)

// Render builds the chart panel. Inside a fiber render it subscribes the
// fiber to the samples and the transform.
func (c *Chart) Render() *vdom.VNode {
	samples := c.samples.Get()
	c.view.Get()
	sc := c.memo.Get()

	c.mu.Lock()
	first, last := c.visibleRange(sc, len(samples))
	opts := c.opts
	cfg := c.engine.Config()
	c.mu.Unlock()

	t := components.Theme
	controls := components.Toolbar("Zoom",
		components.Control{Text: "-", Label: "Zoom out", Action: ActionZoomOut, Disabled: sc.Scale <= cfg.MinScale},
		components.Control{Text: "Reset", Action: ActionReset, Quiet: true, Disabled: sc.Scale == 1 && sc.Offset == 0},
		components.Control{Text: "+", Label: "Zoom in", Action: ActionZoomIn, Disabled: sc.Scale >= cfg.MaxScale},
	)

	card := components.Card(components.CardProps{
		Title:    opts.Title,
		Subtitle: opts.Subtitle,
		Actions:  controls,
		Content:  c.svg(sc, samples, opts),
		Footer: builder.Span().
			Class(t.Class("chart-status")).
			Text(statusLine(sc, samples, first, last, opts.Series.Location)).
			Build(),
		Shadow: true,
	})

	return builder.Div().
		Class(t.Class("chart-root")).
		Data("chart", opts.ID).
		Children(card).
		Build()
}

func (c *Chart) svg(sc series.Scene, samples []series.Sample, opts Options) *vdom.VNode {
	t := components.Theme
	clipID := "clip-" + opts.ID
	plot := sc.Plot

	lines := builder.G().Class(t.Class("chart-grid"))
	values := builder.G().Class(t.Class("chart-value")).TextAnchor("end")
	for _, g := range sc.Grid {
		lines.Children(builder.Line().Points(px(plot.X0), px(g.Y), px(plot.X1), px(g.Y)).Build())
		values.Children(builder.SvgText().XY(px(plot.X0-6), px(g.Y+3)).Text(g.Label).Build())
	}

	times := builder.G().Class(t.Class("chart-time")).TextAnchor("middle")
	for _, l := range sc.TimeLabels {
		if l.X < 0 || l.X > sc.Width {
			continue
		}
		times.Children(builder.SvgText().XY(px(l.X), px(plot.Y1+14)).Text(l.Text).Build())
	}

	overlay := builder.G()
	cx, cy := px((plot.X0+plot.X1)/2), px((plot.Y0+plot.Y1)/2)
	switch {
	case samples == nil:
		overlay.Children(components.LoadingSpinner(components.SpinnerProps{X: cx, Y: cy, Text: "Loading"}))
	case sc.Empty:
		overlay.Children(builder.SvgText().
			Class(t.Class("chart-empty")).
			XY(cx, cy).
			TextAnchor("middle").
			Text("No data").
			Build())
	}

	root := builder.Svg().
		Class(t.Class("chart")).
		ViewBox(px(sc.Width), px(sc.Height)).
		Size(px(sc.Width), px(sc.Height)).
		Role("img").
		Attr("xmlns", "http://www.w3.org/2000/svg")
	if opts.Title != "" {
		root.Aria("label", opts.Title)
	}

	return root.Children(
		builder.El("defs").Children(
			builder.El("clipPath").ID(clipID).Children(plotRect(plot).Build()).Build(),
		).Build(),
		plotRect(plot).Class(t.Class("chart-plot")).Build(),
		lines.Build(),
		values.Build(),
		times.Build(),
		builder.Path().
			Class(t.Class("chart-line")).
			D(sc.Path).
			Attr("clip-path", "url(#"+clipID+")").
			Build(),
		overlay.Build(),
	).Build()
}

func plotRect(r series.Rect) *builder.ElementBuilder {
	return builder.Rect().
		XY(px(r.X0), px(r.Y0)).
		Size(px(math.Max(0, r.X1-r.X0)), px(math.Max(0, r.Y1-r.Y0)))
}

// px rounds a coordinate to two decimals so repeated renders of the same
// transform produce identical attributes.
func px(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
