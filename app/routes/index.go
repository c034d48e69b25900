package routes

import (
	"net/url"

	"github.com/recera/pactrend/internal/feed"
	"github.com/recera/pactrend/pkg/components"
	"github.com/recera/pactrend/pkg/vango/vdom"
	"github.com/recera/pactrend/pkg/vex/builder"
)

// Metric is one chart a machine can be viewed with
type Metric struct {
	Key   string
	Title string
}

// IndexProps feeds the machine list
type IndexProps struct {
	Machines []feed.Machine
	Metrics  []Metric
	// Err is set when the machine list could not be loaded
	Err error
}

// ChartPath is the page of one machine trend
func ChartPath(machineID, metric string) string {
	return "/machines/" + url.PathEscape(machineID) + "/" + url.PathEscape(metric)
}

// IndexPage lists the machines with a link per metric
func IndexPage(props IndexProps) *vdom.VNode {
	page := builder.Div().Children(
		builder.El("h1").Class(Page.Class("heading")).Text("Machines").Build(),
	)

	if props.Err != nil {
		page.Children(components.Alert(components.AlertProps{
			Type:    components.AlertError,
			Title:   "Machine list unavailable:",
			Message: props.Err.Error(),
		}))
		return page.Build()
	}
	if len(props.Machines) == 0 {
		page.Children(builder.P().Class(Page.Class("muted")).Text("No machines reported.").Build())
		return page.Build()
	}

	items := make([]*vdom.VNode, 0, len(props.Machines))
	for _, m := range props.Machines {
		items = append(items, machineItem(m, props.Metrics))
	}
	page.Children(builder.Ul().Class(Page.Class("machines")).Children(items...).Build())
	return page.Build()
}

func machineItem(m feed.Machine, metrics []Metric) *vdom.VNode {
	name := m.Name
	if name == "" {
		name = m.ID
	}

	label := builder.Span().Children(builder.El("strong").Text(name).Build())
	if m.Line != "" {
		label.Children(builder.Span().
			Class(Page.Classes("muted", "machine-line")).
			Text(m.Line).
			Build())
	}

	links := make([]*vdom.VNode, 0, len(metrics))
	for _, metric := range metrics {
		links = append(links, builder.A().
			Href(ChartPath(m.ID, metric.Key)).
			Class(Page.Class("tab")).
			Text(metric.Title).
			Build())
	}

	return builder.Li().
		Class(Page.Class("machine")).
		Data("machine", m.ID).
		Children(
			label.Build(),
			builder.Span().Class(Page.Class("tabs")).Children(links...).Build(),
		).Build()
}
