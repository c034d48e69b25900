package routes

import (
	"github.com/recera/pactrend/pkg/components"
	"github.com/recera/pactrend/pkg/server"
	"github.com/recera/pactrend/pkg/vango/vdom"
	"github.com/recera/pactrend/pkg/vex/builder"
)

// MachineProps feeds the chart page
type MachineProps struct {
	MachineID string
	Metric    string
	Metrics   []Metric
	// Chart is the server-rendered chart. With a LiveURL it becomes the
	// mount point the live session replaces.
	Chart   *vdom.VNode
	LiveURL string
	// Notice is shown above the chart, e.g. when the feed is down
	Notice string
}

// MachinePage shows one machine trend with tabs for the other metrics
func MachinePage(props MachineProps) *vdom.VNode {
	tabs := make([]*vdom.VNode, 0, len(props.Metrics))
	for _, m := range props.Metrics {
		tab := builder.A().Href(ChartPath(props.MachineID, m.Key)).Text(m.Title)
		if m.Key == props.Metric {
			tab.Class(Page.Classes("tab", "tab-active")).Aria("current", "page")
		} else {
			tab.Class(Page.Class("tab"))
		}
		tabs = append(tabs, tab.Build())
	}

	page := builder.Div().Children(
		builder.El("h1").Class(Page.Class("heading")).Text("Machine " + props.MachineID).Build(),
		builder.El("nav").Class(Page.Class("tabs")).Aria("label", "Metrics").Children(tabs...).Build(),
	)

	if props.Notice != "" {
		page.Children(components.Alert(components.AlertProps{Type: components.AlertWarning, Message: props.Notice}))
	}

	chart := props.Chart
	if props.LiveURL != "" {
		chart = server.LiveMount(props.LiveURL, chart)
	}
	page.Children(
		chart,
		builder.P().
			Class(Page.Classes("muted", "hint")).
			Text("Drag to pan. Ctrl + wheel or pinch to zoom.").
			Build(),
	)
	return page.Build()
}
