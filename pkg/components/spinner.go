package components

import (
	"github.com/recera/pactrend/pkg/vango/vdom"
	"github.com/recera/pactrend/pkg/vex/builder"
)

// SpinnerProps defines the properties for the LoadingSpinner component
type SpinnerProps struct {
	// X, Y place the spinner centre when it is drawn inside an svg
	X, Y  float64
	Size  float64 // diameter, default 24
	Text  string  // optional caption under the spinner
	Class string
}

// LoadingSpinner draws an svg group shown while a chart waits for its first
// batch of samples. It is a <g>, not an <svg>, so it can sit in the plot.
func LoadingSpinner(props SpinnerProps) *vdom.VNode {
	if props.Size <= 0 {
		props.Size = 24
	}
	r := props.Size / 2

	g := builder.G().
		Class(classList(Theme.Class("spinner"), props.Class)).
		Attr("transform", "translate("+builder.Num(props.X)+","+builder.Num(props.Y)+")").
		Children(
			builder.Circle().
				Attr("r", r).
				Attr("fill", "none").
				Attr("stroke", "currentColor").
				Attr("stroke-opacity", "0.25").
				Build(),
			builder.Circle().
				Class(Theme.Class("spinner-track")).
				Attr("r", r).
				Attr("fill", "none").
				Attr("stroke", "currentColor").
				Attr("stroke-linecap", "round").
				Attr("stroke-dasharray", builder.Num(r*2)).
				Build(),
		)

	if props.Text != "" {
		g.Children(builder.SvgText().
			Class(Theme.Class("spinner-text")).
			XY(0, r+16).
			TextAnchor("middle").
			Text(props.Text).
			Build())
	}
	return g.Build()
}
