package components

import (
	"github.com/recera/pactrend/pkg/vango/vdom"
	"github.com/recera/pactrend/pkg/vex/builder"
)

// CardProps defines the properties for the Card component
type CardProps struct {
	Title    string
	Subtitle string
	// Actions sits in the header, right of the title (zoom controls)
	Actions *vdom.VNode
	Content *vdom.VNode
	Footer  *vdom.VNode
	Class   string
	ID      string
	Shadow  bool
}

// Card creates the panel a chart is shown in
func Card(props CardProps) *vdom.VNode {
	classes := []string{Theme.Class("card")}
	if props.Shadow {
		classes = append(classes, Theme.Class("card-shadow"))
	}
	classes = append(classes, props.Class)

	card := builder.Div().Class(classList(classes...))
	if props.ID != "" {
		card.ID(props.ID)
	}

	if props.Title != "" || props.Subtitle != "" || props.Actions != nil {
		heading := builder.Div().Class(Theme.Class("card-heading"))
		if props.Title != "" {
			heading.Children(builder.H3().Class(Theme.Class("card-title")).Text(props.Title).Build())
		}
		if props.Subtitle != "" {
			heading.Children(builder.P().Class(Theme.Class("card-subtitle")).Text(props.Subtitle).Build())
		}
		card.Children(builder.Div().
			Class(Theme.Class("card-header")).
			Children(heading.Build(), props.Actions).
			Build())
	}

	if props.Content != nil {
		card.Children(builder.Div().Class(Theme.Class("card-body")).Children(props.Content).Build())
	}

	if props.Footer != nil {
		card.Children(builder.Div().Class(Theme.Class("card-footer")).Children(props.Footer).Build())
	}

	return card.Build()
}
