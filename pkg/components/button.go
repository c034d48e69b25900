package components

import (
	"strings"

	"github.com/recera/pactrend/pkg/vango/vdom"
	"github.com/recera/pactrend/pkg/vex/builder"
)

// Control is one toolbar button. Clicks reach the server through the live
// client, which forwards the data-action of the clicked button.
type Control struct {
	Text     string
	Action   string
	Label    string // aria-label, for symbol buttons like "+"
	Quiet    bool   // borderless, for secondary actions
	Disabled bool
}

// ControlButton renders c as a button
func ControlButton(c Control) *vdom.VNode {
	b := builder.Button().
		Type("button").
		Class(classList(
			Theme.Class("control"),
			pick(c.Quiet, Theme.Class("control-quiet")),
			pick(c.Disabled, Theme.Class("control-off")),
		)).
		Disabled(c.Disabled)
	if c.Action != "" {
		b.Data("action", c.Action)
	}
	if c.Label != "" {
		b.Aria("label", c.Label)
	}
	return b.Text(c.Text).Build()
}

// Toolbar lays controls out in a row labelled for assistive tech
func Toolbar(label string, controls ...Control) *vdom.VNode {
	bar := builder.Div().Role("toolbar").Class(Theme.Class("toolbar"))
	if label != "" {
		bar.Aria("label", label)
	}
	for _, c := range controls {
		bar.Children(ControlButton(c))
	}
	return bar.Build()
}

func pick(on bool, class string) string {
	if on {
		return class
	}
	return ""
}

// classList joins the non-empty class names
func classList(classes ...string) string {
	kept := classes[:0:0]
	for _, c := range classes {
		if c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, " ")
}
