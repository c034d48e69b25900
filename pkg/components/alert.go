package components

import (
	"github.com/recera/pactrend/pkg/vango/vdom"
	"github.com/recera/pactrend/pkg/vex/builder"
)

// AlertType selects the alert colour and icon
type AlertType string

const (
	AlertInfo    AlertType = "info"
	AlertWarning AlertType = "warning"
	AlertError   AlertType = "error"
)

// AlertProps defines properties for inline alerts
type AlertProps struct {
	Type    AlertType
	Title   string
	Message string
	Class   string
}

// Alert creates an inline notice, e.g. for a feed that stopped answering.
// Errors are announced with role="alert", the rest with role="status".
func Alert(props AlertProps) *vdom.VNode {
	if props.Type == "" {
		props.Type = AlertInfo
	}

	var icon string
	role := "status"
	switch props.Type {
	case AlertWarning:
		icon = "⚠"
	case AlertError:
		icon = "✕"
		role = "alert"
	default:
		icon = "ℹ"
	}

	body := builder.Div().Class(Theme.Class("alert-body"))
	if props.Title != "" {
		body.Children(builder.El("strong").Class(Theme.Class("alert-title")).Text(props.Title).Build())
	}
	body.Children(builder.Span().Text(props.Message).Build())

	return builder.Div().
		Class(classList(Theme.Class("alert"), Theme.Class("alert-"+string(props.Type)), props.Class)).
		Role(role).
		Children(
			builder.Span().Class(Theme.Class("alert-icon")).Aria("hidden", "true").Text(icon).Build(),
			body.Build(),
		).Build()
}
