// Package routes holds the dashboard pages. Handlers live in
// internal/dashboard; the functions here only build markup.
package routes

import (
	"github.com/recera/pactrend/pkg/styling"
	"github.com/recera/pactrend/pkg/vango/vdom"
	"github.com/recera/pactrend/pkg/vex/builder"
)

// Page is the stylesheet of the dashboard chrome
var Page = styling.StyleWithRegistry(`
body {
	margin: 0;
	font-family: system-ui, -apple-system, "Segoe UI", sans-serif;
	color: #1a202c;
	background: #f7fafc;
}
.nav {
	display: flex;
	align-items: center;
	gap: 1.5rem;
	padding: 0.75rem 1.5rem;
	background: #1a365d;
}
.nav a { color: #e2e8f0; text-decoration: none; }
.brand { font-weight: 600; letter-spacing: 0.02em; }
.main { max-width: 1000px; margin: 0 auto; padding: 1.5rem; }
.heading { margin: 0 0 0.25rem; font-size: 1.4rem; }
.muted { color: #718096; }
.machines { list-style: none; margin: 1rem 0; padding: 0; }
.machine {
	display: flex;
	align-items: baseline;
	justify-content: space-between;
	padding: 0.6rem 0;
	border-bottom: 1px solid #e2e8f0;
}
.machine-line { margin-left: 0.5rem; font-size: 0.85rem; }
.tabs { display: flex; gap: 0.5rem; margin: 1rem 0 0; }
.tab {
	padding: 0.25rem 0.75rem;
	border: 1px solid #cbd5e0;
	border-radius: 4px;
	color: #2b6cb0;
	text-decoration: none;
}
.tab-active { background: #2b6cb0; border-color: #2b6cb0; color: #fff; }
.hint { font-size: 0.8rem; }
`)

// Title is the document title of every page
const Title = "pactrend"

// Layout wraps page content in the html document. The stylesheet carries
// every registered component style.
func Layout(child *vdom.VNode) *vdom.VNode {
	head := builder.El("head").Children(
		builder.El("meta").Attr("charset", "utf-8").Build(),
		builder.El("meta").
			Attr("name", "viewport").
			Attr("content", "width=device-width, initial-scale=1").
			Build(),
		builder.El("title").Text(Title).Build(),
		builder.El("style").Text(styling.GetAllCSS()).Build(),
	).Build()

	nav := builder.El("nav").Class(Page.Class("nav")).Children(
		builder.A().Href("/").Class(Page.Class("brand")).Text(Title).Build(),
		builder.A().Href("/api/machines").Text("API").Build(),
	).Build()

	body := builder.El("body").Children(
		nav,
		builder.El("main").Class(Page.Class("main")).Children(child).Build(),
	).Build()

	return builder.El("html").Attr("lang", "en").Children(head, body).Build()
}

// ErrorPage is shown for failed requests
func ErrorPage(status int, message string) *vdom.VNode {
	return builder.Div().Children(
		builder.El("h1").Class(Page.Class("heading")).Text(statusTitle(status)).Build(),
		builder.P().Class(Page.Class("muted")).Text(message).Build(),
		builder.P().Children(builder.A().Href("/").Text("Back to machines").Build()).Build(),
	).Build()
}

func statusTitle(status int) string {
	switch {
	case status == 404:
		return "Not found"
	case status >= 500:
		return "Something went wrong"
	default:
		return "Bad request"
	}
}
