// Package builder is a fluent constructor for vdom trees.
//
//	builder.Div().Class("panel").Children(
//		builder.Span().Text("Speed").Build(),
//	).Build()
package builder

import (
	"strconv"

	"github.com/recera/pactrend/pkg/vango/vdom"
)

// ElementBuilder accumulates the tag, props and children of one element
type ElementBuilder struct {
	tag      string
	props    vdom.Props
	children []*vdom.VNode
}

// El starts a builder for an arbitrary tag
func El(tag string) *ElementBuilder {
	return &ElementBuilder{tag: tag, props: vdom.Props{}}
}

// === HTML Elements ===

func Div() *ElementBuilder    { return El("div") }
func Span() *ElementBuilder   { return El("span") }
func Button() *ElementBuilder { return El("button") }
func H3() *ElementBuilder     { return El("h3") }
func P() *ElementBuilder      { return El("p") }
func Ul() *ElementBuilder     { return El("ul") }
func Li() *ElementBuilder     { return El("li") }
func A() *ElementBuilder      { return El("a") }

// === SVG Elements ===

func Svg() *ElementBuilder     { return El("svg") }
func G() *ElementBuilder       { return El("g") }
func Path() *ElementBuilder    { return El("path") }
func Line() *ElementBuilder    { return El("line") }
func Rect() *ElementBuilder    { return El("rect") }
func SvgText() *ElementBuilder { return El("text") }
func Circle() *ElementBuilder  { return El("circle") }

// Class sets the class attribute. Empty values are skipped.
func (b *ElementBuilder) Class(class string) *ElementBuilder {
	if class != "" {
		b.props["class"] = class
	}
	return b
}

// ID sets the id attribute
func (b *ElementBuilder) ID(id string) *ElementBuilder {
	b.props["id"] = id
	return b
}

// Text appends a text child
func (b *ElementBuilder) Text(text string) *ElementBuilder {
	b.children = append(b.children, vdom.NewText(text))
	return b
}

// Children appends child nodes. Nil children are dropped at Build.
func (b *ElementBuilder) Children(children ...*vdom.VNode) *ElementBuilder {
	b.children = append(b.children, children...)
	return b
}

// Build returns the finished node
func (b *ElementBuilder) Build() *vdom.VNode {
	var props vdom.Props
	if len(b.props) > 0 {
		props = b.props
	}
	return vdom.NewElement(b.tag, props, b.children...)
}

// Num formats a coordinate the way it is written into attributes
func Num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
