// Package html serializes vdom trees. Output has no whitespace between nodes
// and attributes in sorted order, so a browser parsing it builds a DOM with
// the same child indices as the tree and path-addressed patches line up.
package html

import (
	"bufio"
	"html"
	"io"
	"strings"

	"github.com/recera/pactrend/pkg/vango/vdom"
)

// Tags with no closing tag.
var voidTags = set("area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta", "source", "track", "wbr")

// SVG shapes written self-closing when childless.
var svgShapes = set("circle", "ellipse", "line", "path", "polygon", "polyline", "rect", "stop", "use")

// Attributes present or absent rather than valued.
var flagAttrs = set("async", "autofocus", "checked", "defer", "disabled", "multiple", "readonly", "required", "selected")

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

// RenderTo writes node to w. A nil node writes nothing.
func RenderTo(w io.Writer, node *vdom.VNode) error {
	if node == nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	writeNode(bw, node, false)
	return bw.Flush()
}

// RenderToString renders node into a string
func RenderToString(node *vdom.VNode) (string, error) {
	var b strings.Builder
	if err := RenderTo(&b, node); err != nil {
		return "", err
	}
	return b.String(), nil
}

// writeNode relies on bufio.Writer keeping the first error, so write results
// are checked once at Flush.
func writeNode(w *bufio.Writer, n *vdom.VNode, raw bool) {
	if n.Kind == vdom.KindText {
		if raw {
			w.WriteString(n.Text)
		} else {
			w.WriteString(html.EscapeString(n.Text))
		}
		return
	}
	if n.Kind != vdom.KindElement {
		return
	}

	w.WriteByte('<')
	w.WriteString(n.Tag)
	for _, key := range n.AttrKeys() {
		writeAttr(w, key, n)
	}

	switch {
	case svgShapes[n.Tag] && len(n.Kids) == 0:
		w.WriteString("/>")
		return
	case voidTags[n.Tag]:
		w.WriteByte('>')
		return
	}
	w.WriteByte('>')

	raw = n.Tag == "script" || n.Tag == "style"
	for i := range n.Kids {
		writeNode(w, &n.Kids[i], raw)
	}
	w.WriteString("</")
	w.WriteString(n.Tag)
	w.WriteByte('>')
}

func writeAttr(w *bufio.Writer, key string, n *vdom.VNode) {
	if flagAttrs[key] {
		if on, ok := n.Props[key].(bool); ok && on {
			w.WriteByte(' ')
			w.WriteString(key)
		}
		return
	}

	val := n.Attr(key)
	if (key == "href" || key == "src") && unsafeURL(val) {
		val = "#"
	}
	w.WriteByte(' ')
	w.WriteString(key)
	w.WriteString(`="`)
	w.WriteString(html.EscapeString(val))
	w.WriteByte('"')
}

func unsafeURL(u string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(u)), "javascript:")
}
