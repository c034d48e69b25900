package vdom

import "sort"

// VKind represents the type of virtual node
type VKind uint8

const (
	// KindElement represents an HTML or SVG element
	KindElement VKind = iota
	// KindText represents a text node
	KindText
)

// Props represents the attributes of a VNode. Values are rendered with
// fmt's %v verb; props whose name starts with "on" are server-side handlers
// and never reach the wire.
type Props map[string]any

// VNode represents a virtual DOM node
// This struct is immutable - once created, it should never be modified
type VNode struct {
	// Kind determines the type of this node
	Kind VKind

	// Tag is the element tag name (e.g., "svg", "path")
	// Only used when Kind == KindElement
	Tag string

	// Props contains all attributes for this node
	Props Props

	// Kids contains child nodes
	// For KindText, this is nil
	Kids []VNode

	// Text content (only used when Kind == KindText)
	Text string
}

// NewElement creates a new element VNode. Nil children are skipped.
func NewElement(tag string, props Props, children ...*VNode) *VNode {
	kids := make([]VNode, 0, len(children))
	for _, child := range children {
		if child != nil {
			kids = append(kids, *child)
		}
	}

	return &VNode{
		Kind:  KindElement,
		Tag:   tag,
		Props: props,
		Kids:  kids,
	}
}

// NewText creates a new text VNode
func NewText(text string) *VNode {
	return &VNode{
		Kind: KindText,
		Text: text,
	}
}

// Attr returns the string form of an attribute, or "" when absent.
func (v VNode) Attr(key string) string {
	if val, ok := v.Props[key]; ok {
		return propToString(val)
	}
	return ""
}

// AttrKeys returns the wire-visible attribute names in sorted order.
func (v VNode) AttrKeys() []string {
	keys := make([]string, 0, len(v.Props))
	for k := range v.Props {
		if IsHandlerProp(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Find returns the first node in depth-first order for which match is true.
func (v *VNode) Find(match func(*VNode) bool) *VNode {
	if match(v) {
		return v
	}
	for i := range v.Kids {
		if n := v.Kids[i].Find(match); n != nil {
			return n
		}
	}
	return nil
}

// At resolves a child-index path.
func (v *VNode) At(path []int) *VNode {
	n := v
	for _, i := range path {
		if i < 0 || i >= len(n.Kids) {
			return nil
		}
		n = &n.Kids[i]
	}
	return n
}

// IsHandlerProp reports whether key names a server-side handler ("onClick").
func IsHandlerProp(key string) bool {
	return len(key) > 2 && key[0] == 'o' && key[1] == 'n'
}

// Clone returns a deep copy of the tree. Props maps are copied; values are
// shared.
func (v *VNode) Clone() *VNode {
	if v == nil {
		return nil
	}
	c := *v
	if v.Props != nil {
		c.Props = make(Props, len(v.Props))
		for k, val := range v.Props {
			c.Props[k] = val
		}
	}
	if v.Kids != nil {
		c.Kids = make([]VNode, len(v.Kids))
		for i := range v.Kids {
			c.Kids[i] = *v.Kids[i].Clone()
		}
	}
	return &c
}
