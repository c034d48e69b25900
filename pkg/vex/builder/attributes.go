package builder

// === Form Attributes ===

// Disabled sets the disabled attribute
func (b *ElementBuilder) Disabled(disabled bool) *ElementBuilder {
	if disabled {
		b.props["disabled"] = true
	}
	return b
}

// Type sets the type attribute
func (b *ElementBuilder) Type(t string) *ElementBuilder {
	b.props["type"] = t
	return b
}

// === Link Attributes ===

// Href sets the href attribute
func (b *ElementBuilder) Href(href string) *ElementBuilder {
	b.props["href"] = href
	return b
}

// === Accessibility ===

// Aria sets an aria-* attribute
func (b *ElementBuilder) Aria(key, value string) *ElementBuilder {
	b.props["aria-"+key] = value
	return b
}

// Role sets the role attribute
func (b *ElementBuilder) Role(role string) *ElementBuilder {
	b.props["role"] = role
	return b
}

// === Data Attributes ===

// Data sets a data attribute
func (b *ElementBuilder) Data(key, value string) *ElementBuilder {
	b.props["data-"+key] = value
	return b
}

// === SVG Geometry ===

// ViewBox sets the viewBox of an svg root
func (b *ElementBuilder) ViewBox(w, h float64) *ElementBuilder {
	b.props["viewBox"] = "0 0 " + Num(w) + " " + Num(h)
	return b
}

// Size sets width and height
func (b *ElementBuilder) Size(w, h float64) *ElementBuilder {
	b.props["width"] = w
	b.props["height"] = h
	return b
}

// D sets the path data
func (b *ElementBuilder) D(d string) *ElementBuilder {
	b.props["d"] = d
	return b
}

// XY sets the x and y attributes
func (b *ElementBuilder) XY(x, y float64) *ElementBuilder {
	b.props["x"] = x
	b.props["y"] = y
	return b
}

// Points sets both ends of a line
func (b *ElementBuilder) Points(x1, y1, x2, y2 float64) *ElementBuilder {
	b.props["x1"] = x1
	b.props["y1"] = y1
	b.props["x2"] = x2
	b.props["y2"] = y2
	return b
}

// TextAnchor sets text-anchor (start, middle, end)
func (b *ElementBuilder) TextAnchor(anchor string) *ElementBuilder {
	b.props["text-anchor"] = anchor
	return b
}

// === Custom Attributes ===

// Attr sets a custom attribute
func (b *ElementBuilder) Attr(key string, value interface{}) *ElementBuilder {
	b.props[key] = value
	return b
}
