// Package viewport owns the zoom/pan transform of a trend chart and converts
// between data-index space and screen pixels.
//
// The engine is not safe for concurrent use. Hosts that deliver input from
// several goroutines serialise access themselves (see trendchart.Chart).
package viewport

import (
	"errors"
	"math"
)

var (
	// ErrInvalidDimensions is returned when a resize carries a non-positive or
	// non-finite size. The previous transform is kept.
	ErrInvalidDimensions = errors.New("viewport: invalid dimensions")

	// ErrInvalidFactor is returned for zoom factors or target scales that are
	// zero, negative, NaN or infinite.
	ErrInvalidFactor = errors.New("viewport: invalid zoom factor")
)

// Dimensions is the pixel size of the drawing surface.
type Dimensions struct {
	Width  float64
	Height float64
}

// Valid reports whether both sides are positive finite numbers.
func (d Dimensions) Valid() bool {
	return finite(d.Width) && finite(d.Height) && d.Width > 0 && d.Height > 0
}

// Transform is a read-only snapshot of the engine state.
type Transform struct {
	Scale  float64
	Offset float64
	// MaxOffsetForScale is width*(1-scale), the far offset bound.
	MaxOffsetForScale float64
}

// Config tunes the engine. Zero fields take defaults.
type Config struct {
	Padding  float64 // horizontal inset on both sides, default 40
	MinScale float64 // default 0.5
	MaxScale float64 // default 5
	ZoomStep float64 // factor used by ZoomIn/ZoomOut buttons, default 1.2
}

func (c Config) withDefaults() Config {
	d := Config{
		Padding:  40,
		MinScale: 0.5,
		MaxScale: 5,
		ZoomStep: 1.2,
	}
	if c.Padding > 0 {
		d.Padding = c.Padding
	}
	if c.MinScale > 0 {
		d.MinScale = c.MinScale
	}
	if c.MaxScale > 0 {
		d.MaxScale = c.MaxScale
	}
	if d.MaxScale < d.MinScale {
		d.MaxScale = d.MinScale
	}
	if c.ZoomStep > 1 {
		d.ZoomStep = c.ZoomStep
	}
	return d
}

// Engine holds the (scale, offset) pair and enforces the clamping rules on
// every mutation.
type Engine struct {
	cfg    Config
	dims   Dimensions
	scale  float64
	offset float64
}

// New returns an engine at scale 1, offset 0 with zero dimensions. Call
// SetDimensions before mapping indices to pixels.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg.withDefaults(),
		scale: 1,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Dimensions returns the last accepted surface size.
func (e *Engine) Dimensions() Dimensions { return e.dims }

// Transform returns the current transform.
func (e *Engine) Transform() Transform {
	return Transform{
		Scale:             e.scale,
		Offset:            e.offset,
		MaxOffsetForScale: e.dims.Width * (1 - e.scale),
	}
}

// Scale returns the current scale.
func (e *Engine) Scale() float64 { return e.scale }

// Offset returns the current horizontal translation in pixels.
func (e *Engine) Offset() float64 { return e.offset }

// SetDimensions records a new surface size and re-clamps the offset against
// the bound derived from it. The scale is never changed.
func (e *Engine) SetDimensions(width, height float64) error {
	d := Dimensions{Width: width, Height: height}
	if !d.Valid() {
		return ErrInvalidDimensions
	}
	e.dims = d
	e.offset = e.clampOffset(e.offset, e.scale)
	return nil
}

// ZoomBy multiplies the scale by factor and re-clamps the offset.
func (e *Engine) ZoomBy(factor float64) error {
	if !finite(factor) || factor <= 0 {
		return ErrInvalidFactor
	}
	e.scale = e.clampScale(e.scale * factor)
	e.offset = e.clampOffset(e.offset, e.scale)
	return nil
}

// ZoomAt multiplies the scale by factor keeping the content under focalX in
// place.
func (e *Engine) ZoomAt(factor, focalX float64) error {
	if !finite(factor) || factor <= 0 {
		return ErrInvalidFactor
	}
	return e.ZoomTo(e.scale*factor, focalX)
}

// ZoomTo sets an absolute scale around focalX. The content point under the
// focal pixel stays under it unless the offset bound interferes.
func (e *Engine) ZoomTo(target, focalX float64) error {
	if !finite(target) || target <= 0 {
		return ErrInvalidFactor
	}
	if !finite(focalX) {
		return e.ZoomBy(target / e.scale)
	}
	oldScale := e.scale
	newScale := e.clampScale(target)

	// focal = pad + u*s + offset must hold for the same u before and after.
	rel := focalX - e.cfg.Padding
	newOffset := rel - (rel-e.offset)*newScale/oldScale

	e.scale = newScale
	e.offset = e.clampOffset(newOffset, newScale)
	return nil
}

// ZoomIn applies one ZoomStep around no focal point.
func (e *Engine) ZoomIn() { _ = e.ZoomBy(e.cfg.ZoomStep) }

// ZoomOut undoes one ZoomStep.
func (e *Engine) ZoomOut() { _ = e.ZoomBy(1 / e.cfg.ZoomStep) }

// PanBy sets the offset to offsetAtStart+delta, clamped. Deltas are measured
// from the start of a gesture rather than accumulated per event.
func (e *Engine) PanBy(delta, offsetAtStart float64) {
	if !finite(delta) || !finite(offsetAtStart) {
		return
	}
	e.offset = e.clampOffset(offsetAtStart+delta, e.scale)
}

// Reset restores scale 1 and offset 0.
func (e *Engine) Reset() {
	e.scale = 1
	e.offset = 0
}

// OffsetBounds returns the legal offset interval for the current scale.
func (e *Engine) OffsetBounds() (lo, hi float64) {
	return e.bounds(e.scale)
}

// XStep returns the unscaled pixel distance between consecutive indices.
func (e *Engine) XStep(dataCount int) float64 {
	if dataCount <= 1 {
		return 0
	}
	inner := e.dims.Width - 2*e.cfg.Padding
	if inner < 0 {
		inner = 0
	}
	return inner / float64(dataCount-1)
}

// DataIndexToPixel maps a data index to a screen x coordinate.
func (e *Engine) DataIndexToPixel(index float64, dataCount int) float64 {
	return e.cfg.Padding + index*e.XStep(dataCount)*e.scale + e.offset
}

// PixelToDataIndex is the inverse of DataIndexToPixel. With fewer than two
// points, or a degenerate width, every pixel maps to index 0.
func (e *Engine) PixelToDataIndex(x float64, dataCount int) float64 {
	step := e.XStep(dataCount) * e.scale
	if step == 0 {
		return 0
	}
	return (x - e.cfg.Padding - e.offset) / step
}

func (e *Engine) clampScale(s float64) float64 {
	return math.Max(e.cfg.MinScale, math.Min(e.cfg.MaxScale, s))
}

// bounds returns [width*(1-scale), 0] when zoomed in. When zoomed out the
// content is narrower than the surface and may sit anywhere inside it, so the
// interval flips to [0, width*(1-scale)].
func (e *Engine) bounds(scale float64) (lo, hi float64) {
	far := e.dims.Width * (1 - scale)
	if far <= 0 {
		return far, 0
	}
	return 0, far
}

func (e *Engine) clampOffset(offset, scale float64) float64 {
	lo, hi := e.bounds(scale)
	if !finite(offset) {
		offset = 0
	}
	return math.Max(lo, math.Min(hi, offset))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
