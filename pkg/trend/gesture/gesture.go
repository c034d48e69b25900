// Package gesture turns pointer, touch and wheel input into pan and
// pinch-zoom requests against a viewport.
//
// A Recognizer is a synchronous state machine: every transition completes
// inside Handle and nothing blocks.
package gesture

import (
	"errors"
	"math"

	"github.com/recera/pactrend/pkg/trend/viewport"
)

// ErrDegenerateGesture is returned when a pinch frame is skipped because the
// touches are coincident. The session stays in Pinching.
var ErrDegenerateGesture = errors.New("gesture: degenerate pinch distance")

// Target receives transform updates. *viewport.Engine satisfies it.
type Target interface {
	Transform() viewport.Transform
	PanBy(delta, offsetAtStart float64)
	ZoomBy(factor float64) error
	ZoomTo(scale, focalX float64) error
}

// Kind identifies an input event.
type Kind uint8

const (
	PointerDown Kind = iota + 1
	PointerMove
	PointerUp
	PointerLeave
	PointerCancel
	TouchStart
	TouchMove
	TouchEnd
	TouchCancel
	Wheel
)

var kindNames = map[Kind]string{
	PointerDown:   "pointerdown",
	PointerMove:   "pointermove",
	PointerUp:     "pointerup",
	PointerLeave:  "pointerleave",
	PointerCancel: "pointercancel",
	TouchStart:    "touchstart",
	TouchMove:     "touchmove",
	TouchEnd:      "touchend",
	TouchCancel:   "touchcancel",
	Wheel:         "wheel",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Touch is one active contact point in surface pixels.
type Touch struct {
	ID   int
	X, Y float64
}

// Event is a host input event translated into surface pixels.
type Event struct {
	Kind Kind
	// X is the pointer position for pointer events.
	X float64
	// Touches lists every contact still on the surface (touch events).
	Touches []Touch
	// DeltaY is the wheel delta; positive scrolls down (zoom out).
	DeltaY float64
	// Modifier is set when ctrl/meta was held during a wheel event.
	Modifier bool
}

// State is the tagged gesture state: Idle, Panning or Pinching.
type State interface {
	isState()
	String() string
}

// Idle means no gesture is in progress.
type Idle struct{}

// Panning is a single-pointer drag.
type Panning struct {
	StartPointerX float64
	OffsetAtStart float64
}

// Pinching is a two-touch zoom.
type Pinching struct {
	InitialDistance float64
	ScaleAtStart    float64
}

func (Idle) isState()     {}
func (Panning) isState()  {}
func (Pinching) isState() {}

func (Idle) String() string     { return "idle" }
func (Panning) String() string  { return "panning" }
func (Pinching) String() string { return "pinching" }

// Wheel zoom factors for a modifier-held wheel step.
const (
	WheelZoomIn  = 1.1
	WheelZoomOut = 0.9
)

// Recognizer tracks one gesture session per surface.
type Recognizer struct {
	target Target
	state  State
}

// New returns an idle recognizer driving target.
func New(target Target) *Recognizer {
	return &Recognizer{target: target, state: Idle{}}
}

// State returns the current gesture state.
func (r *Recognizer) State() State { return r.state }

// Reset drops any in-progress gesture without touching the target.
func (r *Recognizer) Reset() { r.state = Idle{} }

// Handle applies one input event. changed reports whether the target
// transform was asked to update. A DegenerateGesture error is informational;
// the recognizer remains usable.
func (r *Recognizer) Handle(ev Event) (changed bool, err error) {
	switch ev.Kind {
	case PointerDown:
		if _, ok := r.state.(Pinching); ok {
			return false, nil
		}
		r.beginPan(ev.X)
		return false, nil

	case PointerMove:
		return r.pan(ev.X), nil

	case PointerUp, PointerLeave, PointerCancel, TouchCancel:
		r.state = Idle{}
		return false, nil

	case TouchStart:
		switch {
		case len(ev.Touches) >= 2:
			r.beginPinch(ev.Touches[0], ev.Touches[1])
		case len(ev.Touches) == 1:
			if _, ok := r.state.(Idle); ok {
				r.beginPan(ev.Touches[0].X)
			}
		}
		return false, nil

	case TouchMove:
		switch st := r.state.(type) {
		case Pinching:
			if len(ev.Touches) < 2 {
				r.state = Idle{}
				return false, nil
			}
			return r.pinch(st, ev.Touches[0], ev.Touches[1])
		case Panning:
			if len(ev.Touches) == 0 {
				return false, nil
			}
			return r.pan(ev.Touches[0].X), nil
		}
		return false, nil

	case TouchEnd:
		switch r.state.(type) {
		case Pinching:
			if len(ev.Touches) < 2 {
				r.state = Idle{}
			}
		case Panning:
			if len(ev.Touches) == 0 {
				r.state = Idle{}
			}
		}
		return false, nil

	case Wheel:
		if !ev.Modifier || ev.DeltaY == 0 {
			return false, nil
		}
		factor := WheelZoomIn
		if ev.DeltaY > 0 {
			factor = WheelZoomOut
		}
		if err := r.target.ZoomBy(factor); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (r *Recognizer) beginPan(x float64) {
	r.state = Panning{
		StartPointerX: x,
		OffsetAtStart: r.target.Transform().Offset,
	}
}

func (r *Recognizer) beginPinch(a, b Touch) {
	r.state = Pinching{
		InitialDistance: distance(a, b),
		ScaleAtStart:    r.target.Transform().Scale,
	}
}

func (r *Recognizer) pan(x float64) bool {
	st, ok := r.state.(Panning)
	if !ok {
		return false
	}
	r.target.PanBy(x-st.StartPointerX, st.OffsetAtStart)
	return true
}

func (r *Recognizer) pinch(st Pinching, a, b Touch) (bool, error) {
	d := distance(a, b)
	if st.InitialDistance == 0 {
		// Coincident start: adopt the first usable distance as the baseline.
		if d > 0 {
			r.state = Pinching{InitialDistance: d, ScaleAtStart: r.target.Transform().Scale}
		}
		return false, ErrDegenerateGesture
	}
	if d == 0 {
		return false, ErrDegenerateGesture
	}
	focal := (a.X + b.X) / 2
	if err := r.target.ZoomTo(st.ScaleAtStart*d/st.InitialDistance, focal); err != nil {
		return false, err
	}
	return true, nil
}

func distance(a, b Touch) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
