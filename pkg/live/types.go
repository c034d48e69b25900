package live

import "github.com/recera/pactrend/pkg/trend/gesture"

// MessageType represents the type of live protocol message
type MessageType uint8

const (
	// Frame types
	FramePatches MessageType = 0x00
	FrameEvent   MessageType = 0x01
	FrameControl MessageType = 0x02
)

// EventType represents client-side event types
type EventType uint8

const (
	EventPointerDown   EventType = 0x01
	EventPointerMove   EventType = 0x02
	EventPointerUp     EventType = 0x03
	EventPointerLeave  EventType = 0x04
	EventPointerCancel EventType = 0x05
	EventTouchStart    EventType = 0x06
	EventTouchMove     EventType = 0x07
	EventTouchEnd      EventType = 0x08
	EventTouchCancel   EventType = 0x09
	EventWheel         EventType = 0x0A
	EventControl       EventType = 0x0B // toolbar button, carries an action name
	EventResize        EventType = 0x0C // surface size in CSS pixels
)

var gestureKinds = map[EventType]gesture.Kind{
	EventPointerDown:   gesture.PointerDown,
	EventPointerMove:   gesture.PointerMove,
	EventPointerUp:     gesture.PointerUp,
	EventPointerLeave:  gesture.PointerLeave,
	EventPointerCancel: gesture.PointerCancel,
	EventTouchStart:    gesture.TouchStart,
	EventTouchMove:     gesture.TouchMove,
	EventTouchEnd:      gesture.TouchEnd,
	EventTouchCancel:   gesture.TouchCancel,
	EventWheel:         gesture.Wheel,
}

// Event represents a client-side event in surface coordinates
type Event struct {
	Type EventType

	// Pointer events
	X float64
	// Touch events: every contact still on the surface
	Touches []gesture.Touch
	// Wheel events
	DeltaY   float64
	Modifier bool
	// Control events
	Action string
	// Resize events
	Width, Height float64
}

// IsGesture reports whether the event feeds the gesture recognizer
func (e Event) IsGesture() bool {
	_, ok := gestureKinds[e.Type]
	return ok
}

// Gesture converts the event for the recognizer
func (e Event) Gesture() gesture.Event {
	return gesture.Event{
		Kind:     gestureKinds[e.Type],
		X:        e.X,
		Touches:  e.Touches,
		DeltaY:   e.DeltaY,
		Modifier: e.Modifier,
	}
}

// WirePatch is a patch as it travels to the browser. Node-carrying ops hold
// the subtree serialised as markup.
type WirePatch struct {
	Op    byte
	Path  string
	Key   string
	Value string
	HTML  string
}
