package live

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/recera/pactrend/pkg/renderer/html"
	"github.com/recera/pactrend/pkg/trend/gesture"
	"github.com/recera/pactrend/pkg/vango/vdom"
)

// Protocol limits guarding the decoder against hostile lengths.
const (
	maxStringLen = 1 << 20
	maxTouches   = 10
	maxPatches   = 1 << 16
)

var (
	ErrShortFrame   = errors.New("live: frame too short")
	ErrWrongFrame   = errors.New("live: unexpected frame type")
	ErrUnknownEvent = errors.New("live: unknown event type")
	ErrTooLarge     = errors.New("live: length exceeds protocol limit")
)

// Encoder handles encoding of live protocol messages
type Encoder struct {
	w   io.Writer
	err error
}

// NewEncoder creates a new encoder
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Err returns the first write error. Later writes are skipped once one fails.
func (e *Encoder) Err() error { return e.err }

func (e *Encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

// WriteByte writes a single byte
func (e *Encoder) WriteByte(b byte) error {
	e.write([]byte{b})
	return e.err
}

// WriteUvarint writes an unsigned varint
func (e *Encoder) WriteUvarint(v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	e.write(buf[:n])
	return e.err
}

// WriteString writes a length-prefixed string
func (e *Encoder) WriteString(s string) error {
	e.WriteUvarint(uint64(len(s)))
	e.write([]byte(s))
	return e.err
}

// WriteFloat64 writes an IEEE 754 float, little endian. The browser reads it
// with DataView.getFloat64(offset, true).
func (e *Encoder) WriteFloat64(v float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	e.write(buf[:])
	return e.err
}

// WriteBool writes 0 or 1
func (e *Encoder) WriteBool(v bool) error {
	if v {
		return e.WriteByte(1)
	}
	return e.WriteByte(0)
}

// Decoder handles decoding of live protocol messages
type Decoder struct {
	r io.Reader
}

// NewDecoder creates a new decoder
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// ReadByte implements io.ByteReader
func (d *Decoder) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUvarint reads an unsigned varint
func (d *Decoder) ReadUvarint() (uint64, error) {
	return binary.ReadUvarint(d)
}

// ReadString reads a length-prefixed string
func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadUvarint()
	if err != nil {
		return "", err
	}
	if length > maxStringLen {
		return "", ErrTooLarge
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadFloat64 reads a little-endian IEEE 754 float
func (d *Decoder) ReadFloat64() (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

// ReadBool reads a byte written by WriteBool
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	return b != 0, err
}

// EncodeEvent encodes an event frame:
//
//	[FrameEvent][type][payload]
//
// The payload depends on the type: pointer events carry x; touch events a
// count then (id, x, y) per contact; wheel deltaY and the modifier flag;
// control the action name; resize width and height.
func EncodeEvent(evt Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.WriteByte(byte(FrameEvent))
	enc.WriteByte(byte(evt.Type))

	switch evt.Type {
	case EventPointerDown, EventPointerMove, EventPointerUp, EventPointerLeave, EventPointerCancel:
		enc.WriteFloat64(evt.X)
	case EventTouchStart, EventTouchMove, EventTouchEnd, EventTouchCancel:
		if len(evt.Touches) > maxTouches {
			return nil, ErrTooLarge
		}
		enc.WriteUvarint(uint64(len(evt.Touches)))
		for _, t := range evt.Touches {
			enc.WriteUvarint(uint64(t.ID))
			enc.WriteFloat64(t.X)
			enc.WriteFloat64(t.Y)
		}
	case EventWheel:
		enc.WriteFloat64(evt.DeltaY)
		enc.WriteBool(evt.Modifier)
	case EventControl:
		enc.WriteString(evt.Action)
	case EventResize:
		enc.WriteFloat64(evt.Width)
		enc.WriteFloat64(evt.Height)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownEvent, byte(evt.Type))
	}
	if err := enc.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEvent decodes a frame written by EncodeEvent
func DecodeEvent(data []byte) (*Event, error) {
	if len(data) < 2 {
		return nil, ErrShortFrame
	}
	if data[0] != byte(FrameEvent) {
		return nil, ErrWrongFrame
	}

	evt := &Event{Type: EventType(data[1])}
	dec := NewDecoder(bytes.NewReader(data[2:]))
	var err error

	switch evt.Type {
	case EventPointerDown, EventPointerMove, EventPointerUp, EventPointerLeave, EventPointerCancel:
		evt.X, err = dec.ReadFloat64()
	case EventTouchStart, EventTouchMove, EventTouchEnd, EventTouchCancel:
		evt.Touches, err = decodeTouches(dec)
	case EventWheel:
		if evt.DeltaY, err = dec.ReadFloat64(); err == nil {
			evt.Modifier, err = dec.ReadBool()
		}
	case EventControl:
		evt.Action, err = dec.ReadString()
	case EventResize:
		if evt.Width, err = dec.ReadFloat64(); err == nil {
			evt.Height, err = dec.ReadFloat64()
		}
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownEvent, data[1])
	}
	if err != nil {
		return nil, fmt.Errorf("decode event 0x%02x payload: %w", data[1], err)
	}
	return evt, nil
}

func decodeTouches(dec *Decoder) ([]gesture.Touch, error) {
	n, err := dec.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n > maxTouches {
		return nil, ErrTooLarge
	}
	touches := make([]gesture.Touch, n)
	for i := range touches {
		id, err := dec.ReadUvarint()
		if err != nil {
			return nil, err
		}
		touches[i].ID = int(id)
		if touches[i].X, err = dec.ReadFloat64(); err != nil {
			return nil, err
		}
		if touches[i].Y, err = dec.ReadFloat64(); err != nil {
			return nil, err
		}
	}
	return touches, nil
}

// EncodePatches encodes a patch frame:
//
//	[FramePatches][seq][count] then per patch [op][path] and
//	ReplaceText: text | SetAttribute: key value | RemoveAttribute: key |
//	InsertNode, ReplaceNode: markup | RemoveNode: nothing
//
// Paths are dotted child indices relative to the mounted root element.
func EncodePatches(seq uint64, patches []vdom.Patch) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	enc.WriteByte(byte(FramePatches))
	enc.WriteUvarint(seq)
	enc.WriteUvarint(uint64(len(patches)))

	for _, patch := range patches {
		enc.WriteByte(byte(patch.Op))
		enc.WriteString(vdom.PathString(patch.Path))

		switch patch.Op {
		case vdom.OpReplaceText:
			enc.WriteString(patch.Value)
		case vdom.OpSetAttribute:
			enc.WriteString(patch.Key)
			enc.WriteString(patch.Value)
		case vdom.OpRemoveAttribute:
			enc.WriteString(patch.Key)
		case vdom.OpRemoveNode:
		case vdom.OpInsertNode, vdom.OpReplaceNode:
			markup := ""
			if patch.Node != nil {
				var err error
				if markup, err = html.RenderToString(patch.Node); err != nil {
					return nil, fmt.Errorf("render %s: %w", patch, err)
				}
			}
			enc.WriteString(markup)
		default:
			return nil, fmt.Errorf("live: cannot encode patch op 0x%02x", byte(patch.Op))
		}
	}

	if err := enc.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePatches decodes a frame written by EncodePatches
func DecodePatches(data []byte) (seq uint64, patches []WirePatch, err error) {
	if len(data) < 1 {
		return 0, nil, ErrShortFrame
	}
	if data[0] != byte(FramePatches) {
		return 0, nil, ErrWrongFrame
	}
	dec := NewDecoder(bytes.NewReader(data[1:]))

	if seq, err = dec.ReadUvarint(); err != nil {
		return 0, nil, err
	}
	count, err := dec.ReadUvarint()
	if err != nil {
		return 0, nil, err
	}
	if count > maxPatches {
		return 0, nil, ErrTooLarge
	}

	patches = make([]WirePatch, 0, count)
	for i := uint64(0); i < count; i++ {
		var p WirePatch
		if p.Op, err = dec.ReadByte(); err != nil {
			return 0, nil, err
		}
		if p.Path, err = dec.ReadString(); err != nil {
			return 0, nil, err
		}
		switch vdom.PatchOp(p.Op) {
		case vdom.OpReplaceText:
			p.Value, err = dec.ReadString()
		case vdom.OpSetAttribute:
			if p.Key, err = dec.ReadString(); err == nil {
				p.Value, err = dec.ReadString()
			}
		case vdom.OpRemoveAttribute:
			p.Key, err = dec.ReadString()
		case vdom.OpRemoveNode:
		case vdom.OpInsertNode, vdom.OpReplaceNode:
			p.HTML, err = dec.ReadString()
		default:
			err = fmt.Errorf("live: unknown patch op 0x%02x", p.Op)
		}
		if err != nil {
			return 0, nil, err
		}
		patches = append(patches, p)
	}
	return seq, patches, nil
}

// EncodeControl encodes a control frame: [FrameControl][name][uvarint args...]
func EncodeControl(name string, args ...uint64) []byte {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.WriteByte(byte(FrameControl))
	enc.WriteString(name)
	for _, a := range args {
		enc.WriteUvarint(a)
	}
	return buf.Bytes()
}

// DecodeControl returns the control message name and a decoder positioned
// at its arguments
func DecodeControl(data []byte) (string, *Decoder, error) {
	if len(data) < 1 {
		return "", nil, ErrShortFrame
	}
	if data[0] != byte(FrameControl) {
		return "", nil, ErrWrongFrame
	}
	dec := NewDecoder(bytes.NewReader(data[1:]))
	name, err := dec.ReadString()
	if err != nil {
		return "", nil, err
	}
	return name, dec, nil
}
