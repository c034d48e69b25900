package live

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recera/pactrend/pkg/trend/gesture"
	"github.com/recera/pactrend/pkg/vango/vdom"
)

func TestEventRoundTrip(t *testing.T) {
	events := []Event{
		{Type: EventPointerDown, X: 120.5},
		{Type: EventPointerMove, X: -3},
		{Type: EventPointerCancel},
		{Type: EventTouchStart, Touches: []gesture.Touch{{ID: 1, X: 10, Y: 20}, {ID: 7, X: 300.25, Y: 4}}},
		{Type: EventTouchEnd, Touches: []gesture.Touch{}},
		{Type: EventWheel, DeltaY: -120, Modifier: true},
		{Type: EventControl, Action: "zoom-in"},
		{Type: EventResize, Width: 812, Height: 240},
	}
	for _, evt := range events {
		data, err := EncodeEvent(evt)
		require.NoError(t, err, "type 0x%02x", byte(evt.Type))
		got, err := DecodeEvent(data)
		require.NoError(t, err)
		assert.Equal(t, evt, *got)
	}
}

func TestEncodeEvent_Errors(t *testing.T) {
	_, err := EncodeEvent(Event{Type: 0x7F})
	assert.True(t, errors.Is(err, ErrUnknownEvent))

	_, err = EncodeEvent(Event{Type: EventTouchMove, Touches: make([]gesture.Touch, maxTouches+1)})
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestDecodeEvent_Errors(t *testing.T) {
	_, err := DecodeEvent([]byte{byte(FrameEvent)})
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = DecodeEvent([]byte{byte(FramePatches), byte(EventWheel)})
	assert.ErrorIs(t, err, ErrWrongFrame)

	_, err = DecodeEvent([]byte{byte(FrameEvent), 0x55})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	// Truncated float.
	_, err = DecodeEvent([]byte{byte(FrameEvent), byte(EventPointerDown), 1, 2, 3})
	assert.Error(t, err)

	// Touch count above the limit.
	_, err = DecodeEvent([]byte{byte(FrameEvent), byte(EventTouchStart), 50})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestEvent_Gesture(t *testing.T) {
	evt := Event{Type: EventWheel, DeltaY: -1, Modifier: true}
	require.True(t, evt.IsGesture())
	g := evt.Gesture()
	assert.Equal(t, gesture.Wheel, g.Kind)
	assert.Equal(t, -1.0, g.DeltaY)
	assert.True(t, g.Modifier)

	assert.False(t, Event{Type: EventControl}.IsGesture())
	assert.False(t, Event{Type: EventResize}.IsGesture())
}

func TestPatchesRoundTrip(t *testing.T) {
	node := vdom.NewElement("path", vdom.Props{"d": "M 0,0 L 1,1", "class": "chart-line"})
	patches := []vdom.Patch{
		{Op: vdom.OpReplaceText, Path: []int{0, 1, 0}, Value: "zoom 1.20x"},
		{Op: vdom.OpSetAttribute, Path: []int{2}, Key: "d", Value: "M 1,2"},
		{Op: vdom.OpRemoveAttribute, Path: []int{2}, Key: "disabled"},
		{Op: vdom.OpRemoveNode, Path: []int{3, 4}},
		{Op: vdom.OpInsertNode, Path: []int{3}, Node: node},
		{Op: vdom.OpReplaceNode, Path: nil, Node: vdom.NewText("a < b")},
	}

	data, err := EncodePatches(42, patches)
	require.NoError(t, err)

	seq, got, err := DecodePatches(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)
	require.Len(t, got, len(patches))

	assert.Equal(t, WirePatch{Op: byte(vdom.OpReplaceText), Path: "0.1.0", Value: "zoom 1.20x"}, got[0])
	assert.Equal(t, WirePatch{Op: byte(vdom.OpSetAttribute), Path: "2", Key: "d", Value: "M 1,2"}, got[1])
	assert.Equal(t, WirePatch{Op: byte(vdom.OpRemoveAttribute), Path: "2", Key: "disabled"}, got[2])
	assert.Equal(t, WirePatch{Op: byte(vdom.OpRemoveNode), Path: "3.4"}, got[3])
	assert.Equal(t, `<path class="chart-line" d="M 0,0 L 1,1"/>`, got[4].HTML)
	assert.Equal(t, "", got[5].Path)
	assert.Equal(t, "a &lt; b", got[5].HTML)
}

func TestDecodePatches_Errors(t *testing.T) {
	_, _, err := DecodePatches(nil)
	assert.ErrorIs(t, err, ErrShortFrame)

	_, _, err = DecodePatches([]byte{byte(FrameControl)})
	assert.ErrorIs(t, err, ErrWrongFrame)

	// Count says one patch, nothing follows.
	_, _, err = DecodePatches([]byte{byte(FramePatches), 1, 1})
	assert.Error(t, err)

	// Unknown op.
	_, _, err = DecodePatches([]byte{byte(FramePatches), 1, 1, 0x77, 0})
	assert.Error(t, err)
}

func TestControlRoundTrip(t *testing.T) {
	data := EncodeControl("HELLO", 1, 300)
	name, dec, err := DecodeControl(data)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", name)

	a, err := dec.ReadUvarint()
	require.NoError(t, err)
	b, err := dec.ReadUvarint()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 300}, []uint64{a, b})

	_, _, err = DecodeControl(pointerUpFrame(t))
	assert.ErrorIs(t, err, ErrWrongFrame)
}

func pointerUpFrame(t *testing.T) []byte {
	t.Helper()
	data, err := EncodeEvent(Event{Type: EventPointerUp, X: 1})
	require.NoError(t, err)
	return data
}

func TestDecoder_StringLimit(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.WriteUvarint(maxStringLen + 1)
	require.NoError(t, enc.Err())

	_, err := NewDecoder(&buf).ReadString()
	assert.ErrorIs(t, err, ErrTooLarge)
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("disk full")
}

func TestEncoder_StickyError(t *testing.T) {
	w := &failingWriter{}
	enc := NewEncoder(w)
	enc.WriteByte(1)
	enc.WriteString("abc")
	enc.WriteFloat64(2)
	assert.EqualError(t, enc.Err(), "disk full")
	assert.Equal(t, 1, w.n, "writes after the first failure are skipped")
}
