package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a Go peer of the browser shim. It speaks the same frames and is
// used by tests and headless tooling.
type Client struct {
	conn *websocket.Conn
}

// Frame is one decoded server message
type Frame struct {
	Type    MessageType
	Seq     uint64
	Patches []WirePatch
	Control string
	Raw     []byte
}

// Dial connects to a live endpoint (ws:// or wss://)
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Send encodes and writes one event
func (c *Client) Send(evt Event) error {
	data, err := EncodeEvent(evt)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Ping sends a protocol-level PING; the server answers with a PONG frame
func (c *Client) Ping() error {
	return c.conn.WriteMessage(websocket.BinaryMessage, EncodeControl("PING"))
}

// Hello announces the client's resume state
func (c *Client) Hello(resumable bool, lastSeq uint64) error {
	var r uint64
	if resumable {
		r = 1
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, EncodeControl("HELLO", r, lastSeq))
}

// SetReadDeadline bounds the next reads
func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Next blocks for the next binary frame
func (c *Client) Next() (*Frame, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		f := &Frame{Type: MessageType(data[0]), Raw: data}
		switch f.Type {
		case FramePatches:
			f.Seq, f.Patches, err = DecodePatches(data)
		case FrameControl:
			var dec *Decoder
			f.Control, dec, err = DecodeControl(data)
			if err == nil && f.Control == "HELLO" {
				f.Seq, err = dec.ReadUvarint()
			}
		default:
			err = errors.New("live: unexpected frame from server")
		}
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// Close closes the connection
func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
