package live

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recera/pactrend/pkg/vango/vdom"
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrSessionClosed  = errors.New("session closed")
)

// SessionHandler drives one live session. Mount runs after the HELLO frame
// has been queued; HandleEvent runs on the session's read goroutine; Close
// runs once when the connection ends.
type SessionHandler interface {
	Mount(s *Session) error
	HandleEvent(evt *Event) error
	Close()
}

// HandlerFactory builds the handler for an upgrade request. Returning an
// error rejects the request before the upgrade.
type HandlerFactory func(r *http.Request) (SessionHandler, error)

// HTTPError lets a factory pick the rejection status
type HTTPError struct {
	Status int
	Err    error
}

func (e *HTTPError) Error() string { return e.Err.Error() }
func (e *HTTPError) Unwrap() error { return e.Err }

// Server handles WebSocket connections for live updates
type Server struct {
	upgrader websocket.Upgrader
	prefix   string
	factory  HandlerFactory
	sessions map[string]*Session
	mu       sync.RWMutex

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	sendBuffer   int
}

// Option configures a Server
type Option func(*Server)

// WithPingInterval sets how often the writer pings the client. Zero keeps
// the default.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithReadTimeout sets how long a silent connection is kept. Zero keeps the
// default.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithCheckOrigin replaces the origin check
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// NewServer creates a live server for sessions under prefix ("/live/").
func NewServer(prefix string, factory HandlerFactory, opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		prefix:       prefix,
		factory:      factory,
		sessions:     make(map[string]*Session),
		pingInterval: 54 * time.Second,
		readTimeout:  300 * time.Second,
		writeTimeout: 10 * time.Second,
		sendBuffer:   256,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades a request for prefix+sessionID into a live session
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, s.prefix)
	if sessionID == "" || sessionID == r.URL.Path || strings.Contains(sessionID, "/") {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	handler, err := s.factory(r)
	if err != nil {
		status := http.StatusBadRequest
		var he *HTTPError
		if errors.As(err, &he) {
			status = he.Status
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Live Server] Failed to upgrade connection: %v", err)
		handler.Close()
		return
	}

	session := s.register(sessionID, conn, handler)
	go session.handleConnection()
}

// register installs a new session, closing any connection already using the id
func (s *Server) register(sessionID string, conn *websocket.Conn, handler SessionHandler) *Session {
	session := &Session{
		ID:        sessionID,
		server:    s,
		conn:      conn,
		handler:   handler,
		sendChan:  make(chan []byte, s.sendBuffer),
		closeChan: make(chan struct{}),
		logger:    slog.Default().With("session", sessionID),
	}

	s.mu.Lock()
	old := s.sessions[sessionID]
	s.sessions[sessionID] = session
	s.mu.Unlock()

	if old != nil {
		log.Printf("[Live Server] Session %s reconnected, closing previous connection", sessionID)
		old.Close()
	}
	return session
}

// SessionCount returns the number of connected sessions
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// remove deletes the session if it is still the one registered under its id
func (s *Server) remove(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[session.ID] == session {
		delete(s.sessions, session.ID)
	}
}

// Shutdown closes every session
func (s *Server) Shutdown() {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	for _, session := range sessions {
		session.Close()
	}
}

// Session represents a live connection session
type Session struct {
	ID      string
	server  *Server
	conn    *websocket.Conn
	handler SessionHandler
	logger  *slog.Logger

	lastSeq   atomic.Uint64
	sendChan  chan []byte
	closeChan chan struct{}
	closeOnce sync.Once
}

// Logger returns the session-scoped logger
func (s *Session) Logger() *slog.Logger { return s.logger }

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeChan)
		s.conn.Close()
	})
}

// Done is closed when the session ends
func (s *Session) Done() <-chan struct{} { return s.closeChan }

// handleConnection manages the WebSocket connection for a session
func (s *Session) handleConnection() {
	defer func() {
		s.Close()
		s.handler.Close()
		s.server.remove(s)
		log.Printf("[Live Session %s] Closed", s.ID)
	}()

	go s.writer()

	s.send(EncodeControl("HELLO", s.lastSeq.Load()))

	if err := s.handler.Mount(s); err != nil {
		log.Printf("[Live Session %s] Mount failed: %v", s.ID, err)
		return
	}

	s.conn.SetReadLimit(64 << 10)
	s.conn.SetReadDeadline(time.Now().Add(s.server.readTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.server.readTimeout))
		return nil
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Live Session %s] Unexpected close: %v", s.ID, err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.server.readTimeout))

		if messageType == websocket.BinaryMessage {
			s.handleBinaryMessage(data)
		} else {
			s.logger.Debug("ignoring text message", "bytes", len(data))
		}
	}
}

// writer handles writing messages to the WebSocket
func (s *Session) writer() {
	ticker := time.NewTicker(s.server.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-s.sendChan:
			s.conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				log.Printf("[Live Session %s] Failed to write message: %v", s.ID, err)
				s.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.closeChan:
			s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// send queues a frame without blocking
func (s *Session) send(frame []byte) error {
	select {
	case <-s.closeChan:
		return ErrSessionClosed
	default:
	}
	select {
	case s.sendChan <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// handleBinaryMessage processes binary protocol messages
func (s *Session) handleBinaryMessage(data []byte) {
	if len(data) == 0 {
		return
	}

	switch MessageType(data[0]) {
	case FrameEvent:
		event, err := DecodeEvent(data)
		if err != nil {
			log.Printf("[Live Session %s] Failed to decode event: %v", s.ID, err)
			return
		}
		if err := s.handler.HandleEvent(event); err != nil {
			s.logger.Debug("event not handled", "type", event.Type, "err", err)
		}

	case FrameControl:
		name, dec, err := DecodeControl(data)
		if err != nil {
			log.Printf("[Live Session %s] Failed to decode control message: %v", s.ID, err)
			return
		}
		switch name {
		case "HELLO":
			resumable, err1 := dec.ReadUvarint()
			lastSeq, err2 := dec.ReadUvarint()
			if err1 != nil || err2 != nil {
				log.Printf("[Live Session %s] Failed to decode HELLO params: %v, %v", s.ID, err1, err2)
				return
			}
			s.logger.Debug("client hello", "resumable", resumable > 0, "lastSeq", lastSeq)
		case "PING":
			s.send(EncodeControl("PONG"))
		default:
			s.logger.Debug("unknown control message", "name", name)
		}

	default:
		s.logger.Debug("unknown frame", "type", data[0])
	}
}

// SendPatches sends a batch of patches to the client
func (s *Session) SendPatches(patches []vdom.Patch) error {
	if len(patches) == 0 {
		return nil
	}

	seq := s.lastSeq.Add(1)
	data, err := EncodePatches(seq, patches)
	if err != nil {
		return fmt.Errorf("failed to encode patches: %w", err)
	}
	return s.send(data)
}
