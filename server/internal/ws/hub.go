package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultSendBuffer is the per-session outgoing message buffer depth.
	DefaultSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; viewers are read-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Upgrade switches an HTTP request to a WebSocket connection. On failure the
// upgrader has already written the error response.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// IsUpgrade reports whether r asks for a WebSocket upgrade.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// Hub fans messages out to the sessions connected to one room.
type Hub struct {
	bufSize int

	mu      sync.Mutex
	clients map[*Session]struct{}
	closed  bool
}

// Session is one connected viewer.
type Session struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub whose sessions buffer up to bufSize outgoing messages.
func New(bufSize int) *Hub {
	if bufSize < 1 {
		bufSize = DefaultSendBuffer
	}
	return &Hub{
		bufSize: bufSize,
		clients: make(map[*Session]struct{}),
	}
}

// Attach registers conn as a session and queues initial as its first
// message. Any Broadcast that starts after Attach returns is delivered after
// initial.
func (h *Hub) Attach(conn *websocket.Conn, initial []byte) *Session {
	s := &Session{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.bufSize),
	}
	s.send <- initial

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.send)
		return s
	}
	h.clients[s] = struct{}{}
	slog.Debug("ws: session attached", "session", s.ID, "sessions", len(h.clients))
	return s
}

// Serve pumps messages to s until the connection closes or the session is
// dropped. Blocks until then.
func (h *Hub) Serve(s *Session) {
	defer h.unregister(s)
	go s.writePump()
	s.readPump()
}

// Broadcast queues data on every session without blocking. Sessions whose
// buffer is full are disconnected. It returns how many sessions the message
// was queued for and how many were dropped.
func (h *Hub) Broadcast(data []byte) (sent, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		select {
		case s.send <- data:
			sent++
		default:
			delete(h.clients, s)
			close(s.send)
			dropped++
			slog.Warn("ws: dropping slow session", "session", s.ID)
		}
	}
	return sent, dropped
}

// Count returns the number of currently connected sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every session. Sessions attached afterwards are closed
// immediately.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.clients {
		close(s.send)
		delete(h.clients, s)
	}
}

// --- internal ---------------------------------------------------------------

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.send)
		slog.Debug("ws: session detached", "session", s.ID, "sessions", len(h.clients))
	}
}

// writePump drains the session's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per session.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or session dropped).
				s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Viewers send nothing else. Blocks until the
// connection closes.
func (s *Session) readPump() {
	defer s.conn.Close()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			break
		}
	}
}
