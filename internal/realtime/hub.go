package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer    = 16
	pingInterval  = 25 * time.Second
	pongWait      = 60 * time.Second
	writeWait     = 5 * time.Second
	maxInboundLen = 1024
)

// Event is a push-only live update. There is no acknowledgment and no
// replay: a client that reconnects re-fetches current state over HTTP.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// Hub fans newly stored records out to connected dashboard sessions.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
}

type session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				// Dashboard clients are unauthenticated.
				return true
			},
		},
		sessions: map[*session]struct{}{},
	}
}

// ServeHTTP upgrades the request and serves the session until the peer
// disconnects or is dropped.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := &session{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	slog.Debug("live session connected", "session", s.id)

	go s.writeLoop()
	s.readLoop()

	h.mu.Lock()
	h.dropLocked(s)
	h.mu.Unlock()
}

// Broadcast sends an event to every connected session without blocking the
// caller: a session whose send buffer is full is dropped rather than
// delaying ingestion.
func (h *Hub) Broadcast(event string, payload any) {
	b, err := json.Marshal(Event{Type: event, Data: payload, At: time.Now().UTC()})
	if err != nil {
		slog.Warn("live event marshal failed", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		select {
		case s.send <- b:
		default:
			slog.Debug("live session too slow, dropping", "session", s.id)
			h.dropLocked(s)
		}
	}
}

// Sessions reports the current number of connected clients.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// dropLocked removes a session and releases its resources. Callers hold h.mu.
func (h *Hub) dropLocked(s *session) {
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	close(s.send)
	_ = s.conn.Close()
}

// readLoop drains inbound frames; sessions are consume-only, so anything the
// peer sends is discarded. Its real job is pong handling and noticing closes.
func (s *session) readLoop() {
	s.conn.SetReadLimit(maxInboundLen)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *session) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
