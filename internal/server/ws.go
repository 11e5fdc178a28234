package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type socketError struct {
	Error string `json:"error"`
}

// SessionSocket runs a session over a WebSocket: each text message is a
// frame request and is answered with the pipeline output for that frame.
type SessionSocket struct {
	sessions *session.Manager
}

// NewSessionSocket creates a new SessionSocket.
func NewSessionSocket(m *session.Manager) *SessionSocket {
	return &SessionSocket{sessions: m}
}

// ServeHTTP handles /api/sessions/{id}/ws.
func (h *SessionSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/ws")
	s, err := h.sessions.Get(id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(api.MaxBodyBytes)
	for {
		var req api.FrameRequest
		if err := conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if err := conn.WriteJSON(socketError{Error: "Invalid JSON"}); err != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				monitoring.Logf("websocket read error: %v", err)
			}
			return
		}

		f, err := req.Frame(time.Now())
		if err != nil {
			if err := conn.WriteJSON(socketError{Error: err.Error()}); err != nil {
				return
			}
			continue
		}

		out := h.sessions.ProcessSession(s, f)
		if err := conn.WriteJSON(api.NewOutputResponse(out)); err != nil {
			return
		}
	}
}

// hubBuffer is how many outputs may queue for one live client before
// newer ones are dropped for it.
const hubBuffer = 8

// Hub broadcasts the outputs of the local camera pipeline to every
// connected WebSocket client.
type Hub struct {
	clients map[*hubClient]struct{}
	mu      sync.Mutex
}

// hubClient owns the write side of one connection.
type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *hubClient) writeLoop(done chan<- struct{}) {
	defer close(done)
	failed := false
	for msg := range c.send {
		if failed {
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			// Closing unblocks the read loop, which unregisters the client.
			c.conn.Close()
			failed = true
		}
	}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*hubClient]struct{})}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &hubClient{conn: conn, send: make(chan []byte, hubBuffer)}
	done := make(chan struct{})
	go c.writeLoop(done)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		close(c.send)
		h.mu.Unlock()
		<-done
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues one output for every connected client without waiting on
// the network. A client whose queue is full misses the output.
func (h *Hub) Publish(out session.Output) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(api.NewOutputResponse(out))
	if err != nil {
		monitoring.Logf("Failed to encode live output: %v", err)
		return
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}
