// internal/server/ws.go
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shark-minister/atlas-bey/internal/poller"
	"github.com/shark-minister/atlas-bey/internal/session"
	"github.com/shark-minister/atlas-bey/internal/status"
)

// WSMessage is the event envelope sent over WebSocket.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSClient wraps a websocket connection with a per-connection write mutex.
// Gorilla WebSocket requires that writes are not concurrent on the same Conn.
type WSClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send writes a message as JSON to this client.
func (c *WSClient) Send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// WSHub is a broadcast hub for a set of WebSocket clients.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewWSHub constructs an empty hub.
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[*WSClient]struct{})}
}

// Add registers a connection with the hub and returns the WSClient wrapper.
func (h *WSHub) Add(conn *websocket.Conn) *WSClient {
	c := &WSClient{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Remove unregisters a client and closes its connection.
func (h *WSHub) Remove(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Len reports the number of connected clients.
func (h *WSHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writeWait bounds one send to one client.
const writeWait = 2 * time.Second

// Broadcast sends a message to all connected clients.
// A client that cannot take the message within writeWait is dropped.
func (h *WSHub) Broadcast(msg WSMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}

	var dead []*WSClient
	h.mu.RLock()
	for c := range h.clients {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			dead = append(dead, c)
		}
		c.mu.Unlock()
	}
	h.mu.RUnlock()

	for _, c := range dead {
		h.Remove(c)
	}
}

// Observe is a session observer that forwards every applied event.
func (h *WSHub) Observe(ev session.Event) {
	h.Broadcast(WSMessage{Type: "session." + ev.Kind.String(), Data: ev})
}

// PublishPoll forwards one poll cycle.
func (h *WSHub) PublishPoll(r poller.PollResult) {
	switch {
	case r.Skipped:
		h.Broadcast(WSMessage{Type: "poll.skipped"})
	case r.Err != nil:
		h.Broadcast(WSMessage{Type: "poll.error", Data: APIError{Error: r.Err.Error(), Code: status.ErrorCode(r.Err)}})
	default:
		h.Broadcast(WSMessage{Type: "poll", Data: StatisticsResponse{
			Statistics: r.Statistics,
			Histogram:  r.Histogram,
			Summary:    r.Summary,
		}})
	}
}

// Local single-user API; origin checks are left open.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWSEvents upgrades, registers and reads until the client leaves.
// Incoming messages are ignored.
func (s *Server) handleWSEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := s.hub.Add(conn)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("event stream client joined")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Remove(client)
			return
		}
	}
}
