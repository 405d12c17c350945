// Package realtime pushes per-user status changes over websocket connections.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType identifies a server to client event.
type MessageType string

const (
	TypeIntegrationChanged MessageType = "integration.status_changed"
	TypeAnalysisChanged    MessageType = "analysis.status_changed"
	TypeCalendarChanged    MessageType = "calendar.changed"
	TypeSyncCompleted      MessageType = "sync.completed"
	TypeSyncFailed         MessageType = "sync.failed"
	TypePong               MessageType = "pong"
)

// Message is the envelope written to clients.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 4096
)

// Hub tracks the open connections of every user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	logger  *zap.Logger
}

type client struct {
	userID string
	send   chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]map[*client]struct{}), logger: logger}
}

// Publish delivers a message to every connection of userID. Slow clients are dropped.
func (h *Hub) Publish(userID string, msgType MessageType, payload any) {
	if h == nil {
		return
	}
	raw, err := json.Marshal(Message{Type: msgType, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		h.logger.Warn("encode realtime message", zap.String("type", string(msgType)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- raw:
		default:
			h.removeLocked(c)
			h.logger.Warn("realtime client too slow, dropped", zap.String("user_id", userID))
		}
	}
}

// ClientCount returns the connections open for userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve pumps messages to conn until it closes. It blocks, so callers run it on the request goroutine.
func (h *Hub) Serve(conn *websocket.Conn, userID string) {
	c := &client{userID: userID, send: make(chan []byte, sendBuffer)}
	h.register(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readPump(conn, c)
	}()
	h.writePump(conn, c, done)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug("realtime client connected", zap.String("user_id", c.userID), zap.Int("connections", len(set)))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.unregister(c)
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case message, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames and application pings.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("realtime read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		var cmd struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &cmd) == nil && cmd.Type == "ping" {
			h.Publish(c.userID, TypePong, nil)
		}
	}
}
