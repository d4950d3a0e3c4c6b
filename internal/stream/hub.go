// Package stream pushes the live dashboard state to connected remote
// views over WebSocket. Each client gets the last track and selection
// on connect, then every broadcast as it happens.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 256
	writeWait        = 10 * time.Second
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard serves its own clients; cross-origin views are
	// expected (split-screen windows).
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
}

// Hub fans broadcast envelopes out to all connected clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	// replayed to a freshly connected client so it doesn't start blank
	lastByType map[string][]byte
	closed     bool

	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		lastByType: make(map[string][]byte),
		logger:     logger,
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		sendCh: make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	replay := make([][]byte, 0, len(h.lastByType))
	for _, data := range h.lastByType {
		replay = append(replay, data)
	}
	h.mu.Unlock()

	for _, data := range replay {
		select {
		case c.sendCh <- data:
		default:
		}
	}

	go h.writeLoop(c)
	go h.readLoop(c)

	h.logger.Info("stream client connected", "remote", r.RemoteAddr)
}

// Broadcast marshals the payload into an envelope and queues it on
// every client. A client that has fallen behind drops messages rather
// than blocking the dashboard.
func (h *Hub) Broadcast(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}

	h.mu.Lock()
	h.lastByType[msgType] = data
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		select {
		case c.sendCh <- data:
		default:
			h.logger.Debug("dropping message for slow stream client", "type", msgType)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// writeLoop drains the client's queue onto its connection.
func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.remove(c)
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop exists to notice disconnects; clients send nothing we use.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// remove unregisters the client. sendCh is never closed: broadcasters
// race with removal, and dropping into a dead buffered channel is
// harmless while sending into a closed one is not.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.done)
	}
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}
