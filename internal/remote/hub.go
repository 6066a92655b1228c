// Package remote accepts remote controls over websocket. Every text frame a
// client sends becomes an input event for the next tick; state changes are
// broadcast back to all connected clients.
package remote

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pibooth/pkg/input"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ErrInvalidFrame is returned for frames that are not event objects.
var ErrInvalidFrame = errors.New("invalid event frame")

const writeTimeout = 5 * time.Second

// ParseFrame decodes a JSON frame such as
// {"kind":"button","name":"capture","value":1}. "type" is accepted in place
// of "kind", and the kind defaults to remote. Quit events are local to the
// window and rejected here.
func ParseFrame(data []byte) (input.Event, error) {
	if !gjson.ValidBytes(data) {
		return input.Event{}, fmt.Errorf("%w: not JSON", ErrInvalidFrame)
	}
	frame := gjson.ParseBytes(data)
	if !frame.IsObject() {
		return input.Event{}, fmt.Errorf("%w: not an object", ErrInvalidFrame)
	}

	name := frame.Get("name").String()
	if name == "" {
		return input.Event{}, fmt.Errorf("%w: missing name", ErrInvalidFrame)
	}

	kind := frame.Get("kind").String()
	if kind == "" {
		kind = frame.Get("type").String()
	}
	if kind == "" {
		kind = string(input.KindRemote)
	}
	if input.Kind(kind) == input.KindQuit {
		return input.Event{}, fmt.Errorf("%w: quit is not accepted from remotes", ErrInvalidFrame)
	}

	event := input.Event{Kind: input.Kind(kind), Name: name}
	if value := frame.Get("value"); value.Exists() {
		event.Value = value.Value()
	}
	return event, nil
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// Hub is an http.Handler upgrading requests to websocket remote controls.
type Hub struct {
	queue    *input.Queue
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub pushing remote events to queue.
func NewHub(queue *input.Queue, logger *zap.Logger) *Hub {
	return &Hub{
		queue:  queue,
		logger: logger.Named("remote"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and reads frames until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Remote connected", zap.String("remote_addr", r.RemoteAddr))
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("Remote connection lost", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		event, err := ParseFrame(data)
		if err != nil {
			h.logger.Debug("Ignoring remote frame", zap.Error(err))
			c.write(map[string]string{"error": err.Error()})
			continue
		}
		if err := h.queue.Push(event); err != nil {
			h.logger.Warn("Dropping remote event",
				zap.String("kind", string(event.Kind)),
				zap.String("name", event.Name),
				zap.Error(err))
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.conn.Close()
	h.logger.Debug("Remote disconnected")
}

// Broadcast sends msg as JSON to every client. Clients failing the write
// are disconnected.
func (h *Hub) Broadcast(msg any) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(msg); err != nil {
			h.logger.Warn("Failed to notify remote", zap.Error(err))
			c.conn.Close()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}
