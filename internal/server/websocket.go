package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/registry"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send control frames.
	maxMessageSize = 512

	// Events buffered per client before it is considered too slow and dropped.
	sendBuffer = 64
)

// EventFound is the only event type on the stream.
const EventFound = "found"

// Event is one message on the /events stream.
type Event struct {
	Event  string          `json:"event"`
	Device registry.Device `json:"device"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers on other origins may watch the stream.
	CheckOrigin: func(*http.Request) bool { return true },
}

type client struct {
	id     string
	remote string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans device events out to connected WebSocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues ev for every client. A client whose buffer is full is
// disconnected rather than blocking the broadcaster.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Error("Failed to marshal event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("Dropping slow event client", zap.String("client", id))
			delete(h.clients, id)
			c.close()
		}
	}
}

// Close disconnects every client. The hub stays usable.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}

// Serve registers conn, sends it a found event for each device in
// snapshot, and pumps events until the peer goes away. It blocks.
func (h *Hub) Serve(conn *websocket.Conn, snapshot []registry.Device) {
	c := &client{
		id:     uuid.NewString(),
		remote: conn.RemoteAddr().String(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer+len(snapshot)),
	}

	// Register before queueing the snapshot so no delivery falls in between.
	h.mu.Lock()
	h.clients[c.id] = c
	for _, d := range snapshot {
		if data, err := json.Marshal(Event{Event: EventFound, Device: d}); err == nil {
			c.send <- data
		}
	}
	h.mu.Unlock()

	logging.LogConnection(c.id, c.remote, "connected")

	go h.readPump(c)
	h.writePump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Event client read error",
					zap.String("client", c.id),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		h.remove(c)
		logging.LogConnection(c.id, c.remote, "disconnected")
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
