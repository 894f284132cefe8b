// Package ws streams bot events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
	resubscribeGap = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StatusFunc returns the payload sent to a client right after it connects.
type StatusFunc func() any

// Hub relays every event published on one bus channel to the connected
// clients. Clients may narrow what they receive by event type.
type Hub struct {
	bus     domain.EventBus
	channel string
	status  StatusFunc
	logger  *slog.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates a Hub reading channel from bus. status may be nil.
func NewHub(bus domain.EventBus, channel string, status StatusFunc, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		channel:    channel,
		status:     status,
		logger:     logger.With(slog.String("component", "ws")),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
	}
}

// Run subscribes to the bus and dispatches to clients until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	go h.relay(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("clients", n))

		case payload := <-h.broadcast:
			h.dispatch(payload)
		}
	}
}

// relay forwards bus payloads into the hub, resubscribing if the
// subscription drops.
func (h *Hub) relay(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := h.bus.Subscribe(ctx, h.channel)
		if err != nil {
			h.logger.Error("subscribe failed",
				slog.String("channel", h.channel),
				slog.String("error", err.Error()),
			)
		} else {
			for payload := range msgs {
				select {
				case h.broadcast <- payload:
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() == nil {
				h.logger.Warn("subscription closed", slog.String("channel", h.channel))
			}
		}
		select {
		case <-ctx.Done():
		case <-time.After(resubscribeGap):
		}
	}
}

func (h *Hub) dispatch(payload []byte) {
	var head struct {
		Type domain.EventType `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		h.logger.Warn("dropping undecodable event", slog.String("error", err.Error()))
		return
	}
	msg, err := json.Marshal(envelope{Type: "event", Payload: json.RawMessage(payload)})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(head.Type) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping event for slow client", slog.String("type", string(head.Type)))
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	var types []domain.EventType
	for _, t := range r.URL.Query()["type"] {
		types = append(types, domain.EventType(t))
	}
	c.setFilter(types)
	c.sendStatus()

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// envelope wraps every frame sent to clients.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// filterMsg replaces the client's event type filter. An empty list receives
// everything.
type filterMsg struct {
	Types []domain.EventType `json:"types"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	filter map[domain.EventType]bool
}

func (c *client) wants(t domain.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filter) == 0 || c.filter[t]
}

func (c *client) setFilter(types []domain.EventType) {
	f := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		f[t] = true
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

func (c *client) sendStatus() {
	if c.hub.status == nil {
		return
	}
	msg, err := json.Marshal(envelope{Type: "bot_status", Payload: c.hub.status()})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var f filterMsg
		if err := json.Unmarshal(message, &f); err == nil {
			c.setFilter(f.Types)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
