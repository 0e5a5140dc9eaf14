// Package websocket pushes live dashboard events to browser clients. Clients
// subscribe to topics and receive JSON events broadcast to those topics.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Topics a client may subscribe to.
const (
	TopicAlerts       = "alerts"
	TopicObservations = "observations"
)

// Event types.
const (
	EventOutbreakWarning     = "outbreak.warning"
	EventObservationsChanged = "observations.changed"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// Event is one message pushed to subscribers.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected socket.
type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
}

func newClient(topics ...string) *Client {
	c := &Client{
		ID:     uuid.New().String(),
		Send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
	}
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
	return c
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{logger: logger, now: time.Now, clients: make(map[*Client]struct{})}
}

func validTopic(t string) bool { return t == TopicAlerts || t == TopicObservations }

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister drops c and closes its Send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
}

// ProcessMessage applies a subscribe or unsubscribe request. Unknown topics
// and actions are ignored.
func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range msg.Topics {
		if !validTopic(t) {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.topics[t] = struct{}{}
		case "unsubscribe":
			delete(c.topics, t)
		}
	}
}

// Broadcast sends ev to every client subscribed to ev.Topic. Clients whose
// buffer is full miss the event rather than blocking the sender.
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn().Err(err).Str("type", ev.Type).Msg("live event marshal failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if _, ok := c.topics[ev.Topic]; !ok {
			continue
		}
		select {
		case c.Send <- data:
		default:
			h.logger.Debug().Str("client", c.ID).Msg("live client buffer full, event dropped")
		}
	}
}

// Publish forwards a rendered alert notification to the alerts topic. It
// lets the hub sit on the notification alert channel.
func (h *Hub) Publish(_ context.Context, key string, payload []byte) error {
	h.Broadcast(Event{
		Type:  EventOutbreakWarning,
		Topic: TopicAlerts,
		Key:   key,
		Data:  json.RawMessage(payload),
	})
	return nil
}

// NotifyChange tells observation subscribers that stored rows changed so
// dashboards can refetch.
func (h *Hub) NotifyChange(context.Context) {
	h.Broadcast(Event{Type: EventObservationsChanged, Topic: TopicObservations})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TopicCount is the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if _, ok := c.topics[topic]; ok {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// Handler upgrades GET /live to a socket subscribed to the topics named in
// the "topics" query parameter, or to every topic when it is absent.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler builds a Handler. Browser origins must appear in
// allowedOrigins; "*" allows any. Requests without an Origin header are
// accepted.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[strings.TrimRight(origin, "/")]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/live", h.HandleConnect)
}

func (h *Handler) HandleConnect(c echo.Context) error {
	topics := []string{TopicAlerts, TopicObservations}
	if q := c.QueryParam("topics"); q != "" {
		topics = topics[:0]
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); validTopic(t) {
				topics = append(topics, t)
			}
		}
		if len(topics) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no known topics requested")
		}
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}

	client := newClient(topics...)
	h.hub.Register(client)
	h.hub.logger.Debug().Str("client", client.ID).Strs("topics", topics).Msg("live client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
