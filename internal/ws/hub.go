// Package ws serves the ledger's pubsub channels over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leafsii/dsc-ledger/internal/store"
	"go.uber.org/zap"
)

const (
	TopicEvents = "events"
	TopicAlerts = "alerts"
	TopicPrices = "prices"

	sendBuffer     = 256
	readLimit      = 512
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
	inactiveCutoff = 2 * time.Minute
)

// ConnectionMetrics counts open streaming connections.
type ConnectionMetrics interface {
	IncrementConnections(ctx context.Context)
	DecrementConnections(ctx context.Context)
}

// Message is what clients receive.
type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SubscriptionRequest is what clients send. An address selects the events and alerts
// concerning that account even without the topic.
type SubscriptionRequest struct {
	Type    string   `json:"type"` // subscribe | unsubscribe
	Topics  []string `json:"topics"`
	Address string   `json:"address,omitempty"`
}

// Hub fans the global event, alert and price channels out to WebSocket clients. The
// client set is owned by the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	requests   chan clientRequest
	done       chan struct{}

	channels []string
	cache    *store.Cache
	logger   *zap.SugaredLogger
	metrics  ConnectionMetrics
	upgrader websocket.Upgrader
}

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	topics     map[string]bool
	address    string
	lastActive atomic.Int64
}

type clientRequest struct {
	client *Client
	req    SubscriptionRequest
}

// NewHub creates a hub for the given price feeds. An empty Origin header is always
// accepted; other origins must be listed.
func NewHub(cache *store.Cache, logger *zap.SugaredLogger, metrics ConnectionMetrics, feeds []string, allowedOrigins []string) *Hub {
	channels := []string{store.ChannelEvents, store.ChannelAlerts}
	for _, f := range feeds {
		channels = append(channels, store.PriceKey(f))
	}

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		requests:   make(chan clientRequest),
		done:       make(chan struct{}),
		channels:   channels,
		cache:      cache,
		logger:     logger,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

// Run serves clients until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	sub := h.cache.Subscribe(ctx, h.channels...)
	defer sub.Close()
	msgs := sub.Channel()

	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("WebSocket hub shutting down", "clients", len(h.clients))
			for client := range h.clients {
				h.drop(ctx, client)
			}
			return ctx.Err()

		case client := <-h.register:
			h.clients[client] = true
			if h.metrics != nil {
				h.metrics.IncrementConnections(ctx)
			}
			h.logger.Debugw("Client registered", "remote", client.conn.RemoteAddr().String())

		case client := <-h.unregister:
			h.drop(ctx, client)

		case r := <-h.requests:
			h.apply(r.client, r.req)

		case msg, ok := <-msgs:
			if !ok {
				h.logger.Warnw("WebSocket hub subscription closed")
				msgs = nil
				continue
			}
			h.route(ctx, msg)

		case <-cleanup.C:
			h.cleanupInactiveClients(ctx)
		}
	}
}

func (h *Hub) drop(ctx context.Context, client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	if h.metrics != nil {
		h.metrics.DecrementConnections(ctx)
	}
	h.logger.Debugw("Client unregistered", "address", client.address)
}

func (h *Hub) apply(client *Client, req SubscriptionRequest) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	switch req.Type {
	case "subscribe":
		for _, t := range req.Topics {
			client.topics[t] = true
		}
		if req.Address != "" {
			client.address = req.Address
		}
	case "unsubscribe":
		for _, t := range req.Topics {
			delete(client.topics, t)
		}
		if req.Address != "" && req.Address == client.address {
			client.address = ""
		}
	default:
		h.logger.Debugw("Unknown WebSocket request", "type", req.Type)
		return
	}

	topics := make([]string, 0, len(client.topics))
	for t := range client.topics {
		topics = append(topics, t)
	}
	ack, _ := json.Marshal(map[string]interface{}{
		"type":    req.Type + "d",
		"topics":  topics,
		"address": client.address,
	})
	h.deliver(client, ack)
}

// route forwards a pubsub message to every client that asked for its topic, or whose
// address it concerns.
func (h *Hub) route(ctx context.Context, msg *store.Message) {
	topic := topicOf(msg.Channel)
	accounts := accountsIn(msg.Payload)

	out, err := json.Marshal(Message{
		Type:      "update",
		Topic:     topic,
		Channel:   msg.Channel,
		Data:      json.RawMessage(msg.Payload),
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		h.logger.Errorw("Failed to marshal WebSocket message", "error", err)
		return
	}

	for client := range h.clients {
		if client.wants(topic, accounts) {
			if !h.deliver(client, out) {
				h.drop(ctx, client)
			}
		}
	}
}

// deliver never blocks; a client that cannot keep up is reported as slow.
func (h *Hub) deliver(client *Client, msg []byte) bool {
	select {
	case client.send <- msg:
		return true
	default:
		h.logger.Debugw("Dropping slow WebSocket client", "address", client.address)
		return false
	}
}

func (h *Hub) cleanupInactiveClients(ctx context.Context) {
	cutoff := time.Now().Add(-inactiveCutoff).UnixNano()
	for client := range h.clients {
		if client.lastActive.Load() < cutoff {
			h.drop(ctx, client)
		}
	}
}

func topicOf(channel string) string {
	switch {
	case channel == store.ChannelEvents:
		return TopicEvents
	case channel == store.ChannelAlerts:
		return TopicAlerts
	case strings.HasPrefix(channel, store.KeyPrice+":"):
		return TopicPrices
	default:
		return ""
	}
}

// accountsIn extracts the user and actor of an event or alert payload.
func accountsIn(payload string) []string {
	var p struct {
		User  string `json:"user"`
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil
	}
	var out []string
	if p.User != "" {
		out = append(out, p.User)
	}
	if p.Actor != "" && p.Actor != p.User {
		out = append(out, p.Actor)
	}
	return out
}

func (c *Client) wants(topic string, accounts []string) bool {
	if topic == "" {
		return false
	}
	if c.topics[topic] {
		return true
	}
	if c.address == "" || topic == TopicPrices {
		return false
	}
	for _, a := range accounts {
		if a == c.address {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and attaches the client to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]bool),
	}
	client.lastActive.Store(time.Now().UnixNano())

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.lastActive.Store(time.Now().UnixNano())
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debugw("WebSocket read error", "error", err)
			}
			return
		}
		c.lastActive.Store(time.Now().UnixNano())

		var req SubscriptionRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Debugw("Invalid subscription message", "error", err)
			continue
		}
		select {
		case c.hub.requests <- clientRequest{client: c, req: req}:
		case <-c.hub.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
