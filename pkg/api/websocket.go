package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/joripage/stock-oms/pkg/oms"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origins are enforced by the CORS layer
		return true
	},
}

// StreamEvent is one coordinator event pushed to WebSocket clients.
type StreamEvent struct {
	Topic   string          `json:"topic"`
	Key     string          `json:"key"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// WSRequest is what clients send: {"op":"subscribe","channels":["ORDER_FILLED"]}.
type WSRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

type WSAck struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// Hub fans coordinator events out to WebSocket clients. It sits in front
// of the event bus (see Tee) so it sees every event this process publishes.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.L()
	}
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger.Named("ws"),
	}
}

// Publish broadcasts v to the clients subscribed to topic. Slow clients
// miss events rather than block the publisher.
func (h *Hub) Publish(_ context.Context, topic, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	message, err := json.Marshal(StreamEvent{Topic: topic, Key: key, Time: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(topic) {
			continue
		}
		select {
		case c.send <- message:
		default:
			h.logger.Warn("client buffer full, event dropped", zap.String("client", c.id), zap.String("topic", topic))
		}
	}
	return nil
}

// Tee returns a bus that publishes to the hub and then to next.
func (h *Hub) Tee(next oms.EventBus) oms.EventBus {
	return &teeBus{hub: h, next: next}
}

type teeBus struct {
	hub  *Hub
	next oms.EventBus
}

func (t *teeBus) Publish(ctx context.Context, topic, key string, v any) error {
	_ = t.hub.Publish(ctx, topic, key, v)
	if t.next == nil {
		return nil
	}
	return t.next.Publish(ctx, topic, key, v)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("client", c.id), zap.Int("total", n))
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", zap.String("client", c.id), zap.Int("total", n))
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu        sync.RWMutex
	subscriptions map[string]bool
}

func (c *wsClient) isSubscribed(topic string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[topic]
}

func (c *wsClient) setSubscribed(channels []string, on bool) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range channels {
		if on {
			c.subscriptions[ch] = true
		} else {
			delete(c.subscriptions, ch)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	c := &wsClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            uuid.NewString(),
		subscriptions: make(map[string]bool),
	}
	s.hub.register(c)

	go c.writePump()
	c.readPump()
}

// readPump handles subscribe/unsubscribe requests until the client goes away.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var req WSRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Debug("invalid message", zap.String("client", c.id), zap.Error(err))
			continue
		}

		var ack WSAck
		switch req.Op {
		case "subscribe":
			c.setSubscribed(req.Channels, true)
			ack = WSAck{Op: "subscribed", Channels: req.Channels}
		case "unsubscribe":
			c.setSubscribed(req.Channels, false)
			ack = WSAck{Op: "unsubscribed", Channels: req.Channels}
		default:
			ack = WSAck{Op: "error"}
		}
		data, _ := json.Marshal(ack)
		// the hub may have dropped the client concurrently
		func() {
			c.hub.mu.RLock()
			defer c.hub.mu.RUnlock()
			if _, ok := c.hub.clients[c]; ok {
				select {
				case c.send <- data:
				default:
				}
			}
		}()
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
