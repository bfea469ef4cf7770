// Package eventhub streams session notifications to websocket clients and,
// when redis is configured, relays them between instances.
package eventhub

import (
	"context"
	"net/http"
	"sync"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/talkincode/wamux/internal/session"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	KindStatus  = "status"
	KindPairing = "pairing"
	KindDeleted = "deleted"
)

// Frame is one notification as written to websocket clients.
type Frame struct {
	Kind    string `json:"kind"`
	Session string `json:"session"`
	Status  string `json:"status,omitempty"`
	From    string `json:"from,omitempty"`
	Code    string `json:"code,omitempty"`
}

type relayed struct {
	Origin string `json:"origin"`
	Frame  Frame  `json:"frame"`
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteJSON(f)
}

type Hub struct {
	origin   string
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*conn]struct{}

	redis     *redis.Client
	channel   string
	subCancel context.CancelFunc
}

// New returns a hub. origin tags frames this instance publishes to redis.
func New(origin string) *Hub {
	return &Hub{
		origin:  origin,
		clients: make(map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Attach subscribes the hub to the registry topics on bus.
func (h *Hub) Attach(bus EventBus.BusSubscriber) error {
	if err := bus.SubscribeAsync(session.TopicStatus, func(ev session.StatusChange) {
		h.Publish(Frame{Kind: KindStatus, Session: ev.SessionID, Status: ev.To.String(), From: ev.From.String()})
	}, false); err != nil {
		return err
	}
	if err := bus.SubscribeAsync(session.TopicPairing, func(ev session.PairingNotice) {
		h.Publish(Frame{Kind: KindPairing, Session: ev.SessionID, Code: ev.Code})
	}, false); err != nil {
		return err
	}
	return bus.SubscribeAsync(session.TopicDeleted, func(id string) {
		h.Publish(Frame{Kind: KindDeleted, Session: id})
	}, false)
}

// UseRedis relays every published frame through channel.
func (h *Hub) UseRedis(ctx context.Context, client *redis.Client, channel string) error {
	if client == nil {
		return errors.New("redis client is nil")
	}
	h.mu.Lock()
	if h.subCancel != nil {
		h.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	h.redis = client
	h.channel = channel
	h.subCancel = cancel
	h.mu.Unlock()

	sub := client.Subscribe(subCtx, channel)
	if _, err := sub.Receive(subCtx); err != nil {
		cancel()
		_ = sub.Close()
		h.mu.Lock()
		h.redis, h.subCancel = nil, nil
		h.mu.Unlock()
		return errors.Wrap(err, "subscribe redis channel")
	}
	go h.consume(subCtx, sub)
	return nil
}

func (h *Hub) consume(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var ev relayed
		if err := json.UnmarshalFromString(msg.Payload, &ev); err != nil {
			continue
		}
		if ev.Origin == h.origin {
			continue
		}
		h.broadcast(ev.Frame)
	}
}

// Publish delivers f to local clients and to other instances.
func (h *Hub) Publish(f Frame) {
	h.broadcast(f)
	h.mu.RLock()
	rc, channel := h.redis, h.channel
	h.mu.RUnlock()
	if rc == nil {
		return
	}
	data, err := json.MarshalToString(relayed{Origin: h.origin, Frame: f})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Publish(ctx, channel, data).Err(); err != nil {
		zap.L().Warn("relay event failed",
			zap.String("namespace", "eventhub"),
			zap.String("session", f.Session),
			zap.Error(err),
		)
	}
}

func (h *Hub) broadcast(f Frame) int {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		if err := c.write(f); err != nil {
			h.remove(c)
		}
	}
	return len(targets)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.ws.Close()
	}
}

// Len returns the number of connected websocket clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
// Inbound frames are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed",
			zap.String("namespace", "eventhub"),
			zap.Error(err),
		)
		return
	}
	c := &conn{ws: ws}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer h.remove(c)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Close stops the redis relay and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	h.redis = nil
	clients := h.clients
	h.clients = make(map[*conn]struct{})
	h.mu.Unlock()
	for c := range clients {
		_ = c.ws.Close()
	}
}
