package notification

import (
	"context"
	"encoding/json"
	"expvar"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis keys
const (
	presenceKey       = "ws:presence:online"
	userEventsChannel = "ws:user_events"
)

var (
	wsConnectionsGauge   = expvar.NewInt("websocket_connections")
	wsEventsSentTotal    = expvar.NewInt("websocket_events_sent_total")
	wsEventsDroppedTotal = expvar.NewInt("websocket_events_dropped_total")
)

type userEventMessage struct {
	UserID           string          `json:"user_id"`
	Payload          json.RawMessage `json:"payload"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

// Connection is one websocket session for a user.
type Connection struct {
	UserID uuid.UUID
	Send   chan []byte
}

// Hub fans user events out to local websocket sessions and, through
// Redis Pub/Sub, to sessions held by other server instances.
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool

	redis  *redis.Client
	pubsub *redis.PubSub

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
}

func NewHub(redisClient *redis.Client) *Hub {
	return NewHubWithInstanceID(redisClient, uuid.NewString())
}

// NewHubWithInstanceID creates a hub with an explicit instance id so
// cross-instance events published by this hub are not echoed back.
func NewHubWithInstanceID(redisClient *redis.Client, instanceID string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  instanceID,
	}

	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, userEventsChannel)
	}

	return h
}

// Run starts the hub (call in goroutine).
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.UserID] == nil {
				h.connections[conn.UserID] = make(map[*Connection]bool)
			}
			h.connections[conn.UserID][conn] = true
			h.mu.Unlock()
			wsConnectionsGauge.Add(1)

			h.publishPresence(conn.UserID, true)
			log.Debug().Str("user_id", conn.UserID.String()).Msg("User connected to WebSocket")

		case conn := <-h.unregister:
			shouldPublishOffline := false
			h.mu.Lock()
			if conns, ok := h.connections[conn.UserID]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					wsConnectionsGauge.Add(-1)
				}
				if len(conns) == 0 {
					delete(h.connections, conn.UserID)
					shouldPublishOffline = true
				}
			}
			h.mu.Unlock()

			if shouldPublishOffline {
				h.publishPresence(conn.UserID, false)
			}
			log.Debug().Str("user_id", conn.UserID.String()).Msg("User disconnected from WebSocket")
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Channel != userEventsChannel {
				continue
			}

			var event userEventMessage
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			// Skip events this instance already delivered locally
			if event.SenderInstanceID == h.instanceID {
				continue
			}
			userID, err := uuid.Parse(event.UserID)
			if err != nil {
				continue
			}
			h.sendLocal(userID, []byte(event.Payload))
		}
	}
}

func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// SendToUser delivers the payload to every session the user has, on
// this instance directly and on other instances via Redis.
func (h *Hub) SendToUser(userID uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.sendLocal(userID, data)
	return h.publishUserEvent(userID, data)
}

func (h *Hub) sendLocal(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.connections[userID] {
		select {
		case conn.Send <- data:
			wsEventsSentTotal.Add(1)
		default:
			// Buffer full, drop rather than block the hub
			wsEventsDroppedTotal.Add(1)
			log.Warn().Str("user_id", userID.String()).Msg("WebSocket send buffer full")
		}
	}
}

func (h *Hub) publishUserEvent(userID uuid.UUID, data []byte) error {
	if h.redis == nil {
		return nil
	}

	event := userEventMessage{
		UserID:           userID.String(),
		Payload:          data,
		SenderInstanceID: h.instanceID,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.redis.Publish(h.ctx, userEventsChannel, payload).Err()
}

func (h *Hub) publishPresence(userID uuid.UUID, online bool) {
	if h.redis == nil {
		return
	}

	ctx := context.Background()
	if online {
		h.redis.SAdd(ctx, presenceKey, userID.String())
		h.redis.Expire(ctx, presenceKey, 5*time.Minute)
	} else {
		h.redis.SRem(ctx, presenceKey, userID.String())
	}
}

// IsOnline checks whether the user has a session on any instance.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	if h.redis == nil {
		h.mu.RLock()
		conns, ok := h.connections[userID]
		h.mu.RUnlock()
		return ok && len(conns) > 0
	}
	return h.redis.SIsMember(context.Background(), presenceKey, userID.String()).Val()
}

// ConnectionCount returns the number of local sessions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// Shutdown stops the hub and closes the Redis subscription.
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
