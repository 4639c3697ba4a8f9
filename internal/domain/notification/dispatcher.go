package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/soko/soko-api/internal/pkg/push"
)

// pushTitles maps event names to push notification titles for users
// without an active websocket session.
var pushTitles = map[string]string{
	"wallet:balance":     "Balance updated",
	"wallet:transaction": "New transaction",
	"escrow:status":      "Order escrow update",
}

type envelope struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// Dispatcher delivers domain events to users. Delivery is
// fire-and-forget: callers never block or fail on notification errors.
type Dispatcher struct {
	hub    *Hub
	push   *push.FCMClient
	tokens *TokenRepository
}

func NewDispatcher(hub *Hub, pushClient *push.FCMClient, tokens *TokenRepository) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		push:   pushClient,
		tokens: tokens,
	}
}

// Notify sends the event to all of the user's sessions, falling back to
// a push notification when the user is offline everywhere.
func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, event string, payload any) {
	go d.deliver(userID, event, payload)
}

func (d *Dispatcher) deliver(userID uuid.UUID, event string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.hub != nil {
		if err := d.hub.SendToUser(userID, envelope{Type: event, Data: payload, At: time.Now()}); err != nil {
			log.Error().Err(err).
				Str("user_id", userID.String()).
				Str("event", event).
				Msg("Failed to deliver realtime event")
		}
		if d.hub.IsOnline(userID) {
			return
		}
	}

	if d.push == nil || d.tokens == nil {
		return
	}
	title, ok := pushTitles[event]
	if !ok {
		return
	}

	tokens, err := d.tokens.ListActive(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to load device tokens")
		return
	}
	if len(tokens) == 0 {
		return
	}
	if err := d.push.SendMultiple(ctx, tokens, title, "", map[string]string{"event": event}); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to send push notification")
	}
}
