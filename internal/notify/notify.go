// Package notify publishes order events for downstream delivery (email,
// webhooks). The checkout and lifecycle services treat every sink as
// best-effort: a failed publish is logged by the caller and never fails the
// order operation it belongs to.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vendora/storefront/internal/domain/order"
)

// Event types carried on the order events topic.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Event is the wire envelope for order notifications.
type Event struct {
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	OrderID   string         `json:"order_id"`
	UserID    string         `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload"`
}

func newEvent(typ string, o *order.Order, payload map[string]any) Event {
	return Event{
		EventID:   uuid.New().String(),
		Type:      typ,
		OrderID:   o.ID,
		UserID:    o.UserID,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}

// Nop is a sink that drops every event. Used when no broker is configured.
type Nop struct{}

var _ order.EventSink = Nop{}

func (Nop) OrderCreated(context.Context, *order.Order) error { return nil }

func (Nop) StatusChanged(context.Context, *order.Order, order.StatusChange) error { return nil }
