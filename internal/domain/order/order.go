package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/vendora/storefront/internal/domain/coupon"
)

// Status enumerates the order lifecycle states.
type Status string

// remember to add new statuses to the validStatuses map
const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var validStatuses = map[Status]struct{}{
	StatusPending:    {},
	StatusConfirmed:  {},
	StatusProcessing: {},
	StatusShipped:    {},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// ToStatus parses a status string, rejecting unknown values.
func ToStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := validStatuses[status]; ok {
		return status, nil
	}
	return "", errors.Errorf("invalid order status: %q", s)
}

// Item is a single order line. UnitPrice is frozen at order-creation time and
// is never recomputed from the live product price after the order exists.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// HistoryEntry is one record in the order's append-only status audit trail.
type HistoryEntry struct {
	Status Status    `json:"status"`
	Note   string    `json:"note"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// Address is the shipping destination captured with the order.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is a persisted customer order. It is created once at checkout and
// never deleted; the History slice keeps the audit trail of every noted
// status change.
//
// Invariant: Total = Subtotal - Discount, with Discount in [0, Subtotal].
type Order struct {
	ID              string
	UserID          string
	Items           []Item
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	Coupon          *coupon.Snapshot
	FreeShipping    bool
	Status          Status
	History         []HistoryEntry
	ShippingAddress Address
	PaymentMethod   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatusChange describes one applied transition, for event payloads.
type StatusChange struct {
	From  Status
	To    Status
	Note  string
	Actor string
	At    time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// Save persists mutations to an existing order (status, history, items,
	// totals).
	Save(ctx context.Context, o *Order) error
}

// EventSink receives order notifications. Both calls are best-effort: the
// checkout and lifecycle paths log a returned error and carry on, they never
// fail or roll back an order because a notification could not be delivered.
type EventSink interface {
	OrderCreated(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order, change StatusChange) error
}
