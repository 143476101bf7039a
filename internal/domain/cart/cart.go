package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a single cart line. Price is captured at add time and is purely
// informational: checkout always reprices against the live catalog.
type Item struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	AddedAt   time.Time
}

// Cart holds a user's pending items. Each user has at most one cart; it is
// created lazily on first add and emptied, never deleted, after checkout.
type Cart struct {
	ID     string
	UserID string
	Items  []Item
}

// Store defines persistence operations for carts.
type Store interface {
	// GetByUser returns the user's cart, creating an empty one if none exists.
	GetByUser(ctx context.Context, userID string) (*Cart, error)
	AddItem(ctx context.Context, userID string, item Item) error
	RemoveItem(ctx context.Context, userID, productID string) error
	// Clear removes all items but keeps the cart row.
	Clear(ctx context.Context, cartID string) error
}
