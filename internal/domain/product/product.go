package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Status enumerates the lifecycle states of a catalog product.
type Status string

const (
	StatusActive       Status = "active"
	StatusInactive     Status = "inactive"
	StatusOutOfStock   Status = "out_of_stock"
	StatusDiscontinued Status = "discontinued"
)

// Product represents a catalog item offered by a seller.
// Stock is the available quantity; it never goes negative.
type Product struct {
	ID       string
	SellerID string
	Name     string
	SKU      string
	Price    decimal.Decimal
	Stock    int
	Status   Status
	Category string
}

// Sellable reports whether the product can appear in a new order.
func (p Product) Sellable() bool {
	return p.Status == StatusActive
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// FindByNameLike returns active products whose name contains the given
	// pattern, case-insensitively. Used only by the deprecated name-based
	// item resolution path.
	FindByNameLike(ctx context.Context, pattern string) ([]Product, error)
	FindBySKU(ctx context.Context, sku string) (*Product, error)
}

// Ledger owns the authoritative available-quantity counters. Implementations
// must make TryReserve a single conditional operation against the store
// ("subtract qty where stock >= qty") so that concurrent reservations of the
// same product cannot oversell. Any read-time stock check elsewhere is an
// optimistic pre-filter; this is the real guard.
type Ledger interface {
	// TryReserve atomically decrements the product's stock by qty.
	// It returns false, leaving stock untouched, when fewer than qty units
	// are available.
	TryReserve(ctx context.Context, productID string, qty int) (bool, error)
	// Release atomically increments the product's stock by qty.
	Release(ctx context.Context, productID string, qty int) error
}
