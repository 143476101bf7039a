package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vendora/storefront/internal/domain/coupon"
	"github.com/vendora/storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, items, subtotal, discount, total, coupon,
		free_shipping, status, history, shipping_address, payment_method,
		created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	saveOrderSQL = `UPDATE orders SET items = $2, subtotal = $3, discount = $4,
		total = $5, status = $6, history = $7, updated_at = $8
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items,
// history, the coupon snapshot and the shipping address are serialized to
// JSONB columns.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, historyJSON, couponJSON, addressJSON, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Subtotal, o.Discount, o.Total, couponJSON,
		o.FreeShipping, string(o.Status), historyJSON, addressJSON, o.PaymentMethod,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order with the given identifier, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// Save persists mutations to an existing order. Only the mutable columns are
// written; the creation-time fields stay untouched.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	historyJSON, err := json.Marshal(o.History)
	if err != nil {
		return fmt.Errorf("marshaling order history: %w", err)
	}

	tag, err := r.pool.Exec(ctx, saveOrderSQL,
		o.ID, itemsJSON, o.Subtotal, o.Discount, o.Total,
		string(o.Status), historyJSON, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func marshalOrderDocs(o *order.Order) (items, history, coup, address []byte, err error) {
	items, err = json.Marshal(o.Items)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshaling order items: %w", err)
	}
	if o.History == nil {
		history = []byte(`[]`)
	} else if history, err = json.Marshal(o.History); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshaling order history: %w", err)
	}
	if o.Coupon != nil {
		if coup, err = json.Marshal(o.Coupon); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshaling coupon snapshot: %w", err)
		}
	}
	address, err = json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshaling shipping address: %w", err)
	}
	return items, history, coup, address, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		itemsJSON   []byte
		historyJSON []byte
		couponJSON  []byte
		addressJSON []byte
		subtotal    decimal.Decimal
		discount    decimal.Decimal
		total       decimal.Decimal
		status      string
		createdAt   time.Time
		updatedAt   time.Time
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &subtotal, &discount, &total, &couponJSON,
		&o.FreeShipping, &status, &historyJSON, &addressJSON, &o.PaymentMethod,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return o, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &o.History); err != nil {
		return o, fmt.Errorf("unmarshaling order history: %w", err)
	}
	if len(couponJSON) > 0 {
		var snap coupon.Snapshot
		if err := json.Unmarshal(couponJSON, &snap); err != nil {
			return o, fmt.Errorf("unmarshaling coupon snapshot: %w", err)
		}
		o.Coupon = &snap
	}
	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}

	o.Subtotal = subtotal
	o.Discount = discount
	o.Total = total
	o.Status = order.Status(status)
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	return o, nil
}
