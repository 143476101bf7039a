package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vendora/storefront/internal/domain/cart"
)

const (
	upsertCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id`

	listCartItemsSQL = `SELECT product_id, quantity, price, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at`

	upsertCartItemSQL = `INSERT INTO cart_items (cart_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity,
			price = EXCLUDED.price`

	removeCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`
)

var _ cart.Store = (*CartRepository)(nil)

// CartRepository implements cart.Store backed by PostgreSQL. The cart row is
// created lazily on first access and survives checkout; only its items are
// removed.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByUser returns the user's cart with its items, creating an empty cart
// if the user does not have one yet.
func (r *CartRepository) GetByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	cartID, err := r.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, listCartItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %q: %w", cartID, err)
	}
	items, err := pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %q: %w", cartID, err)
	}

	return &cart.Cart{ID: cartID, UserID: userID, Items: items}, nil
}

// AddItem adds the item to the user's cart, summing quantities when the
// product is already present.
func (r *CartRepository) AddItem(ctx context.Context, userID string, item cart.Item) error {
	cartID, err := r.ensureCart(ctx, userID)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, upsertCartItemSQL, cartID, item.ProductID, item.Quantity, item.Price)
	if err != nil {
		return fmt.Errorf("adding product %q to cart %q: %w", item.ProductID, cartID, err)
	}
	return nil
}

// RemoveItem removes the product from the user's cart. Removing a product
// that is not in the cart is a no-op.
func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	cartID, err := r.ensureCart(ctx, userID)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, removeCartItemSQL, cartID, productID)
	if err != nil {
		return fmt.Errorf("removing product %q from cart %q: %w", productID, cartID, err)
	}
	return nil
}

// Clear removes all items but keeps the cart row.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	_, err := r.pool.Exec(ctx, clearCartSQL, cartID)
	if err != nil {
		return fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	return nil
}

// ensureCart returns the ID of the user's cart row, inserting one if needed.
// The ON CONFLICT upsert makes concurrent first accesses converge on a single
// row.
func (r *CartRepository) ensureCart(ctx context.Context, userID string) (string, error) {
	var cartID string
	err := r.pool.QueryRow(ctx, upsertCartSQL, uuid.NewString(), userID).Scan(&cartID)
	if err != nil {
		return "", fmt.Errorf("ensuring cart for user %q: %w", userID, err)
	}
	return cartID, nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		item  cart.Item
		price decimal.Decimal
	)
	err := row.Scan(&item.ProductID, &item.Quantity, &price, &item.AddedAt)
	item.Price = price
	return item, err
}
