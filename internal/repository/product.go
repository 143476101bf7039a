package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vendora/storefront/internal/domain/product"
)

const (
	productColumns = `id, seller_id, name, sku, price, stock, status, category`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	findProductsByNameSQL = `SELECT ` + productColumns + ` FROM products
		WHERE name ILIKE '%' || $1 || '%' ORDER BY name LIMIT 20`

	findProductBySKUSQL = `SELECT ` + productColumns + ` FROM products WHERE sku = $1`

	reserveStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	releaseStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.Ledger     = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and product.Ledger backed
// by PostgreSQL. Stock reservations rely on a conditional single-row UPDATE,
// so concurrent checkouts for the last unit race on the database row and
// exactly one of them wins.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// FindByNameLike returns products whose name contains the given fragment,
// case-insensitive.
func (r *ProductRepository) FindByNameLike(ctx context.Context, name string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, findProductsByNameSQL, name)
	if err != nil {
		return nil, fmt.Errorf("finding products by name %q: %w", name, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// FindBySKU returns the product with the given SKU.
func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, findProductBySKUSQL, sku)
	if err != nil {
		return nil, fmt.Errorf("finding product by sku %q: %w", sku, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("finding product by sku %q: %w", sku, err)
	}
	return &p, nil
}

// TryReserve atomically decrements stock for the product if at least qty
// units remain. It reports false when the product is missing or the stock
// is insufficient, without distinguishing the two.
func (r *ProductRepository) TryReserve(ctx context.Context, productID string, qty int) (bool, error) {
	tag, err := r.pool.Exec(ctx, reserveStockSQL, productID, qty)
	if err != nil {
		return false, fmt.Errorf("reserving %d units of product %q: %w", qty, productID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release returns previously reserved units back to the product's stock.
func (r *ProductRepository) Release(ctx context.Context, productID string, qty int) error {
	_, err := r.pool.Exec(ctx, releaseStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("releasing %d units of product %q: %w", qty, productID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p      product.Product
		price  decimal.Decimal
		stock  int32
		status string
	)
	err := row.Scan(
		&p.ID, &p.SellerID, &p.Name, &p.SKU, &price, &stock, &status, &p.Category,
	)
	p.Price = price
	p.Stock = int(stock)
	p.Status = product.Status(status)
	return p, err
}
