package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vendora/storefront/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, kind, value, minimum_amount, max_discount,
		usage_limit, usage_count, user_limit,
		applicable_categories, applicable_products, excluded_products,
		starts_at, ends_at, enabled
		FROM coupons WHERE UPPER(code) = UPPER($1) AND enabled = TRUE`

	// A single statement keeps the counter bump and the redemption record
	// atomic without an explicit transaction.
	redeemCouponSQL = `WITH bumped AS (
			UPDATE coupons SET usage_count = usage_count + 1 WHERE id = $1
		)
		INSERT INTO coupon_redemptions (coupon_id, user_id, order_id) VALUES ($1, $2, $3)`

	userUsageCountSQL = `SELECT COUNT(*) FROM coupon_redemptions
		WHERE coupon_id = $1 AND user_id = $2`
)

var _ coupon.Store = (*CouponRepository)(nil)

// CouponRepository implements coupon.Store backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindActiveByCode looks up an enabled coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no matching enabled coupon exists.
func (r *CouponRepository) FindActiveByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// IncrementUsage atomically bumps the coupon's global usage counter and
// records the user's redemption for the given order.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID, userID, orderID string) error {
	_, err := r.pool.Exec(ctx, redeemCouponSQL, couponID, userID, orderID)
	if err != nil {
		return fmt.Errorf("recording redemption of coupon %q: %w", couponID, err)
	}
	return nil
}

// UserUsageCount returns how many times the user has redeemed the coupon.
func (r *CouponRepository) UserUsageCount(ctx context.Context, couponID, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, userUsageCountSQL, couponID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting redemptions of coupon %q: %w", couponID, err)
	}
	return count, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		kind        string
		value       decimal.Decimal
		minAmount   decimal.Decimal
		maxDiscount decimal.Decimal
		usageLimit  int32
		usageCount  int32
		userLimit   int32
		endsAt      *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &kind, &value, &minAmount, &maxDiscount,
		&usageLimit, &usageCount, &userLimit,
		&c.ApplicableCategories, &c.ApplicableProducts, &c.ExcludedProducts,
		&c.StartsAt, &endsAt, &c.Enabled,
	)
	c.Kind = coupon.Kind(kind)
	c.Value = value
	c.MinimumAmount = minAmount
	c.MaxDiscount = maxDiscount
	c.UsageLimit = int(usageLimit)
	c.UsageCount = int(usageCount)
	c.UserLimit = int(userLimit)
	c.EndsAt = endsAt
	return c, err
}
