package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported coupon discount strategies.
type Kind string

const (
	// KindPercentage applies a percentage discount to the subtotal,
	// optionally capped at MaxDiscount.
	KindPercentage Kind = "percentage"
	// KindFixedAmount subtracts a fixed amount, capped at the subtotal.
	KindFixedAmount Kind = "fixed_amount"
	// KindFreeShipping waives the shipping fee. The item subtotal is not
	// reduced; the waiver is reported as a flag on the evaluation result.
	KindFreeShipping Kind = "free_shipping"
	// KindBuyOneGetOne discounts one unit of the cheapest item when the
	// order contains at least two units in total. It deliberately does not
	// scale with quantity.
	KindBuyOneGetOne Kind = "buy_one_get_one"
)

// ErrInvalidCoupon is returned when a coupon code does not resolve to an
// active coupon.
var ErrInvalidCoupon = errors.New("invalid coupon code")

// IneligibilityReason identifies which eligibility rule a coupon failed.
type IneligibilityReason string

const (
	ReasonDisabled       IneligibilityReason = "coupon_disabled"
	ReasonNotStarted     IneligibilityReason = "coupon_not_started"
	ReasonExpired        IneligibilityReason = "coupon_expired"
	ReasonUsageExceeded  IneligibilityReason = "usage_limit_reached"
	ReasonUserLimit      IneligibilityReason = "user_limit_reached"
	ReasonMinimumNotMet  IneligibilityReason = "minimum_amount_not_met"
	ReasonExcludedItem   IneligibilityReason = "order_contains_excluded_product"
	ReasonNotApplicable  IneligibilityReason = "no_applicable_items"
)

// IneligibleError carries the specific failed eligibility rule so callers can
// tell the customer exactly why the code was rejected.
type IneligibleError struct {
	Code   string
	Reason IneligibilityReason
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("coupon %s not eligible: %s", e.Code, e.Reason)
}

// Coupon defines a discount rule with its eligibility constraints.
// Zero UsageLimit or UserLimit means unlimited; nil EndsAt means unbounded.
type Coupon struct {
	ID            string
	Code          string
	Kind          Kind
	Value         decimal.Decimal
	MinimumAmount decimal.Decimal
	// MaxDiscount caps percentage discounts when positive. Ignored for
	// the other kinds.
	MaxDiscount decimal.Decimal
	UsageLimit  int
	UsageCount  int
	UserLimit   int
	// Applicability sets. Empty applicable sets mean "applies to everything";
	// a non-empty set requires at least one matching item.
	ApplicableCategories []string
	ApplicableProducts   []string
	ExcludedProducts     []string
	StartsAt             time.Time
	EndsAt               *time.Time
	Enabled              bool
}

// Snapshot is the frozen record of a coupon as applied to one order.
type Snapshot struct {
	Code     string          `json:"code"`
	Kind     Kind            `json:"kind"`
	Value    decimal.Decimal `json:"value"`
	Discount decimal.Decimal `json:"discount"`
}

// Item is an order line as seen by the evaluator.
type Item struct {
	ProductID string
	Category  string
	Price     decimal.Decimal
	Quantity  int
}

// Store provides coupon lookup and the usage counters.
type Store interface {
	// FindActiveByCode returns the enabled coupon with the given code
	// (case-insensitive), or ErrInvalidCoupon.
	FindActiveByCode(ctx context.Context, code string) (*Coupon, error)
	// IncrementUsage atomically bumps the coupon's global usage counter and
	// records a redemption for the user, tied to the given order.
	IncrementUsage(ctx context.Context, couponID, userID, orderID string) error
	// UserUsageCount returns how many times the user has redeemed the coupon.
	UserUsageCount(ctx context.Context, couponID, userID string) (int, error)
}
