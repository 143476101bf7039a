package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result holds the outcome of evaluating a coupon against an order.
type Result struct {
	Eligible bool
	// Reason is set when Eligible is false.
	Reason IneligibilityReason
	// Discount is the amount subtracted from the item subtotal.
	// Always within [0, subtotal].
	Discount decimal.Decimal
	// FreeShipping is set for free_shipping coupons; the subtotal is not
	// reduced for those.
	FreeShipping bool
	FinalTotal   decimal.Decimal
}

// Evaluate checks the coupon's eligibility rules in order and, when all pass,
// computes the discount for its kind. The first failed rule short-circuits.
// priorUserUses is the caller-supplied count of the user's earlier
// redemptions; both it and the global usage counter are advisory pre-checks,
// the authoritative increment happens at commit time.
//
// Evaluate is pure: it touches no stores and is safe to call concurrently.
func Evaluate(c *Coupon, items []Item, subtotal decimal.Decimal, priorUserUses int, now time.Time) (Result, error) {
	if reason, ok := checkEligibility(c, items, subtotal, priorUserUses, now); !ok {
		return Result{Eligible: false, Reason: reason, FinalTotal: subtotal}, nil
	}

	res := Result{Eligible: true}

	switch c.Kind {
	case KindPercentage:
		d := subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.IsPositive() && d.GreaterThan(c.MaxDiscount) {
			d = c.MaxDiscount
		}
		res.Discount = d
	case KindFixedAmount:
		res.Discount = decimal.Min(c.Value, subtotal)
	case KindFreeShipping:
		res.Discount = decimal.Zero
		res.FreeShipping = true
	case KindBuyOneGetOne:
		res.Discount = cheapestUnitPrice(items)
	default:
		return Result{}, errors.Errorf("unsupported discount kind: %q", c.Kind)
	}

	res.Discount = clamp(res.Discount, subtotal).Round(2)
	res.FinalTotal = subtotal.Sub(res.Discount)
	if res.FinalTotal.IsNegative() {
		res.FinalTotal = decimal.Zero
	}
	return res, nil
}

// checkEligibility runs the ordered rule chain and returns the first failure.
func checkEligibility(c *Coupon, items []Item, subtotal decimal.Decimal, priorUserUses int, now time.Time) (IneligibilityReason, bool) {
	if !c.Enabled {
		return ReasonDisabled, false
	}
	if now.Before(c.StartsAt) {
		return ReasonNotStarted, false
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return ReasonExpired, false
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return ReasonUsageExceeded, false
	}
	if c.UserLimit > 0 && priorUserUses >= c.UserLimit {
		return ReasonUserLimit, false
	}
	if subtotal.LessThan(c.MinimumAmount) {
		return ReasonMinimumNotMet, false
	}
	for _, item := range items {
		if contains(c.ExcludedProducts, item.ProductID) {
			return ReasonExcludedItem, false
		}
	}
	// Applicability is "at least one qualifying item", not "every item".
	if len(c.ApplicableProducts) > 0 || len(c.ApplicableCategories) > 0 {
		if !anyApplicable(c, items) {
			return ReasonNotApplicable, false
		}
	}
	return "", true
}

func anyApplicable(c *Coupon, items []Item) bool {
	for _, item := range items {
		if contains(c.ApplicableProducts, item.ProductID) {
			return true
		}
		if contains(c.ApplicableCategories, item.Category) {
			return true
		}
	}
	return false
}

// cheapestUnitPrice returns the unit price of the cheapest item, or zero when
// the order holds fewer than two units in total. One unit only: the discount
// does not scale with quantity.
func cheapestUnitPrice(items []Item) decimal.Decimal {
	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	if units < 2 {
		return decimal.Zero
	}

	cheapest := items[0].Price
	for _, item := range items[1:] {
		if item.Price.LessThan(cheapest) {
			cheapest = item.Price
		}
	}
	return cheapest
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// clamp keeps d within [0, max].
func clamp(d, max decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}
