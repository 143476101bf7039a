package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEvaluate_DiscountKinds(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	items := []Item{
		{ProductID: "p1", Category: "snacks", Price: dec("10"), Quantity: 2},
	}
	twoItems := []Item{
		{ProductID: "p1", Category: "snacks", Price: dec("10"), Quantity: 1},
		{ProductID: "p2", Category: "drinks", Price: dec("20"), Quantity: 1},
	}

	tests := []struct {
		name         string
		coupon       Coupon
		items        []Item
		subtotal     decimal.Decimal
		wantDiscount decimal.Decimal
		wantTotal    decimal.Decimal
		wantShipping bool
	}{
		{
			name:         "percentage 10 percent",
			coupon:       Coupon{Code: "SAVE10", Kind: KindPercentage, Value: dec("10"), Enabled: true},
			items:        items,
			subtotal:     dec("20"),
			wantDiscount: dec("2.00"),
			wantTotal:    dec("18.00"),
		},
		{
			name: "percentage capped at max discount",
			coupon: Coupon{
				Code: "HALF", Kind: KindPercentage, Value: dec("50"),
				MaxDiscount: dec("5"), Enabled: true,
			},
			items:        items,
			subtotal:     dec("20"),
			wantDiscount: dec("5.00"),
			wantTotal:    dec("15.00"),
		},
		{
			name:         "fixed amount below subtotal",
			coupon:       Coupon{Code: "FIVER", Kind: KindFixedAmount, Value: dec("5"), Enabled: true},
			items:        items,
			subtotal:     dec("20"),
			wantDiscount: dec("5.00"),
			wantTotal:    dec("15.00"),
		},
		{
			name:         "fixed amount larger than subtotal is capped",
			coupon:       Coupon{Code: "BIGOFF", Kind: KindFixedAmount, Value: dec("50"), Enabled: true},
			items:        items,
			subtotal:     dec("20"),
			wantDiscount: dec("20.00"),
			wantTotal:    dec("0"),
		},
		{
			name:         "free shipping leaves subtotal alone",
			coupon:       Coupon{Code: "SHIPFREE", Kind: KindFreeShipping, Enabled: true},
			items:        items,
			subtotal:     dec("20"),
			wantDiscount: dec("0"),
			wantTotal:    dec("20"),
			wantShipping: true,
		},
		{
			name:         "bogo discounts one unit of the cheapest item",
			coupon:       Coupon{Code: "BOGO", Kind: KindBuyOneGetOne, Enabled: true},
			items:        twoItems,
			subtotal:     dec("30"),
			wantDiscount: dec("10.00"),
			wantTotal:    dec("20.00"),
		},
		{
			name:         "bogo with a single unit gives nothing",
			coupon:       Coupon{Code: "BOGO", Kind: KindBuyOneGetOne, Enabled: true},
			items:        []Item{{ProductID: "p1", Price: dec("10"), Quantity: 1}},
			subtotal:     dec("10"),
			wantDiscount: dec("0"),
			wantTotal:    dec("10"),
		},
		{
			name:         "bogo with two units of one product discounts one unit",
			coupon:       Coupon{Code: "BOGO", Kind: KindBuyOneGetOne, Enabled: true},
			items:        items,
			subtotal:     dec("20"),
			wantDiscount: dec("10.00"),
			wantTotal:    dec("10.00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(&tt.coupon, tt.items, tt.subtotal, 0, now)
			require.NoError(t, err)

			require.True(t, res.Eligible, "reason: %s", res.Reason)
			assert.True(t, tt.wantDiscount.Equal(res.Discount),
				"discount: want %s, got %s", tt.wantDiscount, res.Discount)
			assert.True(t, tt.wantTotal.Equal(res.FinalTotal),
				"total: want %s, got %s", tt.wantTotal, res.FinalTotal)
			assert.Equal(t, tt.wantShipping, res.FreeShipping)
			assert.True(t, res.Discount.GreaterThanOrEqual(decimal.Zero))
			assert.True(t, res.Discount.LessThanOrEqual(tt.subtotal))
		})
	}
}

func TestEvaluate_EligibilityChain(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	items := []Item{
		{ProductID: "p1", Category: "snacks", Price: dec("15"), Quantity: 2},
	}
	subtotal := dec("30")

	base := func() Coupon {
		return Coupon{
			Code:    "RULES",
			Kind:    KindPercentage,
			Value:   dec("10"),
			Enabled: true,
		}
	}

	tests := []struct {
		name       string
		mutate     func(*Coupon)
		priorUses  int
		wantReason IneligibilityReason
	}{
		{
			name:       "disabled coupon",
			mutate:     func(c *Coupon) { c.Enabled = false },
			wantReason: ReasonDisabled,
		},
		{
			name:       "not yet started",
			mutate:     func(c *Coupon) { c.StartsAt = future },
			wantReason: ReasonNotStarted,
		},
		{
			name:       "expired",
			mutate:     func(c *Coupon) { c.EndsAt = &past },
			wantReason: ReasonExpired,
		},
		{
			name: "global usage limit reached",
			mutate: func(c *Coupon) {
				c.UsageLimit = 100
				c.UsageCount = 100
			},
			wantReason: ReasonUsageExceeded,
		},
		{
			name:       "per-user limit reached",
			mutate:     func(c *Coupon) { c.UserLimit = 1 },
			priorUses:  1,
			wantReason: ReasonUserLimit,
		},
		{
			name:       "minimum order amount not met",
			mutate:     func(c *Coupon) { c.MinimumAmount = dec("50") },
			wantReason: ReasonMinimumNotMet,
		},
		{
			name:       "order contains an excluded product",
			mutate:     func(c *Coupon) { c.ExcludedProducts = []string{"p1"} },
			wantReason: ReasonExcludedItem,
		},
		{
			name:       "no item matches the applicable set",
			mutate:     func(c *Coupon) { c.ApplicableCategories = []string{"electronics"} },
			wantReason: ReasonNotApplicable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)

			res, err := Evaluate(&c, items, subtotal, tt.priorUses, now)
			require.NoError(t, err)

			assert.False(t, res.Eligible)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.True(t, res.Discount.IsZero())
			assert.True(t, subtotal.Equal(res.FinalTotal))
		})
	}
}

func TestEvaluate_ApplicabilityNeedsOnlyOneItem(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	c := Coupon{
		Code:                 "SNACKS10",
		Kind:                 KindPercentage,
		Value:                dec("10"),
		ApplicableCategories: []string{"snacks"},
		Enabled:              true,
	}
	items := []Item{
		{ProductID: "p1", Category: "drinks", Price: dec("5"), Quantity: 1},
		{ProductID: "p2", Category: "snacks", Price: dec("15"), Quantity: 1},
	}

	res, err := Evaluate(&c, items, dec("20"), 0, now)
	require.NoError(t, err)

	// One qualifying item is enough; the discount applies to the whole subtotal.
	assert.True(t, res.Eligible)
	assert.True(t, dec("2.00").Equal(res.Discount), "got %s", res.Discount)
}

func TestEvaluate_ProductApplicabilitySet(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	c := Coupon{
		Code:               "ONLYP2",
		Kind:               KindFixedAmount,
		Value:              dec("3"),
		ApplicableProducts: []string{"p2"},
		Enabled:            true,
	}

	miss := []Item{{ProductID: "p1", Category: "snacks", Price: dec("10"), Quantity: 1}}
	res, err := Evaluate(&c, miss, dec("10"), 0, now)
	require.NoError(t, err)
	assert.False(t, res.Eligible)
	assert.Equal(t, ReasonNotApplicable, res.Reason)

	hit := []Item{{ProductID: "p2", Category: "snacks", Price: dec("10"), Quantity: 1}}
	res, err = Evaluate(&c, hit, dec("10"), 0, now)
	require.NoError(t, err)
	assert.True(t, res.Eligible)
	assert.True(t, dec("3.00").Equal(res.Discount))
}

func TestEvaluate_UnboundedWindowAndLimits(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	c := Coupon{
		Code:       "FOREVER",
		Kind:       KindFixedAmount,
		Value:      dec("1"),
		UsageCount: 99999,
		Enabled:    true,
	}
	items := []Item{{ProductID: "p1", Price: dec("10"), Quantity: 1}}

	// Nil EndsAt means unbounded; zero UsageLimit means unlimited.
	res, err := Evaluate(&c, items, dec("10"), 50, now)
	require.NoError(t, err)
	assert.True(t, res.Eligible)
}

func TestEvaluate_UnknownKind(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	c := Coupon{Code: "ODD", Kind: "loyalty_points", Enabled: true}
	_, err := Evaluate(&c, []Item{{ProductID: "p1", Price: dec("10"), Quantity: 1}}, dec("10"), 0, now)
	require.Error(t, err)
}
