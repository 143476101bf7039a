package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vendora/storefront/internal/domain/cart"
	"github.com/vendora/storefront/internal/domain/coupon"
	"github.com/vendora/storefront/internal/domain/product"
)

// CheckoutRequest holds the input for a checkout. When FromCart is set the
// user's cart supplies the items and is cleared after success; otherwise
// Items is used directly.
type CheckoutRequest struct {
	UserID          string
	FromCart        bool
	Items           []ItemInput
	CouponCode      string
	ShippingAddress Address
	PaymentMethod   string
}

// CheckoutService turns a cart or item list into a persisted order. It is the
// only writer of coupon usage counters and the only caller of the stock
// ledger on the create path.
type CheckoutService struct {
	resolver *Resolver
	coupons  coupon.Store
	ledger   product.Ledger
	orders   Repository
	carts    cart.Store
	sink     EventSink

	now func() time.Time
}

// NewCheckoutService wires a CheckoutService from its collaborators.
func NewCheckoutService(
	resolver *Resolver,
	coupons coupon.Store,
	ledger product.Ledger,
	orders Repository,
	carts cart.Store,
	sink EventSink,
) *CheckoutService {
	return &CheckoutService{
		resolver: resolver,
		coupons:  coupons,
		ledger:   ledger,
		orders:   orders,
		carts:    carts,
		sink:     sink,
		now:      time.Now,
	}
}

// Checkout validates, prices, discounts and persists a new order.
//
// The flow is all-or-nothing: any resolution or coupon failure happens before
// anything is written. After the order row exists the stock reservation may
// still lose a race against a concurrent checkout; that path rolls the order
// back to a cancelled-at-birth state, restores any partial reservations, and
// surfaces ErrReservationConflict.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	inputs, srcCart, err := s.sourceItems(ctx, req)
	if err != nil {
		return nil, err
	}

	resolved, subtotal, err := s.resolver.Resolve(ctx, inputs)
	if err != nil {
		return nil, err
	}

	// A submitted coupon code must be valid and eligible: there is no
	// silent no-discount fallback.
	var (
		discount     = decimal.Zero
		freeShipping bool
		applied      *coupon.Coupon
		snapshot     *coupon.Snapshot
	)
	if req.CouponCode != "" {
		applied, discount, freeShipping, err = s.applyCoupon(ctx, req.UserID, req.CouponCode, resolved, subtotal)
		if err != nil {
			return nil, err
		}
		snapshot = &coupon.Snapshot{
			Code:     applied.Code,
			Kind:     applied.Kind,
			Value:    applied.Value,
			Discount: discount,
		}
	}

	o := s.buildOrder(req, resolved, subtotal, discount, freeShipping, snapshot)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if err := s.reserveStock(ctx, o); err != nil {
		return nil, err
	}

	// From here on the order stands. Counter bumps, cart clearing and
	// notifications are logged on failure but never undo the order.
	lg := zctx.From(ctx)

	if applied != nil {
		if err := s.coupons.IncrementUsage(ctx, applied.ID, req.UserID, o.ID); err != nil {
			lg.Error("coupon usage increment failed",
				zap.String("coupon", applied.Code),
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	if srcCart != nil {
		if err := s.carts.Clear(ctx, srcCart.ID); err != nil {
			lg.Error("cart clear failed",
				zap.String("cart_id", srcCart.ID),
				zap.Error(err),
			)
		}
	}

	if err := s.sink.OrderCreated(ctx, o); err != nil {
		lg.Warn("order created notification failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	return o, nil
}

// sourceItems picks the item inputs from the cart or the request.
func (s *CheckoutService) sourceItems(ctx context.Context, req CheckoutRequest) ([]ItemInput, *cart.Cart, error) {
	if !req.FromCart {
		if len(req.Items) == 0 {
			return nil, nil, ErrEmptyItems
		}
		return req.Items, nil, nil
	}

	c, err := s.carts.GetByUser(ctx, req.UserID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load cart")
	}
	if len(c.Items) == 0 {
		return nil, nil, ErrEmptyItems
	}

	inputs := make([]ItemInput, len(c.Items))
	for i, item := range c.Items {
		price := item.Price
		inputs[i] = ItemInput{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			ExpectedPrice: &price,
		}
	}
	return inputs, c, nil
}

// applyCoupon looks up and evaluates the coupon strictly: not-found and
// every ineligibility reason fail the checkout.
func (s *CheckoutService) applyCoupon(
	ctx context.Context,
	userID, code string,
	resolved []ResolvedItem,
	subtotal decimal.Decimal,
) (*coupon.Coupon, decimal.Decimal, bool, error) {
	c, err := s.coupons.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrInvalidCoupon) {
			return nil, decimal.Zero, false, coupon.ErrInvalidCoupon
		}
		return nil, decimal.Zero, false, errors.Wrap(err, "lookup coupon")
	}

	priorUses := 0
	if c.UserLimit > 0 {
		priorUses, err = s.coupons.UserUsageCount(ctx, c.ID, userID)
		if err != nil {
			return nil, decimal.Zero, false, errors.Wrap(err, "count user redemptions")
		}
	}

	items := make([]coupon.Item, len(resolved))
	for i, ri := range resolved {
		items[i] = coupon.Item{
			ProductID: ri.Product.ID,
			Category:  ri.Product.Category,
			Price:     ri.UnitPrice,
			Quantity:  ri.Quantity,
		}
	}

	res, err := coupon.Evaluate(c, items, subtotal, priorUses, s.now())
	if err != nil {
		return nil, decimal.Zero, false, errors.Wrap(err, "evaluate coupon")
	}
	if !res.Eligible {
		return nil, decimal.Zero, false, &coupon.IneligibleError{Code: c.Code, Reason: res.Reason}
	}
	return c, res.Discount, res.FreeShipping, nil
}

// buildOrder freezes the snapshot: item prices are copied from the catalog as
// of now and never recomputed.
func (s *CheckoutService) buildOrder(
	req CheckoutRequest,
	resolved []ResolvedItem,
	subtotal, discount decimal.Decimal,
	freeShipping bool,
	snapshot *coupon.Snapshot,
) *Order {
	items := make([]Item, len(resolved))
	for i, ri := range resolved {
		items[i] = Item{
			ProductID: ri.Product.ID,
			Name:      ri.Product.Name,
			Quantity:  ri.Quantity,
			UnitPrice: ri.UnitPrice,
		}
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now()
	return &Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		Items:           items,
		Subtotal:        subtotal.Round(2),
		Discount:        discount.Round(2),
		Total:           total.Round(2),
		Coupon:          snapshot,
		FreeShipping:    freeShipping,
		Status:          StatusPending,
		History:         nil,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// reserveStock runs the authoritative per-product conditional decrements.
// On any failure it restores what was already taken and flips the order to a
// cancelled-at-birth state so no partial reservation survives. Rollback runs
// on a detached context: even if the caller aborted mid-checkout the system
// still reaches a consistent terminal state.
func (s *CheckoutService) reserveStock(ctx context.Context, o *Order) error {
	for i, item := range o.Items {
		ok, err := s.ledger.TryReserve(ctx, item.ProductID, item.Quantity)
		if err == nil && ok {
			continue
		}

		s.rollbackReservation(context.WithoutCancel(ctx), o, i)

		if err != nil {
			return errors.Wrapf(err, "reserve stock for %s", item.ProductID)
		}
		return errors.Wrapf(ErrReservationConflict, "product %s", item.ProductID)
	}
	return nil
}

// rollbackReservation releases the first reserved items of the order and
// records the stillborn order as cancelled, keeping the audit trail instead
// of deleting the row.
func (s *CheckoutService) rollbackReservation(ctx context.Context, o *Order, reserved int) {
	lg := zctx.From(ctx)

	for _, item := range o.Items[:reserved] {
		if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			lg.Error("stock release during rollback failed",
				zap.String("order_id", o.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
		}
	}

	o.Status = StatusCancelled
	o.History = append(o.History, HistoryEntry{
		Status: StatusCancelled,
		Note:   "stock reservation lost to a concurrent order",
		Actor:  "system",
		At:     s.now(),
	})
	o.UpdatedAt = s.now()

	if err := s.orders.Save(ctx, o); err != nil {
		lg.Error("cancel-at-birth save failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}
