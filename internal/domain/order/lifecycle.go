package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vendora/storefront/internal/domain/product"
)

// TransitionTable decides which status changes are allowed. The default table
// preserves the historical permissive behaviour; stricter graphs can be
// swapped in without touching the service.
type TransitionTable func(from, to Status) bool

// PermissiveTransitions allows any transition except away from delivered,
// which is terminal. Self-transitions are allowed and are stock no-ops.
func PermissiveTransitions(from, to Status) bool {
	return from != StatusDelivered
}

// LifecycleService applies status transitions to existing orders. Entering
// cancelled restores stock for every item; leaving cancelled re-reserves it.
// Those are the only automated inventory effects in the lifecycle.
type LifecycleService struct {
	orders      Repository
	ledger      product.Ledger
	sink        EventSink
	transitions TransitionTable

	now func() time.Time
}

// NewLifecycleService wires a LifecycleService. A nil table defaults to
// PermissiveTransitions.
func NewLifecycleService(
	orders Repository,
	ledger product.Ledger,
	sink EventSink,
	transitions TransitionTable,
) *LifecycleService {
	if transitions == nil {
		transitions = PermissiveTransitions
	}
	return &LifecycleService{
		orders:      orders,
		ledger:      ledger,
		sink:        sink,
		transitions: transitions,
		now:         time.Now,
	}
}

// SetStatus moves the order to next, applying stock side effects on the
// cancel/reactivate edges. A transition to the current status is a no-op with
// respect to stock, so double cancellation can never double-restore.
//
// The status is persisted before stock is restored on the cancel edge: a
// failed save then leaves the ledger untouched and the retried cancel starts
// from the same state. The reactivate edge has to reserve first, since the
// reservation can be refused; a failed save there undoes the reservation.
func (s *LifecycleService) SetStatus(ctx context.Context, orderID string, next Status, note, actor string) (*Order, error) {
	if _, err := ToStatus(string(next)); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	prev := o.Status
	if prev == StatusDelivered {
		return nil, ErrOrderDelivered
	}
	if !s.transitions(prev, next) {
		return nil, errors.Wrapf(ErrTransitionNotAllowed, "%s to %s", prev, next)
	}

	reactivating := prev == StatusCancelled && next != StatusCancelled
	if reactivating {
		if err := s.reReserveStock(ctx, o); err != nil {
			return nil, err
		}
	}

	o.Status = next
	if note != "" {
		o.History = append(o.History, HistoryEntry{
			Status: next,
			Note:   note,
			Actor:  actor,
			At:     s.now(),
		})
	}
	o.UpdatedAt = s.now()

	if err := s.orders.Save(ctx, o); err != nil {
		if reactivating {
			s.releaseItems(context.WithoutCancel(ctx), o.ID, o.Items)
		}
		return nil, errors.Wrap(err, "save order")
	}

	if prev != StatusCancelled && next == StatusCancelled {
		// The cancellation is durable at this point. Releases run detached
		// so a dying request cannot skip them partway through the items.
		s.releaseItems(context.WithoutCancel(ctx), o.ID, o.Items)
	}

	if err := s.sink.StatusChanged(ctx, o, StatusChange{
		From:  prev,
		To:    next,
		Note:  note,
		Actor: actor,
		At:    s.now(),
	}); err != nil {
		zctx.From(ctx).Warn("status changed notification failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	return o, nil
}

// EditItems replaces the order's item list and recomputes the total against
// the already-applied discount. Unit prices come from the caller unchanged:
// frozen order prices are never recomputed from the live catalog. Stock is
// deliberately not re-validated on edits.
func (s *LifecycleService) EditItems(ctx context.Context, orderID string, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &ResolveError{Problems: []ItemProblem{
				{Ref: item.ProductID, Reason: ProblemInvalidQuantity},
			}}
		}
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusDelivered {
		return nil, ErrOrderDelivered
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	discount := decimal.Min(o.Discount, subtotal)
	o.Items = items
	o.Subtotal = subtotal.Round(2)
	o.Discount = discount.Round(2)
	o.Total = subtotal.Sub(discount).Round(2)
	o.UpdatedAt = s.now()

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// releaseItems returns the given quantities to the ledger. Failures are
// logged and skipped: the caller has already committed its decision and a
// counter write must not veto it.
func (s *LifecycleService) releaseItems(ctx context.Context, orderID string, items []Item) {
	lg := zctx.From(ctx)
	for _, item := range items {
		if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			lg.Error("stock release failed",
				zap.String("order_id", orderID),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
		}
	}
}

// reReserveStock re-takes every item's quantity when a cancelled order is
// reactivated. If an item no longer has stock, reservations made so far are
// rolled back and the order stays cancelled.
func (s *LifecycleService) reReserveStock(ctx context.Context, o *Order) error {
	for i, item := range o.Items {
		ok, err := s.ledger.TryReserve(ctx, item.ProductID, item.Quantity)
		if err == nil && ok {
			continue
		}

		s.releaseItems(context.WithoutCancel(ctx), o.ID, o.Items[:i])

		if err != nil {
			return errors.Wrapf(err, "re-reserve stock for %s", item.ProductID)
		}
		return &ResolveError{Problems: []ItemProblem{{
			Ref:       item.ProductID,
			Reason:    ProblemInsufficientStock,
			Requested: item.Quantity,
		}}}
	}
	return nil
}
