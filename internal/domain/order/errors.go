package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems = errors.New("items required")
	ErrNotFound   = errors.New("order not found")
	// ErrOrderDelivered is returned for any attempt to edit or transition a
	// delivered order.
	ErrOrderDelivered = errors.New("delivered orders cannot be modified")
	// ErrReservationConflict is returned when a concurrent checkout won the
	// stock race after this order's row was already written. The order has
	// been rolled back; retrying is safe.
	ErrReservationConflict = errors.New("order could not be completed, please retry")
	// ErrTransitionNotAllowed is returned when the configured transition
	// table rejects a status change.
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
)

// ProblemReason identifies why a single requested item was rejected.
type ProblemReason string

const (
	ProblemNotFound          ProblemReason = "product_not_found"
	ProblemUnavailable       ProblemReason = "product_unavailable"
	ProblemInvalidQuantity   ProblemReason = "invalid_quantity"
	ProblemInsufficientStock ProblemReason = "insufficient_stock"
)

// ItemProblem describes one offending entry of a rejected item list.
// Available is only meaningful for insufficient_stock.
type ItemProblem struct {
	Ref       string        `json:"ref"`
	Reason    ProblemReason `json:"reason"`
	Requested int           `json:"requested,omitempty"`
	Available int           `json:"available,omitempty"`
}

func (p ItemProblem) String() string {
	if p.Reason == ProblemInsufficientStock {
		return fmt.Sprintf("%s: %s (requested %d, available %d)", p.Ref, p.Reason, p.Requested, p.Available)
	}
	return fmt.Sprintf("%s: %s", p.Ref, p.Reason)
}

// ResolveError reports every offending entry of an item list at once, so the
// caller can surface all problems in a single response. Resolution is
// all-or-nothing: if this error is returned, nothing was created or mutated.
type ResolveError struct {
	Problems []ItemProblem
}

func (e *ResolveError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return "cannot resolve items: " + strings.Join(parts, "; ")
}

// StockOnly reports whether every problem is an insufficient-stock one.
func (e *ResolveError) StockOnly() bool {
	for _, p := range e.Problems {
		if p.Reason != ProblemInsufficientStock {
			return false
		}
	}
	return len(e.Problems) > 0
}
