package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vendora/storefront/internal/domain/product"
)

// priceTolerance is the relative tolerance used both for the deprecated
// name+price resolution fallback and for flagging client price mismatches.
var priceTolerance = decimal.NewFromFloat(0.01)

// ItemInput is one caller-supplied order entry. ProductID is the preferred
// reference; Name and SKU exist only for the deprecated compatibility path.
// ExpectedPrice, when set, is advisory: the current catalog price always
// wins, a mismatch beyond tolerance is logged.
type ItemInput struct {
	ProductID     string
	Name          string
	SKU           string
	Quantity      int
	ExpectedPrice *decimal.Decimal
}

// ref returns the best identifier for error reporting.
func (in ItemInput) ref() string {
	switch {
	case in.ProductID != "":
		return in.ProductID
	case in.SKU != "":
		return in.SKU
	default:
		return in.Name
	}
}

// ResolvedItem is a normalized, priced, stock-checked order line.
type ResolvedItem struct {
	Product   product.Product
	Quantity  int
	UnitPrice decimal.Decimal
}

// Resolver converts caller-supplied item entries into priced catalog items.
// It performs reads and validation only; it never mutates anything.
type Resolver struct {
	products product.Repository
}

// NewResolver creates a Resolver over the given catalog.
func NewResolver(products product.Repository) *Resolver {
	return &Resolver{products: products}
}

// Resolve validates and prices the given entries all-or-nothing: if any entry
// fails, it returns a ResolveError listing every offending entry and no
// items. The stock check here is an optimistic pre-filter; the authoritative
// check is the ledger's conditional decrement at reservation time.
func (r *Resolver) Resolve(ctx context.Context, inputs []ItemInput) ([]ResolvedItem, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, ErrEmptyItems
	}

	var (
		resolved = make([]ResolvedItem, 0, len(inputs))
		problems []ItemProblem
		subtotal = decimal.Zero
	)

	for _, in := range inputs {
		if in.Quantity <= 0 {
			problems = append(problems, ItemProblem{Ref: in.ref(), Reason: ProblemInvalidQuantity})
			continue
		}

		p, err := r.lookup(ctx, in)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				problems = append(problems, ItemProblem{Ref: in.ref(), Reason: ProblemNotFound})
				continue
			}
			return nil, decimal.Zero, errors.Wrapf(err, "resolve item %s", in.ref())
		}

		if !p.Sellable() {
			problems = append(problems, ItemProblem{Ref: in.ref(), Reason: ProblemUnavailable})
			continue
		}

		if p.Stock < in.Quantity {
			problems = append(problems, ItemProblem{
				Ref:       in.ref(),
				Reason:    ProblemInsufficientStock,
				Requested: in.Quantity,
				Available: p.Stock,
			})
			continue
		}

		r.checkExpectedPrice(ctx, in, p)

		resolved = append(resolved, ResolvedItem{
			Product:   *p,
			Quantity:  in.Quantity,
			UnitPrice: p.Price,
		})
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(in.Quantity))))
	}

	if len(problems) > 0 {
		return nil, decimal.Zero, &ResolveError{Problems: problems}
	}
	return resolved, subtotal, nil
}

// lookup finds the product referenced by the entry. A direct product ID is
// the normal path. The name and SKU fallbacks replicate legacy call sites and
// are logged as deprecated: when catalog names collide the first match wins,
// which can silently pick the wrong product.
func (r *Resolver) lookup(ctx context.Context, in ItemInput) (*product.Product, error) {
	if in.ProductID != "" {
		return r.products.GetByID(ctx, in.ProductID)
	}

	zctx.From(ctx).Warn("deprecated item resolution without product id",
		zap.String("name", in.Name),
		zap.String("sku", in.SKU),
	)

	if in.Name != "" {
		candidates, err := r.products.FindByNameLike(ctx, in.Name)
		if err != nil {
			return nil, errors.Wrap(err, "find by name")
		}

		// Exact name match first, case-insensitively.
		for i := range candidates {
			if strings.EqualFold(candidates[i].Name, in.Name) {
				return &candidates[i], nil
			}
		}
		// Then the first partial match.
		if len(candidates) > 0 {
			return &candidates[0], nil
		}
		// Then any name fragment whose price lands within tolerance of the
		// client-supplied price.
		if in.ExpectedPrice != nil {
			for _, word := range strings.Fields(in.Name) {
				frag, err := r.products.FindByNameLike(ctx, word)
				if err != nil {
					return nil, errors.Wrap(err, "find by name fragment")
				}
				for i := range frag {
					if withinTolerance(frag[i].Price, *in.ExpectedPrice) {
						return &frag[i], nil
					}
				}
			}
		}
	}

	if in.SKU != "" {
		return r.products.FindBySKU(ctx, in.SKU)
	}

	return nil, product.ErrNotFound
}

// checkExpectedPrice logs when the client-supplied price disagrees with the
// catalog beyond tolerance. The server-computed price always wins; this is a
// soft signal, never a failure.
func (r *Resolver) checkExpectedPrice(ctx context.Context, in ItemInput, p *product.Product) {
	if in.ExpectedPrice == nil {
		return
	}
	if withinTolerance(p.Price, *in.ExpectedPrice) {
		return
	}
	zctx.From(ctx).Warn("client price mismatch, using catalog price",
		zap.String("product_id", p.ID),
		zap.String("expected", in.ExpectedPrice.String()),
		zap.String("actual", p.Price.String()),
	)
}

// withinTolerance reports whether b is within +-1% of a.
func withinTolerance(a, b decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return !diff.GreaterThan(a.Abs().Mul(priceTolerance))
}
