package order

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/storefront/internal/domain/cart"
	"github.com/vendora/storefront/internal/domain/coupon"
	"github.com/vendora/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]*product.Product
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepo) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) FindByNameLike(_ context.Context, pattern string) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.byID {
		if p.Status == product.StatusActive &&
			strings.Contains(strings.ToLower(p.Name), strings.ToLower(pattern)) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) FindBySKU(_ context.Context, sku string) (*product.Product, error) {
	for _, p := range m.byID {
		if p.SKU == sku {
			cp := *p
			return &cp, nil
		}
	}
	return nil, product.ErrNotFound
}

// memLedger is an in-memory stock ledger with the same conditional-decrement
// contract as the postgres implementation.
type memLedger struct {
	mu    sync.Mutex
	stock map[string]int

	reserveErr   error
	failProducts map[string]bool
}

func newMemLedger(stock map[string]int) *memLedger {
	return &memLedger{stock: stock}
}

func (l *memLedger) TryReserve(_ context.Context, productID string, qty int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reserveErr != nil {
		return false, l.reserveErr
	}
	if l.failProducts[productID] {
		return false, nil
	}
	if l.stock[productID] < qty {
		return false, nil
	}
	l.stock[productID] -= qty
	return true, nil
}

func (l *memLedger) Release(ctx context.Context, productID string, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[productID] += qty
	return nil
}

func (l *memLedger) available(productID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[productID]
}

type mockOrderRepo struct {
	mu        sync.Mutex
	byID      map[string]*Order
	createErr error
	saveErr   error
	saveCalls int
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: make(map[string]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

// GetByID returns a copy, like the postgres repository materializing a row.
// Mutations by the caller only become visible through Save.
func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) Save(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) all() []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Order, 0, len(m.byID))
	for _, o := range m.byID {
		out = append(out, o)
	}
	return out
}

type mockCartStore struct {
	cart       *cart.Cart
	clearCalls int
	clearErr   error
}

func (m *mockCartStore) GetByUser(_ context.Context, userID string) (*cart.Cart, error) {
	if m.cart == nil {
		return &cart.Cart{ID: "cart-" + userID, UserID: userID}, nil
	}
	return m.cart, nil
}

func (m *mockCartStore) AddItem(_ context.Context, _ string, _ cart.Item) error { return nil }

func (m *mockCartStore) RemoveItem(_ context.Context, _, _ string) error { return nil }

func (m *mockCartStore) Clear(_ context.Context, _ string) error {
	m.clearCalls++
	if m.clearErr != nil {
		return m.clearErr
	}
	if m.cart != nil {
		m.cart.Items = nil
	}
	return nil
}

type mockCouponStore struct {
	coupon     *coupon.Coupon
	findErr    error
	userUses   int
	increments int
	lastOrder  string
}

func (m *mockCouponStore) FindActiveByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.coupon == nil || !strings.EqualFold(m.coupon.Code, code) {
		return nil, coupon.ErrInvalidCoupon
	}
	return m.coupon, nil
}

func (m *mockCouponStore) IncrementUsage(_ context.Context, _, _, orderID string) error {
	m.increments++
	m.lastOrder = orderID
	return nil
}

func (m *mockCouponStore) UserUsageCount(_ context.Context, _, _ string) (int, error) {
	return m.userUses, nil
}

type mockSink struct {
	mu         sync.Mutex
	created    int
	changed    int
	createdErr error
}

func (m *mockSink) OrderCreated(_ context.Context, _ *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	return m.createdErr
}

func (m *mockSink) StatusChanged(_ context.Context, _ *Order, _ StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changed++
	return nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func activeProduct(id, name string, price decimal.Decimal, stock int) product.Product {
	return product.Product{
		ID:       id,
		SellerID: "seller-1",
		Name:     name,
		SKU:      "SKU-" + id,
		Price:    price,
		Stock:    stock,
		Status:   product.StatusActive,
		Category: "test",
	}
}

type checkoutFixture struct {
	svc     *CheckoutService
	ledger  *memLedger
	orders  *mockOrderRepo
	carts   *mockCartStore
	coupons *mockCouponStore
	sink    *mockSink
}

func newCheckoutFixture(repo *mockProductRepo, ledger *memLedger) *checkoutFixture {
	f := &checkoutFixture{
		ledger:  ledger,
		orders:  newOrderRepo(),
		carts:   &mockCartStore{},
		coupons: &mockCouponStore{},
		sink:    &mockSink{},
	}
	f.svc = NewCheckoutService(NewResolver(repo), f.coupons, ledger, f.orders, f.carts, f.sink)
	return f
}

// --- Tests ---

func TestCheckout_FromCart(t *testing.T) {
	p := activeProduct("p1", "Espresso Beans", dec("10"), 5)
	f := newCheckoutFixture(newProductRepo(p), newMemLedger(map[string]int{"p1": 5}))
	f.carts.cart = &cart.Cart{
		ID:     "cart-u1",
		UserID: "u1",
		Items:  []cart.Item{{ProductID: "p1", Quantity: 2, Price: dec("10")}},
	}

	o, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID:        "u1",
		FromCart:      true,
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	assert.True(t, dec("20.00").Equal(o.Total), "got %s", o.Total)
	assert.True(t, o.Discount.IsZero())
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 3, f.ledger.available("p1"))
	assert.Equal(t, 1, f.carts.clearCalls)
	assert.Equal(t, 1, f.sink.created)
	assert.Empty(t, o.History)
}

func TestCheckout_PercentageCoupon(t *testing.T) {
	p := activeProduct("p1", "Espresso Beans", dec("10"), 5)
	f := newCheckoutFixture(newProductRepo(p), newMemLedger(map[string]int{"p1": 5}))
	f.coupons.coupon = &coupon.Coupon{
		ID:      "c1",
		Code:    "SAVE10",
		Kind:    coupon.KindPercentage,
		Value:   dec("10"),
		Enabled: true,
	}

	o, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID:     "u1",
		Items:      []ItemInput{{ProductID: "p1", Quantity: 2}},
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	assert.True(t, dec("2.00").Equal(o.Discount), "got %s", o.Discount)
	assert.True(t, dec("18.00").Equal(o.Total), "got %s", o.Total)
	require.NotNil(t, o.Coupon)
	assert.Equal(t, "SAVE10", o.Coupon.Code)
	assert.True(t, dec("2.00").Equal(o.Coupon.Discount))

	// Usage bumps exactly once, tied to this order.
	assert.Equal(t, 1, f.coupons.increments)
	assert.Equal(t, o.ID, f.coupons.lastOrder)
}

func TestCheckout_CouponMinimumNotMet(t *testing.T) {
	p := activeProduct("p1", "Espresso Beans", dec("10"), 5)
	f := newCheckoutFixture(newProductRepo(p), newMemLedger(map[string]int{"p1": 5}))
	f.coupons.coupon = &coupon.Coupon{
		ID:            "c1",
		Code:          "BIG50",
		Kind:          coupon.KindPercentage,
		Value:         dec("50"),
		MinimumAmount: dec("50"),
		Enabled:       true,
	}

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID:     "u1",
		Items:      []ItemInput{{ProductID: "p1", Quantity: 3}},
		CouponCode: "BIG50",
	})

	var inel *coupon.IneligibleError
	require.ErrorAs(t, err, &inel)
	assert.Equal(t, coupon.ReasonMinimumNotMet, inel.Reason)

	// Nothing created or mutated.
	assert.Empty(t, f.orders.all())
	assert.Equal(t, 5, f.ledger.available("p1"))
	assert.Equal(t, 0, f.coupons.increments)
}

func TestCheckout_UnknownCouponFailsClosed(t *testing.T) {
	p := activeProduct("p1", "Espresso Beans", dec("10"), 5)
	f := newCheckoutFixture(newProductRepo(p), newMemLedger(map[string]int{"p1": 5}))

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID:     "u1",
		Items:      []ItemInput{{ProductID: "p1", Quantity: 1}},
		CouponCode: "NOPE",
	})

	// A bad code fails the whole checkout, no silent no-discount fallback.
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Empty(t, f.orders.all())
	assert.Equal(t, 5, f.ledger.available("p1"))
}

func TestCheckout_EmptyItems(t *testing.T) {
	f := newCheckoutFixture(newProductRepo(), newMemLedger(map[string]int{}))

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1"})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", FromCart: true})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCheckout_ReservationRaceRollsBack(t *testing.T) {
	p1 := activeProduct("p1", "Beans", dec("10"), 5)
	p2 := activeProduct("p2", "Grinder", dec("40"), 5)
	ledger := newMemLedger(map[string]int{"p1": 5, "p2": 5})
	ledger.failProducts = map[string]bool{"p2": true}

	f := newCheckoutFixture(newProductRepo(p1, p2), ledger)
	f.coupons.coupon = &coupon.Coupon{
		ID: "c1", Code: "SAVE10", Kind: coupon.KindPercentage, Value: dec("10"), Enabled: true,
	}
	f.carts.cart = &cart.Cart{
		ID:     "cart-u1",
		UserID: "u1",
		Items: []cart.Item{
			{ProductID: "p1", Quantity: 2, Price: dec("10")},
			{ProductID: "p2", Quantity: 1, Price: dec("40")},
		},
	}

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID:     "u1",
		FromCart:   true,
		CouponCode: "SAVE10",
	})
	require.ErrorIs(t, err, ErrReservationConflict)

	// Already-decremented items are restored, nothing downstream runs.
	assert.Equal(t, 5, f.ledger.available("p1"))
	assert.Equal(t, 5, f.ledger.available("p2"))
	assert.Equal(t, 0, f.coupons.increments)
	assert.Equal(t, 0, f.carts.clearCalls)
	assert.Equal(t, 0, f.sink.created)

	// The stillborn order survives as cancelled with an audit note.
	all := f.orders.all()
	require.Len(t, all, 1)
	assert.Equal(t, StatusCancelled, all[0].Status)
	require.Len(t, all[0].History, 1)
	assert.Equal(t, "system", all[0].History[0].Actor)
}

func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	p := activeProduct("p1", "Beans", dec("10"), 1)
	ledger := newMemLedger(map[string]int{"p1": 1})
	f := newCheckoutFixture(newProductRepo(p), ledger)

	req := CheckoutRequest{
		UserID: "u1",
		Items:  []ItemInput{{ProductID: "p1", Quantity: 1}},
	}

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(context.Background(), req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		if err == nil {
			won++
			continue
		}
		lost++
		assert.True(t,
			errors.Is(err, ErrReservationConflict) || isStockResolveError(err),
			"unexpected error: %v", err)
	}

	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, ledger.available("p1"))
}

func isStockResolveError(err error) bool {
	var re *ResolveError
	return errors.As(err, &re) && re.StockOnly()
}

func TestCheckout_NotificationFailureIsNonFatal(t *testing.T) {
	p := activeProduct("p1", "Beans", dec("10"), 5)
	f := newCheckoutFixture(newProductRepo(p), newMemLedger(map[string]int{"p1": 5}))
	f.sink.createdErr = errors.New("broker down")

	o, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: "u1",
		Items:  []ItemInput{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 4, f.ledger.available("p1"))
}

func TestCheckout_FrozenUnitPrices(t *testing.T) {
	repo := newProductRepo(activeProduct("p1", "Beans", dec("10"), 5))
	f := newCheckoutFixture(repo, newMemLedger(map[string]int{"p1": 5}))

	o, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: "u1",
		Items:  []ItemInput{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)

	// A later catalog price change must not leak into the stored order.
	repo.byID["p1"].Price = dec("99")

	stored, err := f.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, dec("10").Equal(stored.Items[0].UnitPrice))
	assert.True(t, dec("20.00").Equal(stored.Total))
}

func TestCheckout_TotalInvariant(t *testing.T) {
	p1 := activeProduct("p1", "Beans", dec("12.35"), 9)
	p2 := activeProduct("p2", "Filter", dec("3.10"), 9)
	f := newCheckoutFixture(newProductRepo(p1, p2), newMemLedger(map[string]int{"p1": 9, "p2": 9}))
	f.coupons.coupon = &coupon.Coupon{
		ID: "c1", Code: "BOGO", Kind: coupon.KindBuyOneGetOne, Enabled: true,
	}

	o, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: "u1",
		Items: []ItemInput{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		CouponCode: "BOGO",
	})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	assert.True(t, o.Total.Equal(sum.Sub(o.Discount).Round(2)))
	assert.True(t, o.Discount.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, o.Discount.LessThanOrEqual(o.Subtotal))
	// BOGO takes the cheapest single unit.
	assert.True(t, dec("3.10").Equal(o.Discount), "got %s", o.Discount)
}
