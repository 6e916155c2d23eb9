package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ornara/commerce-api/internal/domain/cart"
	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/domain/product"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// --- Mock implementations ---

type mockCarts struct {
	view    *cart.View
	cleared bool
}

func (m *mockCarts) Materialize(_ context.Context, _ string) (*cart.View, error) {
	return m.view, nil
}

func (m *mockCarts) Clear(_ context.Context, _ string) error {
	m.cleared = true
	return nil
}

type mockProducts struct {
	adjustments [][]product.StockAdjustment
}

func (m *mockProducts) List(_ context.Context) ([]product.Product, error) { return nil, nil }
func (m *mockProducts) GetByID(_ context.Context, _ string) (*product.Product, error) {
	return nil, product.ErrNotFound
}
func (m *mockProducts) GetByIDs(_ context.Context, _ []string) ([]product.Product, error) {
	return nil, nil
}
func (m *mockProducts) AdjustStock(_ context.Context, adj []product.StockAdjustment) error {
	m.adjustments = append(m.adjustments, adj)
	return nil
}

type mockCoupons struct {
	validateRes    *coupon.Result
	applyRes       *coupon.Result
	appliedOrderID string
}

func (m *mockCoupons) Validate(_ context.Context, _ string, _ coupon.OrderContext) (*coupon.Result, error) {
	return m.validateRes, nil
}

func (m *mockCoupons) Apply(_ context.Context, _, _, orderID string, _ decimal.Decimal) (*coupon.Result, error) {
	m.appliedOrderID = orderID
	return m.applyRes, nil
}

type mockOrderRepo struct {
	created   *Order
	byID      map[string]*Order
	savedFrom Status
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	o.OrderNumber = "ORD-001000"
	m.created = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, _ string) ([]Order, error) { return nil, nil }

func (m *mockOrderRepo) SaveTransition(_ context.Context, o *Order, from Status) error {
	m.savedFrom = from
	m.byID[o.ID] = o
	return nil
}

// --- Helpers ---

func twoRingCart() *cart.View {
	return &cart.View{
		Cart: &cart.Cart{UserID: "user-1"},
		Lines: []cart.ViewLine{
			{
				LineItem: cart.LineItem{ProductID: "ring-1", UnitPrice: dec("1000"), Quantity: 2},
				Name:     "Gold Ring",
				Category: "rings",
				Image:    "/img/ring-1.jpg",
			},
		},
	}
}

func newCheckoutService(carts *mockCarts, coupons *mockCoupons) (*Service, *mockOrderRepo, *mockProducts) {
	repo := &mockOrderRepo{byID: make(map[string]*Order)}
	products := &mockProducts{}
	policy := ChargePolicy{ShippingFee: dec("50")}
	s := NewService(carts, products, coupons, repo, NopNotifier{}, policy)
	s.now = func() time.Time { return fixedNow }
	return s, repo, products
}

func TestCheckoutWithPercentageCoupon(t *testing.T) {
	carts := &mockCarts{view: twoRingCart()}
	coupons := &mockCoupons{
		validateRes: &coupon.Result{Valid: true, Code: "GEMS10", Kind: coupon.KindPercentage, Discount: dec("200")},
		applyRes:    &coupon.Result{Valid: true, Code: "GEMS10", Kind: coupon.KindPercentage, Discount: dec("200")},
	}
	s, repo, products := newCheckoutService(carts, coupons)

	o, err := s.Checkout(context.Background(), CheckoutRequest{
		UserID:          "user-1",
		ShippingAddress: Address{Name: "A", Line1: "1 Main St", City: "Lisbon", Country: "PT"},
		PaymentMethod:   "card",
		CouponCode:      "GEMS10",
	})
	require.NoError(t, err)

	assert.Equal(t, "ORD-001000", o.OrderNumber)
	assert.True(t, dec("2000").Equal(o.Pricing.Subtotal), "subtotal: %s", o.Pricing.Subtotal)
	assert.True(t, dec("200").Equal(o.Pricing.Discount), "discount: %s", o.Pricing.Discount)
	assert.True(t, dec("50").Equal(o.Pricing.Shipping), "shipping: %s", o.Pricing.Shipping)
	assert.True(t, dec("1850").Equal(o.Pricing.Total), "total: %s", o.Pricing.Total)

	// Frozen item snapshot.
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Gold Ring", o.Items[0].Name)
	assert.True(t, dec("1000").Equal(o.Items[0].UnitPrice))

	require.NotNil(t, o.Coupon)
	assert.Equal(t, "GEMS10", o.Coupon.Code)
	assert.Equal(t, o.ID, coupons.appliedOrderID, "coupon consumed against the new order")

	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, o.Timeline, 1)
	assert.Equal(t, StatusPending, o.Timeline[0].Status)

	// Billing defaults to shipping when omitted.
	assert.Equal(t, o.ShippingAddress, o.BillingAddress)

	require.NotNil(t, repo.created)
	require.Len(t, products.adjustments, 1)
	assert.Equal(t, []product.StockAdjustment{{ProductID: "ring-1", Quantity: -2}}, products.adjustments[0])
	assert.True(t, carts.cleared)
}

func TestCheckoutEmptyCart(t *testing.T) {
	carts := &mockCarts{view: &cart.View{Cart: &cart.Cart{UserID: "user-1"}}}
	s, _, _ := newCheckoutService(carts, &mockCoupons{})

	_, err := s.Checkout(context.Background(), CheckoutRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutSkipsUnavailableLines(t *testing.T) {
	view := twoRingCart()
	view.Lines = append(view.Lines, cart.ViewLine{
		LineItem:    cart.LineItem{ProductID: "gone-1", UnitPrice: dec("9999"), Quantity: 1},
		Unavailable: true,
	})
	carts := &mockCarts{view: view}
	s, _, products := newCheckoutService(carts, &mockCoupons{})

	o, err := s.Checkout(context.Background(), CheckoutRequest{UserID: "user-1", PaymentMethod: "card"})
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "ring-1", o.Items[0].ProductID)
	assert.True(t, dec("2000").Equal(o.Pricing.Subtotal))
	require.Len(t, products.adjustments, 1)
	require.Len(t, products.adjustments[0], 1, "no stock movement for unavailable lines")
}

func TestCheckoutRejectsInapplicableCoupon(t *testing.T) {
	carts := &mockCarts{view: twoRingCart()}
	coupons := &mockCoupons{
		validateRes: &coupon.Result{
			Reason:  coupon.ReasonBelowMinimum,
			Message: coupon.ReasonBelowMinimum.Message(),
		},
	}
	s, repo, _ := newCheckoutService(carts, coupons)

	_, err := s.Checkout(context.Background(), CheckoutRequest{UserID: "user-1", CouponCode: "GEMS10"})

	var cna *CouponNotApplicableError
	require.ErrorAs(t, err, &cna)
	assert.Equal(t, string(coupon.ReasonBelowMinimum), cna.Reason())
	assert.Nil(t, repo.created, "no order persisted")
	assert.False(t, carts.cleared, "cart untouched")
}

func TestCheckoutReportsLostCouponRace(t *testing.T) {
	carts := &mockCarts{view: twoRingCart()}
	coupons := &mockCoupons{
		validateRes: &coupon.Result{Valid: true, Code: "LAST1", Discount: dec("100")},
		applyRes: &coupon.Result{
			Reason:  coupon.ReasonGlobalLimitReached,
			Message: coupon.ReasonGlobalLimitReached.Message(),
		},
	}
	s, _, _ := newCheckoutService(carts, coupons)

	_, err := s.Checkout(context.Background(), CheckoutRequest{UserID: "user-1", CouponCode: "LAST1"})

	var cna *CouponNotApplicableError
	require.ErrorAs(t, err, &cna)
	assert.Equal(t, string(coupon.ReasonGlobalLimitReached), cna.Reason())
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		wantErr bool
	}{
		{name: "cancellable from pending", status: StatusPending},
		{name: "cancellable from confirmed", status: StatusConfirmed},
		{name: "illegal from shipped", status: StatusShipped, wantErr: true},
		{name: "illegal from delivered", status: StatusDelivered, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockOrderRepo{byID: map[string]*Order{
				"o1": {ID: "o1", UserID: "user-1", Status: tt.status},
			}}
			s := NewService(&mockCarts{}, &mockProducts{}, &mockCoupons{}, repo, NopNotifier{}, ChargePolicy{})
			s.now = func() time.Time { return fixedNow }

			o, err := s.Cancel(context.Background(), "o1", "user-1", "changed my mind", PartyCustomer, "")

			if tt.wantErr {
				var ite *InvalidTransitionError
				require.ErrorAs(t, err, &ite)
				assert.Equal(t, ReasonInvalidTransition, ite.Reason())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, o.Status)
			require.NotNil(t, o.Cancellation)
			assert.Equal(t, PartyCustomer, o.Cancellation.RequestedBy)
			assert.False(t, o.Cancellation.RefundProcessed)
			assert.Equal(t, tt.status, repo.savedFrom, "transition persisted against prior status")
		})
	}
}

func TestCancelForbiddenForOtherUser(t *testing.T) {
	repo := &mockOrderRepo{byID: map[string]*Order{
		"o1": {ID: "o1", UserID: "user-1", Status: StatusPending},
	}}
	s := NewService(&mockCarts{}, &mockProducts{}, &mockCoupons{}, repo, NopNotifier{}, ChargePolicy{})

	_, err := s.Cancel(context.Background(), "o1", "user-2", "", PartyCustomer, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestChargePolicy(t *testing.T) {
	policy := ChargePolicy{
		ShippingFee:      dec("50"),
		FreeShippingOver: dec("5000"),
		TaxRatePercent:   dec("10"),
	}

	ch := policy.Charges(dec("2000"), dec("200"))
	assert.True(t, dec("50").Equal(ch.Shipping))
	assert.True(t, dec("180").Equal(ch.Tax), "tax on discounted amount: %s", ch.Tax)

	ch = policy.Charges(dec("6000"), decimal.Zero)
	assert.True(t, ch.Shipping.IsZero(), "free shipping over threshold")

	ch = policy.Charges(decimal.Zero, decimal.Zero)
	assert.True(t, ch.Shipping.IsZero(), "no shipping on empty order")
}
