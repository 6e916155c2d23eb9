package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ornara/commerce-api/internal/domain/cart"
	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/domain/order"
	"github.com/ornara/commerce-api/internal/domain/product"
	"github.com/ornara/commerce-api/internal/domain/returns"
)

const testSecret = "test-secret"

// --- In-memory repositories ---

type memProducts struct {
	byID map[string]product.Product
}

func (m *memProducts) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.byID {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) AdjustStock(_ context.Context, adjustments []product.StockAdjustment) error {
	for _, adj := range adjustments {
		p, ok := m.byID[adj.ProductID]
		if !ok {
			return product.ErrNotFound
		}
		p.Stock += adj.Quantity
		p.SalesCount -= adj.Quantity
		m.byID[adj.ProductID] = p
	}
	return nil
}

type memCarts struct {
	byUser map[string]*cart.Cart
}

func (m *memCarts) GetByUser(_ context.Context, userID string) (*cart.Cart, error) {
	if c, ok := m.byUser[userID]; ok {
		cp := *c
		return &cp, nil
	}
	return &cart.Cart{UserID: userID}, nil
}

func (m *memCarts) Save(_ context.Context, c *cart.Cart) error {
	cp := *c
	m.byUser[c.UserID] = &cp
	return nil
}

type memCoupons struct {
	byCode map[string]*coupon.Coupon
	usages []coupon.Usage
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCoupons) Create(_ context.Context, c *coupon.Coupon) error {
	cp := *c
	m.byCode[c.Code] = &cp
	return nil
}

func (m *memCoupons) CountUserUsage(_ context.Context, code, userID string) (int, error) {
	n := 0
	for _, u := range m.usages {
		if u.CouponCode == code && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memCoupons) ConsumeUse(_ context.Context, u coupon.Usage) error {
	c, ok := m.byCode[u.CouponCode]
	if !ok {
		return coupon.ErrNotFound
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return coupon.ErrGlobalLimitReached
	}
	c.UsedCount++
	m.usages = append(m.usages, u)
	return nil
}

type memOrders struct {
	byID map[string]*order.Order
	seq  int
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.seq++
	o.OrderNumber = fmt.Sprintf("ORD-%06d", 1000+m.seq)
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) SaveTransition(_ context.Context, o *order.Order, from order.Status) error {
	stored, ok := m.byID[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if stored.Status != from {
		return order.ErrStale
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

type memReturns struct {
	byID map[string]*returns.Return
	seq  int
}

func (m *memReturns) Create(_ context.Context, r *returns.Return) error {
	for _, existing := range m.byID {
		if existing.OrderID == r.OrderID {
			return returns.ErrDuplicate
		}
	}
	m.seq++
	r.ReturnNumber = fmt.Sprintf("RET-%06d", 1000+m.seq)
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *memReturns) GetByID(_ context.Context, id string) (*returns.Return, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, returns.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReturns) GetByOrderID(_ context.Context, orderID string) (*returns.Return, error) {
	for _, r := range m.byID {
		if r.OrderID == orderID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, returns.ErrNotFound
}

func (m *memReturns) ListByUser(_ context.Context, userID string) ([]returns.Return, error) {
	var out []returns.Return
	for _, r := range m.byID {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memReturns) SaveTransition(_ context.Context, r *returns.Return, from returns.Status) error {
	stored, ok := m.byID[r.ID]
	if !ok {
		return returns.ErrNotFound
	}
	if stored.Status != from {
		return returns.ErrStale
	}
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

// --- Fixture ---

type fixture struct {
	router   http.Handler
	products *memProducts
	orders   *memOrders
	coupons  *memCoupons
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &memProducts{byID: map[string]product.Product{
		"ring-1": {
			ID: "ring-1", Name: "Gold Ring", Price: dec("1000"),
			Category: "rings", Stock: 10, Active: true,
		},
		"stud-2": {
			ID: "stud-2", Name: "Pearl Stud", Price: dec("250"),
			Category: "earrings", Stock: 5, Active: true,
		},
	}}
	cartRepo := &memCarts{byUser: make(map[string]*cart.Cart)}
	couponRepo := &memCoupons{byCode: map[string]*coupon.Coupon{
		"GEMS10": {
			Code: "GEMS10", Kind: coupon.KindPercentage, Value: dec("10"),
			PerUserLimit: 1, Active: true,
		},
	}}
	orderRepo := &memOrders{byID: make(map[string]*order.Order)}
	returnRepo := &memReturns{byID: make(map[string]*returns.Return)}

	carts := cart.NewService(cartRepo, products)
	validator := coupon.NewValidator(couponRepo)
	orders := order.NewService(carts, products, validator, orderRepo, order.NopNotifier{},
		order.ChargePolicy{ShippingFee: dec("50")})
	rets := returns.NewService(returnRepo, orders, products, returns.NopNotifier{})

	h := New(products, carts, validator, orders, rets, NewAuth([]byte(testSecret)))
	return &fixture{
		router:   h.Routes(),
		products: products,
		orders:   orderRepo,
		coupons:  couponRepo,
	}
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestListProductsPublic(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out []productResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Len(t, out, 2)
}

func TestGetProductNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/products/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Reason)
}

func TestCartRequiresAuth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/cart", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartAddAndQuote(t *testing.T) {
	f := newFixture(t)
	user := token(t, "alice@example.com", "")

	w := f.do(t, http.MethodPost, "/cart/items", user,
		addItemRequest{ProductID: "ring-1", Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)

	var resp cartResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Items, 1)
	assert.True(t, dec("2000").Equal(resp.Totals.Subtotal), "subtotal: %s", resp.Totals.Subtotal)
	assert.True(t, dec("2050").Equal(resp.Totals.Total), "total with shipping: %s", resp.Totals.Total)
}

func TestValidateCouponAgainstCart(t *testing.T) {
	f := newFixture(t)
	user := token(t, "alice@example.com", "")

	w := f.do(t, http.MethodPost, "/cart/items", user,
		addItemRequest{ProductID: "ring-1", Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/coupons/validate", user,
		validateCouponRequest{Code: "GEMS10"})
	require.Equal(t, http.StatusOK, w.Code)

	var outcome couponOutcomeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&outcome))
	assert.True(t, outcome.Valid)
	assert.True(t, dec("200").Equal(outcome.Discount), "discount: %s", outcome.Discount)

	w = f.do(t, http.MethodPost, "/coupons/validate", user,
		validateCouponRequest{Code: "NOPE99"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&outcome))
	assert.False(t, outcome.Valid)
	assert.Equal(t, string(coupon.ReasonCodeNotFound), outcome.Reason)
}

func TestCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	user := token(t, "alice@example.com", "")

	w := f.do(t, http.MethodPost, "/cart/items", user,
		addItemRequest{ProductID: "ring-1", Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/checkout", user, checkoutRequest{
		ShippingAddress: order.Address{Name: "Alice", Line1: "1 Main St", City: "Lisbon", Country: "PT"},
		PaymentMethod:   "card",
		CouponCode:      "GEMS10",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var o orderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&o))
	assert.Equal(t, "ORD-001001", o.OrderNumber)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, dec("200").Equal(o.Pricing.Discount), "discount: %s", o.Pricing.Discount)
	assert.True(t, dec("1850").Equal(o.Pricing.Total), "total: %s", o.Pricing.Total)

	// Stock consumed and cart cleared.
	assert.Equal(t, 8, f.products.byID["ring-1"].Stock)
	w = f.do(t, http.MethodGet, "/cart", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var c cartResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&c))
	assert.Empty(t, c.Items)

	// Coupon consumption is recorded against the order.
	require.Len(t, f.coupons.usages, 1)
	assert.Equal(t, o.ID, f.coupons.usages[0].OrderID)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	user := token(t, "bob@example.com", "")

	w := f.do(t, http.MethodPost, "/checkout", user, checkoutRequest{
		ShippingAddress: order.Address{Name: "Bob", Line1: "2 Side St", City: "Porto", Country: "PT"},
		PaymentMethod:   "card",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "EMPTY_CART", body.Reason)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	f := newFixture(t)
	user := token(t, "alice@example.com", "")

	w := f.do(t, http.MethodPatch, "/admin/orders/o1/status", user,
		updateStatusRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminOrderStatusAndInvalidTransition(t *testing.T) {
	f := newFixture(t)
	user := token(t, "alice@example.com", "")
	admin := token(t, "ops@example.com", RoleAdmin)

	w := f.do(t, http.MethodPost, "/cart/items", user,
		addItemRequest{ProductID: "stud-2", Quantity: 1})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/checkout", user, checkoutRequest{
		ShippingAddress: order.Address{Name: "Alice", Line1: "1 Main St", City: "Lisbon", Country: "PT"},
		PaymentMethod:   "card",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var o orderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&o))

	w = f.do(t, http.MethodPatch, "/admin/orders/"+o.ID+"/status", admin,
		updateStatusRequest{Status: "confirmed", Message: "payment received"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&o))
	assert.Equal(t, order.StatusConfirmed, o.Status)
	require.Len(t, o.Timeline, 2)

	// pending -> shipped is not a legal move from confirmed either.
	w = f.do(t, http.MethodPatch, "/admin/orders/"+o.ID+"/status", admin,
		updateStatusRequest{Status: "delivered"})
	require.Equal(t, http.StatusConflict, w.Code)

	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, order.ReasonInvalidTransition, body.Reason)
}

func TestAdminCreateCoupon(t *testing.T) {
	f := newFixture(t)
	admin := token(t, "ops@example.com", RoleAdmin)

	w := f.do(t, http.MethodPost, "/admin/coupons", admin, createCouponRequest{
		Code:  "welcome5",
		Kind:  "fixed",
		Value: dec("5"),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	stored, ok := f.coupons.byCode["WELCOME5"]
	require.True(t, ok, "code stored normalized")
	assert.Equal(t, coupon.KindFixed, stored.Kind)
	assert.Equal(t, 1, stored.PerUserLimit, "per-user limit defaults to 1")
}
