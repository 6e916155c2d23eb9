package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ornara/commerce-api/internal/domain/cart"
	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/domain/pricing"
	"github.com/ornara/commerce-api/internal/domain/product"
)

// Carts is the slice of the cart service the checkout flow needs.
type Carts interface {
	Materialize(ctx context.Context, userID string) (*cart.View, error)
	Clear(ctx context.Context, userID string) error
}

// Coupons is the slice of the coupon validator the checkout flow needs.
type Coupons interface {
	Validate(ctx context.Context, code string, oc coupon.OrderContext) (*coupon.Result, error)
	Apply(ctx context.Context, code, userID, orderID string, discount decimal.Decimal) (*coupon.Result, error)
}

// Notifier receives fire-and-forget notification triggers. Implementations
// must never block the caller or surface failures to it.
type Notifier interface {
	OrderPlaced(o *Order)
	OrderStatusChanged(o *Order)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) OrderPlaced(*Order)        {}
func (NopNotifier) OrderStatusChanged(*Order) {}

// ChargePolicy computes shipping and tax from configuration. Values are
// policy inputs to the pricing engine, not part of the core computation.
type ChargePolicy struct {
	ShippingFee      decimal.Decimal
	FreeShippingOver decimal.Decimal
	TaxRatePercent   decimal.Decimal
}

// Charges returns the shipping and tax for an order with the given subtotal
// and discount. Tax applies to the discounted amount.
func (p ChargePolicy) Charges(subtotal, discount decimal.Decimal) pricing.Charges {
	shipping := p.ShippingFee
	if p.FreeShippingOver.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeShippingOver) {
		shipping = decimal.Zero
	}
	if subtotal.IsZero() {
		shipping = decimal.Zero
	}
	tax := subtotal.Sub(discount).Mul(p.TaxRatePercent).Div(decimal.NewFromInt(100)).Round(2)
	return pricing.Charges{Shipping: shipping, Tax: tax}
}

// CouponNotApplicableError carries the machine-readable reason a coupon was
// rejected during quoting or checkout.
type CouponNotApplicableError struct {
	CouponReason coupon.Reason
	Message      string
}

func (e *CouponNotApplicableError) Error() string {
	return fmt.Sprintf("coupon not applicable: %s", e.Message)
}

// Reason returns the machine-readable code for this error.
func (e *CouponNotApplicableError) Reason() string { return string(e.CouponReason) }

// Service implements quoting, checkout, and order lifecycle operations.
type Service struct {
	carts    Carts
	products product.Repository
	coupons  Coupons
	orders   Repository
	notifier Notifier
	policy   ChargePolicy
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	carts Carts,
	products product.Repository,
	coupons Coupons,
	orders Repository,
	notifier Notifier,
	policy ChargePolicy,
) *Service {
	return &Service{
		carts:    carts,
		products: products,
		coupons:  coupons,
		orders:   orders,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

// Quote is a priced cart: the materialized view, totals, and the outcome of
// validating an optional coupon code. Quoting never mutates anything.
type Quote struct {
	View   *cart.View
	Totals pricing.Totals
	Coupon *coupon.Result
}

// Quote prices the user's cart, optionally with a coupon code. An
// inapplicable coupon does not fail the quote; its Result reports the reason
// and the totals carry no discount.
func (s *Service) Quote(ctx context.Context, userID, couponCode string) (*Quote, error) {
	view, err := s.carts.Materialize(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "materialize cart")
	}
	lines := view.PricingLines()
	base := pricing.ComputeTotals(lines, decimal.Zero, pricing.Charges{})

	discount := decimal.Zero
	var cres *coupon.Result
	if couponCode != "" {
		cres, err = s.coupons.Validate(ctx, couponCode, coupon.OrderContext{
			OrderValue: base.Subtotal,
			UserID:     userID,
			Category:   view.SoleCategory(),
			ProductIDs: view.AvailableProductIDs(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		if cres.Valid {
			discount = cres.Discount
		}
	}

	totals := pricing.ComputeTotals(lines, discount, s.policy.Charges(base.Subtotal, discount))
	return &Quote{View: view, Totals: totals, Coupon: cres}, nil
}

// CheckoutRequest holds the input for placing an order.
type CheckoutRequest struct {
	UserID          string
	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   string
	CouponCode      string
}

// Checkout turns the user's cart into an order: re-validates the coupon,
// consumes one use of it through the ledger, freezes item snapshots and
// pricing, persists the order, adjusts stock, and clears the cart. The
// confirmation notification is fire-and-forget.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	quote, err := s.Quote(ctx, req.UserID, req.CouponCode)
	if err != nil {
		return nil, err
	}

	var items []Item
	var adjustments []product.StockAdjustment
	for _, l := range quote.View.Lines {
		if l.Unavailable {
			continue
		}
		items = append(items, Item{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Image:     l.Image,
			Quantity:  l.Quantity,
		})
		adjustments = append(adjustments, product.StockAdjustment{
			ProductID: l.ProductID,
			Quantity:  -l.Quantity,
		})
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	orderID := uuid.New().String()
	now := s.now()

	var applied *coupon.Application
	if req.CouponCode != "" {
		if !quote.Coupon.Valid {
			return nil, &CouponNotApplicableError{CouponReason: quote.Coupon.Reason, Message: quote.Coupon.Message}
		}
		res, err := s.coupons.Apply(ctx, quote.Coupon.Code, req.UserID, orderID, quote.Coupon.Discount)
		if err != nil {
			return nil, errors.Wrap(err, "apply coupon")
		}
		if !res.Valid {
			return nil, &CouponNotApplicableError{CouponReason: res.Reason, Message: res.Message}
		}
		applied = &coupon.Application{Code: res.Code, Kind: res.Kind, Discount: res.Discount}
	}

	billing := req.BillingAddress
	if billing.IsZero() {
		billing = req.ShippingAddress
	}

	o := &Order{
		ID:              orderID,
		UserID:          req.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   "pending",
		Pricing: Pricing{
			Subtotal: quote.Totals.Subtotal,
			Discount: quote.Totals.Discount,
			Shipping: quote.Totals.Shipping,
			Tax:      quote.Totals.Tax,
			Total:    quote.Totals.Total,
		},
		Coupon: applied,
		Status: StatusPending,
		Timeline: []TimelineEntry{{
			Status:  StatusPending,
			Message: "order placed",
			At:      now,
			Actor:   string(PartyCustomer),
		}},
		CreatedAt: now,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if err := s.products.AdjustStock(ctx, adjustments); err != nil {
		return nil, errors.Wrap(err, "adjust stock")
	}
	if err := s.carts.Clear(ctx, req.UserID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}

	s.notifier.OrderPlaced(o)
	return o, nil
}

// Get returns an order. A non-empty userID restricts access to the owner.
func (s *Service) Get(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID != "" && o.UserID != userID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// UpdateStatus drives an order through the lifecycle state machine. Illegal
// moves are rejected with InvalidTransitionError before any state changes.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status, message, actor string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := o.Status
	if err := o.Transition(next, message, actor, s.now()); err != nil {
		return nil, err
	}
	if err := s.orders.SaveTransition(ctx, o, from); err != nil {
		return nil, err
	}

	s.notifier.OrderStatusChanged(o)
	return o, nil
}

// Cancel cancels an order on behalf of a customer, an admin, or the system.
// Legal only while the order is pending or confirmed.
func (s *Service) Cancel(ctx context.Context, orderID, userID, reason string, by Party, approvedBy string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if by == PartyCustomer && o.UserID != userID {
		return nil, ErrForbidden
	}
	if !o.CanBeCancelled() {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusCancelled}
	}

	from := o.Status
	message := "order cancelled"
	if reason != "" {
		message = "order cancelled: " + reason
	}
	if err := o.Transition(StatusCancelled, message, string(by), s.now()); err != nil {
		return nil, err
	}
	o.Cancellation = &Cancellation{
		Reason:      reason,
		RequestedBy: by,
		ApprovedBy:  approvedBy,
	}
	if err := s.orders.SaveTransition(ctx, o, from); err != nil {
		return nil, err
	}

	s.notifier.OrderStatusChanged(o)
	return o, nil
}

// MarkReturned moves a delivered order to returned. Called by the returns
// service when a return completes.
func (s *Service) MarkReturned(ctx context.Context, orderID, returnNumber string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := o.Status
	if err := o.Transition(StatusReturned, "return "+returnNumber+" completed", string(PartySystem), s.now()); err != nil {
		return nil, err
	}
	if err := s.orders.SaveTransition(ctx, o, from); err != nil {
		return nil, err
	}

	s.notifier.OrderStatusChanged(o)
	return o, nil
}
