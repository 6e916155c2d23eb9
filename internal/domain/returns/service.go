package returns

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ornara/commerce-api/internal/domain/order"
	"github.com/ornara/commerce-api/internal/domain/product"
)

// Orders is the slice of the order service the returns flow needs.
type Orders interface {
	Get(ctx context.Context, orderID, userID string) (*order.Order, error)
	MarkReturned(ctx context.Context, orderID, returnNumber string) (*order.Order, error)
}

// Notifier receives fire-and-forget notification triggers for return status
// changes.
type Notifier interface {
	ReturnStatusChanged(r *Return)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) ReturnStatusChanged(*Return) {}

// Service implements return creation and lifecycle operations.
type Service struct {
	returns  Repository
	orders   Orders
	products product.Repository
	notifier Notifier
	now      func() time.Time
}

// NewService creates a returns Service.
func NewService(returns Repository, orders Orders, products product.Repository, notifier Notifier) *Service {
	return &Service{
		returns:  returns,
		orders:   orders,
		products: products,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateRequest holds the input for opening a return.
type CreateRequest struct {
	OrderID       string
	UserID        string
	Items         []Item
	RefundMethod  string
	PickupAddress *order.Address
}

// Create opens a return against a delivered order inside the return window.
// Quantities are validated against the order's frozen items and the refund
// amount is computed from the frozen unit prices. Duplicate returns are
// rejected by the storage layer's uniqueness constraint.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Return, error) {
	o, err := s.orders.Get(ctx, req.OrderID, req.UserID)
	if err != nil {
		return nil, err
	}
	if !o.CanBeReturned(s.now()) {
		return nil, ErrNotEligible
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ordered := make(map[string]order.Item, len(o.Items))
	for _, it := range o.Items {
		ordered[it.ProductID] = it
	}

	amount := decimal.Zero
	for _, it := range req.Items {
		frozen, ok := ordered[it.ProductID]
		if !ok {
			return nil, &QuantityError{ProductID: it.ProductID, Requested: it.Quantity}
		}
		if it.Quantity < 1 || it.Quantity > frozen.Quantity {
			return nil, &QuantityError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Ordered:   frozen.Quantity,
			}
		}
		amount = amount.Add(frozen.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	method := req.RefundMethod
	if method == "" {
		method = o.PaymentMethod
	}

	now := s.now()
	r := &Return{
		ID:      uuid.New().String(),
		OrderID: o.ID,
		UserID:  o.UserID,
		Items:   req.Items,
		Status:  StatusPending,
		Refund: Refund{
			Amount: amount.Round(2),
			Method: method,
			Status: RefundPending,
		},
		Timeline: []TimelineEntry{{
			Status:  StatusPending,
			Message: "return requested",
			At:      now,
			Actor:   string(order.PartyCustomer),
		}},
		CreatedAt: now,
	}
	if req.PickupAddress != nil {
		r.Pickup.Address = *req.PickupAddress
	}

	if err := s.returns.Create(ctx, r); err != nil {
		return nil, err
	}

	s.notifier.ReturnStatusChanged(r)
	return r, nil
}

// Get returns a return request. A non-empty userID restricts access to the
// owner.
func (s *Service) Get(ctx context.Context, id, userID string) (*Return, error) {
	r, err := s.returns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && r.UserID != userID {
		return nil, ErrForbidden
	}
	return r, nil
}

// ListByUser returns the user's returns, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Return, error) {
	return s.returns.ListByUser(ctx, userID)
}

// UpdateStatus drives a return through the lifecycle state machine. Entering
// completed restores product stock for every returned item and marks the
// parent order returned; the compare-and-set persist guarantees that happens
// exactly once even if completion is attempted twice.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status, message, actor string) (*Return, error) {
	r, err := s.returns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.Get(ctx, r.OrderID, "")
	if err != nil {
		return nil, errors.Wrap(err, "get parent order")
	}

	from := r.Status
	if err := r.Transition(next, message, actor, s.now(), o.ShippingAddress); err != nil {
		return nil, err
	}
	if err := s.returns.SaveTransition(ctx, r, from); err != nil {
		return nil, err
	}

	if next == StatusCompleted {
		adjustments := make([]product.StockAdjustment, len(r.Items))
		for i, it := range r.Items {
			adjustments[i] = product.StockAdjustment{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		if err := s.products.AdjustStock(ctx, adjustments); err != nil {
			return nil, errors.Wrap(err, "restock returned items")
		}
		if _, err := s.orders.MarkReturned(ctx, r.OrderID, r.ReturnNumber); err != nil {
			return nil, errors.Wrap(err, "mark order returned")
		}
	}

	s.notifier.ReturnStatusChanged(r)
	return r, nil
}

// Cancel lets the customer withdraw a return that has not been reviewed yet.
func (s *Service) Cancel(ctx context.Context, id, userID string) (*Return, error) {
	r, err := s.returns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, ErrForbidden
	}

	o, err := s.orders.Get(ctx, r.OrderID, "")
	if err != nil {
		return nil, errors.Wrap(err, "get parent order")
	}

	from := r.Status
	if err := r.Transition(StatusCancelled, "return cancelled by customer",
		string(order.PartyCustomer), s.now(), o.ShippingAddress); err != nil {
		return nil, err
	}
	if err := s.returns.SaveTransition(ctx, r, from); err != nil {
		return nil, err
	}

	s.notifier.ReturnStatusChanged(r)
	return r, nil
}
