// Package order holds the order aggregate, its lifecycle state machine, and
// the checkout service.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ornara/commerce-api/internal/domain/coupon"
)

// Status is an order's lifecycle state. It is a derived pointer to the last
// timeline entry; the timeline itself is the authoritative audit trail.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// ParseStatus validates a status value at the boundary.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusReturned:
		return Status(s), nil
	}
	return "", errors.Errorf("unknown order status %q", s)
}

// Party identifies who requested an action on an order.
type Party string

const (
	PartyCustomer Party = "customer"
	PartyAdmin    Party = "admin"
	PartySystem   Party = "system"
)

// ReturnWindow is how long after delivery a return may be opened.
const ReturnWindow = 7 * 24 * time.Hour

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrStale is returned by SaveTransition when the conditional update
	// finds the order no longer in the expected status.
	ErrStale = errors.New("order was modified concurrently")
	// ErrEmptyCart is returned when checkout finds no purchasable items.
	ErrEmptyCart = errors.New("cart has no purchasable items")
	// ErrForbidden is returned when a user acts on an order they do not own.
	ErrForbidden = errors.New("order belongs to another user")
)

// Item is a line item frozen onto an order at checkout time. Name, price and
// image are snapshots and are never re-read from the live product.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

// Address is a shipping or billing address.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// IsZero reports whether the address is entirely unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Pricing is the frozen price breakdown of an order.
type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// TimelineEntry is one append-only audit record of a status change.
type TimelineEntry struct {
	Status  Status    `json:"status"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
}

// Cancellation records why and by whom an order was cancelled. Refund
// processing happens in the payment gateway; only the flag is tracked here.
type Cancellation struct {
	Reason          string `json:"reason"`
	RequestedBy     Party  `json:"requested_by"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	RefundProcessed bool   `json:"refund_processed"`
}

// Order is a customer order. Items and Pricing are immutable after creation;
// only Status, Timeline, Cancellation and DeliveredAt change afterwards, and
// only through the lifecycle state machine.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []Item
	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   string
	PaymentStatus   string
	Pricing         Pricing
	Coupon          *coupon.Application
	Status          Status
	Timeline        []TimelineEntry
	Cancellation    *Cancellation
	DeliveredAt     *time.Time
	CreatedAt       time.Time
}

// CanBeCancelled reports whether the order is still in a cancellable state.
func (o *Order) CanBeCancelled() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

// CanBeReturned reports whether a return may be opened: the order must be
// delivered and now must be within the return window of the delivery time.
// The boundary is inclusive at exactly ReturnWindow after delivery.
func (o *Order) CanBeReturned(now time.Time) bool {
	if o.Status != StatusDelivered || o.DeliveredAt == nil {
		return false
	}
	return !now.After(o.DeliveredAt.Add(ReturnWindow))
}

// Repository defines persistence for orders.
type Repository interface {
	// Create persists a new order and assigns its sequential OrderNumber.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// SaveTransition persists a completed transition (status, timeline,
	// cancellation, delivered_at) as a single update conditioned on the
	// order still being in the given prior status. Returns ErrStale when
	// the condition fails.
	SaveTransition(ctx context.Context, o *Order, from Status) error
}
