// Package returns implements return requests and their lifecycle.
package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ornara/commerce-api/internal/domain/order"
)

// Status is a return request's lifecycle state, derived from the last
// timeline entry.
type Status string

const (
	StatusPending         Status = "pending"
	StatusUnderReview     Status = "under-review"
	StatusApproved        Status = "approved"
	StatusRefundProcessed Status = "refund-processed"
	StatusCompleted       Status = "completed"
	StatusRejected        Status = "rejected"
	StatusCancelled       Status = "cancelled"
)

// ParseStatus validates a status value at the boundary.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRefundProcessed,
		StatusCompleted, StatusRejected, StatusCancelled:
		return Status(s), nil
	}
	return "", errors.Errorf("unknown return status %q", s)
}

// RefundStatus tracks the refund bookkeeping attached to a return.
type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
)

// PickupScheduled marks a pickup as scheduled.
const PickupScheduled = "scheduled"

var (
	// ErrNotFound is returned when a requested return does not exist.
	ErrNotFound = errors.New("return not found")
	// ErrDuplicate is returned when an order already has a return. Backed by
	// a uniqueness constraint on order_id, not just a pre-check.
	ErrDuplicate = errors.New("a return already exists for this order")
	// ErrStale is returned by SaveTransition when the conditional update
	// finds the return no longer in the expected status.
	ErrStale = errors.New("return was modified concurrently")
	// ErrNotEligible is returned when the parent order is not delivered or
	// the return window has passed.
	ErrNotEligible = errors.New("order is not eligible for return")
	// ErrEmptyItems is returned when a return request lists nothing.
	ErrEmptyItems = errors.New("return must include at least one item")
	// ErrForbidden is returned when a user acts on a return they do not own.
	ErrForbidden = errors.New("return belongs to another user")
)

// QuantityError reports a requested return quantity exceeding what the order
// actually contains.
type QuantityError struct {
	ProductID string
	Requested int
	Ordered   int
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("cannot return %d of product %s, ordered %d",
		e.Requested, e.ProductID, e.Ordered)
}

// Item is one returned line: quantity must not exceed the ordered quantity.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
	Condition string `json:"condition"`
}

// Refund is the refund bookkeeping for a return. The actual money movement
// happens in the payment gateway; this records amount and progress.
type Refund struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Status      RefundStatus    `json:"status"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// Pickup describes where and whether the returned items are collected.
type Pickup struct {
	Address order.Address `json:"address"`
	Status  string        `json:"status,omitempty"`
}

// TimelineEntry is one append-only audit record of a return status change.
type TimelineEntry struct {
	Status  Status    `json:"status"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
}

// Return is a return request against a delivered order. At most one exists
// per order.
type Return struct {
	ID           string
	ReturnNumber string
	OrderID      string
	UserID       string
	Items        []Item
	Status       Status
	Refund       Refund
	Pickup       Pickup
	Timeline     []TimelineEntry
	CreatedAt    time.Time
}

// Repository defines persistence for returns.
type Repository interface {
	// Create persists a new return and assigns its sequential ReturnNumber.
	// Returns ErrDuplicate when the order already has a return.
	Create(ctx context.Context, r *Return) error
	GetByID(ctx context.Context, id string) (*Return, error)
	GetByOrderID(ctx context.Context, orderID string) (*Return, error)
	ListByUser(ctx context.Context, userID string) ([]Return, error)
	// SaveTransition persists a completed transition (status, refund, pickup,
	// timeline) as a single update conditioned on the return still being in
	// the given prior status. Returns ErrStale when the condition fails.
	SaveTransition(ctx context.Context, r *Return, from Status) error
}
