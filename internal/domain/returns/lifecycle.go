package returns

import (
	"fmt"
	"time"

	"github.com/ornara/commerce-api/internal/domain/order"
)

// transitions is the adjacency table of legal return status moves. The
// customer-facing cancellation mirrors the order rule: only before review
// concludes.
var transitions = map[Status][]Status{
	StatusPending:         {StatusUnderReview, StatusRejected, StatusCancelled},
	StatusUnderReview:     {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:        {StatusRefundProcessed},
	StatusRefundProcessed: {StatusCompleted},
	StatusCompleted:       {},
	StatusRejected:        {},
	StatusCancelled:       {},
}

// InvalidTransitionError reports an illegal return lifecycle move.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition return from %s to %s", e.From, e.To)
}

// Reason returns the machine-readable code for this error.
func (e *InvalidTransitionError) Reason() string { return order.ReasonInvalidTransition }

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the return to the next status, appending the timeline
// entry and applying the status's bookkeeping side effects:
//
//   - approved: default the pickup address to the order's shipping address
//     when none was given, and mark the pickup scheduled.
//   - refund-processed: refund moves to processing, stamped with now.
//   - completed: refund moves to completed. The inventory restock belongs to
//     the service layer; because completed is reachable only from
//     refund-processed, the restock runs at most once.
//
// shippingAddress is the parent order's shipping address.
func (r *Return) Transition(to Status, message, actor string, now time.Time, shippingAddress order.Address) error {
	if !CanTransition(r.Status, to) {
		return &InvalidTransitionError{From: r.Status, To: to}
	}

	r.Timeline = append(r.Timeline, TimelineEntry{
		Status:  to,
		Message: message,
		At:      now,
		Actor:   actor,
	})
	r.Status = to

	switch to {
	case StatusApproved:
		if r.Pickup.Address.IsZero() {
			r.Pickup.Address = shippingAddress
		}
		r.Pickup.Status = PickupScheduled
	case StatusRefundProcessed:
		r.Refund.Status = RefundProcessing
		t := now
		r.Refund.ProcessedAt = &t
	case StatusCompleted:
		r.Refund.Status = RefundCompleted
	}
	return nil
}
