package order

import (
	"fmt"
	"time"
)

// ReasonInvalidTransition is the stable machine-readable code for illegal
// lifecycle moves.
const ReasonInvalidTransition = "INVALID_TRANSITION"

// transitions is the adjacency table of legal status moves. Anything not
// listed here is rejected; there are no arbitrary writes to Status.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusReturned},
	StatusCancelled:  {},
	StatusReturned:   {},
}

// InvalidTransitionError reports an illegal lifecycle move.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Reason returns the machine-readable code for this error.
func (e *InvalidTransitionError) Reason() string { return ReasonInvalidTransition }

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the order to the next status, appending the timeline
// entry that the new status derives from. Delivery stamps DeliveredAt, which
// anchors the return window. The caller persists the result with
// Repository.SaveTransition.
func (o *Order) Transition(to Status, message, actor string, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}

	o.Timeline = append(o.Timeline, TimelineEntry{
		Status:  to,
		Message: message,
		At:      now,
		Actor:   actor,
	})
	o.Status = to

	if to == StatusDelivered && o.DeliveredAt == nil {
		t := now
		o.DeliveredAt = &t
	}
	return nil
}
