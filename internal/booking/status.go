package booking

import "slices"

// Booking lifecycle statuses.
const (
	StatusPending     = "PENDING"
	StatusConfirmed   = "CONFIRMED"
	StatusCompleted   = "COMPLETED"
	StatusRescheduled = "RESCHEDULED"
	StatusCancelled   = "CANCELLED"
	StatusNoShow      = "NO_SHOW"
)

// OpenStatuses are the states from which a booking can still move.
var OpenStatuses = []string{StatusPending, StatusConfirmed}

// validTransitions maps each target status to the statuses it may be
// entered from.
var validTransitions = map[string][]string{
	StatusConfirmed:   {StatusPending},
	StatusCompleted:   {StatusPending, StatusConfirmed},
	StatusRescheduled: {StatusPending, StatusConfirmed},
	StatusCancelled:   {StatusPending, StatusConfirmed},
	StatusNoShow:      {StatusPending, StatusConfirmed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to string) bool {
	return slices.Contains(validTransitions[to], from)
}

// IsOpen reports whether the status still accepts transitions.
func IsOpen(status string) bool {
	return slices.Contains(OpenStatuses, status)
}

// IsTerminal reports whether the status is final for this record.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// BlocksDelivery reports whether no message may be sent for a booking in
// this status.
func BlocksDelivery(status string) bool {
	return status == StatusCancelled || status == StatusRescheduled
}
