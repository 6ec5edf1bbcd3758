package executor

import (
	"github.com/zulandar/cadence/internal/booking"
	"github.com/zulandar/cadence/internal/timeline"
)

// Applicable reports whether a message of kind still makes sense for a
// booking in status. Pre-event messages stop once the meeting is over one
// way or another; post-event follow-ups stop once the contact joined; a
// confirmation request stops once the booking is confirmed.
func Applicable(kind timeline.Kind, status string) bool {
	if booking.BlocksDelivery(status) {
		return false
	}
	if kind == timeline.KindConfirmRequest && status == booking.StatusConfirmed {
		return false
	}
	switch kind.Phase() {
	case timeline.PreEvent:
		return status != booking.StatusCompleted && status != booking.StatusNoShow
	case timeline.PostEvent:
		return status != booking.StatusCompleted
	}
	return false
}
