package executor

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/cadence/internal/booking"
)

// DetectNoShows finds open bookings whose meeting started more than the
// grace period ago. When the policy marks status they move to NO_SHOW;
// either way their post-event jobs still run through the normal sweep.
// It returns the number of bookings moved.
func (e *Executor) DetectNoShows(ctx context.Context) (int, error) {
	db := e.db.WithContext(ctx)
	now := e.clock.Now()

	overdue, err := booking.Overdue(db, now.Add(-e.noShow.Grace), e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("executor: %w", err)
	}
	if len(overdue) == 0 {
		return 0, nil
	}
	if !e.noShow.MarksStatus() {
		log.Printf("executor: %d booking(s) past their meeting without completion", len(overdue))
		return 0, nil
	}

	marked := 0
	for _, b := range overdue {
		changed, err := booking.Transition(db, b.ID, booking.StatusNoShow, now)
		if err != nil {
			// Lost a race with a reply or completion event.
			log.Printf("executor: no-show %s: %v", b.ID, err)
			continue
		}
		if changed {
			marked++
			e.metrics.NoShow()
			log.Printf("executor: booking %s marked no-show", b.ID)
		}
	}
	return marked, nil
}
