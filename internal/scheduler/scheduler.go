// Package scheduler turns a booking's timeline into job rows and cancels
// pending work when a booking changes course.
package scheduler

import (
	"fmt"
	"time"

	"github.com/zulandar/cadence/internal/jobs"
	"github.com/zulandar/cadence/internal/models"
	"github.com/zulandar/cadence/internal/timeline"
	"gorm.io/gorm"
)

// ScheduleTimeline generates the booking's timeline as of now and upserts
// one job per entry. Unexecuted jobs for kinds that are no longer part of
// the timeline are cancelled, so a re-sync after a time change leaves no
// stale sends behind. Calling it twice with the same inputs is a no-op.
func ScheduleTimeline(db *gorm.DB, gen *timeline.Generator, b *models.Booking, now time.Time) ([]timeline.Entry, error) {
	if b == nil {
		return nil, fmt.Errorf("scheduler: booking is required")
	}
	if gen == nil {
		gen = timeline.Default()
	}
	entries, err := gen.Generate(b, now)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[string(e.Kind)] = true
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := jobs.Upsert(tx, jobs.UpsertOpts{
				BookingID: b.ID,
				Kind:      string(e.Kind),
				Channel:   e.Channel,
				TargetAt:  e.At,
			}, now); err != nil {
				return err
			}
		}

		var stale []string
		for _, k := range timeline.AllKinds() {
			if !keep[string(k)] {
				stale = append(stale, string(k))
			}
		}
		_, err := jobs.CancelKinds(tx, b.ID, stale, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: schedule %s: %w", b.ID, err)
	}
	return entries, nil
}

// CancelAll cancels every unexecuted job of a booking.
func CancelAll(db *gorm.DB, bookingID string, now time.Time) (int64, error) {
	n, err := jobs.CancelAll(db, bookingID, now)
	if err != nil {
		return 0, fmt.Errorf("scheduler: %w", err)
	}
	return n, nil
}

// CancelKinds cancels the booking's unexecuted jobs of the given kinds.
func CancelKinds(db *gorm.DB, bookingID string, kinds []timeline.Kind, now time.Time) (int64, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	n, err := jobs.CancelKinds(db, bookingID, names, now)
	if err != nil {
		return 0, fmt.Errorf("scheduler: %w", err)
	}
	return n, nil
}
