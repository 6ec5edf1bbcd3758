// Package jobs is the durable store of scheduled message deliveries: one row
// per (booking, kind), with the atomic claim protocol the executor uses.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/cadence/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Job outcomes recorded when a row is resolved.
const (
	OutcomeSent                   = "sent"
	OutcomeSkippedBookingMissing  = "skipped_booking_missing"
	OutcomeSkippedBookingInactive = "skipped_booking_inactive"
	OutcomeSkippedNotApplicable   = "skipped_not_applicable"
	OutcomeSkippedAlreadySent     = "skipped_already_sent"
	OutcomeSkippedNoContent       = "skipped_no_content"
	OutcomeCancelled              = "cancelled"
	OutcomeFailed                 = "failed"
)

// ErrNotClaimed means a resolve call found the job no longer held.
var ErrNotClaimed = errors.New("jobs: job not claimed")

// UpsertOpts describes one timeline entry to persist.
type UpsertOpts struct {
	BookingID string
	Kind      string
	Channel   string
	TargetAt  time.Time
}

// Upsert writes the job for (booking, kind), replacing the target time of an
// existing unexecuted row and re-arming it. Executed rows are history and
// are left untouched.
func Upsert(db *gorm.DB, opts UpsertOpts, now time.Time) error {
	if opts.BookingID == "" {
		return fmt.Errorf("jobs: bookingID is required")
	}
	if opts.Kind == "" {
		return fmt.Errorf("jobs: kind is required")
	}
	if opts.Channel == "" {
		opts.Channel = models.ChannelEmail
	}

	result := db.Model(&models.Job{}).
		Where("booking_id = ? AND kind = ? AND executed = ?", opts.BookingID, opts.Kind, false).
		Updates(map[string]interface{}{
			"target_at":   opts.TargetAt.UTC(),
			"channel":     opts.Channel,
			"cancelled":   false,
			"outcome":     "",
			"retry_count": 0,
			"last_error":  "",
			"updated_at":  now,
		})
	if result.Error != nil {
		return fmt.Errorf("jobs: update %s/%s: %w", opts.BookingID, opts.Kind, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	job := models.Job{
		BookingID: opts.BookingID,
		Kind:      opts.Kind,
		Channel:   opts.Channel,
		TargetAt:  opts.TargetAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "booking_id"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(&job).Error; err != nil {
		return fmt.Errorf("jobs: insert %s/%s: %w", opts.BookingID, opts.Kind, err)
	}
	return nil
}

// CancelAll marks every unexecuted, uncancelled job of a booking cancelled.
// It is idempotent and returns the number of rows it changed.
func CancelAll(db *gorm.DB, bookingID string, now time.Time) (int64, error) {
	return cancel(db.Where("booking_id = ?", bookingID), bookingID, now)
}

// CancelKinds is CancelAll restricted to the given kinds.
func CancelKinds(db *gorm.DB, bookingID string, kinds []string, now time.Time) (int64, error) {
	if len(kinds) == 0 {
		return 0, nil
	}
	return cancel(db.Where("booking_id = ? AND kind IN ?", bookingID, kinds), bookingID, now)
}

func cancel(scope *gorm.DB, bookingID string, now time.Time) (int64, error) {
	if bookingID == "" {
		return 0, fmt.Errorf("jobs: bookingID is required")
	}
	result := scope.Model(&models.Job{}).
		Where("executed = ? AND cancelled = ?", false, false).
		Updates(map[string]interface{}{
			"cancelled":  true,
			"outcome":    OutcomeCancelled,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("jobs: cancel for %s: %w", bookingID, result.Error)
	}
	return result.RowsAffected, nil
}

// ForBooking returns a booking's jobs ordered by target time.
func ForBooking(db *gorm.DB, bookingID string) ([]models.Job, error) {
	var out []models.Job
	if err := db.Where("booking_id = ?", bookingID).Order("target_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("jobs: list for %s: %w", bookingID, err)
	}
	return out, nil
}

// ListOpts filters List.
type ListOpts struct {
	PendingOnly bool
	Limit       int
}

// List returns jobs across bookings ordered by target time.
func List(db *gorm.DB, opts ListOpts) ([]models.Job, error) {
	q := db.Model(&models.Job{})
	if opts.PendingOnly {
		q = q.Where("executed = ? AND cancelled = ?", false, false)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var out []models.Job
	if err := q.Order("target_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	return out, nil
}

// CountPending returns how many jobs are neither executed nor cancelled, and
// how many of those are due at now.
func CountPending(db *gorm.DB, now time.Time) (pending, due int64, err error) {
	q := db.Model(&models.Job{}).Where("executed = ? AND cancelled = ?", false, false)
	if err := q.Session(&gorm.Session{}).Count(&pending).Error; err != nil {
		return 0, 0, fmt.Errorf("jobs: count pending: %w", err)
	}
	if err := q.Session(&gorm.Session{}).Where("target_at <= ?", now).Count(&due).Error; err != nil {
		return 0, 0, fmt.Errorf("jobs: count due: %w", err)
	}
	return pending, due, nil
}

// State names the lifecycle state a job row is in.
func State(j *models.Job) string {
	switch {
	case j.Executed:
		return "executed"
	case j.Cancelled:
		return "cancelled"
	case j.Claimed:
		return "claimed"
	default:
		return "pending"
	}
}
