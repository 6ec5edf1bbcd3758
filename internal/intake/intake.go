// Package intake applies booking-source events: new or moved bookings,
// cancellations, and completed calls.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/cadence/internal/booking"
	"github.com/zulandar/cadence/internal/clock"
	"github.com/zulandar/cadence/internal/jobs"
	"github.com/zulandar/cadence/internal/models"
	"github.com/zulandar/cadence/internal/scheduler"
	"github.com/zulandar/cadence/internal/timeline"
	"gorm.io/gorm"
)

// ErrInvalidEvent marks a payload that can never be applied, however often
// it is redelivered.
var ErrInvalidEvent = errors.New("intake: invalid event")

// Created is a booking-created (or booking-moved) event.
type Created struct {
	ExternalID  string    `json:"external_id"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Timezone    string    `json:"timezone"`
	JoinURL     string    `json:"join_url"`
}

// Cancelled is a booking-cancelled event.
type Cancelled struct {
	ExternalID string `json:"external_id"`
}

// Completed reports that the contact joined the call.
type Completed struct {
	ExternalID string    `json:"external_id"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Result describes what a created event did.
type Result struct {
	Booking     *models.Booking
	Created     bool
	Rescheduled bool
	Timeline    []timeline.Entry
}

// Opts configures a Service.
type Opts struct {
	DB        *gorm.DB
	Generator *timeline.Generator
	Clock     clock.Clock
}

// Service applies booking events against the store.
type Service struct {
	db    *gorm.DB
	gen   *timeline.Generator
	clock clock.Clock
}

// New returns a Service. A nil generator uses the built-in sequences.
func New(opts Opts) (*Service, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("intake: db is required")
	}
	s := &Service{db: opts.DB, gen: opts.Generator, clock: opts.Clock}
	if s.gen == nil {
		s.gen = timeline.Default()
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	return s, nil
}

func (ev Created) validate() error {
	var missing []string
	if strings.TrimSpace(ev.ExternalID) == "" {
		missing = append(missing, "external_id")
	}
	if strings.TrimSpace(ev.Email) == "" {
		missing = append(missing, "email")
	}
	if ev.ScheduledAt.IsZero() {
		missing = append(missing, "scheduled_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidEvent, strings.Join(missing, ", "))
	}
	if _, err := timeline.LoadLocation(ev.Timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// BookingCreated upserts the booking by external id. On first sight it is
// classified and its timeline scheduled. Redelivery with the same meeting
// time returns the stored booking; a changed time on an open booking moves
// it, re-classifies it, and re-syncs its jobs.
func (s *Service) BookingCreated(ctx context.Context, ev Created) (*Result, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	seq := s.gen.Classify(ev.ScheduledAt, now)

	res := &Result{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, created, err := booking.Upsert(tx, booking.UpsertOpts{
			ExternalID:  ev.ExternalID,
			Email:       ev.Email,
			Phone:       ev.Phone,
			Name:        ev.Name,
			ScheduledAt: ev.ScheduledAt,
			Timezone:    ev.Timezone,
			Sequence:    string(seq),
			JoinURL:     ev.JoinURL,
		}, now)
		if err != nil {
			return err
		}
		res.Booking, res.Created = b, created

		switch {
		case created:
		case !booking.IsOpen(b.Status):
			return nil
		case !sameInstant(b.ScheduledAt, ev.ScheduledAt):
			if err := booking.Reschedule(tx, b.ID, ev.ScheduledAt, ev.Timezone, string(seq), now); err != nil {
				return err
			}
			if b, err = booking.Get(tx, b.ID); err != nil {
				return err
			}
			res.Booking, res.Rescheduled = b, true
		default:
			// Only schedule an unchanged booking if an earlier attempt left it
			// without jobs.
			existing, err := jobs.ForBooking(tx, b.ID)
			if err != nil || len(existing) > 0 {
				return err
			}
		}

		entries, err := scheduler.ScheduleTimeline(tx, s.gen, b, now)
		if err != nil {
			return err
		}
		res.Timeline = entries
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("intake: booking %s: %w", ev.ExternalID, err)
	}

	switch {
	case res.Created:
		log.Printf("intake: booking %s (%s) created as %s with %d job(s)",
			res.Booking.ID, ev.ExternalID, res.Booking.Sequence, len(res.Timeline))
	case res.Rescheduled:
		log.Printf("intake: booking %s moved to %s as %s",
			res.Booking.ID, res.Booking.ScheduledAt.Format(time.RFC3339), res.Booking.Sequence)
	}
	return res, nil
}

// BookingCancelled moves the booking to CANCELLED and cancels every
// unexecuted job. Repeating it is a no-op.
func (s *Service) BookingCancelled(ctx context.Context, ev Cancelled) (*models.Booking, int64, error) {
	if strings.TrimSpace(ev.ExternalID) == "" {
		return nil, 0, fmt.Errorf("%w: external_id required", ErrInvalidEvent)
	}
	now := s.clock.Now()
	db := s.db.WithContext(ctx)

	b, err := booking.GetByExternalID(db, ev.ExternalID)
	if err != nil {
		return nil, 0, err
	}
	var cancelled int64
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := booking.Transition(tx, b.ID, booking.StatusCancelled, now); err != nil {
			return err
		}
		n, err := scheduler.CancelAll(tx, b.ID, now)
		cancelled = n
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("intake: cancel %s: %w", ev.ExternalID, err)
	}
	if b, err = booking.Get(db, b.ID); err != nil {
		return nil, 0, err
	}
	log.Printf("intake: booking %s cancelled (%d job(s) cancelled)", b.ID, cancelled)
	return b, cancelled, nil
}

// BookingCompleted records that the contact joined. Pending jobs are left
// alone; the executor skips those that no longer apply.
func (s *Service) BookingCompleted(ctx context.Context, ev Completed) (*models.Booking, error) {
	if strings.TrimSpace(ev.ExternalID) == "" {
		return nil, fmt.Errorf("%w: external_id required", ErrInvalidEvent)
	}
	joined := ev.JoinedAt.UTC()
	if ev.JoinedAt.IsZero() {
		joined = s.clock.Now()
	}
	db := s.db.WithContext(ctx)

	b, err := booking.GetByExternalID(db, ev.ExternalID)
	if err != nil {
		return nil, err
	}
	changed, err := booking.Transition(db, b.ID, booking.StatusCompleted, joined)
	if err != nil {
		return nil, fmt.Errorf("intake: complete %s: %w", ev.ExternalID, err)
	}
	if b, err = booking.Get(db, b.ID); err != nil {
		return nil, err
	}
	if changed {
		log.Printf("intake: booking %s completed", b.ID)
	}
	return b, nil
}

// sameInstant compares at second precision, the resolution MySQL keeps.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}
