package reply

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/cadence/internal/alert"
	"github.com/zulandar/cadence/internal/booking"
	"github.com/zulandar/cadence/internal/clock"
	"github.com/zulandar/cadence/internal/models"
	"github.com/zulandar/cadence/internal/scheduler"
	"github.com/zulandar/cadence/internal/telemetry"
	"gorm.io/gorm"
)

// ErrInvalidInbound is returned when a reply is missing its sender or names
// an unknown channel. Redelivering it cannot succeed.
var ErrInvalidInbound = errors.New("reply: invalid inbound reply")

// Inbound is one reply as received from a channel.
type Inbound struct {
	Channel    string
	Sender     string
	Body       string
	ReceivedAt time.Time
}

// Outcome describes what handling a reply did.
type Outcome struct {
	Reply         *models.Reply
	Booking       *models.Booking
	Intent        Intent
	StatusChanged bool
	JobsCancelled int64
}

// HandlerOpts configures a Handler.
type HandlerOpts struct {
	DB      *gorm.DB
	Clock   clock.Clock
	Alerts  alert.Notifier
	Metrics *telemetry.Metrics
}

// Handler records replies and applies their intent to the matched booking.
type Handler struct {
	db      *gorm.DB
	clock   clock.Clock
	alerts  alert.Notifier
	metrics *telemetry.Metrics
}

// NewHandler returns a Handler.
func NewHandler(opts HandlerOpts) (*Handler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("reply: db is required")
	}
	h := &Handler{db: opts.DB, clock: opts.Clock, alerts: opts.Alerts, metrics: opts.Metrics}
	if h.clock == nil {
		h.clock = clock.System{}
	}
	if h.alerts == nil {
		h.alerts = alert.Log{}
	}
	return h, nil
}

// Handle matches the sender to an open booking, records the reply, then
// applies its intent. The reply row is written before any side effect so
// the audit trail survives a failed mutation; such a reply stays
// unprocessed and the error is returned.
func (h *Handler) Handle(ctx context.Context, in Inbound) (*Outcome, error) {
	if in.Sender == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidInbound)
	}
	if in.Channel == "" {
		in.Channel = models.ChannelEmail
	}
	if in.Channel != models.ChannelEmail && in.Channel != models.ChannelSMS {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidInbound, in.Channel)
	}
	db := h.db.WithContext(ctx)
	now := h.clock.Now()
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = now
	}

	b, err := booking.FindOpenByContact(db, in.Channel, in.Sender, now)
	if err != nil {
		return nil, fmt.Errorf("reply: %w", err)
	}
	out := &Outcome{Booking: b, Intent: IntentUnmatched}
	if b != nil {
		out.Intent = Classify(in.Body)
	}

	r, err := Record(db, in, b, out.Intent)
	if err != nil {
		return nil, err
	}
	out.Reply = r
	h.metrics.Reply(string(out.Intent))

	if err := h.apply(ctx, db, out, now); err != nil {
		return out, err
	}
	if err := MarkProcessed(db, r.ID); err != nil {
		return out, err
	}
	r.Processed = true
	return out, nil
}

func (h *Handler) apply(ctx context.Context, db *gorm.DB, out *Outcome, now time.Time) error {
	switch out.Intent {
	case IntentAffirmative:
		return h.transition(ctx, db, out, booking.StatusConfirmed, false, now)
	case IntentReschedule:
		return h.transition(ctx, db, out, booking.StatusRescheduled, true, now)
	case IntentOptOut:
		return h.transition(ctx, db, out, booking.StatusCancelled, true, now)
	}
	h.review(ctx, out, "Reply needs follow-up")
	return nil
}

// transition moves the booking and, when cancel is set, cancels its pending
// jobs in the same transaction.
func (h *Handler) transition(ctx context.Context, db *gorm.DB, out *Outcome, to string, cancel bool, now time.Time) error {
	b := out.Booking
	err := db.Transaction(func(tx *gorm.DB) error {
		changed, err := booking.Transition(tx, b.ID, to, now)
		if err != nil {
			return err
		}
		out.StatusChanged = changed
		if cancel {
			n, err := scheduler.CancelAll(tx, b.ID, now)
			if err != nil {
				return err
			}
			out.JobsCancelled = n
		}
		return nil
	})
	if errors.Is(err, booking.ErrInvalidTransition) {
		// The booking moved on between matching and applying.
		log.Printf("reply: %s for booking %s not applied: %v", out.Intent, b.ID, err)
		out.StatusChanged, out.JobsCancelled = false, 0
		h.review(ctx, out, "Reply could not be applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reply: apply %s to %s: %w", out.Intent, b.ID, err)
	}
	if out.StatusChanged {
		b.Status = to
		log.Printf("reply: booking %s -> %s (%d job(s) cancelled)", b.ID, to, out.JobsCancelled)
	}
	return nil
}

func (h *Handler) review(ctx context.Context, out *Outcome, title string) {
	fields := []alert.Field{
		{Name: "intent", Value: string(out.Intent)},
		{Name: "from", Value: out.Reply.Sender},
	}
	if out.Booking != nil {
		fields = append(fields, alert.Field{Name: "booking", Value: out.Booking.ID})
	}
	_ = h.alerts.Notify(context.WithoutCancel(ctx), alert.Alert{
		Title:    title,
		Body:     out.Reply.Body,
		Severity: alert.SeverityWarning,
		Fields:   fields,
	})
}
