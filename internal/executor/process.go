package executor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/cadence/internal/alert"
	"github.com/zulandar/cadence/internal/booking"
	"github.com/zulandar/cadence/internal/content"
	"github.com/zulandar/cadence/internal/jobs"
	"github.com/zulandar/cadence/internal/messaging"
	"github.com/zulandar/cadence/internal/models"
	"github.com/zulandar/cadence/internal/timeline"
	"github.com/zulandar/cadence/internal/transport"
)

// process runs claim-execute-resolve for one job. The claim is released on
// every exit path, including a panic, unless the job was resolved.
func (e *Executor) process(ctx context.Context, job *models.Job) (res Result) {
	res = Result{JobID: job.ID, BookingID: job.BookingID, Kind: job.Kind}

	claimed, err := jobs.Claim(e.db.WithContext(ctx), job.ID, e.clock.Now())
	if err != nil {
		res.Status, res.Err = StatusError, err
		log.Printf("executor: job %d: %v", job.ID, err)
		return res
	}
	if !claimed {
		res.Status = StatusAlreadyClaimed
		e.metrics.ClaimLost()
		return res
	}
	e.metrics.Claimed()

	held := true
	defer func() {
		if r := recover(); r != nil {
			res, held = e.fail(ctx, job, fmt.Errorf("executor: panic: %v", r))
		}
		if !held {
			return
		}
		// The sweep's context may already be done; releasing must still run.
		db := e.db.WithContext(context.WithoutCancel(ctx))
		if err := jobs.Release(db, job.ID, e.clock.Now()); err != nil {
			log.Printf("executor: job %d: %v", job.ID, err)
		}
	}()

	res, held = e.deliver(ctx, job)
	return res
}

// deliver runs everything after a successful claim. held reports whether
// the claim is still outstanding when it returns.
func (e *Executor) deliver(ctx context.Context, job *models.Job) (Result, bool) {
	res := Result{JobID: job.ID, BookingID: job.BookingID, Kind: job.Kind}
	db := e.db.WithContext(ctx)

	current, err := jobs.Get(db, job.ID)
	if err != nil {
		return e.fail(ctx, job, err)
	}
	if current.Cancelled {
		res.Status = StatusCancelled
		return res, true
	}

	b, err := booking.Get(db, job.BookingID)
	if errors.Is(err, booking.ErrNotFound) {
		return e.skip(ctx, job, jobs.OutcomeSkippedBookingMissing)
	}
	if err != nil {
		return e.fail(ctx, job, err)
	}
	if booking.BlocksDelivery(b.Status) {
		return e.skip(ctx, job, jobs.OutcomeSkippedBookingInactive)
	}
	kind, err := timeline.ParseKind(job.Kind)
	if err != nil {
		return e.fail(ctx, job, err)
	}
	if !Applicable(kind, b.Status) {
		return e.skip(ctx, job, jobs.OutcomeSkippedNotApplicable)
	}

	sent, err := messaging.Exists(db, job.BookingID, job.Kind)
	if err != nil {
		return e.fail(ctx, job, err)
	}
	if sent {
		return e.skip(ctx, job, jobs.OutcomeSkippedAlreadySent)
	}

	channel, recipient := route(job.Channel, b, e.smsEnabled)
	c, err := content.Render(kind, b, channel, e.content)
	if err != nil {
		return e.fail(ctx, job, err)
	}
	if c == nil {
		return e.skip(ctx, job, jobs.OutcomeSkippedNoContent)
	}

	msg := transport.Outbound{
		Channel:        channel,
		To:             recipient,
		Subject:        c.Subject,
		Body:           c.Body,
		BookingID:      b.ID,
		Kind:           job.Kind,
		IdempotencyKey: transport.IdempotencyKey(b.ID, job.Kind),
	}
	transportID, err := e.transport.Send(ctx, msg)
	if err != nil && !errors.Is(err, transport.ErrAlreadyProcessed) {
		return e.fail(ctx, job, err)
	}

	now := e.clock.Now()
	if _, _, rerr := messaging.Record(db, messaging.RecordOpts{
		BookingID:   b.ID,
		Kind:        job.Kind,
		Channel:     channel,
		Recipient:   recipient,
		Subject:     c.Subject,
		Body:        c.Body,
		TransportID: transportID,
	}, now); rerr != nil {
		log.Printf("executor: job %d: sent but not recorded: %v", job.ID, rerr)
	}
	if err := jobs.MarkExecuted(db, job.ID, jobs.OutcomeSent, now); err != nil {
		res.Status, res.Err = jobs.OutcomeSent, err
		log.Printf("executor: job %d: sent but not resolved: %v", job.ID, err)
		return res, true
	}

	e.metrics.Sent(channel)
	log.Printf("executor: sent %s to %s for booking %s", job.Kind, recipient, b.ID)
	res.Status = jobs.OutcomeSent
	return res, false
}

// route picks the channel and address to use. An SMS job goes out by email
// when the booking has since lost its phone number or no SMS provider is
// configured.
func route(channel string, b *models.Booking, smsEnabled bool) (string, string) {
	if channel == models.ChannelSMS && smsEnabled && b.Phone != "" {
		return models.ChannelSMS, b.Phone
	}
	return models.ChannelEmail, b.Email
}

// skip resolves the job as executed without sending.
func (e *Executor) skip(ctx context.Context, job *models.Job, outcome string) (Result, bool) {
	res := Result{JobID: job.ID, BookingID: job.BookingID, Kind: job.Kind, Status: outcome}
	if err := jobs.MarkExecuted(e.db.WithContext(ctx), job.ID, outcome, e.clock.Now()); err != nil {
		res.Err = err
		log.Printf("executor: job %d: %v", job.ID, err)
		return res, true
	}
	e.metrics.Skipped(outcome)
	return res, false
}

// fail books a failed attempt. Past the retry ceiling the job is cancelled
// for good and an alert goes out. Once the sweep's context is done the
// claim is only released and no attempt is counted.
func (e *Executor) fail(ctx context.Context, job *models.Job, cause error) (Result, bool) {
	res := Result{JobID: job.ID, BookingID: job.BookingID, Kind: job.Kind, Err: cause}
	if ctx.Err() != nil {
		res.Status = StatusInterrupted
		log.Printf("executor: job %d (%s) interrupted: %v", job.ID, job.Kind, cause)
		return res, true
	}
	db := e.db.WithContext(context.WithoutCancel(ctx))

	permanent, err := jobs.RecordFailure(db, job, cause.Error(), e.maxRetries, e.clock.Now())
	if err != nil {
		res.Status = StatusError
		log.Printf("executor: job %d: %v (while recording: %v)", job.ID, err, cause)
		return res, true
	}
	if !permanent {
		res.Status = StatusRetry
		e.metrics.Retried()
		log.Printf("executor: job %d (%s) attempt %d failed: %v", job.ID, job.Kind, job.RetryCount, cause)
		return res, false
	}

	res.Status = StatusFailed
	e.metrics.Failed()
	log.Printf("executor: job %d (%s) failed permanently after %d attempts: %v", job.ID, job.Kind, job.RetryCount, cause)
	e.alerts.Notify(context.WithoutCancel(ctx), alert.Alert{
		Title:    "Message failed permanently",
		Body:     fmt.Sprintf("%s for booking %s gave up after %d attempts", job.Kind, job.BookingID, job.RetryCount),
		Severity: alert.SeverityError,
		Fields: []alert.Field{
			{Name: "job", Value: fmt.Sprintf("%d", job.ID)},
			{Name: "error", Value: cause.Error()},
		},
	})
	return res, false
}
