// Package executor runs sweeps: bounded passes that release stale claims,
// pick up due jobs, and drive each through claim, re-validation, dispatch,
// and resolution. Sweeps hold no state between runs and may overlap.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/cadence/internal/alert"
	"github.com/zulandar/cadence/internal/clock"
	"github.com/zulandar/cadence/internal/config"
	"github.com/zulandar/cadence/internal/jobs"
	"github.com/zulandar/cadence/internal/telemetry"
	"github.com/zulandar/cadence/internal/transport"
	"gorm.io/gorm"
)

// Defaults used when Opts leaves a field zero.
const (
	DefaultBatchSize  = 25
	DefaultMaxRetries = 3
)

// Per-job statuses reported by a sweep, beyond the job outcomes in package
// jobs.
const (
	StatusAlreadyClaimed = "already_claimed"
	StatusRetry          = "retry"
	StatusFailed         = "failed"
	StatusCancelled      = "cancelled"
	StatusError          = "error"
	StatusInterrupted    = "interrupted"
)

// Opts configures an Executor.
type Opts struct {
	DB         *gorm.DB
	Transport  transport.Transport
	Clock      clock.Clock
	Content    config.ContentConfig
	Alerts     alert.Notifier
	Metrics    *telemetry.Metrics
	BatchSize  int
	ClaimLease time.Duration
	MaxRetries int
	NoShow     config.NoShowConfig
	// DisableSMS routes SMS jobs by email.
	DisableSMS bool
}

// Executor carries the handles a sweep needs.
type Executor struct {
	db         *gorm.DB
	transport  transport.Transport
	clock      clock.Clock
	content    config.ContentConfig
	alerts     alert.Notifier
	metrics    *telemetry.Metrics
	batchSize  int
	lease      time.Duration
	maxRetries int
	noShow     config.NoShowConfig
	smsEnabled bool
}

// New validates opts and returns an Executor.
func New(opts Opts) (*Executor, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("executor: db is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("executor: transport is required")
	}
	e := &Executor{
		db:         opts.DB,
		transport:  opts.Transport,
		clock:      opts.Clock,
		content:    opts.Content,
		alerts:     opts.Alerts,
		metrics:    opts.Metrics,
		batchSize:  opts.BatchSize,
		lease:      opts.ClaimLease,
		maxRetries: opts.MaxRetries,
		noShow:     opts.NoShow,
		smsEnabled: !opts.DisableSMS,
	}
	if e.clock == nil {
		e.clock = clock.System{}
	}
	if e.alerts == nil {
		e.alerts = alert.Log{}
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	if e.lease <= 0 {
		e.lease = jobs.DefaultClaimLease
	}
	if e.maxRetries <= 0 {
		e.maxRetries = DefaultMaxRetries
	}
	return e, nil
}

// Result is what happened to one candidate job.
type Result struct {
	JobID     uint
	BookingID string
	Kind      string
	Status    string
	Err       error
}

// Report summarizes one sweep.
type Report struct {
	Released int64
	Results  []Result
}

// Count returns how many results had status.
func (r *Report) Count(status string) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Summary counts results by status.
func (r *Report) Summary() map[string]int {
	out := make(map[string]int)
	for _, res := range r.Results {
		out[res.Status]++
	}
	return out
}

// Sweep runs one bounded pass. An error is returned only when the pass
// could not start (stale release or candidate selection failed); failures
// of individual jobs are reported in the Report and never abort the batch.
func (e *Executor) Sweep(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer e.metrics.ObserveSweep(start)

	db := e.db.WithContext(ctx)
	now := e.clock.Now()
	report := &Report{}

	released, err := jobs.ReleaseStale(db, now.Add(-e.lease), now)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	report.Released = released
	e.metrics.Released(released)
	if released > 0 {
		log.Printf("executor: released %d stale claim(s)", released)
	}

	due, err := jobs.Due(db, now, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	for i := range due {
		if ctx.Err() != nil {
			break
		}
		report.Results = append(report.Results, e.process(ctx, &due[i]))
	}
	return report, nil
}

// Tick runs a sweep followed by the no-show check, the unit of work a
// scheduled trigger performs.
func (e *Executor) Tick(ctx context.Context) (*Report, int, error) {
	report, err := e.Sweep(ctx)
	if err != nil {
		return nil, 0, err
	}
	marked, err := e.DetectNoShows(ctx)
	if err != nil {
		return report, 0, err
	}
	return report, marked, nil
}
