// Package daemon runs executor ticks on a cron schedule until cancelled.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/cadence/internal/executor"
)

// cronParser accepts standard 5-field expressions plus @every/@hourly style
// descriptors.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Ticker runs one unit of scheduled work.
type Ticker interface {
	Tick(ctx context.Context) (*executor.Report, int, error)
}

// Opts configures Run.
type Opts struct {
	Ticker     Ticker
	Schedule   string
	RunAtStart bool
	Out        io.Writer
}

// ParseSchedule validates a schedule expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("daemon: parse schedule %q: %w", expr, err)
	}
	return sched, nil
}

// NextRun returns the first fire time of expr after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Run schedules ticks and blocks until ctx is cancelled. A tick still
// running when the next one is due is skipped rather than stacked; the
// claim protocol already makes overlapping sweeps safe.
func Run(ctx context.Context, opts Opts) error {
	if opts.Ticker == nil {
		return fmt.Errorf("daemon: ticker is required")
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	sched, err := ParseSchedule(opts.Schedule)
	if err != nil {
		return err
	}

	d := &runner{ticker: opts.Ticker}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))),
	)
	c.Schedule(sched, cron.FuncJob(func() { d.safeTick(ctx) }))

	fmt.Fprintf(opts.Out, "Sweep daemon starting (schedule %q, next %s)...\n",
		opts.Schedule, sched.Next(time.Now()).Format(time.RFC3339))
	if opts.RunAtStart {
		d.safeTick(ctx)
	}
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	fmt.Fprintf(opts.Out, "Sweep daemon stopped after %d tick(s).\n", d.ticks.Load())
	return nil
}

type runner struct {
	ticker Ticker
	ticks  atomic.Int64
}

// safeTick runs one tick, logging its outcome. A panic is logged and
// swallowed so the schedule keeps firing.
func (d *runner) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("daemon: tick panic: %v", r)
		}
	}()
	if ctx.Err() != nil {
		return
	}
	d.ticks.Add(1)

	report, marked, err := d.ticker.Tick(ctx)
	if err != nil {
		log.Printf("daemon: tick: %v", err)
	}
	if report == nil {
		return
	}
	if len(report.Results) > 0 || report.Released > 0 || marked > 0 {
		log.Printf("daemon: tick processed %d job(s) %v, released %d, no-shows %d",
			len(report.Results), report.Summary(), report.Released, marked)
	}
}
