// Package timeline classifies bookings by lead time and turns a booking into
// the ordered list of messages to send and when. Everything here is pure:
// the only environmental input is the "now" passed by the caller.
package timeline

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zulandar/cadence/internal/models"
)

// ErrUnknownSequence means a booking carries a classification tag with no
// step list. It indicates missing configuration, not a runtime condition.
var ErrUnknownSequence = errors.New("timeline: unknown sequence")

// Entry is one scheduled message: what to send, when, and over which channel.
type Entry struct {
	Kind    Kind
	At      time.Time
	Channel string
}

// Generator computes timelines from a sequence table.
type Generator struct {
	Table      Table
	Thresholds Thresholds
}

// NewGenerator returns a Generator over a validated table.
func NewGenerator(table Table, th Thresholds) (*Generator, error) {
	if table == nil {
		table = DefaultTable()
	}
	if th.SameDayWithin <= 0 || th.NextDayWithin <= 0 {
		th = DefaultThresholds()
	}
	if th.SameDayWithin >= th.NextDayWithin {
		return nil, fmt.Errorf("timeline: same-day threshold %s must be below next-day threshold %s", th.SameDayWithin, th.NextDayWithin)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Generator{Table: table, Thresholds: th}, nil
}

// Default returns a Generator with the built-in table and thresholds.
func Default() *Generator {
	return &Generator{Table: DefaultTable(), Thresholds: DefaultThresholds()}
}

// Classify buckets a scheduled instant with this generator's thresholds.
func (g *Generator) Classify(scheduledAt, now time.Time) Sequence {
	return g.Thresholds.Classify(scheduledAt, now)
}

// Generate computes the booking's timeline as of now. The booking's stored
// Sequence selects the step list (it is classified on the fly when empty).
// Steps that would fire before now are dropped, as are pre-event steps that
// land at or after the meeting. The result is ordered by send time.
func (g *Generator) Generate(b *models.Booking, now time.Time) ([]Entry, error) {
	if b == nil {
		return nil, fmt.Errorf("timeline: booking is required")
	}
	seq := Sequence(b.Sequence)
	if seq == "" {
		seq = g.Classify(b.ScheduledAt, now)
	}
	steps, ok := g.Table[seq]
	if !ok {
		return nil, fmt.Errorf("%w: %q (booking %s)", ErrUnknownSequence, b.Sequence, b.ID)
	}
	loc, err := LoadLocation(b.Timezone)
	if err != nil {
		return nil, err
	}

	hasPhone := b.Phone != ""
	out := make([]Entry, 0, len(steps))
	for _, s := range steps {
		at, err := s.sendTime(b.ScheduledAt, now, loc)
		if err != nil {
			return nil, fmt.Errorf("timeline: %s step %s: %w", seq, s.Kind, err)
		}
		if at.Before(now) {
			continue
		}
		if s.Kind.Phase() == PreEvent && !at.Before(b.ScheduledAt) {
			continue
		}
		channel := s.Channel
		if channel == "" || (channel == models.ChannelSMS && !hasPhone) {
			channel = models.ChannelEmail
		}
		out = append(out, Entry{Kind: s.Kind, At: at.UTC(), Channel: channel})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// sendTime resolves a step to an absolute instant. The timezone is explicit;
// the process default location is never consulted.
func (s Step) sendTime(scheduledAt, now time.Time, loc *time.Location) (time.Time, error) {
	switch s.Anchor {
	case AnchorCreated:
		return now.Add(s.Offset), nil
	case AnchorScheduled:
		return scheduledAt.Add(s.Offset), nil
	case AnchorLocal:
		hour, minute, err := parseClock(s.LocalTime)
		if err != nil {
			return time.Time{}, err
		}
		return LocalClockTime(scheduledAt, loc, s.DayOffset, hour, minute), nil
	}
	return time.Time{}, fmt.Errorf("unknown anchor %q", s.Anchor)
}

// LocalClockTime returns the instant at hour:minute local time in loc,
// dayOffset days from the local calendar date of ref.
func LocalClockTime(ref time.Time, loc *time.Location, dayOffset, hour, minute int) time.Time {
	y, m, d := ref.In(loc).Date()
	return time.Date(y, m, d+dayOffset, hour, minute, 0, 0, loc).UTC()
}

// LoadLocation resolves an IANA timezone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeline: load timezone %q: %w", name, err)
	}
	return loc, nil
}
