package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/cadence/internal/models"
)

// Anchor selects what a step's send time is measured from.
type Anchor string

const (
	// AnchorCreated offsets from the instant the timeline is generated.
	AnchorCreated Anchor = "created"
	// AnchorScheduled offsets from the meeting start.
	AnchorScheduled Anchor = "scheduled"
	// AnchorLocal is a wall-clock time in the booking's timezone, DayOffset
	// days relative to the meeting's local date.
	AnchorLocal Anchor = "local"
)

// Step is one entry of a sequence table.
type Step struct {
	Kind      Kind          `yaml:"kind"`
	Anchor    Anchor        `yaml:"anchor"`
	Offset    time.Duration `yaml:"offset"`
	LocalTime string        `yaml:"local_time"`
	DayOffset int           `yaml:"day_offset"`
	Channel   string        `yaml:"channel"`
}

// Table maps each classification to its ordered step list.
type Table map[Sequence][]Step

// DefaultTable returns the built-in sequences. Longer lead times carry more
// intermediate touchpoints.
func DefaultTable() Table {
	welcome := Step{Kind: KindWelcome, Anchor: AnchorCreated}
	reminder := Step{Kind: KindReminder1h, Anchor: AnchorScheduled, Offset: -time.Hour, Channel: models.ChannelSMS}
	joinLink := Step{Kind: KindJoinLink, Anchor: AnchorScheduled, Offset: -10 * time.Minute, Channel: models.ChannelSMS}
	missed := Step{Kind: KindMissedCall, Anchor: AnchorScheduled, Offset: 15 * time.Minute}
	rebook := Step{Kind: KindRebookOffer, Anchor: AnchorScheduled, Offset: 24 * time.Hour}
	dayBefore := Step{Kind: KindDayBefore, Anchor: AnchorLocal, LocalTime: "18:00", DayOffset: -1}
	morningOf := Step{Kind: KindMorningOf, Anchor: AnchorLocal, LocalTime: "09:00"}

	return Table{
		SameDay: {welcome, reminder, joinLink, missed, rebook},
		NextDay: {
			welcome,
			{Kind: KindConfirmRequest, Anchor: AnchorCreated, Offset: 2 * time.Hour},
			dayBefore, morningOf, reminder, joinLink, missed, rebook,
		},
		Future: {
			welcome,
			{Kind: KindConfirmRequest, Anchor: AnchorCreated, Offset: time.Hour},
			{Kind: KindValueNudge, Anchor: AnchorScheduled, Offset: -72 * time.Hour},
			dayBefore, morningOf, reminder, joinLink, missed, rebook,
		},
	}
}

// Validate checks that every classification has a usable step list. A step
// list must open with an initial outreach anchored on creation and close
// with a post-event step after the meeting.
func (t Table) Validate() error {
	var errs []string
	for _, seq := range Sequences() {
		steps, ok := t[seq]
		if !ok || len(steps) == 0 {
			errs = append(errs, fmt.Sprintf("sequence %s has no steps", seq))
			continue
		}
		if first := steps[0]; first.Anchor != AnchorCreated {
			errs = append(errs, fmt.Sprintf("sequence %s must start with a step anchored on %q", seq, AnchorCreated))
		}
		last := steps[len(steps)-1]
		if last.Anchor != AnchorScheduled || last.Offset <= 0 {
			errs = append(errs, fmt.Sprintf("sequence %s must end with a step after the meeting", seq))
		}
		seen := make(map[Kind]bool)
		for i, s := range steps {
			if err := s.validate(); err != nil {
				errs = append(errs, fmt.Sprintf("sequence %s step %d: %v", seq, i, err))
			}
			if seen[s.Kind] {
				errs = append(errs, fmt.Sprintf("sequence %s step %d: duplicate kind %s", seq, i, s.Kind))
			}
			seen[s.Kind] = true
		}
	}
	for seq := range t {
		switch seq {
		case SameDay, NextDay, Future:
		default:
			errs = append(errs, fmt.Sprintf("unknown sequence %q", seq))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("timeline: invalid sequence table: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s Step) validate() error {
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	switch s.Channel {
	case "", models.ChannelEmail, models.ChannelSMS:
	default:
		return fmt.Errorf("unknown channel %q", s.Channel)
	}
	switch s.Anchor {
	case AnchorCreated:
		if s.Offset < 0 {
			return fmt.Errorf("offset from creation must not be negative")
		}
	case AnchorScheduled:
		if s.Kind.Phase() == PostEvent && s.Offset <= 0 {
			return fmt.Errorf("post-event kind %s needs a positive offset", s.Kind)
		}
	case AnchorLocal:
		if _, _, err := parseClock(s.LocalTime); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown anchor %q", s.Anchor)
	}
	return nil
}

// parseClock parses an "HH:MM" wall-clock time.
func parseClock(v string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("local_time %q must be HH:MM", v)
	}
	return t.Hour(), t.Minute(), nil
}
