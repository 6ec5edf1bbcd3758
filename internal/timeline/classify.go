package timeline

import "time"

// Sequence is the classification tag stored on a booking. It selects which
// step list the booking follows.
type Sequence string

const (
	SameDay Sequence = "SAME_DAY"
	NextDay Sequence = "NEXT_DAY"
	Future  Sequence = "FUTURE"
)

// Sequences returns every classification tag.
func Sequences() []Sequence {
	return []Sequence{SameDay, NextDay, Future}
}

// Thresholds bound the lead time of each classification. A lead time equal
// to a bound belongs to the shorter bucket.
type Thresholds struct {
	SameDayWithin time.Duration `yaml:"same_day_within"`
	NextDayWithin time.Duration `yaml:"next_day_within"`
}

// DefaultThresholds returns 12h / 36h.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SameDayWithin: 12 * time.Hour,
		NextDayWithin: 36 * time.Hour,
	}
}

// Classify buckets a booking by the time remaining until it starts.
func (th Thresholds) Classify(scheduledAt, now time.Time) Sequence {
	remaining := scheduledAt.Sub(now)
	switch {
	case remaining <= th.SameDayWithin:
		return SameDay
	case remaining <= th.NextDayWithin:
		return NextDay
	default:
		return Future
	}
}

// Classify buckets with the default thresholds.
func Classify(scheduledAt, now time.Time) Sequence {
	return DefaultThresholds().Classify(scheduledAt, now)
}
