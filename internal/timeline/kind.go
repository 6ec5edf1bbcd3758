package timeline

import "fmt"

// Kind is the category of a message in a follow-up sequence. The set is
// closed: every switch over Kind in this module lists all of them.
type Kind string

const (
	KindWelcome        Kind = "welcome"
	KindConfirmRequest Kind = "confirm_request"
	KindValueNudge     Kind = "value_nudge"
	KindDayBefore      Kind = "day_before"
	KindMorningOf      Kind = "morning_of"
	KindReminder1h     Kind = "reminder_1h"
	KindJoinLink       Kind = "join_link"
	KindMissedCall     Kind = "missed_call"
	KindRebookOffer    Kind = "rebook_offer"
)

// Phase says whether a kind belongs before or after the meeting.
type Phase int

const (
	PreEvent Phase = iota
	PostEvent
)

// AllKinds returns every known kind in canonical order.
func AllKinds() []Kind {
	return []Kind{
		KindWelcome,
		KindConfirmRequest,
		KindValueNudge,
		KindDayBefore,
		KindMorningOf,
		KindReminder1h,
		KindJoinLink,
		KindMissedCall,
		KindRebookOffer,
	}
}

// ParseKind validates a stored kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindWelcome, KindConfirmRequest, KindValueNudge, KindDayBefore, KindMorningOf,
		KindReminder1h, KindJoinLink, KindMissedCall, KindRebookOffer:
		return k, nil
	}
	return "", fmt.Errorf("timeline: unknown message kind %q", s)
}

// Phase reports whether the kind is sent before or after the meeting.
func (k Kind) Phase() Phase {
	switch k {
	case KindMissedCall, KindRebookOffer:
		return PostEvent
	case KindWelcome, KindConfirmRequest, KindValueNudge, KindDayBefore, KindMorningOf,
		KindReminder1h, KindJoinLink:
		return PreEvent
	}
	panic(fmt.Sprintf("timeline: phase of unknown kind %q", string(k)))
}
