// Package reply classifies inbound replies and applies them to bookings.
package reply

import (
	"regexp"
	"strings"
)

// Intent is the classified meaning of a reply.
type Intent string

// Intents. Unmatched is recorded for replies with no open booking and is
// never returned by Classify.
const (
	IntentAffirmative    Intent = "affirmative"
	IntentReschedule     Intent = "reschedule"
	IntentOptOut         Intent = "opt_out"
	IntentEarlierSlot    Intent = "earlier_slot"
	IntentEarlierOption1 Intent = "earlier_option_1"
	IntentEarlierOption2 Intent = "earlier_option_2"
	IntentUnknown        Intent = "unknown"
	IntentUnmatched      Intent = "unmatched"
)

// exact holds whole-message replies, checked before any keyword.
var exact = map[string]Intent{
	"yes":         IntentAffirmative,
	"y":           IntentAffirmative,
	"yep":         IntentAffirmative,
	"yeah":        IntentAffirmative,
	"yup":         IntentAffirmative,
	"ya":          IntentAffirmative,
	"ok":          IntentAffirmative,
	"okay":        IntentAffirmative,
	"k":           IntentAffirmative,
	"sure":        IntentAffirmative,
	"confirm":     IntentAffirmative,
	"confirmed":   IntentAffirmative,
	"c":           IntentAffirmative,
	"absolutely":  IntentAffirmative,
	"definitely":  IntentAffirmative,
	"will do":     IntentAffirmative,
	"no":          IntentReschedule,
	"n":           IntentReschedule,
	"nope":        IntentReschedule,
	"cancel":      IntentReschedule,
	"r":           IntentReschedule,
	"stop":        IntentOptOut,
	"stopall":     IntentOptOut,
	"unsubscribe": IntentOptOut,
	"quit":        IntentOptOut,
	"end":         IntentOptOut,
	"1":           IntentEarlierOption1,
	"2":           IntentEarlierOption2,
}

// keywordRule matches a longer reply by phrase. Rules are tried in order
// and the first hit wins, so the stronger signals come first.
type keywordRule struct {
	intent  Intent
	phrases []string
}

var keywordRules = []keywordRule{
	{IntentOptOut, []string{
		"unsubscribe", "opt out", "opt-out", "remove me", "stop messaging",
		"stop texting", "stop emailing", "not interested", "do not contact",
		"don't contact", "cancel my",
	}},
	{IntentReschedule, []string{
		"can't make it", "cant make it", "cannot make it", "can not make it",
		"won't make it", "wont make it", "won't be able", "wont be able",
		"unable to make", "reschedule", "re-schedule", "another time",
		"different time", "new time", "another day", "different day",
		"something came up", "postpone", "push it back", "cancel",
	}},
	{IntentEarlierSlot, []string{
		"earlier", "sooner", "any chance today", "move it up",
	}},
}

// affirmativePatterns are checked last, on word boundaries, so "yes" does
// not fire inside "yesterday".
var affirmativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(yes|yep|yeah|yup|sure|ok|okay)\b`),
	regexp.MustCompile(`\bconfirm(ed)?\b`),
	regexp.MustCompile(`\bsee you\b`),
	regexp.MustCompile(`\bsounds (good|great)\b`),
	regexp.MustCompile(`\bworks for me\b`),
	regexp.MustCompile(`\blooking forward\b`),
	regexp.MustCompile(`\b(i'll|i will|we'll|we will) be there\b`),
	regexp.MustCompile(`\bcount me in\b`),
	regexp.MustCompile(`\bperfect\b`),
}

// negations void an affirmative match that follows them closely, so "not
// sure" or "can't confirm yet" is left for a person to read.
var negations = map[string]bool{
	"no": true, "not": true, "never": true, "can't": true, "cant": true,
	"cannot": true, "don't": true, "dont": true, "won't": true, "wont": true,
	"isn't": true, "doesn't": true, "didn't": true, "unsure": true,
}

// negationWindow is how many words before an affirmative match are checked
// for a negation.
const negationWindow = 3

// Classify maps a reply body to an intent. Input is case-folded and
// trimmed. Unrecognized text is IntentUnknown.
func Classify(body string) Intent {
	text := normalize(body)
	if text == "" {
		return IntentUnknown
	}
	if intent, ok := exact[text]; ok {
		return intent
	}
	if intent, ok := exact[strings.TrimRight(text, ".!?, ")]; ok {
		return intent
	}
	for _, rule := range keywordRules {
		for _, p := range rule.phrases {
			if strings.Contains(text, p) {
				return rule.intent
			}
		}
	}
	affirmative := false
	for _, re := range affirmativePatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if negated(text[:loc[0]]) {
				return IntentUnknown
			}
			affirmative = true
		}
	}
	if affirmative {
		return IntentAffirmative
	}
	return IntentUnknown
}

// negated reports whether one of the last few words of prefix is a
// negation.
func negated(prefix string) bool {
	words := strings.Fields(prefix)
	if len(words) > negationWindow {
		words = words[len(words)-negationWindow:]
	}
	for _, w := range words {
		if negations[strings.Trim(w, ".,!?;:")] {
			return true
		}
	}
	return false
}

// normalize lower-cases, trims, folds curly apostrophes, and collapses
// runs of whitespace.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "’", "'")
	return strings.Join(strings.Fields(s), " ")
}

// NeedsReview reports whether an intent has no automatic effect and must be
// followed up by a person.
func NeedsReview(i Intent) bool {
	switch i {
	case IntentEarlierSlot, IntentEarlierOption1, IntentEarlierOption2, IntentUnknown, IntentUnmatched:
		return true
	}
	return false
}
