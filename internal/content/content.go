// Package content renders the subject and body for each message kind.
package content

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/zulandar/cadence/internal/config"
	"github.com/zulandar/cadence/internal/models"
	"github.com/zulandar/cadence/internal/timeline"
)

// Content is a rendered message. Subject is empty for SMS.
type Content struct {
	Subject string
	Body    string
}

// data is what the templates see.
type data struct {
	Name      string
	Company   string
	Host      string
	When      string
	JoinURL   string
	RebookURL string
}

// templates is the template triple for one kind. A kind that needs a link the
// booking or config does not have renders to nothing.
type templates struct {
	subject string
	email   string
	sms     string
	needs   func(d data) bool
}

const whenLayout = "Monday, January 2 at 3:04 PM MST"

// Render returns the content for kind over channel, or nil when nothing is
// defined for this kind given the booking and config.
func Render(kind timeline.Kind, b *models.Booking, channel string, cfg config.ContentConfig) (*Content, error) {
	if b == nil {
		return nil, fmt.Errorf("content: booking is required")
	}
	s, err := templatesFor(kind)
	if err != nil {
		return nil, err
	}

	loc, err := timeline.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	d := data{
		Name:      firstName(b.Name),
		Company:   cfg.Company,
		Host:      cfg.Host,
		When:      b.ScheduledAt.In(loc).Format(whenLayout),
		JoinURL:   b.JoinURL,
		RebookURL: cfg.RebookURL,
	}
	if s.needs != nil && !s.needs(d) {
		return nil, nil
	}

	if channel == models.ChannelSMS {
		body, err := execute(string(kind)+".sms", s.sms, d)
		if err != nil {
			return nil, err
		}
		return &Content{Body: body}, nil
	}
	subject, err := execute(string(kind)+".subject", s.subject, d)
	if err != nil {
		return nil, err
	}
	body, err := execute(string(kind)+".email", s.email, d)
	if err != nil {
		return nil, err
	}
	return &Content{Subject: subject, Body: body}, nil
}

func execute(name, text string, d data) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("content: parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("content: execute %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func hasJoinURL(d data) bool   { return d.JoinURL != "" }
func hasRebookURL(d data) bool { return d.RebookURL != "" }

func templatesFor(kind timeline.Kind) (templates, error) {
	switch kind {
	case timeline.KindWelcome:
		return templates{
			subject: `Your demo with {{.Company}} is booked`,
			email: `Hi {{.Name}},

Thanks for booking a demo with {{.Company}}. We'll see you {{.When}}.
{{if .JoinURL}}
Join link: {{.JoinURL}}
{{end}}
Reply YES to confirm, or let us know if you need another time.`,
			sms: `{{.Company}}: your demo is booked for {{.When}}. Reply YES to confirm.`,
		}, nil
	case timeline.KindConfirmRequest:
		return templates{
			subject: `Can you still make it {{.When}}?`,
			email: `Hi {{.Name}},

Just checking you can still make your demo {{.When}}.

Reply YES to confirm, or tell us a time that works better.`,
			sms: `{{.Company}}: still good for {{.When}}? Reply YES to confirm or tell us a better time.`,
		}, nil
	case timeline.KindValueNudge:
		return templates{
			subject: `What to expect on your {{.Company}} demo`,
			email: `Hi {{.Name}},

Ahead of your demo {{.When}}{{if .Host}} with {{.Host}}{{end}}, have a think about the one problem you'd most like to solve. We'll tailor the walkthrough to it.`,
			sms: `{{.Company}}: bring your biggest question to the demo {{.When}}. We'll tailor it to you.`,
		}, nil
	case timeline.KindDayBefore:
		return templates{
			subject: `See you tomorrow`,
			email: `Hi {{.Name}},

A reminder that your demo with {{.Company}} is tomorrow, {{.When}}.
{{if .JoinURL}}
Join link: {{.JoinURL}}
{{end}}`,
			sms: `{{.Company}}: see you tomorrow, {{.When}}.`,
		}, nil
	case timeline.KindMorningOf:
		return templates{
			subject: `Today: your demo with {{.Company}}`,
			email: `Hi {{.Name}},

Your demo is today, {{.When}}. Reply here if anything has changed.`,
			sms: `{{.Company}}: your demo is today, {{.When}}.`,
		}, nil
	case timeline.KindReminder1h:
		return templates{
			subject: `Starting in one hour`,
			email: `Hi {{.Name}},

Your demo with {{.Company}} starts in an hour.{{if .JoinURL}} Join here: {{.JoinURL}}{{end}}`,
			sms: `{{.Company}}: your demo starts in 1 hour.{{if .JoinURL}} {{.JoinURL}}{{end}}`,
		}, nil
	case timeline.KindJoinLink:
		return templates{
			subject: `Join now: {{.JoinURL}}`,
			email: `Hi {{.Name}},

We're about to start. Join here: {{.JoinURL}}`,
			sms:   `{{.Company}}: starting now. Join: {{.JoinURL}}`,
			needs: hasJoinURL,
		}, nil
	case timeline.KindMissedCall:
		return templates{
			subject: `Sorry we missed you`,
			email: `Hi {{.Name}},

We didn't see you on the call. No problem, these things happen.
{{if .RebookURL}}
Pick a new time here: {{.RebookURL}}
{{else}}
Reply with a time that suits you and we'll set it up.
{{end}}`,
			sms: `{{.Company}}: sorry we missed you. Reply with a time that works and we'll rebook.`,
		}, nil
	case timeline.KindRebookOffer:
		return templates{
			subject: `Still interested in a demo?`,
			email: `Hi {{.Name}},

If you'd still like to see {{.Company}} in action, grab a new slot here: {{.RebookURL}}`,
			sms:   `{{.Company}}: still keen on a demo? Book a new time: {{.RebookURL}}`,
			needs: hasRebookURL,
		}, nil
	}
	return templates{}, fmt.Errorf("content: unknown kind %q", kind)
}
