// Package alert raises operator alerts (permanently failed sends, replies
// that need a human) on Slack, Discord, or the log.
package alert

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zulandar/cadence/internal/config"
)

// Severity levels and their sidebar colors.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"

	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Alert is one operator notification.
type Alert struct {
	Title    string
	Body     string
	Severity string
	Fields   []Field
}

// Field is a key-value pair shown with an alert.
type Field struct {
	Name  string
	Value string
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

func severityColor(severity string) string {
	switch severity {
	case SeverityWarning:
		return ColorWarning
	case SeverityError:
		return ColorError
	default:
		return ColorInfo
	}
}

// Text renders an alert as plain text.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(a.Title)
	if a.Body != "" {
		b.WriteString(": ")
		b.WriteString(a.Body)
	}
	for _, f := range a.Fields {
		fmt.Fprintf(&b, " %s=%s", f.Name, f.Value)
	}
	return b.String()
}

// Log writes alerts to the process log.
type Log struct{}

// Notify logs a.
func (Log) Notify(_ context.Context, a Alert) error {
	log.Printf("alert: [%s] %s", severityOrInfo(a.Severity), a.Text())
	return nil
}

func severityOrInfo(s string) string {
	if s == "" {
		return SeverityInfo
	}
	return s
}

// Multi fans an alert out to several notifiers. Delivery is best-effort: a
// failing notifier is logged and the rest still run.
type Multi []Notifier

// Notify sends a to every notifier and never returns an error.
func (m Multi) Notify(ctx context.Context, a Alert) error {
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			log.Printf("alert: %v", err)
		}
	}
	return nil
}

// New builds the notifier set from config. The log notifier is always
// present; Slack and Discord are added when their tokens are set.
func New(cfg config.AlertsConfig) (Multi, error) {
	m := Multi{Log{}}
	if cfg.Slack.Token != "" {
		s, err := NewSlack(SlackOpts{Token: cfg.Slack.Token, ChannelID: cfg.Slack.Channel})
		if err != nil {
			return nil, err
		}
		m = append(m, s)
	}
	if cfg.Discord.Token != "" {
		d, err := NewDiscord(DiscordOpts{Token: cfg.Discord.Token, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		m = append(m, d)
	}
	return m, nil
}
