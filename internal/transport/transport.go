// Package transport delivers rendered messages to email and SMS providers.
package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/zulandar/cadence/internal/config"
	"github.com/zulandar/cadence/internal/models"
)

// ErrAlreadyProcessed means the provider has already accepted a send with
// the same idempotency key. Callers treat it as a successful no-op.
var ErrAlreadyProcessed = errors.New("transport: idempotency key already processed")

// Outbound is one message ready to hand to a provider.
type Outbound struct {
	Channel        string `json:"channel"`
	To             string `json:"to"`
	From           string `json:"from,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Body           string `json:"body"`
	BookingID      string `json:"booking_id"`
	Kind           string `json:"kind"`
	IdempotencyKey string `json:"-"`
}

// Transport sends one message and returns the provider's id for it.
type Transport interface {
	Send(ctx context.Context, msg Outbound) (string, error)
}

// IdempotencyKey derives the stable key for a (booking, kind) send. Every
// attempt at the same logical message carries the same key.
func IdempotencyKey(bookingID, kind string) string {
	sum := sha256.Sum256([]byte(bookingID + ":" + kind))
	return "cadence-" + hex.EncodeToString(sum[:16])
}

// Router picks a transport by channel.
type Router struct {
	routes map[string]Transport
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Transport)}
}

// Handle registers t for channel.
func (r *Router) Handle(channel string, t Transport) {
	r.routes[channel] = t
}

// Send forwards msg to the transport registered for its channel.
func (r *Router) Send(ctx context.Context, msg Outbound) (string, error) {
	t, ok := r.routes[msg.Channel]
	if !ok {
		return "", fmt.Errorf("transport: no transport for channel %q", msg.Channel)
	}
	return t.Send(ctx, msg)
}

// Channels lists the channels that have a transport.
func (r *Router) Channels() []string {
	var out []string
	for _, ch := range []string{models.ChannelEmail, models.ChannelSMS} {
		if _, ok := r.routes[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// New builds a Router from configuration. A channel whose provider type is
// empty gets no transport.
func New(cfg config.TransportConfig) (*Router, error) {
	r := NewRouter()
	providers := []struct {
		channel string
		from    string
		p       config.ProviderConfig
	}{
		{models.ChannelEmail, cfg.FromEmail, cfg.Email},
		{models.ChannelSMS, cfg.FromSMS, cfg.SMS},
	}
	for _, pc := range providers {
		switch pc.p.Type {
		case "":
		case "log":
			r.Handle(pc.channel, &Log{Logger: log.New(os.Stderr, "", log.LstdFlags), From: pc.from})
		case "webhook":
			w, err := NewWebhook(pc.p, pc.from)
			if err != nil {
				return nil, fmt.Errorf("transport: %s: %w", pc.channel, err)
			}
			r.Handle(pc.channel, w)
		default:
			return nil, fmt.Errorf("transport: unknown provider type %q for %s", pc.p.Type, pc.channel)
		}
	}
	return r, nil
}

// Log is a dry-run transport that writes each send to a logger.
type Log struct {
	Logger *log.Logger
	From   string
}

// Send logs msg and returns a synthetic id derived from the idempotency key.
func (l *Log) Send(_ context.Context, msg Outbound) (string, error) {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	if msg.From == "" {
		msg.From = l.From
	}
	logger.Printf("transport: %s to %s kind=%s key=%s subject=%q", msg.Channel, msg.To, msg.Kind, msg.IdempotencyKey, msg.Subject)
	return "log-" + msg.IdempotencyKey, nil
}
