// Package dedup remembers which idempotency keys a provider has already
// accepted, so a repeated send is answered from Redis instead of the
// provider.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zulandar/cadence/internal/transport"
)

// KeyPrefix namespaces dedup keys in a shared Redis.
const KeyPrefix = "cadence:sent:"

type sentValue struct {
	TransportID string    `json:"transportId"`
	SentAt      time.Time `json:"sentAt"`
}

// Transport wraps another transport with a Redis-backed record of
// successful sends keyed by idempotency key.
type Transport struct {
	next transport.Transport
	rdb  *redis.Client
	ttl  time.Duration
	now  func() time.Time
}

// New wraps next. Keys expire after ttl.
func New(next transport.Transport, rdb *redis.Client, ttl time.Duration) *Transport {
	return &Transport{next: next, rdb: rdb, ttl: ttl, now: time.Now}
}

// Send returns the stored transport id when msg's key was already sent.
// Otherwise it forwards to the wrapped transport and remembers the result.
// Redis failures are logged and never block delivery.
func (t *Transport) Send(ctx context.Context, msg transport.Outbound) (string, error) {
	if msg.IdempotencyKey == "" {
		return t.next.Send(ctx, msg)
	}
	key := KeyPrefix + msg.IdempotencyKey

	raw, err := t.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v sentValue
		if jerr := json.Unmarshal(raw, &v); jerr == nil {
			return v.TransportID, nil
		}
		log.Printf("dedup: discarding unreadable entry %s", key)
	case errors.Is(err, redis.Nil):
	default:
		if ctx.Err() != nil {
			return "", fmt.Errorf("dedup: lookup %s: %w", key, err)
		}
		log.Printf("dedup: lookup %s: %v", key, err)
	}

	id, err := t.next.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	if serr := t.store(ctx, key, id); serr != nil {
		log.Printf("dedup: store %s: %v", key, serr)
	}
	return id, nil
}

func (t *Transport) store(ctx context.Context, key, id string) error {
	b, err := json.Marshal(sentValue{TransportID: id, SentAt: t.now().UTC()})
	if err != nil {
		return err
	}
	return t.rdb.Set(ctx, key, b, t.ttl).Err()
}
