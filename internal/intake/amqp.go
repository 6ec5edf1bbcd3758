package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/zulandar/cadence/internal/booking"
	"github.com/zulandar/cadence/internal/config"
)

// Routing keys the consumer binds.
const (
	RKBookingCreated   = "booking.created"
	RKBookingCancelled = "booking.cancelled"
	RKBookingCompleted = "booking.completed"
)

// RoutingKeys returns every key the consumer handles.
func RoutingKeys() []string {
	return []string{RKBookingCreated, RKBookingCancelled, RKBookingCompleted}
}

const defaultPrefetch = 8

// Consumer reads booking events from a topic exchange and applies them.
type Consumer struct {
	cfg     config.AMQPConfig
	service *Service

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer returns an unconnected Consumer.
func NewConsumer(cfg config.AMQPConfig, svc *Service) *Consumer {
	return &Consumer{cfg: cfg, service: svc}
}

// Connect dials the broker, declares the exchange and queue, and binds the
// booking routing keys.
func (c *Consumer) Connect() error {
	if c.cfg.URL == "" {
		return fmt.Errorf("intake: amqp url is required")
	}
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("intake: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("intake: open channel: %w", err)
	}
	fail := func(what string, err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("intake: %s: %w", what, err)
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange "+c.cfg.Exchange, err)
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue "+c.cfg.Queue, err)
	}
	for _, key := range RoutingKeys() {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fail("bind "+key, err)
		}
	}
	if err := ch.Qos(defaultPrefetch, 0, false); err != nil {
		return fail("set qos", err)
	}

	c.conn, c.ch = conn, ch
	return nil
}

// Close releases the channel and connection.
func (c *Consumer) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Run consumes until ctx is cancelled or the broker closes the channel.
// Transient failures are requeued; events that can never apply are dropped.
func (c *Consumer) Run(ctx context.Context) error {
	if c.ch == nil {
		return fmt.Errorf("intake: consumer is not connected")
	}
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, "cadence", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("intake: consume %s: %w", c.cfg.Queue, err)
	}
	log.Printf("intake: consuming %s on %s", c.cfg.Queue, c.cfg.Exchange)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("intake: delivery channel closed")
			}
			err := c.handleDelivery(ctx, d)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case permanent(err):
				log.Printf("intake: drop key=%s: %v", d.RoutingKey, err)
				_ = d.Nack(false, false)
			default:
				log.Printf("intake: handle key=%s: %v (requeued)", d.RoutingKey, err)
				_ = d.Nack(false, true)
			}
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	switch d.RoutingKey {
	case RKBookingCreated:
		var ev Created
		if err := decode(d.Body, &ev); err != nil {
			return err
		}
		_, err := c.service.BookingCreated(ctx, ev)
		return err

	case RKBookingCancelled:
		var ev Cancelled
		if err := decode(d.Body, &ev); err != nil {
			return err
		}
		_, _, err := c.service.BookingCancelled(ctx, ev)
		return err

	case RKBookingCompleted:
		var ev Completed
		if err := decode(d.Body, &ev); err != nil {
			return err
		}
		_, err := c.service.BookingCompleted(ctx, ev)
		return err

	default:
		log.Printf("intake: skip unknown key=%s", d.RoutingKey)
	}
	return nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// permanent reports whether redelivering the event could never succeed.
func permanent(err error) bool {
	return errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, booking.ErrNotFound) ||
		errors.Is(err, booking.ErrInvalidTransition)
}
