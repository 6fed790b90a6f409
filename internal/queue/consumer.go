package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Handler receives every decoded envelope.
type Handler func(Envelope)

// Consumer binds an exclusive, server-named queue to the realtime fanout
// exchange so that every instance receives every event.  Deliveries are
// auto-acknowledged: realtime events are at-most-once and clients
// reconcile against the tally store.
type Consumer struct {
	url      string
	exchange string
	log      logrus.FieldLogger
}

// NewConsumer returns a Consumer for the given broker URL and exchange.
func NewConsumer(url, exchange string, log logrus.FieldLogger) *Consumer {
	return &Consumer{url: url, exchange: exchange, log: log}
}

// Run consumes until ctx is cancelled, redialing with exponential backoff
// (capped at 30s) whenever the connection drops.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	backoff := time.Second
	for {
		err := c.consumeOnce(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("realtime consumer disconnected")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if err == nil || errors.Is(err, errDeliveriesClosed) {
			backoff = time.Second
		} else if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

var errDeliveriesClosed = errors.New("deliveries channel closed")

func (c *Consumer) consumeOnce(ctx context.Context, h Handler) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareExchange(ch, c.exchange); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", c.exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.WithField("queue", q.Name).Info("realtime consumer connected")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			c.dispatch(d.Body, h)
		}
	}
}

func (c *Consumer) dispatch(body []byte, h Handler) {
	env, err := Decode(body)
	if err != nil {
		c.log.WithError(err).Warn("dropping malformed realtime event")
		return
	}
	h(env)
}
