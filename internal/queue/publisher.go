package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher sends envelopes to a fanout exchange.  It keeps one connection
// and channel open and redials lazily after a failure.
type Publisher struct {
	url      string
	exchange string
	log      logrus.FieldLogger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the given broker URL and exchange.
// No connection is made until the first Publish.
func NewPublisher(url, exchange string, log logrus.FieldLogger) *Publisher {
	return &Publisher{url: url, exchange: exchange, log: log}
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,     // name
		"fanout", // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
}

// channel returns the open channel, dialing when needed.  p.mu must be held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Publish sends env to the exchange.  A failed publish drops the cached
// channel so the next call redials.
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType: "application/json",
		MessageId:   env.ID,
		Type:        env.Type,
		Timestamp:   time.Now().UTC(),
		Body:        body,
	}
	if err := ch.PublishWithContext(ctx, p.exchange, "", false, false, pub); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}

// Close releases the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
