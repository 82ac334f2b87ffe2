package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/events"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

const publishTimeout = 5 * time.Second

// Publisher forwards pipeline events to a topic exchange, routed by event name.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	exchange string
	log      *logger.Logger
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string, log *logger.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := NewPublisher(ch, exchange, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares a durable topic exchange on ch.
func NewPublisher(ch Channel, exchange string, log *logger.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, fmt.Errorf("exchange name is required")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: ch, exchange: exchange, log: log}, nil
}

// Subscribe forwards every pipeline event on the bus.
func (p *Publisher) Subscribe(bus events.Bus) {
	for _, name := range events.AllNames {
		bus.Subscribe(name, events.HandlerFunc(p.Handle))
	}
}

// Handle publishes one event as a persistent JSON message.
func (p *Publisher) Handle(ctx context.Context, e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.EventName(), err)
	}

	headers := amqp.Table{"event": e.EventName()}
	if scoped, ok := e.(events.TenantScoped); ok {
		headers["tenant-id"] = scoped.Tenant().String()
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return fmt.Errorf("publisher is closed")
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, e.EventName(), false, false, amqp.Publishing{
		Headers:      headers,
		MessageId:    e.EventID().String(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt(),
		Body:         body,
	})
	if err != nil {
		p.log.Error("failed to publish event", "event", e.EventName(), "exchange", p.exchange, "error", err)
		return fmt.Errorf("publish %s: %w", e.EventName(), err)
	}
	return nil
}

// Close closes the channel and, when dialled here, the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	p.channel = nil
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
