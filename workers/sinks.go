package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/camden-git/civicregistry/models"
)

// Broadcaster pushes events to live subscribers.
type Broadcaster interface {
	Broadcast(ev models.LedgerEvent)
}

// Invalidator drops cached aggregates derived from the registry.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// HubSink forwards events to websocket subscribers.
func HubSink(b Broadcaster) LedgerSink {
	return SinkFunc{SinkName: "websocket", Fn: func(_ context.Context, ev models.LedgerEvent) error {
		b.Broadcast(ev)
		return nil
	}}
}

// StatsSink invalidates cached statistics after every change.
func StatsSink(inv Invalidator) LedgerSink {
	return SinkFunc{SinkName: "statistics", Fn: func(ctx context.Context, _ models.LedgerEvent) error {
		return inv.Invalidate(ctx)
	}}
}

// RoutingKey is the topic key a ledger event is published under, e.g. "ledger.split".
func RoutingKey(ev models.LedgerEvent) string {
	return "ledger." + strings.ToLower(ev.ChangeType)
}

// AMQPPublisher publishes ledger events to a durable topic exchange.
type AMQPPublisher struct {
	Conn     *amqp.Connection
	Channel  *amqp.Channel
	Exchange string
	mu       sync.Mutex
}

func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{Conn: conn, Channel: ch, Exchange: exchange}, nil
}

func (p *AMQPPublisher) Name() string { return "amqp" }

func (p *AMQPPublisher) Deliver(ctx context.Context, ev models.LedgerEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Channel.PublishWithContext(ctx,
		p.Exchange,
		RoutingKey(ev),
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    ev.OperationID,
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
}

func (p *AMQPPublisher) Close() {
	p.Channel.Close()
	p.Conn.Close()
}
