// Package events publishes ledger notifications to RabbitMQ. Publishing is
// best effort: it happens after commit and never decides the outcome of an
// operation.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

const (
	Exchange = "ledger_events"

	RoutingCreated   = "transaction.created"
	RoutingConfirmed = "transaction.confirmed"
)

// TransactionEvent is the message body for both routing keys.
type TransactionEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Amount    string    `json:"amount"`
	Fee       string    `json:"fee"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransactionEvent snapshots a transaction record.
func NewTransactionEvent(t domain.Transaction) TransactionEvent {
	return TransactionEvent{
		ID:        t.ID.String(),
		Type:      string(t.Type),
		Sender:    t.Sender,
		Receiver:  t.Receiver,
		Amount:    t.Amount.String(),
		Fee:       t.Fee.String(),
		Status:    string(t.Status),
		Timestamp: t.Timestamp,
	}
}

// Publisher is implemented by anything that can ship transaction events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event TransactionEvent) error
	Close()
}

// Nop drops every event. Used when RABBITMQ_URL is not configured.
type Nop struct {
	Logger *slog.Logger
}

func (p Nop) Publish(_ context.Context, routingKey string, event TransactionEvent) error {
	if p.Logger != nil {
		p.Logger.Debug("event publish skipped", "routing_key", routingKey, "transaction_id", event.ID)
	}
	return nil
}

func (Nop) Close() {}

// AMQPPublisher publishes JSON events to a durable topic exchange.
type AMQPPublisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *slog.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(amqpURL string, logger *slog.Logger) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, logger: logger}, nil
}

func declare(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
}

// Publish sends one event, reopening the channel once if the first attempt
// fails.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, event TransactionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	p.logger.Warn("publish failed; reopening channel", "routing_key", routingKey, "error", err)

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	if err := declare(ch); err != nil {
		ch.Close()
		return err
	}
	p.channel = ch
	return p.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, msg)
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
