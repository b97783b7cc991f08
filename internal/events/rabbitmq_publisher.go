package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/Gamenter95/wewa/internal/domain"
)

// EventTypeTransferCompleted is the eventType of a committed gateway transfer.
const EventTypeTransferCompleted = "transfer.completed"

// TransferCompletedEvent is the JSON body published after a committed transfer.
type TransferCompletedEvent struct {
	EventID        string    `json:"eventId"`
	EventType      string    `json:"eventType"`
	OccurredAt     time.Time `json:"occurredAt"`
	TransactionID  string    `json:"transactionId"`
	SenderID       string    `json:"senderId"`
	SenderPhone    string    `json:"senderPhone"`
	RecipientID    string    `json:"recipientId"`
	RecipientPhone string    `json:"recipientPhone"`
	Amount         string    `json:"amount"`
	Comment        string    `json:"comment"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Status         string    `json:"status"`
}

// NewTransferCompletedEvent builds the event for a success record.
func NewTransferCompletedEvent(record *domain.TransactionRecord, sender, receiver *domain.Account) TransferCompletedEvent {
	ev := TransferCompletedEvent{
		EventID:        uuid.New().String(),
		EventType:      EventTypeTransferCompleted,
		OccurredAt:     record.CreatedAt,
		TransactionID:  record.ID.String(),
		SenderID:       sender.ID.String(),
		SenderPhone:    sender.PhoneNumber,
		RecipientID:    receiver.ID.String(),
		RecipientPhone: receiver.PhoneNumber,
		Amount:         domain.FormatAmount(record.Amount),
		Comment:        record.Comment,
		Status:         string(record.Status),
	}
	if record.IdempotencyKey != nil {
		ev.IdempotencyKey = *record.IdempotencyKey
	}
	return ev
}

// RabbitMQPublisher publishes transfer events to a topic exchange.
type RabbitMQPublisher struct {
	conn       *amqp.Connection
	exchange   string
	routingKey string
	logger     logrus.FieldLogger

	// amqp.Channel is not safe for concurrent publishing.
	mu      sync.Mutex
	channel *amqp.Channel
}

// NewRabbitMQPublisher connects to RabbitMQ and declares the exchange.
func NewRabbitMQPublisher(url, exchange, routingKey string, logger logrus.FieldLogger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"exchange":    exchange,
		"routing_key": routingKey,
	}).Info("RabbitMQ publisher initialized")

	return &RabbitMQPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// PublishTransferCompleted implements domain.EventPublisher.
func (p *RabbitMQPublisher) PublishTransferCompleted(ctx context.Context, record *domain.TransactionRecord, sender, receiver *domain.Account) error {
	event := NewTransferCompletedEvent(record, sender, receiver)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Timestamp:    event.OccurredAt,
			Type:         event.EventType,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":       event.EventID,
		"transaction_id": event.TransactionID,
	}).Debug("published transfer completed event")
	return nil
}

// Close closes the channel and the connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	return p.conn.Close()
}
