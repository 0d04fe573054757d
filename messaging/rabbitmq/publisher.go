package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nasermirzaei89/agora/interactions"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "events_exchange"

// Publisher sends interaction events to a durable fanout exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

var _ interactions.Publisher = (*Publisher)(nil)

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open channel: %w", err), conn.Close())
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to declare exchange: %w", err), ch.Close(), conn.Close())
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
	}, nil
}

type message struct {
	Type          string    `json:"type"`
	InteractionID string    `json:"interactionId"`
	PostID        string    `json:"postId"`
	UserID        string    `json:"userId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func encodeEvent(event *interactions.Event) ([]byte, error) {
	body, err := json.Marshal(message{
		Type:          string(event.Type),
		InteractionID: event.InteractionID,
		PostID:        event.PostID,
		UserID:        event.UserID,
		OccurredAt:    event.OccurredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}

	return body, nil
}

func (p *Publisher) Publish(ctx context.Context, event *interactions.Event) error {
	body, err := encodeEvent(event)
	if err != nil {
		return err
	}

	// channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		string(event.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return errors.Join(p.channel.Close(), p.conn.Close())
}
