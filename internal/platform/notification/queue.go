package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// QueueSender publishes mail to a RabbitMQ queue; a mail worker delivers it.
// Publishing returns as soon as the broker has the message.
type QueueSender struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

// DeclareMailQueue makes sure the durable mail queue exists.
func DeclareMailQueue(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

func NewQueueSender(ch *amqp.Channel, queue string) (*QueueSender, error) {
	if err := DeclareMailQueue(ch, queue); err != nil {
		return nil, err
	}
	return &QueueSender{ch: ch, queue: queue}, nil
}

func (q *QueueSender) SendEmail(ctx context.Context, msg Email) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}

// QueueConsumer drains the mail queue into a transport.
type QueueConsumer struct {
	ch        *amqp.Channel
	queue     string
	transport EmailSender
	logger    zerolog.Logger
}

func NewQueueConsumer(ch *amqp.Channel, queue string, transport EmailSender, logger zerolog.Logger) *QueueConsumer {
	return &QueueConsumer{ch: ch, queue: queue, transport: transport, logger: logger}
}

// Run consumes until ctx is cancelled or the channel closes. A message that
// fails to decode or send is dropped, not requeued.
func (c *QueueConsumer) Run(ctx context.Context) error {
	if err := DeclareMailQueue(c.ch, c.queue); err != nil {
		return err
	}
	deliveries, err := c.ch.Consume(c.queue, "medicare-mail-worker", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("mail queue channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *QueueConsumer) handle(ctx context.Context, d amqp.Delivery) {
	if err := c.Deliver(ctx, d.Body); err != nil {
		c.logger.Warn().Err(err).Msg("mail delivery failed")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Deliver decodes one queued message and hands it to the transport.
func (c *QueueConsumer) Deliver(ctx context.Context, body []byte) error {
	var msg Email
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode email: %w", err)
	}
	return c.transport.SendEmail(ctx, msg)
}
