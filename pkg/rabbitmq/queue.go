package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/motorplace/vehicle-ads/pkg/types"
)

// Queue is the durable FIFO work queue of ad ids awaiting validation.
// Delivery is at-least-once: a dequeued message stays invisible to other
// consumers until acknowledged; unacknowledged deliveries are redelivered.
type Queue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	log       *logrus.Logger
}

// Message is a single dequeued ad id. Ack only after the outcome has been
// durably recorded; Nack with requeue to hand the id back to the queue.
type Message struct {
	adID     string
	delivery amqp.Delivery
}

func (m *Message) AdID() string { return m.adID }

func (m *Message) Ack() error { return m.delivery.Ack(false) }

func (m *Message) Nack(requeue bool) error { return m.delivery.Nack(false, requeue) }

// NewQueue connects to RabbitMQ and declares the validation queue. A non-zero
// visibilityTimeout is applied as the queue's consumer timeout, bounding how
// long a delivery may stay unacknowledged before the broker redelivers it.
func NewQueue(rabbitURL, queueName string, visibilityTimeout time.Duration, logger *logrus.Logger) (*Queue, error) {
	conn, err := connectWithRetry(rabbitURL, 10, 5*time.Second, logger)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	var args amqp.Table
	if visibilityTimeout > 0 {
		args = amqp.Table{"x-consumer-timeout": visibilityTimeout.Milliseconds()}
	}

	_, err = channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// One in-flight message per consumer.
	if err := channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	logger.WithField("queue", queueName).Info("connected to RabbitMQ")

	return &Queue{
		conn:      conn,
		channel:   channel,
		queueName: queueName,
		log:       logger,
	}, nil
}

// connectWithRetry attempts to connect to RabbitMQ with retries
func connectWithRetry(url string, maxRetries int, delay time.Duration, logger *logrus.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}

		logger.WithError(err).Warnf("RabbitMQ connect failed (attempt %d/%d)", i+1, maxRetries)
		if i < maxRetries-1 {
			time.Sleep(delay)
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, err)
}

// Enqueue publishes an ad id as a persistent message.
func (q *Queue) Enqueue(ctx context.Context, adID string) error {
	body, err := json.Marshal(types.AdMessage{AdID: adID})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = q.channel.PublishWithContext(
		ctx,
		"",          // exchange
		q.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// Dequeue fetches a single message without blocking. Returns nil when the
// queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	delivery, ok, err := q.channel.Get(q.queueName, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if !ok {
		return nil, nil
	}

	msg, err := q.wrap(delivery)
	if err != nil {
		// Poison message: drop without requeue.
		q.log.WithError(err).Error("dropping malformed queue message")
		_ = delivery.Nack(false, false)
		return nil, nil
	}

	return msg, nil
}

// Consume registers a long-lived consumer and returns a channel of messages.
// The channel closes when ctx is cancelled or the broker connection drops.
func (q *Queue) Consume(ctx context.Context) (<-chan *Message, error) {
	deliveries, err := q.channel.Consume(
		q.queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	out := make(chan *Message)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				msg, err := q.wrap(delivery)
				if err != nil {
					q.log.WithError(err).Error("dropping malformed queue message")
					_ = delivery.Nack(false, false)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					// Not handed to a worker, give it back.
					_ = delivery.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

func (q *Queue) wrap(delivery amqp.Delivery) (*Message, error) {
	var adMsg types.AdMessage
	if err := json.Unmarshal(delivery.Body, &adMsg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if adMsg.AdID == "" {
		return nil, fmt.Errorf("message carries no ad id")
	}
	return &Message{adID: adMsg.AdID, delivery: delivery}, nil
}

// Close closes the queue connection.
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
