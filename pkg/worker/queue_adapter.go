package worker

import (
	"context"

	"github.com/motorplace/vehicle-ads/pkg/rabbitmq"
)

// amqpQueue adapts the RabbitMQ client to the worker's Queue interface.
type amqpQueue struct {
	q *rabbitmq.Queue
}

// WrapQueue exposes a RabbitMQ queue as a worker Queue.
func WrapQueue(q *rabbitmq.Queue) Queue {
	return &amqpQueue{q: q}
}

func (a *amqpQueue) Dequeue(ctx context.Context) (Message, error) {
	msg, err := a.q.Dequeue(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	return msg, nil
}

func (a *amqpQueue) Consume(ctx context.Context) (<-chan Message, error) {
	in, err := a.q.Consume(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for msg := range in {
			select {
			case out <- msg:
			case <-ctx.Done():
				// Not handed to the worker, give it back.
				_ = msg.Nack(true)
				return
			}
		}
	}()

	return out, nil
}
