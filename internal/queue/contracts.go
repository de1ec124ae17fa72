package queue

import (
	"context"

	"github.com/geopix/geopix-back/internal/domain"
)

// Producer publishes task messages to the topic the ML worker consumes.
type Producer interface {
	EnqueueTask(ctx context.Context, task domain.TaskMessage) error
}

// Consumer subscribes to the result topic and hands each raw message body to
// the handler. Delivery guarantees (redelivery, ordering) belong to the
// transport; a handler error never re-queues the message here.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, []byte) error) error
}
