package queue

import (
	"context"
	"encoding/json"
	"log"

	"github.com/geopix/geopix-back/internal/domain"
)

// LocalQueue is an in-process transport used when no broker is configured.
// Tasks and results travel on separate channels mirroring the two topics.
type LocalQueue struct {
	tasks   chan domain.TaskMessage
	results chan []byte
	logger  *log.Logger
}

func NewLocalQueue(bufferSize int, logger *log.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	return &LocalQueue{
		tasks:   make(chan domain.TaskMessage, bufferSize),
		results: make(chan []byte, bufferSize),
		logger:  logger,
	}
}

func (q *LocalQueue) EnqueueTask(ctx context.Context, task domain.TaskMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.tasks <- task:
		return nil
	}
}

// PublishResult feeds a raw result body to the consumer side. Tests and the
// dev loopback use it in place of the external worker.
func (q *LocalQueue) PublishResult(ctx context.Context, body []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.results <- append([]byte(nil), body...):
		return nil
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body := <-q.results:
			_ = handler(ctx, body)
		}
	}
}

// StartLoopback answers every task with a stub result, so local development
// exercises the whole submit-process-notify cycle without the ML worker.
func (q *LocalQueue) StartLoopback(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-q.tasks:
				body, err := json.Marshal(map[string]any{
					"image_id": task.ImageID,
					"geolocation": map[string]float64{
						"lat": 0,
						"lon": 0,
					},
					"stub": true,
				})
				if err != nil {
					continue
				}
				if err := q.PublishResult(ctx, body); err != nil {
					return
				}
				if q.logger != nil {
					q.logger.Printf("loopback result published image_id=%s", task.ImageID)
				}
			}
		}
	}()
}
