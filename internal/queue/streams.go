package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
	"github.com/redis/go-redis/v9"
)

type StreamsConfig struct {
	TaskStream   string
	ResultStream string
	Group        string
	Consumer     string
}

// StreamsQueue implements Producer+Consumer backed by Redis Streams: tasks go
// out on one stream, worker results come back on another. The client handle
// is injected so it can be shared with the broadcast and notification sinks.
type StreamsQueue struct {
	client       *redis.Client
	taskStream   string
	resultStream string
	group        string
	consumer     string
}

func NewStreamsQueue(ctx context.Context, client *redis.Client, cfg StreamsConfig) (*StreamsQueue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.TaskStream == "" {
		cfg.TaskStream = "images.tasks"
	}
	if cfg.ResultStream == "" {
		cfg.ResultStream = "images.results"
	}
	if cfg.Group == "" {
		cfg.Group = "geopix_backend"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "api-1"
	}

	queue := &StreamsQueue{
		client:       client,
		taskStream:   cfg.TaskStream,
		resultStream: cfg.ResultStream,
		group:        cfg.Group,
		consumer:     cfg.Consumer,
	}
	if err := queue.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return queue, nil
}

func (q *StreamsQueue) EnqueueTask(ctx context.Context, task domain.TaskMessage) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	_, err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.taskStream,
		Values: map[string]any{
			"image_id": task.ImageID,
			"body":     string(body),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

func (q *StreamsQueue) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.resultStream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				// Handler failures are contained upstream; the entry is
				// acknowledged either way so a poisoned message cannot wedge
				// the group.
				_ = handler(ctx, extractBody(item))
				_ = q.ackAndDelete(ctx, item.ID)
			}
		}
	}
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.resultStream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) error {
	if err := q.client.XAck(ctx, q.resultStream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.resultStream, streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

// extractBody returns the canonical JSON body of a stream entry. Workers
// publishing through this backend write a single body field; entries from
// other producers fall back to their field map serialized as JSON.
func extractBody(item redis.XMessage) []byte {
	if value, ok := item.Values["body"]; ok {
		switch casted := value.(type) {
		case string:
			return []byte(casted)
		case []byte:
			return casted
		}
	}
	encoded, err := json.Marshal(item.Values)
	if err != nil {
		return nil
	}
	return encoded
}
