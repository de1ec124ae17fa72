package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers     []string
	TaskTopic   string
	ResultTopic string
	Group       string
	ClientID    string
}

// KafkaQueue implements Producer+Consumer on Kafka topics, matching the
// topology the ML worker speaks natively (tasks in, results out).
type KafkaQueue struct {
	writer *kafka.Writer
	cfg    KafkaConfig
}

func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.TaskTopic == "" {
		cfg.TaskTopic = "images.tasks"
	}
	if cfg.ResultTopic == "" {
		cfg.ResultTopic = "images.results"
	}
	if cfg.Group == "" {
		cfg.Group = "geopix-backend"
	}

	transport := &kafka.Transport{ClientID: cfg.ClientID}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.TaskTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
		Transport:              transport,
	}

	return &KafkaQueue{writer: writer, cfg: cfg}, nil
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

func (q *KafkaQueue) EnqueueTask(ctx context.Context, task domain.TaskMessage) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	err = q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ImageID),
		Value: body,
	})
	if err != nil {
		return fmt.Errorf("write task message: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        q.cfg.Brokers,
		GroupID:        q.cfg.Group,
		Topic:          q.cfg.ResultTopic,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: 0, // synchronous commits, one message at a time
	})
	defer reader.Close()

	for {
		message, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		// Handler failures are contained upstream; commit regardless so a
		// poisoned message cannot stall the partition.
		_ = handler(ctx, message.Value)
		if err := reader.CommitMessages(ctx, message); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("commit message: %w", err)
		}
	}
}
