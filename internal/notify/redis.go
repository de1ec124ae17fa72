package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const inboxLimit = 100

// RedisSink stores notifications in a capped per-owner inbox list, the
// in-app store connected clients read from.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Send(ctx context.Context, notification Notification) error {
	encoded, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	key := inboxKey(notification.OwnerID)
	pipeline := s.client.Pipeline()
	pipeline.LPush(ctx, key, encoded)
	pipeline.LTrim(ctx, key, 0, inboxLimit-1)
	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

func inboxKey(ownerID string) string {
	return "notifications:" + ownerID
}
