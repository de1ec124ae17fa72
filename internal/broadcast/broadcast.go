package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Event is a real-time message emitted on a named channel so connected
// client sessions can react without polling.
type Event struct {
	Channel string `json:"channel"`
	Name    string `json:"event"`
	Payload any    `json:"data"`
}

// UploadChannel is the per-owner private channel carrying upload events.
func UploadChannel(ownerID string) string {
	return "private-uploads." + ownerID
}

type Broadcaster interface {
	Broadcast(ctx context.Context, event Event) error
}

// BroadcasterFunc adapts a function to the Broadcaster interface.
type BroadcasterFunc func(ctx context.Context, event Event) error

func (f BroadcasterFunc) Broadcast(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// RedisBroadcaster publishes events over Redis pub/sub; a websocket gateway
// subscribed to the private channels relays them to browsers.
type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, event Event) error {
	encoded, err := json.Marshal(map[string]any{
		"event": event.Name,
		"data":  event.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, event.Channel, encoded).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
