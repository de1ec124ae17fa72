package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
)

func TestLocalQueueDeliversResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := NewLocalQueue(8, log.New(io.Discard, "", 0))

	received := make(chan []byte, 1)
	go func() {
		_ = local.Consume(ctx, func(_ context.Context, body []byte) error {
			received <- body
			return nil
		})
	}()

	body := []byte(`{"image_id":"abc"}`)
	if err := local.PublishResult(ctx, body); err != nil {
		t.Fatalf("publish result: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(body) {
			t.Fatalf("unexpected body: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for result delivery")
	}
}

func TestLocalQueueConsumeKeepsGoingAfterHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := NewLocalQueue(8, log.New(io.Discard, "", 0))

	calls := make(chan string, 2)
	go func() {
		_ = local.Consume(ctx, func(_ context.Context, body []byte) error {
			calls <- string(body)
			return errors.New("boom")
		})
	}()

	_ = local.PublishResult(ctx, []byte(`first`))
	_ = local.PublishResult(ctx, []byte(`second`))

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-calls:
			if got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("consumer stopped after handler error")
		}
	}
}

func TestLocalQueueLoopbackAnswersTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := NewLocalQueue(8, log.New(io.Discard, "", 0))
	local.StartLoopback(ctx)

	received := make(chan []byte, 1)
	go func() {
		_ = local.Consume(ctx, func(_ context.Context, body []byte) error {
			received <- body
			return nil
		})
	}()

	task := domain.TaskMessage{ImageID: "upload-1", ImageURL: "http://localhost/upload-1.jpg"}
	if err := local.EnqueueTask(ctx, task); err != nil {
		t.Fatalf("enqueue task: %v", err)
	}

	select {
	case body := <-received:
		var envelope domain.ResultEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			t.Fatalf("decode loopback result: %v", err)
		}
		if envelope.ImageID != "upload-1" {
			t.Fatalf("loopback must echo the task image id, got %s", envelope.ImageID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for loopback result")
	}
}
