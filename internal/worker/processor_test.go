package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/geopix/geopix-back/internal/broadcast"
	"github.com/geopix/geopix-back/internal/domain"
	"github.com/geopix/geopix-back/internal/notify"
	"github.com/geopix/geopix-back/internal/repository"
)

type fanoutRecorder struct {
	mu            sync.Mutex
	notifications []notify.Notification
	events        []broadcast.Event
	sinkErr       error
}

func (r *fanoutRecorder) sink() notify.Sink {
	return notify.SinkFunc(func(_ context.Context, notification notify.Notification) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.sinkErr != nil {
			return r.sinkErr
		}
		r.notifications = append(r.notifications, notification)
		return nil
	})
}

func (r *fanoutRecorder) broadcaster() broadcast.Broadcaster {
	return broadcast.BroadcasterFunc(func(_ context.Context, event broadcast.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, event)
		return nil
	})
}

func newProcessor(repo repository.UploadsRepository, recorder *fanoutRecorder) *Processor {
	dispatcher := notify.NewDispatcher(recorder.sink(), "http://localhost:8080")
	return NewProcessor(nil, repo, dispatcher, recorder.broadcaster(), log.New(io.Discard, "", 0), time.Second)
}

func seedProcessing(t *testing.T, repo repository.UploadsRepository, id, ownerID string) *domain.ImageUpload {
	t.Helper()

	now := time.Now().UTC().Add(-time.Minute)
	upload := &domain.ImageUpload{
		ID:        id,
		OwnerID:   ownerID,
		Title:     "Harbor sunset " + id,
		Source:    domain.SourceAPI,
		Event:     domain.EventGetCoordinate,
		Status:    domain.StatusProcessing,
		Metadata:  json.RawMessage(`{"author":"John"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(context.Background(), upload); err != nil {
		t.Fatalf("seed upload: %v", err)
	}
	return upload
}

func TestHandleMessageAppliesResult(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUploadsRepository()
	recorder := &fanoutRecorder{}
	processor := newProcessor(repo, recorder)
	seeded := seedProcessing(t, repo, "upload-1", "owner-1")

	body := []byte(`{"image_id":"upload-1","geolocation":{"lat":1.0,"lon":2.0},"model":"exif-v1"}`)
	if err := processor.HandleMessage(ctx, body); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	stored, err := repo.GetByID(ctx, "upload-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %s", stored.Status)
	}
	if string(stored.Result) != string(body) {
		t.Fatalf("result must be the full canonical body, got %s", stored.Result)
	}
	if !stored.UpdatedAt.After(seeded.UpdatedAt) {
		t.Fatalf("updated_at must advance")
	}
	lat, lon, ok := stored.Geolocation()
	if !ok || lat != 1.0 || lon != 2.0 {
		t.Fatalf("geolocation must derive from the result: %v %v %v", lat, lon, ok)
	}

	if len(recorder.notifications) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(recorder.notifications))
	}
	if recorder.notifications[0].OwnerID != "owner-1" {
		t.Fatalf("notification must target the owner, got %s", recorder.notifications[0].OwnerID)
	}

	if len(recorder.events) != 1 {
		t.Fatalf("expected exactly one broadcast event, got %d", len(recorder.events))
	}
	event := recorder.events[0]
	if event.Channel != "private-uploads.owner-1" || event.Name != EventImageProcessed {
		t.Fatalf("unexpected event routing: %s %s", event.Channel, event.Name)
	}
	payload, ok := event.Payload.(map[string]any)
	if !ok {
		t.Fatalf("event payload must carry the public fields")
	}
	if payload["id"] != "upload-1" || payload["status"] != "success" {
		t.Fatalf("unexpected event payload: %+v", payload)
	}
}

func TestHandleMessageUnknownUploadIsContained(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUploadsRepository()
	recorder := &fanoutRecorder{}
	processor := newProcessor(repo, recorder)
	seedProcessing(t, repo, "upload-1", "owner-1")

	if err := processor.HandleMessage(ctx, []byte(`{"image_id":"999999"}`)); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	stored, _ := repo.GetByID(ctx, "upload-1")
	if stored.Status != domain.StatusProcessing {
		t.Fatalf("unrelated record must be untouched, got %s", stored.Status)
	}
	if len(recorder.notifications) != 0 || len(recorder.events) != 0 {
		t.Fatalf("unknown upload must not fan out")
	}
}

func TestHandleMessageMalformedBodyIsContained(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUploadsRepository()
	recorder := &fanoutRecorder{}
	processor := newProcessor(repo, recorder)
	seedProcessing(t, repo, "upload-1", "owner-1")

	for _, body := range [][]byte{
		[]byte(`{"image_id":`),
		[]byte(`{}`),
		[]byte(`not json at all`),
	} {
		if err := processor.HandleMessage(ctx, body); err != nil {
			t.Fatalf("handle message %q: %v", body, err)
		}
	}

	stored, _ := repo.GetByID(ctx, "upload-1")
	if stored.Status != domain.StatusProcessing {
		t.Fatalf("malformed messages must not change state, got %s", stored.Status)
	}
	if len(recorder.notifications) != 0 || len(recorder.events) != 0 {
		t.Fatalf("malformed messages must not fan out")
	}
}

func TestHandleMessageRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUploadsRepository()
	recorder := &fanoutRecorder{}
	processor := newProcessor(repo, recorder)
	seedProcessing(t, repo, "upload-1", "owner-1")

	body := []byte(`{"image_id":"upload-1","geolocation":{"lat":1.0,"lon":2.0}}`)
	if err := processor.HandleMessage(ctx, body); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first, _ := repo.GetByID(ctx, "upload-1")

	redelivered := []byte(`{"image_id":"upload-1","geolocation":{"lat":50.0,"lon":60.0}}`)
	if err := processor.HandleMessage(ctx, redelivered); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	second, _ := repo.GetByID(ctx, "upload-1")
	if string(second.Result) != string(first.Result) {
		t.Fatalf("redelivery must not corrupt the result: %s", second.Result)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("redelivery must not touch updated_at")
	}
	if len(recorder.notifications) != 1 || len(recorder.events) != 1 {
		t.Fatalf("redelivery must not fan out again: %d notifications %d events",
			len(recorder.notifications), len(recorder.events))
	}
}

func TestHandleMessageErrorResultFailsUpload(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUploadsRepository()
	recorder := &fanoutRecorder{}
	processor := newProcessor(repo, recorder)
	seedProcessing(t, repo, "upload-1", "owner-1")

	body := []byte(`{"image_id":"upload-1","error":"no exif data"}`)
	if err := processor.HandleMessage(ctx, body); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	stored, _ := repo.GetByID(ctx, "upload-1")
	if stored.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.ErrorMessage != "no exif data" {
		t.Fatalf("unexpected error message: %q", stored.ErrorMessage)
	}
	if len(stored.Result) != 0 {
		t.Fatalf("failed uploads must not store a result, got %s", stored.Result)
	}
	if _, _, ok := stored.Geolocation(); ok {
		t.Fatalf("failed uploads must not derive a geolocation")
	}
	if len(recorder.notifications) != 1 || recorder.notifications[0].Color != "red" {
		t.Fatalf("failure must notify with the failure presentation")
	}
}

func TestHandleMessageNotificationFailureIsContained(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUploadsRepository()
	recorder := &fanoutRecorder{sinkErr: errors.New("sink down")}
	processor := newProcessor(repo, recorder)
	seedProcessing(t, repo, "upload-1", "owner-1")

	body := []byte(`{"image_id":"upload-1","geolocation":{"lat":1.0,"lon":2.0}}`)
	if err := processor.HandleMessage(ctx, body); err != nil {
		t.Fatalf("notification failure must not fail the message: %v", err)
	}

	stored, _ := repo.GetByID(ctx, "upload-1")
	if stored.Status != domain.StatusSuccess {
		t.Fatalf("state must be applied despite the sink failure, got %s", stored.Status)
	}
	if len(recorder.events) != 1 {
		t.Fatalf("broadcast must still go out when the sink fails, got %d", len(recorder.events))
	}
}
