package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/geopix/geopix-back/internal/domain"
)

func TestUploadProcessedBuildsSuccessNotification(t *testing.T) {
	var sent Notification
	dispatcher := NewDispatcher(SinkFunc(func(_ context.Context, notification Notification) error {
		sent = notification
		return nil
	}), "https://app.example.com/")

	upload := &domain.ImageUpload{
		ID:      "upload-1",
		OwnerID: "owner-1",
		Status:  domain.StatusSuccess,
		Result:  json.RawMessage(`{"geolocation":{"lat":1,"lon":2}}`),
	}
	if err := dispatcher.UploadProcessed(context.Background(), upload); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if sent.OwnerID != "owner-1" {
		t.Fatalf("notification must be addressed to the owner, got %s", sent.OwnerID)
	}
	if !strings.Contains(sent.Message, "upload-1") {
		t.Fatalf("message must reference the upload id: %q", sent.Message)
	}
	if sent.ActionURL != "https://app.example.com/image-upload/upload-1" {
		t.Fatalf("unexpected action url: %s", sent.ActionURL)
	}
	if sent.Color != "green" || sent.ActionLabel != "View result" {
		t.Fatalf("unexpected presentation fields: %+v", sent)
	}
}

func TestUploadProcessedBuildsFailureNotification(t *testing.T) {
	var sent Notification
	dispatcher := NewDispatcher(SinkFunc(func(_ context.Context, notification Notification) error {
		sent = notification
		return nil
	}), "https://app.example.com")

	upload := &domain.ImageUpload{
		ID:           "upload-2",
		OwnerID:      "owner-1",
		Status:       domain.StatusFailed,
		ErrorMessage: "no exif data",
	}
	if err := dispatcher.UploadProcessed(context.Background(), upload); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if sent.Color != "red" {
		t.Fatalf("failure notifications must be red, got %s", sent.Color)
	}
	if !strings.Contains(sent.Message, "failed") {
		t.Fatalf("unexpected failure message: %q", sent.Message)
	}
}
