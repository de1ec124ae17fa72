package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
)

// Notification is the user-facing content delivered when an upload reaches a
// terminal state. Addressing is by owner id; the sink decides the medium.
type Notification struct {
	OwnerID     string    `json:"owner_id"`
	Message     string    `json:"message"`
	ActionLabel string    `json:"action_label,omitempty"`
	ActionURL   string    `json:"action_url,omitempty"`
	Color       string    `json:"color"`
	Icon        string    `json:"icon"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sink is a destination capable of delivering notifications.
type Sink interface {
	Send(ctx context.Context, notification Notification) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, notification Notification) error

func (f SinkFunc) Send(ctx context.Context, notification Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, notification)
}

// Dispatcher builds notification content for processed uploads and hands it
// to the injected sink.
type Dispatcher struct {
	sink          Sink
	detailBaseURL string
}

func NewDispatcher(sink Sink, detailBaseURL string) *Dispatcher {
	return &Dispatcher{
		sink:          sink,
		detailBaseURL: strings.TrimRight(detailBaseURL, "/"),
	}
}

// UploadProcessed notifies the owner that a result arrived for their upload.
func (d *Dispatcher) UploadProcessed(ctx context.Context, upload *domain.ImageUpload) error {
	notification := Notification{
		OwnerID:     upload.OwnerID,
		Message:     fmt.Sprintf("Result for image %s is ready", upload.ID),
		ActionLabel: "View result",
		ActionURL:   d.detailBaseURL + "/image-upload/" + upload.ID,
		Color:       "green",
		Icon:        "information-circle",
		CreatedAt:   time.Now().UTC(),
	}
	if upload.Status == domain.StatusFailed {
		notification.Message = fmt.Sprintf("Processing of image %s failed", upload.ID)
		notification.Color = "red"
		notification.Icon = "exclamation-circle"
	}
	return d.sink.Send(ctx, notification)
}
