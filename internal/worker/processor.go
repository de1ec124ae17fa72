package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/geopix/geopix-back/internal/broadcast"
	"github.com/geopix/geopix-back/internal/domain"
	"github.com/geopix/geopix-back/internal/notify"
	"github.com/geopix/geopix-back/internal/queue"
	"github.com/geopix/geopix-back/internal/repository"
)

// EventImageProcessed is the real-time event name emitted on the owner's
// private channel after a result is applied.
const EventImageProcessed = "image.processed"

// Processor is the result consumer: it subscribes to the result topic,
// correlates each message back to its upload, applies the terminal state
// idempotently and fans out the notification plus the broadcast event.
//
// Every per-message failure is contained: the loop never stops because of a
// poisoned message, an unknown image_id or a downstream delivery error.
type Processor struct {
	consumer       queue.Consumer
	repo           repository.UploadsRepository
	dispatcher     *notify.Dispatcher
	broadcaster    broadcast.Broadcaster
	logger         *log.Logger
	messageTimeout time.Duration
}

func NewProcessor(
	consumer queue.Consumer,
	repo repository.UploadsRepository,
	dispatcher *notify.Dispatcher,
	broadcaster broadcast.Broadcaster,
	logger *log.Logger,
	messageTimeout time.Duration,
) *Processor {
	if messageTimeout <= 0 {
		messageTimeout = 30 * time.Second
	}
	return &Processor{
		consumer:       consumer,
		repo:           repo,
		dispatcher:     dispatcher,
		broadcaster:    broadcaster,
		logger:         logger,
		messageTimeout: messageTimeout,
	}
}

// Start runs the subscriber loop until the context is cancelled,
// reconnecting with exponential backoff when the transport errors.
func (p *Processor) Start(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.HandleMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("consumer loop error, reconnecting err=%v", err)
		}

		timer := time.NewTimer(policy.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// HandleMessage processes one raw result body through the per-message state
// machine: decode, resolve, apply, notify, broadcast. It always returns nil;
// redelivery is the transport's concern, not ours.
func (p *Processor) HandleMessage(ctx context.Context, body []byte) error {
	defer func() {
		if r := recover(); r != nil && p.logger != nil {
			p.logger.Printf("panic while processing result panic=%v body=%s", r, body)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.messageTimeout)
	defer cancel()

	var envelope domain.ResultEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		p.logf("discarding malformed result message err=%v body=%s", err, body)
		return nil
	}
	if envelope.ImageID == "" {
		p.logf("discarding result message without image_id body=%s", body)
		return nil
	}

	// A stored result means success; failures keep result nil and carry the
	// worker's error in error_message, with the raw body preserved in the log.
	status := domain.StatusSuccess
	result := body
	if envelope.Error != "" {
		status = domain.StatusFailed
		result = nil
		p.logf("result reported failure image_id=%s error=%q body=%s", envelope.ImageID, envelope.Error, body)
	}

	err := p.repo.Finalize(ctx, envelope.ImageID, status, result, envelope.Error, time.Now().UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Expected operational noise, e.g. the upload was deleted before the
		// worker finished.
		p.logf("upload not found for result image_id=%s", envelope.ImageID)
		return nil
	case errors.Is(err, repository.ErrAlreadyFinalized):
		p.logf("duplicate result ignored image_id=%s", envelope.ImageID)
		return nil
	case err != nil:
		p.logf("finalize failed image_id=%s err=%v body=%s", envelope.ImageID, err, body)
		return nil
	}

	upload, err := p.repo.GetByID(ctx, envelope.ImageID)
	if err != nil {
		p.logf("reload after finalize failed image_id=%s err=%v", envelope.ImageID, err)
		return nil
	}

	if err := p.dispatcher.UploadProcessed(ctx, upload); err != nil {
		p.logf("notification delivery failed image_id=%s err=%v", upload.ID, err)
	}

	event := broadcast.Event{
		Channel: broadcast.UploadChannel(upload.OwnerID),
		Name:    EventImageProcessed,
		Payload: upload.Public(),
	}
	if err := p.broadcaster.Broadcast(ctx, event); err != nil {
		p.logf("broadcast failed image_id=%s err=%v", upload.ID, err)
	}

	p.logf("result applied image_id=%s status=%s", upload.ID, upload.Status)
	return nil
}

func (p *Processor) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
