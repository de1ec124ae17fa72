package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
	"github.com/geopix/geopix-back/internal/media"
	"github.com/geopix/geopix-back/internal/queue"
	"github.com/geopix/geopix-back/internal/repository"
	"github.com/google/uuid"
)

// DuplicateError carries the existing record the duplicate guard matched, so
// callers can surface it with the conflict.
type DuplicateError struct {
	Existing *domain.ImageUpload
}

func (e *DuplicateError) Error() string {
	return "a similar image was submitted recently and is still processing"
}

// UploadsService owns the submission path: duplicate guard, record creation,
// blob storage and the task publish.
type UploadsService struct {
	repo            repository.UploadsRepository
	producer        queue.Producer
	media           media.Store
	logger          *log.Logger
	duplicateWindow time.Duration
}

func NewUploadsService(
	repo repository.UploadsRepository,
	producer queue.Producer,
	mediaStore media.Store,
	logger *log.Logger,
	duplicateWindow time.Duration,
) *UploadsService {
	if duplicateWindow <= 0 {
		duplicateWindow = 5 * time.Minute
	}
	return &UploadsService{
		repo:            repo,
		producer:        producer,
		media:           mediaStore,
		logger:          logger,
		duplicateWindow: duplicateWindow,
	}
}

type SubmitInput struct {
	OwnerID     string
	Title       string
	Description string
	Event       domain.Event
	Source      domain.Source
	Metadata    json.RawMessage
	Image       []byte
}

// Submit runs the duplicate guard, persists the record and publishes the
// task. The publish is fire-and-forget: a failed enqueue is logged and the
// record stays processing for the reconciler to pick up.
func (s *UploadsService) Submit(ctx context.Context, input SubmitInput) (*domain.ImageUpload, error) {
	if input.Event == "" {
		input.Event = domain.EventGetCoordinate
	}
	if input.Source == "" {
		input.Source = domain.SourceAPI
	}

	now := time.Now().UTC()
	upload := &domain.ImageUpload{
		ID:          uuid.NewString(),
		OwnerID:     input.OwnerID,
		Title:       input.Title,
		Description: input.Description,
		Source:      input.Source,
		Event:       input.Event,
		Status:      domain.StatusProcessing,
		Metadata:    input.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := s.repo.FindRecentDuplicate(ctx, upload.DuplicateKey(), now.Add(-s.duplicateWindow))
	if err == nil {
		return nil, &DuplicateError{Existing: existing}
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	if len(input.Image) > 0 {
		url, err := s.media.Save(ctx, upload.ID, input.Image)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		upload.ImageURL = url
	}

	if err := s.repo.Create(ctx, upload); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost against an identical submission: either a concurrent one or
			// a stuck processing record older than the window (the in-flight
			// constraint has no time bound). Look up without the window so the
			// caller gets the conflicting record either way.
			if existing, findErr := s.repo.FindRecentDuplicate(
				ctx, upload.DuplicateKey(), time.Time{},
			); findErr == nil {
				return nil, &DuplicateError{Existing: existing}
			}
		}
		return nil, fmt.Errorf("create upload: %w", err)
	}

	task := domain.TaskMessage{
		ImageID:  upload.ID,
		ImageURL: upload.ImageURL,
		Metadata: upload.Metadata,
	}
	if err := s.producer.EnqueueTask(ctx, task); err != nil && s.logger != nil {
		s.logger.Printf("task publish failed image_id=%s err=%v", upload.ID, err)
	}

	return upload, nil
}

func (s *UploadsService) Get(ctx context.Context, ownerID, id string) (*domain.ImageUpload, error) {
	return s.repo.GetOwned(ctx, ownerID, id)
}

func (s *UploadsService) List(
	ctx context.Context,
	filter domain.UploadListFilter,
) ([]*domain.ImageUpload, string, error) {
	return s.repo.List(ctx, filter)
}

func (s *UploadsService) Delete(ctx context.Context, ownerID, id string) error {
	return s.repo.SoftDelete(ctx, ownerID, id, time.Now().UTC())
}
