package worker

import (
	"context"
	"log"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
	"github.com/geopix/geopix-back/internal/queue"
	"github.com/geopix/geopix-back/internal/repository"
)

// Reconciler sweeps for uploads stuck in processing, typically because the
// original task publish failed silently, and republishes their tasks.
type Reconciler struct {
	repo      repository.UploadsRepository
	producer  queue.Producer
	logger    *log.Logger
	interval  time.Duration
	threshold time.Duration
	batch     int
}

func NewReconciler(
	repo repository.UploadsRepository,
	producer queue.Producer,
	logger *log.Logger,
	interval, threshold time.Duration,
	batch int,
) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &Reconciler{
		repo:      repo,
		producer:  producer,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
		batch:     batch,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep republishes the task for every stale processing upload, oldest
// first, bounded by the batch size.
func (r *Reconciler) Sweep(ctx context.Context) {
	stale, err := r.repo.ListStaleProcessing(ctx, time.Now().UTC().Add(-r.threshold), r.batch)
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("stale sweep failed err=%v", err)
		}
		return
	}

	republished := 0
	for _, upload := range stale {
		task := domain.TaskMessage{
			ImageID:  upload.ID,
			ImageURL: upload.ImageURL,
			Metadata: upload.Metadata,
		}
		if err := r.producer.EnqueueTask(ctx, task); err != nil {
			if r.logger != nil {
				r.logger.Printf("task republish failed image_id=%s err=%v", upload.ID, err)
			}
			continue
		}
		republished++
	}

	if republished > 0 && r.logger != nil {
		r.logger.Printf("stale sweep republished=%d scanned=%d", republished, len(stale))
	}
}
