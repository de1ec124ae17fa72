package repository

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
)

var (
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicate signals the duplicate-submission guard tripped.
	ErrDuplicate = errors.New("duplicate upload")

	// ErrAlreadyFinalized signals a terminal-state transition was attempted
	// on a record that already reached success or failed.
	ErrAlreadyFinalized = errors.New("upload already finalized")
)

// UploadsRepository abstracts persistence for image upload records.
//
// Finalize applies the terminal transition conditionally: only a record still
// in processing state is updated, which makes concurrent duplicate result
// deliveries safe without locking.
type UploadsRepository interface {
	Create(ctx context.Context, upload *domain.ImageUpload) error
	GetByID(ctx context.Context, id string) (*domain.ImageUpload, error)
	GetOwned(ctx context.Context, ownerID, id string) (*domain.ImageUpload, error)
	List(ctx context.Context, filter domain.UploadListFilter) ([]*domain.ImageUpload, string, error)
	FindRecentDuplicate(ctx context.Context, key domain.DuplicateKey, since time.Time) (*domain.ImageUpload, error)
	Finalize(ctx context.Context, id string, status domain.Status, result []byte, errorMessage string, at time.Time) error
	SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error
	ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*domain.ImageUpload, error)
}

// MemoryUploadsRepository stores uploads in memory for local development
// and tests.
type MemoryUploadsRepository struct {
	mu      sync.RWMutex
	uploads map[string]*domain.ImageUpload
}

func NewMemoryUploadsRepository() *MemoryUploadsRepository {
	return &MemoryUploadsRepository{
		uploads: make(map[string]*domain.ImageUpload),
	}
}

func (r *MemoryUploadsRepository) Create(_ context.Context, upload *domain.ImageUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := upload.DuplicateKey()
	for _, existing := range r.uploads {
		if existing.DeletedAt != nil || existing.Status != domain.StatusProcessing {
			continue
		}
		if existing.DuplicateKey() == key {
			return ErrDuplicate
		}
	}

	r.uploads[upload.ID] = cloneUpload(upload)
	return nil
}

func (r *MemoryUploadsRepository) GetByID(_ context.Context, id string) (*domain.ImageUpload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	upload, ok := r.uploads[id]
	if !ok || upload.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return cloneUpload(upload), nil
}

func (r *MemoryUploadsRepository) GetOwned(ctx context.Context, ownerID, id string) (*domain.ImageUpload, error) {
	upload, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upload.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return upload, nil
}

func (r *MemoryUploadsRepository) FindRecentDuplicate(
	_ context.Context,
	key domain.DuplicateKey,
	since time.Time,
) (*domain.ImageUpload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, upload := range r.uploads {
		if upload.DeletedAt != nil {
			continue
		}
		if upload.DuplicateKey() != key {
			continue
		}
		if upload.CreatedAt.Before(since) {
			continue
		}
		return cloneUpload(upload), nil
	}
	return nil, ErrNotFound
}

func (r *MemoryUploadsRepository) Finalize(
	_ context.Context,
	id string,
	status domain.Status,
	result []byte,
	errorMessage string,
	at time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	upload, ok := r.uploads[id]
	if !ok || upload.DeletedAt != nil {
		return ErrNotFound
	}
	if upload.Status != domain.StatusProcessing {
		return ErrAlreadyFinalized
	}

	upload.Status = status
	upload.Result = append([]byte(nil), result...)
	upload.ErrorMessage = errorMessage
	upload.UpdatedAt = at
	return nil
}

func (r *MemoryUploadsRepository) SoftDelete(_ context.Context, ownerID, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	upload, ok := r.uploads[id]
	if !ok || upload.DeletedAt != nil || upload.OwnerID != ownerID {
		return ErrNotFound
	}
	deletedAt := at
	upload.DeletedAt = &deletedAt
	upload.UpdatedAt = at
	return nil
}

func (r *MemoryUploadsRepository) ListStaleProcessing(
	_ context.Context,
	before time.Time,
	limit int,
) ([]*domain.ImageUpload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stale := make([]*domain.ImageUpload, 0)
	for _, upload := range r.uploads {
		if upload.DeletedAt != nil || upload.Status != domain.StatusProcessing {
			continue
		}
		if !upload.CreatedAt.Before(before) {
			continue
		}
		stale = append(stale, cloneUpload(upload))
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (r *MemoryUploadsRepository) List(
	_ context.Context,
	filter domain.UploadListFilter,
) ([]*domain.ImageUpload, string, error) {
	limit := normalizeLimit(filter.Limit)
	ascending := filter.Sort == "created_at"

	cursorAt, cursorID, err := DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, "", err
	}

	r.mu.RLock()
	matched := make([]*domain.ImageUpload, 0)
	for _, upload := range r.uploads {
		if upload.DeletedAt != nil {
			continue
		}
		if !matchesFilter(upload, filter) {
			continue
		}
		matched = append(matched, cloneUpload(upload))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			if ascending {
				return matched[i].ID < matched[j].ID
			}
			return matched[i].ID > matched[j].ID
		}
		if ascending {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if !cursorAt.IsZero() {
		cut := 0
		for index, upload := range matched {
			if afterCursor(upload, cursorAt, cursorID, ascending) {
				cut = index
				break
			}
			cut = index + 1
		}
		matched = matched[cut:]
	}

	next := ""
	if len(matched) > limit {
		matched = matched[:limit]
		last := matched[len(matched)-1]
		next = EncodeCursor(last.CreatedAt, last.ID)
	}
	return matched, next, nil
}

func matchesFilter(upload *domain.ImageUpload, filter domain.UploadListFilter) bool {
	if filter.OwnerID != "" && upload.OwnerID != filter.OwnerID {
		return false
	}
	if filter.ID != "" && upload.ID != filter.ID {
		return false
	}
	if filter.Title != "" && !strings.Contains(strings.ToLower(upload.Title), strings.ToLower(filter.Title)) {
		return false
	}
	if filter.Description != "" &&
		!strings.Contains(strings.ToLower(upload.Description), strings.ToLower(filter.Description)) {
		return false
	}
	if filter.Status != "" && upload.Status != filter.Status {
		return false
	}
	if filter.Event != "" && upload.Event != filter.Event {
		return false
	}
	if filter.CreatedAt != nil && !upload.CreatedAt.Equal(*filter.CreatedAt) {
		return false
	}
	if filter.CreatedAtFrom != nil && upload.CreatedAt.Before(*filter.CreatedAtFrom) {
		return false
	}
	if filter.CreatedAtTo != nil && upload.CreatedAt.After(*filter.CreatedAtTo) {
		return false
	}
	return true
}

func afterCursor(upload *domain.ImageUpload, cursorAt time.Time, cursorID string, ascending bool) bool {
	if upload.CreatedAt.Equal(cursorAt) {
		if ascending {
			return upload.ID > cursorID
		}
		return upload.ID < cursorID
	}
	if ascending {
		return upload.CreatedAt.After(cursorAt)
	}
	return upload.CreatedAt.Before(cursorAt)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// EncodeCursor packs the keyset position of the last returned row.
func EncodeCursor(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UTC().UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor reverses EncodeCursor; an empty cursor decodes to zero values.
func DecodeCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode cursor: %w", err)
	}
	position, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("decode cursor: malformed position")
	}
	nanos, err := strconv.ParseInt(position, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode cursor: %w", err)
	}
	return time.Unix(0, nanos).UTC(), id, nil
}

func cloneUpload(upload *domain.ImageUpload) *domain.ImageUpload {
	if upload == nil {
		return nil
	}
	clone := *upload
	clone.Metadata = append([]byte(nil), upload.Metadata...)
	clone.Result = append([]byte(nil), upload.Result...)
	if upload.DeletedAt != nil {
		deletedAt := *upload.DeletedAt
		clone.DeletedAt = &deletedAt
	}
	return &clone
}
