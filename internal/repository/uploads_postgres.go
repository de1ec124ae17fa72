package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresUploadsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUploadsRepository(pool *pgxpool.Pool) *PostgresUploadsRepository {
	return &PostgresUploadsRepository{pool: pool}
}

// NewPool connects and pings a pgx pool shared by the repositories.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return pool, nil
}

const uploadColumns = `id, owner_id, title, description, source, event, status,
	metadata, result, error_message, image_url, created_at, updated_at, deleted_at`

func (r *PostgresUploadsRepository) Create(ctx context.Context, upload *domain.ImageUpload) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO image_uploads (
			id,
			owner_id,
			title,
			description,
			source,
			event,
			status,
			metadata,
			result,
			error_message,
			image_url,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		upload.ID,
		upload.OwnerID,
		upload.Title,
		upload.Description,
		string(upload.Source),
		string(upload.Event),
		string(upload.Status),
		upload.Metadata,
		upload.Result,
		upload.ErrorMessage,
		upload.ImageURL,
		upload.CreatedAt,
		upload.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (r *PostgresUploadsRepository) GetByID(ctx context.Context, id string) (*domain.ImageUpload, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+uploadColumns+`
		FROM image_uploads
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanUpload(row)
}

func (r *PostgresUploadsRepository) GetOwned(ctx context.Context, ownerID, id string) (*domain.ImageUpload, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+uploadColumns+`
		FROM image_uploads
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
	`, id, ownerID)
	return scanUpload(row)
}

func (r *PostgresUploadsRepository) FindRecentDuplicate(
	ctx context.Context,
	key domain.DuplicateKey,
	since time.Time,
) (*domain.ImageUpload, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+uploadColumns+`
		FROM image_uploads
		WHERE owner_id = $1
			AND title = $2
			AND description = $3
			AND event = $4
			AND source = $5
			AND created_at >= $6
			AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, key.OwnerID, key.Title, key.Description, string(key.Event), string(key.Source), since)
	return scanUpload(row)
}

// Finalize performs the terminal transition as a single conditional update.
// A concurrent or redelivered result finds zero rows still in processing and
// reports ErrAlreadyFinalized instead of overwriting the stored result.
func (r *PostgresUploadsRepository) Finalize(
	ctx context.Context,
	id string,
	status domain.Status,
	result []byte,
	errorMessage string,
	at time.Time,
) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE image_uploads
		SET status = $2,
			result = $3,
			error_message = $4,
			updated_at = $5
		WHERE id = $1 AND status = 'processing' AND deleted_at IS NULL
	`, id, string(status), result, errorMessage, at)
	if err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	if command.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyFinalized
}

func (r *PostgresUploadsRepository) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE image_uploads
		SET deleted_at = $3, updated_at = $3
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
	`, id, ownerID, at)
	if err != nil {
		return fmt.Errorf("soft delete upload: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUploadsRepository) ListStaleProcessing(
	ctx context.Context,
	before time.Time,
	limit int,
) ([]*domain.ImageUpload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+uploadColumns+`
		FROM image_uploads
		WHERE status = 'processing' AND created_at < $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale uploads: %w", err)
	}
	defer rows.Close()
	return collectUploads(rows)
}

func (r *PostgresUploadsRepository) List(
	ctx context.Context,
	filter domain.UploadListFilter,
) ([]*domain.ImageUpload, string, error) {
	limit := normalizeLimit(filter.Limit)
	ascending := filter.Sort == "created_at"

	cursorAt, cursorID, err := DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, "", err
	}

	where, args := buildUploadFilters(filter)
	argIndex := len(args) + 1

	if !cursorAt.IsZero() {
		comparator := "<"
		if ascending {
			comparator = ">"
		}
		where += fmt.Sprintf(" AND (created_at, id) %s ($%d, $%d)", comparator, argIndex, argIndex+1)
		args = append(args, cursorAt, cursorID)
		argIndex += 2
	}

	direction := "DESC"
	if ascending {
		direction = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM image_uploads
		%s
		ORDER BY created_at %s, id %s
		LIMIT $%d
	`, uploadColumns, where, direction, direction, argIndex)
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	uploads, err := collectUploads(rows)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(uploads) > limit {
		uploads = uploads[:limit]
		last := uploads[len(uploads)-1]
		next = EncodeCursor(last.CreatedAt, last.ID)
	}
	return uploads, next, nil
}

func buildUploadFilters(filter domain.UploadListFilter) (string, []any) {
	query := strings.Builder{}
	query.WriteString("WHERE deleted_at IS NULL")

	args := make([]any, 0, 8)
	argIndex := 1
	add := func(clause string, value any) {
		query.WriteString(fmt.Sprintf(" AND "+clause, argIndex))
		args = append(args, value)
		argIndex++
	}

	if filter.OwnerID != "" {
		add("owner_id = $%d", filter.OwnerID)
	}
	if filter.ID != "" {
		add("id = $%d", filter.ID)
	}
	if title := strings.TrimSpace(filter.Title); title != "" {
		add("title ILIKE '%%' || $%d || '%%'", title)
	}
	if description := strings.TrimSpace(filter.Description); description != "" {
		add("description ILIKE '%%' || $%d || '%%'", description)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Event != "" {
		add("event = $%d", string(filter.Event))
	}
	if filter.CreatedAt != nil {
		add("created_at = $%d", *filter.CreatedAt)
	}
	if filter.CreatedAtFrom != nil {
		add("created_at >= $%d", *filter.CreatedAtFrom)
	}
	if filter.CreatedAtTo != nil {
		add("created_at <= $%d", *filter.CreatedAtTo)
	}

	return query.String(), args
}

func scanUpload(row pgx.Row) (*domain.ImageUpload, error) {
	var (
		upload    domain.ImageUpload
		source    string
		event     string
		status    string
		metadata  []byte
		result    []byte
		deletedAt *time.Time
	)

	err := row.Scan(
		&upload.ID,
		&upload.OwnerID,
		&upload.Title,
		&upload.Description,
		&source,
		&event,
		&status,
		&metadata,
		&result,
		&upload.ErrorMessage,
		&upload.ImageURL,
		&upload.CreatedAt,
		&upload.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan upload: %w", err)
	}

	upload.Source = domain.Source(source)
	upload.Event = domain.Event(event)
	upload.Status = domain.Status(status)
	upload.Metadata = json.RawMessage(metadata)
	upload.Result = json.RawMessage(result)
	upload.DeletedAt = deletedAt
	return &upload, nil
}

func collectUploads(rows pgx.Rows) ([]*domain.ImageUpload, error) {
	uploads := make([]*domain.ImageUpload, 0)
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate uploads: %w", rows.Err())
	}
	return uploads, nil
}
