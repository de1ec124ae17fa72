package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresUsersRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUsersRepository(pool *pgxpool.Pool) *PostgresUsersRepository {
	return &PostgresUsersRepository{pool: pool}
}

func (r *PostgresUsersRepository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PostgresUsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email))
}

func (r *PostgresUsersRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM users
		WHERE id = $1
	`, id))
}

func (r *PostgresUsersRepository) CreateToken(ctx context.Context, userID, tokenHash string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_tokens (token_hash, user_id, created_at)
		VALUES ($1,$2,$3)
	`, tokenHash, userID, at)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *PostgresUsersRepository) GetUserByTokenHash(ctx context.Context, tokenHash string) (*domain.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, `
		SELECT u.id, u.email, u.name, u.password_hash, u.created_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1
	`, tokenHash))
}

func (r *PostgresUsersRepository) DeleteToken(ctx context.Context, tokenHash string) error {
	command, err := r.pool.Exec(ctx, `DELETE FROM api_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUsersRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}
