package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
)

// UsersRepository covers the auth collaborator boundary: user lookup plus
// bearer token persistence. Tokens are stored hashed; the raw value never
// touches the datastore.
type UsersRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	CreateToken(ctx context.Context, userID, tokenHash string, at time.Time) error
	GetUserByTokenHash(ctx context.Context, tokenHash string) (*domain.User, error)
	DeleteToken(ctx context.Context, tokenHash string) error
}

// MemoryUsersRepository backs auth in local development and tests.
type MemoryUsersRepository struct {
	mu     sync.RWMutex
	users  map[string]*domain.User
	tokens map[string]string
}

func NewMemoryUsersRepository() *MemoryUsersRepository {
	return &MemoryUsersRepository{
		users:  make(map[string]*domain.User),
		tokens: make(map[string]string),
	}
}

func (r *MemoryUsersRepository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicate
		}
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryUsersRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUsersRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *MemoryUsersRepository) CreateToken(_ context.Context, userID, tokenHash string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return ErrNotFound
	}
	r.tokens[tokenHash] = userID
	return nil
}

func (r *MemoryUsersRepository) GetUserByTokenHash(_ context.Context, tokenHash string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.tokens[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	user, ok := r.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *MemoryUsersRepository) DeleteToken(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[tokenHash]; !ok {
		return ErrNotFound
	}
	delete(r.tokens, tokenHash)
	return nil
}
