package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geopix/geopix-back/internal/cache"
	"github.com/geopix/geopix-back/internal/domain"
	"github.com/geopix/geopix-back/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service issues and resolves bearer tokens. Raw tokens are returned to the
// caller once; only their sha256 digest is persisted. Resolution goes through
// a short-lived cache so the store is not hit on every request.
type Service struct {
	users  repository.UsersRepository
	tokens *cache.TokenCache
}

func NewService(users repository.UsersRepository) *Service {
	return &Service{
		users:  users,
		tokens: cache.NewTokenCache(cache.Config{}),
	}
}

func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	email = strings.TrimSpace(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	if err := s.users.CreateToken(ctx, user.ID, HashToken(token), time.Now().UTC()); err != nil {
		return "", nil, fmt.Errorf("store token: %w", err)
	}
	return token, user, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	tokenHash := HashToken(token)
	s.tokens.Invalidate(tokenHash)
	err := s.users.DeleteToken(ctx, tokenHash)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Resolve maps a presented bearer token to its user.
func (s *Service) Resolve(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}
	tokenHash := HashToken(token)
	if user, ok := s.tokens.Get(tokenHash); ok {
		return user, nil
	}
	user, err := s.users.GetUserByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	s.tokens.Set(tokenHash, user)
	return user, nil
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// HashPassword wraps bcrypt for user seeding and registration paths.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
