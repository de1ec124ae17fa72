package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
	"github.com/geopix/geopix-back/internal/repository"
	"github.com/google/uuid"
)

func seedUser(t *testing.T, users repository.UsersRepository, email, password string) *domain.User {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryUsersRepository()
	service := NewService(users)
	seeded := seedUser(t, users, "user@example.com", "secret123")

	token, user, err := service.Login(ctx, "user@example.com", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a token")
	}
	if user.ID != seeded.ID {
		t.Fatalf("unexpected user: %s", user.ID)
	}

	resolved, err := service.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != seeded.ID {
		t.Fatalf("token resolved to wrong user: %s", resolved.ID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryUsersRepository()
	service := NewService(users)
	seedUser(t, users, "user@example.com", "secret123")

	if _, _, err := service.Login(ctx, "user@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := service.Login(ctx, "nobody@example.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryUsersRepository()
	service := NewService(users)
	seedUser(t, users, "user@example.com", "secret123")

	token, _, err := service.Login(ctx, "user@example.com", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := service.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := service.Resolve(ctx, token); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("revoked token must not resolve, got %v", err)
	}

	// Logging out an already revoked token is a no-op.
	if err := service.Logout(ctx, token); err != nil {
		t.Fatalf("second logout must not fail: %v", err)
	}
}
