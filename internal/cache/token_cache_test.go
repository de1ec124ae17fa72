package cache

import (
	"testing"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
)

func TestTokenCacheRoundTrip(t *testing.T) {
	tokenCache := NewTokenCache(Config{TTL: time.Minute, MaxEntries: 10})

	if _, ok := tokenCache.Get("missing"); ok {
		t.Fatalf("expected miss for unknown token")
	}

	user := &domain.User{ID: "user-1", Email: "user@example.com"}
	tokenCache.Set("hash-1", user)

	cached, ok := tokenCache.Get("hash-1")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if cached.ID != "user-1" {
		t.Fatalf("unexpected cached user: %s", cached.ID)
	}

	// The cache hands out copies, not shared pointers.
	cached.Email = "mutated@example.com"
	again, _ := tokenCache.Get("hash-1")
	if again.Email != "user@example.com" {
		t.Fatalf("cached user must not be mutable through the returned pointer")
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	tokenCache := NewTokenCache(Config{TTL: time.Minute, MaxEntries: 10})
	tokenCache.Set("hash-1", &domain.User{ID: "user-1"})

	tokenCache.Invalidate("hash-1")
	if _, ok := tokenCache.Get("hash-1"); ok {
		t.Fatalf("expected miss after invalidation")
	}
}

func TestTokenCacheExpiry(t *testing.T) {
	tokenCache := NewTokenCache(Config{TTL: 10 * time.Millisecond, MaxEntries: 10})
	tokenCache.Set("hash-1", &domain.User{ID: "user-1"})

	time.Sleep(20 * time.Millisecond)
	if _, ok := tokenCache.Get("hash-1"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestTokenCacheEvictsOldestWhenFull(t *testing.T) {
	tokenCache := NewTokenCache(Config{TTL: time.Minute, MaxEntries: 2})
	tokenCache.Set("hash-1", &domain.User{ID: "user-1"})
	time.Sleep(time.Millisecond)
	tokenCache.Set("hash-2", &domain.User{ID: "user-2"})
	time.Sleep(time.Millisecond)
	tokenCache.Set("hash-3", &domain.User{ID: "user-3"})

	if _, ok := tokenCache.Get("hash-1"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if _, ok := tokenCache.Get("hash-3"); !ok {
		t.Fatalf("expected newest entry to survive")
	}
}
