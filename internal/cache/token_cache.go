package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
)

type entry struct {
	user      domain.User
	createdAt time.Time
	expiresAt time.Time
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// TokenCache keeps recently resolved bearer tokens in memory so the hot
// request path does not hit the user store on every call. Entries expire
// after a short TTL so revoked tokens stop working promptly.
type TokenCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
}

func NewTokenCache(config Config) *TokenCache {
	if config.TTL <= 0 {
		config.TTL = time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 2000
	}
	return &TokenCache{
		entries:    make(map[string]entry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
	}
}

func (c *TokenCache) Get(tokenHash string) (*domain.User, bool) {
	c.mu.RLock()
	cached, exists := c.entries[tokenHash]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Now().UTC().After(cached.expiresAt) {
		c.mu.Lock()
		delete(c.entries, tokenHash)
		c.mu.Unlock()
		return nil, false
	}
	user := cached.user
	return &user, true
}

func (c *TokenCache) Set(tokenHash string, user *domain.User) {
	if user == nil {
		return
	}
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[tokenHash] = entry{
		user:      *user,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

// Invalidate drops one token, used on logout so revocation is immediate.
func (c *TokenCache) Invalidate(tokenHash string) {
	c.mu.Lock()
	delete(c.entries, tokenHash)
	c.mu.Unlock()
}

func (c *TokenCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		value entry
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, value := range c.entries {
		pairs = append(pairs, pair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value.createdAt.Before(pairs[j].value.createdAt)
	})
	delete(c.entries, pairs[0].key)
}
