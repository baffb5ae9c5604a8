package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/vehix/vehix-api/internal/cache"
)

// TokenStore implements cache.TokenStore on go-cache.
type TokenStore struct {
	items *gocache.Cache
}

// NewTokenStore creates an in-memory token store.
func NewTokenStore(cleanupInterval time.Duration) *TokenStore {
	return &TokenStore{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Set stores value under key for ttl. A non-positive ttl never expires.
func (s *TokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.items.Set(key, value, ttl)
	return nil
}

// Get returns the value stored under key.
func (s *TokenStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v.(string), nil
}

// Delete removes key.
func (s *TokenStore) Delete(ctx context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

// Exists checks if key is present.
func (s *TokenStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.items.Get(key)
	return ok, nil
}

var _ cache.TokenStore = (*TokenStore)(nil)
