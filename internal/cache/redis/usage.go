package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/cache"
)

// checkAndIncrementScript increments UsageCount when the hash exists.
// KEYS[1] = usage hash
// ARGV[1] = expected UserId, empty to skip the check
var checkAndIncrementScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	if ARGV[1] ~= '' then
		local owner = redis.call('HGET', KEYS[1], 'UserId')
		if owner ~= ARGV[1] then
			return 0
		end
	end
	redis.call('HINCRBY', KEYS[1], 'UsageCount', 1)
	return 1
`)

// recordResponseScript sets LastResponse only on a live hash, so a late
// write cannot recreate a hash without a TTL.
// KEYS[1] = usage hash
// ARGV[1] = status code
var recordResponseScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		redis.call('HSET', KEYS[1], 'LastResponse', ARGV[1])
		return 1
	end
	return 0
`)

// UsageCache implements cache.UsageCache and cache.ExpirationSource.
type UsageCache struct {
	client *redis.Client
	margin time.Duration
	logger zerolog.Logger
}

// NewUsageCache creates a Redis usage cache. margin is subtracted from the
// hash TTL to get the marker TTL.
func NewUsageCache(client *redis.Client, margin time.Duration, logger zerolog.Logger) *UsageCache {
	return &UsageCache{
		client: client,
		margin: margin,
		logger: logger.With().Str("component", "usage_cache").Logger(),
	}
}

// CheckAndIncrement implements cache.UsageCache.
func (c *UsageCache) CheckAndIncrement(ctx context.Context, external, expectedUserID string) (bool, error) {
	n, err := checkAndIncrementScript.Run(ctx, c.client, []string{cache.UsageKey(external)}, expectedUserID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to check usage cache: %w", err)
	}
	return n == 1, nil
}

// Prime implements cache.UsageCache.
func (c *UsageCache) Prime(ctx context.Context, external, userID string, ttl time.Duration) error {
	markerTTL, err := cache.MarkerTTL(ttl, c.margin)
	if err != nil {
		return err
	}

	key := cache.UsageKey(external)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			cache.FieldUserID, userID,
			cache.FieldUsageCount, 0,
			cache.FieldLastResponse, "",
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.Set(ctx, cache.MarkerKey(external), cache.MarkerValue, markerTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to prime usage cache: %w", err)
	}
	return nil
}

// RecordResponse implements cache.UsageCache.
func (c *UsageCache) RecordResponse(ctx context.Context, external string, status int) error {
	err := recordResponseScript.Run(ctx, c.client, []string{cache.UsageKey(external)}, strconv.Itoa(status)).Err()
	if err != nil {
		return fmt.Errorf("failed to record response: %w", err)
	}
	return nil
}

// Snapshot implements cache.UsageCache.
func (c *UsageCache) Snapshot(ctx context.Context, external string) (*cache.UsageSnapshot, error) {
	fields, err := c.client.HGetAll(ctx, cache.UsageKey(external)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage cache: %w", err)
	}
	if len(fields) == 0 {
		return nil, cache.ErrCacheMiss
	}

	snap := &cache.UsageSnapshot{
		UserID:       fields[cache.FieldUserID],
		LastResponse: fields[cache.FieldLastResponse],
	}
	if raw := fields[cache.FieldUsageCount]; raw != "" {
		snap.UsageCount, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid usage count %q: %w", raw, err)
		}
	}
	return snap, nil
}

// Delete implements cache.UsageCache.
func (c *UsageCache) Delete(ctx context.Context, external string) error {
	if err := c.client.Del(ctx, cache.UsageKey(external), cache.MarkerKey(external)).Err(); err != nil {
		return fmt.Errorf("failed to delete usage cache: %w", err)
	}
	return nil
}

// Expirations implements cache.ExpirationSource. It subscribes to expired
// keyevents of the client's database and forwards marker keys only.
func (c *UsageCache) Expirations(ctx context.Context) (<-chan string, error) {
	channel := expiredChannel(c.client.Options().DB)
	pubsub := c.client.PSubscribe(ctx, channel)

	// Wait for the subscription confirmation so that no event published
	// after this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	c.logger.Info().Str("channel", channel).Msg("subscribed to expiration events")

	out := make(chan string)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Payload, cache.MarkerKeyPrefix) {
					continue
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var (
	_ cache.UsageCache       = (*UsageCache)(nil)
	_ cache.ExpirationSource = (*UsageCache)(nil)
)

// TokenStore implements cache.TokenStore.
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore creates a Redis token store.
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// Set stores value under key for ttl.
func (s *TokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *TokenStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", cache.ErrCacheMiss
		}
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return value, nil
}

// Delete removes key.
func (s *TokenStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Exists checks if key is present.
func (s *TokenStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return n > 0, nil
}

var _ cache.TokenStore = (*TokenStore)(nil)
