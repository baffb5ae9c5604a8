// Package redis implements the usage cache and token store on Redis.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/config"
)

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("connected to Redis")

	return client, nil
}

// EnableExpiredEvents makes sure the server publishes expired-key events.
// Existing notification flags are preserved.
func EnableExpiredEvents(ctx context.Context, client *redis.Client) error {
	current, err := client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		return fmt.Errorf("failed to read notify-keyspace-events: %w", err)
	}

	flags := mergeNotifyFlags(current["notify-keyspace-events"])
	if flags == current["notify-keyspace-events"] {
		return nil
	}

	if err := client.ConfigSet(ctx, "notify-keyspace-events", flags).Err(); err != nil {
		return fmt.Errorf("failed to set notify-keyspace-events: %w", err)
	}
	return nil
}

// mergeNotifyFlags adds keyevent (E) and expired (x) to a flag set.
// 'A' already covers 'x'.
func mergeNotifyFlags(current string) string {
	flags := current
	if !strings.ContainsRune(flags, 'E') {
		flags += "E"
	}
	if !strings.ContainsRune(flags, 'x') && !strings.ContainsRune(flags, 'A') {
		flags += "x"
	}
	return flags
}

// expiredChannel returns the keyevent channel for expirations in db.
func expiredChannel(db int) string {
	return fmt.Sprintf("__keyevent@%d__:expired", db)
}
