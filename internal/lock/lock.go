// Package lock provides mutual exclusion for one-off startup work that may
// race across server instances, such as the frontend key and admin bootstrap.
// A single instance uses MemoryLocker; several instances sharing a Redis
// server use RedisLocker.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned by WithLock when every attempt found the lock held.
var ErrNotAcquired = errors.New("lock is held by another owner")

// Locker acquires and releases named, self-expiring locks.
type Locker interface {
	// Acquire attempts to take the lock once.
	// Returns false if it is held by another owner.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release gives up a lock taken by this locker.
	// Returns false if this locker does not hold it.
	Release(ctx context.Context, key string) (bool, error)

	// Extend pushes back the expiry of a held lock.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Retry controls how WithLock waits for a held lock.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry waits up to roughly ten seconds.
var DefaultRetry = Retry{Attempts: 20, Delay: 500 * time.Millisecond}

// WithLock runs fn while holding key. The lock is released when fn returns,
// even if ctx was cancelled in the meantime.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, retry Retry, fn func(ctx context.Context) error) error {
	acquired := false
	for i := 0; i <= retry.Attempts; i++ {
		ok, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			acquired = true
			break
		}
		if i == retry.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.Delay):
		}
	}
	if !acquired {
		return ErrNotAcquired
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_, _ = l.Release(ctx, key)
	}()

	return fn(ctx)
}

// Keys names the locks used by the server.
var Keys = lockKeys{}

type lockKeys struct{}

// FrontendBootstrap guards the frontend key bootstrap for username.
func (lockKeys) FrontendBootstrap(username string) string {
	return "lock:bootstrap:frontend:" + username
}

// AdminBootstrap guards the administrator bootstrap for username.
func (lockKeys) AdminBootstrap(username string) string {
	return "lock:bootstrap:admin:" + username
}
