package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker with a process-local map.
// Expired entries are dropped lazily on the next call for the same key.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

// NewMemoryLocker creates a new in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Acquire attempts to acquire a lock.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiresAt, ok := m.locks[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

// Release releases a lock.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.locks[key]
	delete(m.locks, key)
	return ok && m.now().Before(expiresAt), nil
}

// Extend extends the TTL of a held lock.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expiresAt, ok := m.locks[key]
	if !ok || !now.Before(expiresAt) {
		delete(m.locks, key)
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

var _ Locker = (*MemoryLocker)(nil)
