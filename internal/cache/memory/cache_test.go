package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vehix/vehix-api/internal/cache"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache() (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newCache(5*time.Minute, zerolog.Nop())
	c.now = clock.Now
	return c, clock
}

func TestCache_PrimeAndIncrement(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	hit, err := c.CheckAndIncrement(ctx, "ext", "")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Prime(ctx, "ext", "user-1", 15*time.Minute))

	snap, err := c.Snapshot(ctx, "ext")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.UsageCount)
	assert.Equal(t, "", snap.LastResponse)

	for i := 0; i < 3; i++ {
		hit, err = c.CheckAndIncrement(ctx, "ext", "user-1")
		require.NoError(t, err)
		assert.True(t, hit)
	}

	hit, err = c.CheckAndIncrement(ctx, "ext", "user-2")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.RecordResponse(ctx, "ext", 201))

	snap, err = c.Snapshot(ctx, "ext")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.UsageCount)
	assert.Equal(t, "201", snap.LastResponse)
}

func TestCache_PrimeRejectsUnsatisfiableTTL(t *testing.T) {
	c, _ := newTestCache()

	err := c.Prime(context.Background(), "ext", "user-1", time.Minute)
	assert.ErrorIs(t, err, cache.ErrInvalidTTL)

	_, err = c.Snapshot(context.Background(), "ext")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestCache_RecordResponseOnMissingHash(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.RecordResponse(ctx, "ext", 200))
	_, err := c.Snapshot(ctx, "ext")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestCache_SweepEmitsMarkerBeforeHashExpires(t *testing.T) {
	c, clock := newTestCache()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Expirations(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Prime(ctx, "ext", "user-1", 15*time.Minute))
	_, err = c.CheckAndIncrement(ctx, "ext", "")
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	c.sweep()
	select {
	case <-events:
		t.Fatal("marker expired too early")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Minute)
	c.sweep()

	select {
	case marker := <-events:
		assert.Equal(t, "ApiKeyTTL:ext", marker)
	case <-time.After(2 * time.Second):
		t.Fatal("expected marker expiration")
	}

	// The hash is still readable when the marker event is delivered.
	snap, err := c.Snapshot(ctx, "ext")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.UsageCount)

	clock.Advance(5 * time.Minute)
	c.sweep()
	_, err = c.Snapshot(ctx, "ext")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestCache_SweepDeliversEveryMarkerInABurst(t *testing.T) {
	c, clock := newTestCache()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Expirations(ctx)
	require.NoError(t, err)

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, c.Prime(ctx, fmt.Sprintf("ext-%d", i), "user-1", 15*time.Minute))
	}

	// Nobody reads while the sweep runs.
	clock.Advance(10 * time.Minute)
	c.sweep()

	seen := make(map[string]bool, n)
	for len(seen) < n {
		select {
		case marker := <-events:
			seen[marker] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d markers", len(seen), n)
		}
	}
	for i := 0; i < n; i++ {
		assert.True(t, seen[cache.MarkerKey(fmt.Sprintf("ext-%d", i))])
	}

	// Every hash is still there for the consumer.
	_, err = c.Snapshot(ctx, "ext-0")
	require.NoError(t, err)
}

func TestCache_SweepFansOutToEverySubscriber(t *testing.T) {
	c, clock := newTestCache()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := c.Expirations(ctx)
	require.NoError(t, err)
	second, err := c.Expirations(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Prime(ctx, "ext", "user-1", 15*time.Minute))
	clock.Advance(10 * time.Minute)
	c.sweep()

	for _, events := range []<-chan string{first, second} {
		select {
		case marker := <-events:
			assert.Equal(t, "ApiKeyTTL:ext", marker)
		case <-time.After(2 * time.Second):
			t.Fatal("expected marker expiration")
		}
	}
}

func TestCache_ExpirationsClosedOnCancel(t *testing.T) {
	c, _ := newTestCache()
	ctx, cancel := context.WithCancel(context.Background())

	events, err := c.Expirations(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("expiration channel was not closed")
	}
}

func TestCache_ConcurrentIncrements(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()
	require.NoError(t, c.Prime(ctx, "ext", "user-1", 15*time.Minute))

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.CheckAndIncrement(ctx, "ext", "")
		}()
	}
	wg.Wait()

	snap, err := c.Snapshot(ctx, "ext")
	require.NoError(t, err)
	assert.Equal(t, int64(n), snap.UsageCount)
}

func TestCache_Delete(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Prime(ctx, "ext", "user-1", 15*time.Minute))
	require.NoError(t, c.Delete(ctx, "ext"))
	_, err := c.Snapshot(ctx, "ext")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestNewCache_Stop(t *testing.T) {
	c := NewCache(5*time.Minute, 10*time.Millisecond, zerolog.Nop())
	c.Stop()
	c.Stop()
}

func TestTokenStore(t *testing.T) {
	s := NewTokenStore(time.Minute)
	ctx := context.Background()

	_, err := s.Get(ctx, "ApiKeyVerificationKey:t")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, s.Set(ctx, "ApiKeyVerificationKey:t", "a@example.com", 50*time.Millisecond))
	v, err := s.Get(ctx, "ApiKeyVerificationKey:t")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", v)

	assert.Eventually(t, func() bool {
		ok, _ := s.Exists(ctx, "ApiKeyVerificationKey:t")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Set(ctx, "ATBL:x", "1", 0))
	require.NoError(t, s.Delete(ctx, "ATBL:x"))
	ok, err := s.Exists(ctx, "ATBL:x")
	require.NoError(t, err)
	assert.False(t, ok)
}
