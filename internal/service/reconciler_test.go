package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vehix/vehix-api/internal/cache"
	"github.com/vehix/vehix-api/internal/cache/memory"
	rediscache "github.com/vehix/vehix-api/internal/cache/redis"
	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/metrics"
)

const testExternal = "ext-key-for-reconciler-tests"

// chanSource is an ExpirationSource fed by the test.
type chanSource struct {
	ch  chan string
	err error
}

func (s *chanSource) Expirations(ctx context.Context) (<-chan string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ch, nil
}

func setupReconciler(t *testing.T) (*miniredis.Miniredis, *rediscache.UsageCache, *MockKeyRepository, *domain.Key, *Reconciler) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	usage := rediscache.NewUsageCache(client, 5*time.Minute, zerolog.Nop())
	repo := NewMockKeyRepository()
	key := domain.NewKey("alice", "alice@example.com", "hash", time.Hour)
	key.UsageCount = 3
	require.NoError(t, repo.Create(context.Background(), key))

	r := NewReconciler(repo, usage, usage, metrics.New(), zerolog.Nop(), ReconcilerConfig{})
	return mr, usage, repo, key, r
}

func TestReconciler_FoldsUsageIntoKeyStore(t *testing.T) {
	ctx := context.Background()
	mr, usage, repo, key, r := setupReconciler(t)

	require.NoError(t, usage.Prime(ctx, testExternal, key.UserID, 15*time.Minute))
	for i := 0; i < 7; i++ {
		hit, err := usage.CheckAndIncrement(ctx, testExternal, "")
		require.NoError(t, err)
		require.True(t, hit)
	}
	require.NoError(t, usage.RecordResponse(ctx, testExternal, 200))

	// The marker is gone, the hash is still readable.
	mr.FastForward(10*time.Minute + time.Second)
	require.False(t, mr.Exists(cache.MarkerKey(testExternal)))
	require.True(t, mr.Exists(cache.UsageKey(testExternal)))

	outcome := r.Reconcile(ctx, cache.MarkerKey(testExternal))
	assert.Equal(t, OutcomeApplied, outcome)

	got, err := repo.GetByID(ctx, key.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.UsageCount)
	assert.Equal(t, "200", got.LastResponseCode)
	assert.False(t, mr.Exists(cache.UsageKey(testExternal)))
}

func TestReconciler_MissingHashCountsAsZero(t *testing.T) {
	ctx := context.Background()
	_, _, repo, key, r := setupReconciler(t)

	outcome := r.Reconcile(ctx, cache.MarkerKey(testExternal))
	assert.Equal(t, OutcomeMissingHash, outcome)

	got, err := repo.GetByID(ctx, key.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.UsageCount)
	assert.Equal(t, 0, repo.appliedCount())
}

func TestReconciler_MalformedUserIDSkipsPersistence(t *testing.T) {
	ctx := context.Background()
	mr, _, repo, _, r := setupReconciler(t)

	mr.HSet(cache.UsageKey(testExternal), cache.FieldUserID, "garbage", cache.FieldUsageCount, "4")

	outcome := r.Reconcile(ctx, cache.MarkerKey(testExternal))
	assert.Equal(t, OutcomeInvalidUser, outcome)
	assert.Equal(t, 0, repo.appliedCount())
	assert.False(t, mr.Exists(cache.UsageKey(testExternal)), "hash is deleted even when persistence is skipped")
}

func TestReconciler_StoreErrorStillDeletesHash(t *testing.T) {
	ctx := context.Background()
	mr, usage, repo, key, r := setupReconciler(t)
	repo.applyErr = errors.New("connection refused")

	require.NoError(t, usage.Prime(ctx, testExternal, key.UserID, 15*time.Minute))

	outcome := r.Reconcile(ctx, cache.MarkerKey(testExternal))
	assert.Equal(t, OutcomeStoreError, outcome)
	assert.False(t, mr.Exists(cache.UsageKey(testExternal)))
}

func TestReconciler_IgnoresForeignKeys(t *testing.T) {
	_, _, repo, _, r := setupReconciler(t)

	assert.Equal(t, OutcomeInvalidMarker, r.Reconcile(context.Background(), cache.UsageKey(testExternal)))
	assert.Equal(t, 0, repo.appliedCount())
}

func TestReconciler_ServeProcessesUntilCancelled(t *testing.T) {
	mr, usage, repo, key, _ := setupReconciler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	externals := make([]string, 5)
	for i := range externals {
		externals[i] = fmt.Sprintf("%s-%d", testExternal, i)
		require.NoError(t, usage.Prime(ctx, externals[i], key.UserID, 15*time.Minute))
		_, err := usage.CheckAndIncrement(ctx, externals[i], "")
		require.NoError(t, err)
	}

	src := &chanSource{ch: make(chan string)}
	r := NewReconciler(repo, usage, src, nil, zerolog.Nop(), ReconcilerConfig{Concurrency: 2})

	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	for _, ext := range externals {
		src.ch <- cache.MarkerKey(ext)
	}

	require.Eventually(t, func() bool { return repo.appliedCount() == len(externals) }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	got, err := repo.GetByID(context.Background(), key.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(3+len(externals)), got.UsageCount)
	for _, ext := range externals {
		assert.False(t, mr.Exists(cache.UsageKey(ext)))
	}
}

func TestReconciler_ServeReportsClosedSubscription(t *testing.T) {
	_, usage, repo, _, _ := setupReconciler(t)

	src := &chanSource{ch: make(chan string)}
	close(src.ch)
	r := NewReconciler(repo, usage, src, nil, zerolog.Nop(), ReconcilerConfig{})

	assert.ErrorIs(t, r.Serve(context.Background()), ErrSubscriptionClosed)
}

func TestReconciler_ServeSubscribeError(t *testing.T) {
	_, usage, repo, _, _ := setupReconciler(t)

	src := &chanSource{err: errors.New("no pubsub")}
	r := NewReconciler(repo, usage, src, nil, zerolog.Nop(), ReconcilerConfig{})

	assert.Error(t, r.Serve(context.Background()))
}

// Concurrent validated requests accumulate exactly N, and one marker
// expiry folds exactly N into the key store.
func TestReconciler_EndToEndWithMemoryCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	usage := memory.NewCache(1500*time.Millisecond, 10*time.Millisecond, zerolog.Nop())
	defer usage.Stop()

	repo := NewMockKeyRepository()
	key := domain.NewKey("bob", "bob@example.com", "hash", time.Hour)
	require.NoError(t, repo.Create(ctx, key))

	r := NewReconciler(repo, usage, usage, nil, zerolog.Nop(), ReconcilerConfig{})
	go func() { _ = r.Serve(ctx) }()

	require.NoError(t, usage.Prime(ctx, testExternal, key.UserID, 2*time.Second))

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hit, err := usage.CheckAndIncrement(ctx, testExternal, key.UserID)
			assert.NoError(t, err)
			assert.True(t, hit)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return repo.appliedCount() == 1 }, 3*time.Second, 20*time.Millisecond)

	got, err := repo.GetByID(ctx, key.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.UsageCount)

	_, err = usage.Snapshot(ctx, testExternal)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

// slowKeyRepository delays every usage write.
type slowKeyRepository struct {
	*MockKeyRepository
	delay time.Duration
}

func (s *slowKeyRepository) ApplyUsage(ctx context.Context, id string, delta int64, lastResponseCode string) error {
	time.Sleep(s.delay)
	return s.MockKeyRepository.ApplyUsage(ctx, id, delta, lastResponseCode)
}

func TestReconciler_BurstOfExpirationsWithMemoryCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	usage := memory.NewCache(3*time.Second, 10*time.Millisecond, zerolog.Nop())
	defer usage.Stop()

	repo := &slowKeyRepository{MockKeyRepository: NewMockKeyRepository(), delay: 5 * time.Millisecond}

	const n = 200
	keys := make([]*domain.Key, n)
	for i := range keys {
		keys[i] = domain.NewKey(fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.com", i), "hash", time.Hour)
		require.NoError(t, repo.Create(ctx, keys[i]))
	}

	r := NewReconciler(repo, usage, usage, nil, zerolog.Nop(), ReconcilerConfig{Concurrency: 2})
	go func() { _ = r.Serve(ctx) }()

	for i, key := range keys {
		external := fmt.Sprintf("ext-burst-%d", i)
		require.NoError(t, usage.Prime(ctx, external, key.UserID, 3500*time.Millisecond))
		hit, err := usage.CheckAndIncrement(ctx, external, key.UserID)
		require.NoError(t, err)
		require.True(t, hit)
	}

	require.Eventually(t, func() bool { return repo.appliedCount() == n }, 5*time.Second, 20*time.Millisecond)

	for _, key := range keys {
		got, err := repo.GetByID(ctx, key.UserID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.UsageCount, key.Username)
	}
}
