package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vehix/vehix-api/internal/cache"
	rediscache "github.com/vehix/vehix-api/internal/cache/redis"
	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/metrics"
	"github.com/vehix/vehix-api/internal/pkg/crypto"
)

const testOrigin = "https://vehix.example.com"

// mockKeyStore is an in-memory KeyStore that counts calls.
type mockKeyStore struct {
	mu          sync.Mutex
	keys        map[string]*domain.Key
	gets        atomic.Int32
	transitions atomic.Int32
	err         error
}

func newMockKeyStore() *mockKeyStore {
	return &mockKeyStore{keys: make(map[string]*domain.Key)}
}

func (m *mockKeyStore) put(k *domain.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	m.keys[k.UserID] = &cp
}

func (m *mockKeyStore) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	m.gets.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *mockKeyStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return false, domain.ErrKeyNotFound
	}
	if k.State == domain.KeyStateExpired {
		return false, nil
	}
	k.State = domain.KeyStateExpired
	m.transitions.Add(1)
	return true, nil
}

func (m *mockKeyStore) state(id string) domain.KeyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[id].State
}

// failingCache wraps a UsageCache and fails selected operations.
type failingCache struct {
	cache.UsageCache
	failCheck bool
	failPrime bool
}

var errCacheDown = errors.New("cache down")

func (f *failingCache) CheckAndIncrement(ctx context.Context, external, expected string) (bool, error) {
	if f.failCheck {
		return false, errCacheDown
	}
	return f.UsageCache.CheckAndIncrement(ctx, external, expected)
}

func (f *failingCache) Prime(ctx context.Context, external, userID string, ttl time.Duration) error {
	if f.failPrime {
		return errCacheDown
	}
	return f.UsageCache.Prime(ctx, external, userID, ttl)
}

// newTestKey creates an Active key record and returns it with its external key.
func newTestKey(t *testing.T, username, email string, lifetime time.Duration) (*domain.Key, string) {
	t.Helper()

	secret, err := crypto.GenerateSecret()
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)

	key := domain.NewKey(username, email, string(hash), lifetime)
	return key, JoinKey(secret, key.UserID)
}

type testEnv struct {
	mr        *miniredis.Miniredis
	store     *mockKeyStore
	usage     *rediscache.UsageCache
	validator *Validator
	verifies  atomic.Int32
	frontend  *domain.Key
	feKey     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		mr:    mr,
		store: newMockKeyStore(),
		usage: rediscache.NewUsageCache(client, 5*time.Minute, zerolog.Nop()),
	}

	env.frontend, env.feKey = newTestKey(t, "frontend", "frontend@vehix.example.com", 0)
	env.frontend.ExpirationDate = domain.NeverExpires
	env.store.put(env.frontend)

	env.validator = env.newValidator(env.usage)
	return env
}

func (e *testEnv) newValidator(usage cache.UsageCache) *Validator {
	v := NewValidator(e.store, usage, Config{
		CacheTTL:     15 * time.Minute,
		StoreTimeout: time.Second,
		Frontend: FrontendIdentity{
			Origin:   testOrigin,
			Username: e.frontend.Username,
			UserID:   e.frontend.UserID,
			Email:    e.frontend.Email,
		},
	}, metrics.New(), zerolog.Nop())
	v.verify = func(hash, secret string) error {
		e.verifies.Add(1)
		return crypto.VerifySecret(hash, secret)
	}
	return v
}
