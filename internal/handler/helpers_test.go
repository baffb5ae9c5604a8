package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vehix/vehix-api/internal/auth"
	"github.com/vehix/vehix-api/internal/cache/memory"
	"github.com/vehix/vehix-api/internal/config"
	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/metrics"
	"github.com/vehix/vehix-api/internal/pkg/crypto"
	"github.com/vehix/vehix-api/internal/service"
)

const testOrigin = "https://vehix.example.com"

// keyStore is an in-memory auth.KeyStore.
type keyStore struct {
	mu   sync.Mutex
	keys map[string]*domain.Key
}

func (s *keyStore) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *keyStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return false, domain.ErrKeyNotFound
	}
	if k.State == domain.KeyStateExpired {
		return false, nil
	}
	k.State = domain.KeyStateExpired
	return true, nil
}

// fakeVehicles records the last filter it was asked for.
type fakeVehicles struct {
	mu       sync.Mutex
	vehicles []*domain.Vehicle
	err      error
	field    domain.VehicleField
	value    string
	classic  *bool
	created  []*domain.VehicleRequest
	deleted  string
}

func (f *fakeVehicles) result() ([]*domain.Vehicle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vehicles, nil
}

func (f *fakeVehicles) Create(ctx context.Context, req *domain.VehicleRequest) (*domain.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return req.ToVehicle(domain.NewID()), nil
}

func (f *fakeVehicles) CreateMany(ctx context.Context, reqs []*domain.VehicleRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.created = append(f.created, reqs...)
	return len(reqs), nil
}

func (f *fakeVehicles) Get(ctx context.Context, id string) (*domain.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, v := range f.vehicles {
		if v.VehicleID == id {
			return v, nil
		}
	}
	return nil, domain.ErrVehicleNotFound
}

func (f *fakeVehicles) Update(ctx context.Context, id string, req *domain.VehicleRequest) (*domain.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return req.ToVehicle(id), nil
}

func (f *fakeVehicles) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = id
	return f.err
}

func (f *fakeVehicles) List(ctx context.Context) ([]*domain.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result()
}

func (f *fakeVehicles) ListByField(ctx context.Context, field domain.VehicleField, value string) ([]*domain.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.field, f.value = field, value
	return f.result()
}

func (f *fakeVehicles) ListClassic(ctx context.Context, classic bool) ([]*domain.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classic = &classic
	return f.result()
}

func (f *fakeVehicles) ListLimited(ctx context.Context) ([]*domain.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result()
}

type fakeKeys struct {
	email  string
	token  string
	issued *domain.IssuedKey
	err    error
}

func (f *fakeKeys) RequestKey(ctx context.Context, email string) error {
	f.email = email
	return f.err
}

func (f *fakeKeys) VerifyRequest(ctx context.Context, token string) (*domain.IssuedKey, error) {
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	return f.issued, nil
}

// fakeSessions accepts the access token "valid-access".
type fakeSessions struct {
	session   *service.Session
	check     *service.CheckResult
	loginErr  error
	checkErr  error
	logoutErr error
	loggedOut []string
}

func (f *fakeSessions) Login(ctx context.Context, username, password string) (*service.Session, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.session, nil
}

func (f *fakeSessions) Check(ctx context.Context, accessToken, refreshToken string) (*service.CheckResult, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return f.check, nil
}

func (f *fakeSessions) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if f.logoutErr != nil {
		return f.logoutErr
	}
	f.loggedOut = []string{accessToken, refreshToken}
	return nil
}

func (f *fakeSessions) Authorize(ctx context.Context, accessToken string) (*service.Principal, error) {
	if accessToken != "valid-access" {
		return nil, service.ErrSessionInvalid
	}
	return &service.Principal{AdminID: "a1", Username: "root", Role: domain.RoleAdmin}, nil
}

// fakeDatabase is a DatabaseChecker with a settable failure.
type fakeDatabase struct {
	mu  sync.Mutex
	err error
}

func (f *fakeDatabase) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeDatabase) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type testEnv struct {
	handler     http.Handler
	vehicles    *fakeVehicles
	keys        *fakeKeys
	sessions    *fakeSessions
	db          *fakeDatabase
	publicKey   string
	frontendKey string
	metrics     *metrics.Metrics
}

func newKey(t *testing.T, store *keyStore, username, email string) (*domain.Key, string) {
	t.Helper()
	secret, err := crypto.GenerateSecret()
	require.NoError(t, err)
	hash, err := crypto.HashSecret(secret)
	require.NoError(t, err)

	key := domain.NewKey(username, email, hash, time.Hour)
	store.keys[key.UserID] = key
	return key, auth.JoinKey(secret, key.UserID)
}

func newTestEnv(t *testing.T, rateLimit config.RateLimitConfig) *testEnv {
	t.Helper()

	store := &keyStore{keys: make(map[string]*domain.Key)}
	_, publicKey := newKey(t, store, "alice", "alice@example.com")
	frontend, frontendKey := newKey(t, store, "frontend", "frontend@vehix.example.com")
	frontend.ExpirationDate = domain.NeverExpires

	usage := memory.NewCache(time.Minute, time.Second, zerolog.Nop())
	m := metrics.New()

	validator := auth.NewValidator(store, usage, auth.Config{
		Frontend: auth.FrontendIdentity{
			Origin:   testOrigin,
			Username: frontend.Username,
			UserID:   frontend.UserID,
			Email:    frontend.Email,
		},
	}, m, zerolog.Nop())
	gateway := auth.NewGateway(validator, usage, auth.GatewayConfig{}, m, zerolog.Nop())

	t.Cleanup(func() {
		gateway.Wait()
		usage.Stop()
	})

	env := &testEnv{
		vehicles:    &fakeVehicles{},
		keys:        &fakeKeys{},
		sessions:    &fakeSessions{},
		db:          &fakeDatabase{},
		publicKey:   publicKey,
		frontendKey: frontendKey,
		metrics:     m,
	}
	env.handler = NewRouter(RouterConfig{
		Vehicles:    env.vehicles,
		Keys:        env.keys,
		Sessions:    env.sessions,
		Gateway:     gateway,
		Metrics:     m,
		Database:    env.db,
		Cookies:     CookieConfig{AccessName: "VHATfU", RefreshName: "VHRTDfB"},
		RateLimit:   rateLimit,
		MaxBodySize: 1 << 20,
		MetricsPath: "/metrics",
		Logger:      zerolog.Nop(),
	}).Handler()
	return env
}

type requestOpt func(*http.Request)

func withKey(key string) requestOpt {
	return func(r *http.Request) { r.Header.Set(auth.DefaultHeaderName, key) }
}

func withOrigin(origin string) requestOpt {
	return func(r *http.Request) { r.Header.Set(auth.OriginHeader, origin) }
}

func withCookie(name, value string) requestOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withAdmin() requestOpt {
	return withCookie("VHATfU", "valid-access")
}

func (e *testEnv) do(method, path, body string, opts ...requestOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func sampleVehicle() *domain.Vehicle {
	return &domain.Vehicle{
		VehicleID:   domain.NewID(),
		VehicleType: "Car",
		Brand:       "Bmw",
		Model:       "320i",
		FuelType:    "Petrol",
		Year:        "2020",
	}
}
