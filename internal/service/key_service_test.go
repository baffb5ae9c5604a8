package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vehix/vehix-api/internal/auth"
	"github.com/vehix/vehix-api/internal/cache"
	"github.com/vehix/vehix-api/internal/cache/memory"
	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/lock"
	"github.com/vehix/vehix-api/internal/pkg/crypto"
)

// recordingNotifier captures verification tokens.
type recordingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func (n *recordingNotifier) SendVerification(ctx context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[email] = token
	return nil
}

func (n *recordingNotifier) tokenFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

func newKeyService(t *testing.T) (*KeyService, *MockKeyRepository, *memory.TokenStore, *recordingNotifier) {
	t.Helper()
	repo := NewMockKeyRepository()
	tokens := memory.NewTokenStore(time.Minute)
	notifier := &recordingNotifier{}
	svc := NewKeyService(repo, tokens, notifier, lock.NewMemoryLocker(), zerolog.Nop(), KeyConfig{})
	return svc, repo, tokens, notifier
}

func TestKeyService_Issue(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newKeyService(t)

	issued, err := svc.Issue(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Len(t, issued.APIKey, auth.MinKeyLength)

	dk, err := auth.SplitKey(issued.APIKey)
	require.NoError(t, err)
	assert.Equal(t, issued.UserID, dk.IdentityRef)

	stored, err := repo.GetByID(ctx, issued.UserID)
	require.NoError(t, err)
	assert.Equal(t, "carol", stored.Username)
	assert.Equal(t, domain.KeyStateActive, stored.State)
	assert.NoError(t, crypto.VerifySecret(stored.SecretHash, dk.Secret))
	assert.NotContains(t, stored.SecretHash, dk.Secret)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), stored.ExpirationDate, time.Minute)

	_, err = svc.Issue(ctx, "carol@example.com")
	assert.ErrorIs(t, err, domain.ErrKeyAlreadyActive)
}

func TestKeyService_RequestAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, _, tokens, notifier := newKeyService(t)

	require.NoError(t, svc.RequestKey(ctx, " dave@example.com "))
	token := notifier.tokenFor("dave@example.com")
	require.NotEmpty(t, token)

	email, err := tokens.Get(ctx, cache.VerificationKeyPrefix+token)
	require.NoError(t, err)
	assert.Equal(t, "dave@example.com", email)

	issued, err := svc.VerifyRequest(ctx, token)
	require.NoError(t, err)
	assert.Len(t, issued.APIKey, auth.MinKeyLength)

	_, err = svc.VerifyRequest(ctx, token)
	assert.ErrorIs(t, err, domain.ErrVerificationTokenInvalid, "tokens are single use")

	assert.ErrorIs(t, svc.RequestKey(ctx, "dave@example.com"), domain.ErrKeyAlreadyActive)
}

func TestKeyService_RequestKeyRejections(t *testing.T) {
	ctx := context.Background()
	svc, _, _, notifier := newKeyService(t)

	assert.ErrorIs(t, svc.RequestKey(ctx, ""), domain.ErrInvalidEmail)
	assert.ErrorIs(t, svc.RequestKey(ctx, "not-an-email"), domain.ErrInvalidEmail)

	notifier.err = errors.New("smtp down")
	assert.ErrorIs(t, svc.RequestKey(ctx, "erin@example.com"), ErrInternalError)

	_, err := svc.VerifyRequest(ctx, "")
	assert.ErrorIs(t, err, domain.ErrVerificationTokenInvalid)
	_, err = svc.VerifyRequest(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrVerificationTokenInvalid)
}

func TestKeyService_StateTransitions(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newKeyService(t)

	issued, err := svc.Issue(ctx, "frank@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Suspend(ctx, issued.UserID))
	k, _ := repo.GetByID(ctx, issued.UserID)
	assert.Equal(t, domain.KeyStateSuspended, k.State)

	require.NoError(t, svc.Activate(ctx, issued.UserID))
	k, _ = repo.GetByID(ctx, issued.UserID)
	assert.Equal(t, domain.KeyStateActive, k.State)

	require.NoError(t, svc.Expire(ctx, issued.UserID))
	require.NoError(t, svc.Expire(ctx, issued.UserID), "expiring twice is fine")
	k, _ = repo.GetByID(ctx, issued.UserID)
	assert.Equal(t, domain.KeyStateExpired, k.State)

	assert.ErrorIs(t, svc.Suspend(ctx, "bogus"), domain.ErrKeyNotFound)
	assert.ErrorIs(t, svc.Expire(ctx, domain.NewID()), domain.ErrKeyNotFound)
	_, err = svc.Get(ctx, domain.NewID())
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

// staleCheckKeyRepository answers the active-key pre-check as if a
// concurrent issuance had not committed yet.
type staleCheckKeyRepository struct {
	*MockKeyRepository
}

func (r *staleCheckKeyRepository) ExistsActiveByEmail(ctx context.Context, email string) (bool, error) {
	return false, nil
}

func TestKeyService_ConcurrentIssueLeavesOneActiveKey(t *testing.T) {
	ctx := context.Background()
	repo := &staleCheckKeyRepository{MockKeyRepository: NewMockKeyRepository()}
	svc := NewKeyService(repo, memory.NewTokenStore(time.Minute), &recordingNotifier{}, lock.NewMemoryLocker(), zerolog.Nop(), KeyConfig{})

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		issued   int
		rejected int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(ctx, "grace@example.com")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case errors.Is(err, domain.ErrKeyAlreadyActive):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, issued)
	assert.Equal(t, n-1, rejected)
}

func TestKeyService_ActivateRefusesSecondActiveKey(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newKeyService(t)

	first, err := svc.Issue(ctx, "heidi@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.Suspend(ctx, first.UserID))

	_, err = svc.Issue(ctx, "heidi@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Activate(ctx, first.UserID), domain.ErrKeyAlreadyActive)
}

func frontendConfig(t *testing.T) FrontendKeyConfig {
	t.Helper()
	secret, err := crypto.GenerateSecret()
	require.NoError(t, err)
	id := domain.NewID()
	return FrontendKeyConfig{
		Username: "vehix-frontend",
		UserID:   id,
		Email:    "frontend@vehix.example.com",
		Key:      auth.JoinKey(secret, id),
	}
}

func TestKeyService_BootstrapFrontend(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newKeyService(t)
	cfg := frontendConfig(t)

	result, err := svc.BootstrapFrontend(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, BootstrapCreated, result)

	k, err := repo.GetByID(ctx, cfg.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.NeverExpires, k.ExpirationDate)
	assert.Equal(t, domain.KeyStateActive, k.State)

	result, err = svc.BootstrapFrontend(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, BootstrapUnchanged, result)

	// Rotated secret replaces the record.
	secret, err := crypto.GenerateSecret()
	require.NoError(t, err)
	cfg.Key = auth.JoinKey(secret, cfg.UserID)
	result, err = svc.BootstrapFrontend(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, BootstrapReplaced, result)

	k, err = repo.GetByID(ctx, cfg.UserID)
	require.NoError(t, err)
	assert.NoError(t, crypto.VerifySecret(k.SecretHash, secret))
}

func TestKeyService_BootstrapFrontendClearsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newKeyService(t)
	cfg := frontendConfig(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, domain.NewKey(cfg.Username, cfg.Email, "x", time.Hour)))
	}

	result, err := svc.BootstrapFrontend(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, BootstrapReplaced, result)

	keys, err := repo.ListByUsername(ctx, cfg.Username)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, cfg.UserID, keys[0].UserID)
}

func TestKeyService_BootstrapFrontendConfigErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newKeyService(t)

	cfg := frontendConfig(t)
	cfg.UserID = domain.NewID()
	_, err := svc.BootstrapFrontend(ctx, cfg)
	assert.ErrorIs(t, err, ErrBootstrapConfig, "key must encode the configured id")

	cfg = frontendConfig(t)
	cfg.Key = "short"
	_, err = svc.BootstrapFrontend(ctx, cfg)
	assert.ErrorIs(t, err, ErrBootstrapConfig)

	_, err = svc.BootstrapFrontend(ctx, FrontendKeyConfig{})
	assert.ErrorIs(t, err, ErrBootstrapConfig)
}

func TestKeyService_ConcurrentBootstrapLeavesOneRecord(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newKeyService(t)
	cfg := frontendConfig(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.BootstrapFrontend(ctx, cfg)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	keys, err := repo.ListByUsername(ctx, cfg.Username)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
