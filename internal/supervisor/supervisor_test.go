package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer blocks in ListenAndServe until Shutdown is called.
type mockServer struct {
	listenErr error
	stopped   chan struct{}
	once      sync.Once
	shutdowns int32
}

func newMockServer(listenErr error) *mockServer {
	return &mockServer{listenErr: listenErr, stopped: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopped
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	atomic.AddInt32(&m.shutdowns, 1)
	m.once.Do(func() { close(m.stopped) })
	return nil
}

func TestHTTPService_GracefulShutdown(t *testing.T) {
	srv := newMockServer(nil)
	svc := NewHTTPService("http", srv, time.Second)
	assert.Equal(t, "http", svc.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.shutdowns))
}

func TestHTTPService_ListenFailure(t *testing.T) {
	svc := NewHTTPService("http", newMockServer(errors.New("address in use")), 0)

	err := svc.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}

// flakyService fails on its first run and then blocks.
type flakyService struct {
	runs int32
}

func (f *flakyService) Serve(ctx context.Context) error {
	if atomic.AddInt32(&f.runs, 1) == 1 {
		return errors.New("subscription lost")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *flakyService) String() string { return "flaky" }

func TestTree_RestartsFailedService(t *testing.T) {
	tree := NewTree(zerolog.Nop(), TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})

	flaky := &flakyService{}
	tree.AddBackground(flaky)
	srv := newMockServer(nil)
	tree.AddAPI(NewHTTPService("http", srv, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&flaky.runs) >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.shutdowns))
	report, err := tree.UnstoppedServiceReport()
	require.NoError(t, err)
	assert.Empty(t, report)
}
