package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"onchain-analytics/internal/domain"
)

type rescanCall struct {
	wallet, mint, origin string
}

type fakeRescanner struct {
	mu    sync.Mutex
	calls []rescanCall
	err   error
}

func (f *fakeRescanner) Rescan(_ context.Context, wallet, mint, origin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rescanCall{wallet, mint, origin})
	return f.err
}

func (f *fakeRescanner) recorded() []rescanCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rescanCall(nil), f.calls...)
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		rescanErr error
		wantCall  *rescanCall
		wantErr   error
	}{
		{
			name:     "wallet and mint",
			data:     `{"wallet":"w1","mint":"m1"}`,
			wantCall: &rescanCall{"w1", "m1", Origin},
		},
		{
			name:     "unknown fields ignored",
			data:     `{"mint":"m1","requestedBy":"ops"}`,
			wantCall: &rescanCall{"", "m1", Origin},
		},
		{
			name:    "malformed json",
			data:    `{"wallet":`,
			wantErr: domain.ErrMalformedPayload,
		},
		{
			name:      "rejected by engine",
			data:      `{}`,
			rescanErr: &domain.ValidationError{Field: "query", Reason: "wallet or mint required"},
			wantCall:  &rescanCall{"", "", Origin},
			wantErr:   domain.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRescanner{err: tt.rescanErr}
			s := NewRescanSubscriber(r, Options{})

			err := s.HandleMessage(context.Background(), []byte(tt.data))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			calls := r.recorded()
			if tt.wantCall == nil {
				assert.Empty(t, calls)
				return
			}
			require.Len(t, calls, 1)
			assert.Equal(t, *tt.wantCall, calls[0])
		})
	}
}

func TestNewRescanSubscriber_Defaults(t *testing.T) {
	s := NewRescanSubscriber(&fakeRescanner{}, Options{})
	assert.Equal(t, DefaultSubject, s.opts.Subject)
	assert.Equal(t, DefaultConnectTimeout, s.opts.ConnectTimeout)
	assert.Equal(t, DefaultHandleTimeout, s.opts.HandleTimeout)
	assert.NoError(t, s.Close())
}

// setupTestNATS starts a NATS server container and returns its URL.
func setupTestNATS(t *testing.T) (string, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor: wait.ForLog("Server is ready").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return fmt.Sprintf("nats://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func TestRescanSubscriber_RequestReply(t *testing.T) {
	url, cleanup := setupTestNATS(t)
	defer cleanup()

	r := &fakeRescanner{}
	s := NewRescanSubscriber(r, Options{URL: url, QueueGroup: "analytics"})
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	defer s.Close()

	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, PublishRescan(reqCtx, conn, "", RescanRequest{Wallet: "w1"}))
	assert.Equal(t, []rescanCall{{"w1", "", Origin}}, r.recorded())

	r.mu.Lock()
	r.err = errors.New("store down")
	r.mu.Unlock()
	err = PublishRescan(reqCtx, conn, "", RescanRequest{Mint: "m1"})
	assert.ErrorContains(t, err, "store down")
}
