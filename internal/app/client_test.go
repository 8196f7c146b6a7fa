package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmsync/internal/auth"
	"github.com/mamadbah2/farmsync/internal/config"
	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/server/servertest"
	"github.com/mamadbah2/farmsync/pkg/clients/farmapi"
)

func newTestClient(t *testing.T, remoteURL string) *Client {
	t.Helper()
	cfg := config.ClientConfig{
		RemoteURL:           remoteURL,
		DataDir:             t.TempDir(),
		GatewayTimeout:      time.Second,
		SyncLiveInterval:    50 * time.Millisecond,
		SyncPendingInterval: time.Second,
		SyncRetryMin:        10 * time.Millisecond,
		SyncRetryMax:        100 * time.Millisecond,
		SyncBatchSize:       10,
		ProbeInterval:       time.Second,
		OfflineGrace:        true,
	}
	c, err := NewClient(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_RunRequiresSession(t *testing.T) {
	srv := servertest.New(t)
	c := newTestClient(t, srv.URL)

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestClient_OfflineWritesReachServer(t *testing.T) {
	ctx := context.Background()
	srv := servertest.New(t)
	c := newTestClient(t, srv.URL)

	require.NoError(t, c.Auth.Authenticate(ctx, servertest.AdminUsername, servertest.AdminPassword))

	c.Monitor.ForceOffline(true)
	_, err := c.Gateway.Request(ctx, http.MethodPost, "/api/capital", []byte(`{"id":42,"source":"loan","amount":5000,"date":"2024-05-01"}`))
	require.NoError(t, err)

	_, err = srv.Store.Get(ctx, models.CollectionCapital, "42")
	require.ErrorIs(t, err, models.ErrNotFound)

	counts, err := c.Sync.PendingCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.CollectionCapital])

	c.Monitor.ForceOffline(false)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()

	require.Eventually(t, func() bool {
		_, err := srv.Store.Get(ctx, models.CollectionCapital, "42")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return c.Sync.OpenChannels() == len(c.Registry.Names())
	}, time.Second, 10*time.Millisecond)

	// Going offline closes every channel; coming back reopens them.
	c.Monitor.ForceOffline(true)
	assert.Zero(t, c.Sync.OpenChannels())
	assert.False(t, c.Sync.Status().Running)

	c.Monitor.ForceOffline(false)
	assert.Equal(t, len(c.Registry.Names()), c.Sync.OpenChannels())
	assert.True(t, c.Sync.Status().Running)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Zero(t, c.Sync.OpenChannels())
}

func TestClient_UnreachableServerKeepsWorking(t *testing.T) {
	ctx := context.Background()
	srv := servertest.New(t)
	remoteURL := srv.URL
	c := newTestClient(t, remoteURL)

	require.NoError(t, c.Auth.Authenticate(ctx, servertest.AdminUsername, servertest.AdminPassword))
	srv.Close()

	assert.True(t, c.Auth.CheckAuth(ctx))
	assert.False(t, c.Monitor.Probe(ctx))

	resp, err := c.Gateway.Request(ctx, http.MethodPost, "/api/salaries", []byte(`{"employee_id":3,"amount":250,"payment_date":"2024-06-30","period":"2024-06"}`))
	require.NoError(t, err)
	assert.Contains(t, string(resp), `"period":"2024-06"`)

	require.NoError(t, c.Scheduler.RunNow(ctx, JobPollPending))
	status := c.Sync.Status()
	assert.Equal(t, 1, status.PendingTotal)
	assert.Equal(t, 1, status.Pending[models.CollectionSalaries])
}

func TestClient_ForcedOfflineSession(t *testing.T) {
	ctx := context.Background()
	srv := servertest.New(t)
	c := newTestClient(t, srv.URL)

	c.Monitor.ForceOffline(true)
	err := c.Auth.Authenticate(ctx, servertest.AdminUsername, servertest.AdminPassword)
	assert.True(t, farmapi.IsNetworkError(err))

	c.Monitor.ForceOffline(false)
	require.NoError(t, c.Auth.Authenticate(ctx, servertest.AdminUsername, servertest.AdminPassword))

	// The stored session is kept without asking the server.
	c.Monitor.ForceOffline(true)
	srv.Close()
	assert.True(t, c.Auth.CheckAuth(ctx))
	assert.Equal(t, auth.Authenticated, c.Auth.State())
}
