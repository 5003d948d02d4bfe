package session_test

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olafsocial/olaf-go/api"
	"github.com/olafsocial/olaf-go/internal/session"
	"github.com/olafsocial/olaf-go/internal/testhelpers"
)

func newManager(t *testing.T, baseURL string) *session.Manager {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return session.NewManager(baseURL, &http.Client{Jar: jar}, 5*time.Second)
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	server := testhelpers.NewAPIServer(t)
	manager := newManager(t, server.URL)

	user, err := manager.Login(ctx, "olaf", "secret")
	require.NoError(t, err)
	assert.Equal(t, 5, user.ID)

	current := manager.Current()
	assert.Equal(t, api.SessionAuthenticated, current.State)
	assert.Equal(t, 5, current.User.ID)
	assert.Equal(t, testhelpers.TestToken, manager.Token())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	server := testhelpers.NewAPIServer(t)
	server.FailLogin = true
	manager := newManager(t, server.URL)

	_, err := manager.Login(ctx, "olaf", "wrong")
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.KindUnauthorized, apiErr.Kind)
	assert.NotEqual(t, api.SessionAuthenticated, manager.Current().State)
}

func TestLogin_ServerDown(t *testing.T) {
	ctx := context.Background()
	server := testhelpers.NewAPIServer(t)
	url := server.URL
	server.Close()

	manager := newManager(t, url)

	_, err := manager.Login(ctx, "olaf", "secret")
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.KindNetworkError, apiErr.Kind)
}

func TestLogout_ClearsStateWhenServerUnreachable(t *testing.T) {
	ctx := context.Background()
	server := testhelpers.NewAPIServer(t)
	manager := newManager(t, server.URL)

	_, err := manager.Login(ctx, "olaf", "secret")
	require.NoError(t, err)
	require.Equal(t, api.SessionAuthenticated, manager.Current().State)

	// The server dies before logout: local state must still clear.
	server.Close()
	manager.Logout(ctx)

	current := manager.Current()
	assert.Equal(t, api.SessionAnonymous, current.State)
	assert.Empty(t, manager.Token())
	assert.Zero(t, current.User.ID)
}

func TestRefresh_RotatesToken(t *testing.T) {
	ctx := context.Background()
	server := testhelpers.NewAPIServer(t)
	manager := newManager(t, server.URL)

	_, err := manager.Login(ctx, "olaf", "secret")
	require.NoError(t, err)
	require.Equal(t, testhelpers.TestToken, manager.Token())

	require.NoError(t, manager.Refresh(ctx))
	assert.Equal(t, testhelpers.RotatedToken, manager.Token())
	assert.Equal(t, api.SessionAuthenticated, manager.Current().State)
}

func TestRefresh_FailureClearsSession(t *testing.T) {
	ctx := context.Background()
	server := testhelpers.NewAPIServer(t)
	manager := newManager(t, server.URL)

	_, err := manager.Login(ctx, "olaf", "secret")
	require.NoError(t, err)

	server.RefreshOK = false
	err = manager.Refresh(ctx)
	require.Error(t, err)

	current := manager.Current()
	assert.Equal(t, api.SessionAnonymous, current.State)
	assert.Empty(t, manager.Token())
}

func TestRefresh_ConcurrentCallsCoalesce(t *testing.T) {
	ctx := context.Background()

	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	manager := newManager(t, server.URL)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, manager.Refresh(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshCalls.Load(), "concurrent refreshes must share one in-flight call")
}

func TestProbe_ResolvesUnknownState(t *testing.T) {
	ctx := context.Background()
	server := testhelpers.NewAPIServer(t)
	manager := newManager(t, server.URL)

	assert.Equal(t, api.SessionUnknown, manager.Current().State)

	// no cookie yet: probe fails, state becomes Anonymous
	_, err := manager.Probe(ctx)
	require.Error(t, err)
	assert.Equal(t, api.SessionAnonymous, manager.Current().State)

	// log in, then probe again: the session cookie satisfies the check
	_, err = manager.Login(ctx, "olaf", "secret")
	require.NoError(t, err)

	user, err := manager.Probe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, user.ID)
	assert.Equal(t, api.SessionAuthenticated, manager.Current().State)
}

func TestStoreToken_EmptyRotationIgnored(t *testing.T) {
	server := testhelpers.NewAPIServer(t)
	manager := newManager(t, server.URL)

	manager.StoreToken("fresh-token")
	require.Equal(t, "fresh-token", manager.Token())

	// a response without a rotation header must not wipe the token
	manager.StoreToken("")
	assert.Equal(t, "fresh-token", manager.Token())
}
