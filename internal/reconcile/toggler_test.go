package reconcile_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olafsocial/olaf-go/api"
	"github.com/olafsocial/olaf-go/internal/kvstore"
	"github.com/olafsocial/olaf-go/internal/reconcile"
	"github.com/olafsocial/olaf-go/internal/transport"
)

func newToggler(t *testing.T, handler http.Handler) (*reconcile.Toggler, kvstore.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	exec := transport.New(transport.Options{
		BaseURL:     server.URL,
		MaxAttempts: 1,
	})
	store := kvstore.NewMemory()
	return reconcile.New(exec, store), store
}

func TestTogglePost_LikeUsesServerCount(t *testing.T) {
	ctx := context.Background()

	var gotBody map[string]int
	toggler, _ := newToggler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/postlikes", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"count":4}`))
	}))

	result, err := toggler.TogglePost(ctx, 7, 5, false, 1)
	require.NoError(t, err)
	assert.True(t, result.Liked)
	assert.Equal(t, 4, result.Count, "server count replaces the optimistic estimate")
	assert.Equal(t, map[string]int{"postId": 7, "userId": 5}, gotBody)
}

func TestTogglePost_UnlikeSendsDelete(t *testing.T) {
	ctx := context.Background()

	toggler, _ := newToggler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/postlikes/7/5", r.URL.Path)
		w.Write([]byte(`{"count":2}`))
	}))

	result, err := toggler.TogglePost(ctx, 7, 5, true, 3)
	require.NoError(t, err)
	assert.False(t, result.Liked)
	assert.Equal(t, 2, result.Count)
}

func TestToggleComment_UsesCommentResource(t *testing.T) {
	ctx := context.Background()

	var gotBody map[string]int
	toggler, _ := newToggler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/commentlikes", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"likeCount":9}`))
	}))

	result, err := toggler.ToggleComment(ctx, 12, 5, false, 8)
	require.NoError(t, err)
	assert.Equal(t, 9, result.Count)
	assert.Equal(t, map[string]int{"commentId": 12, "userId": 5}, gotBody)
}

func TestToggle_NoServerCountKeepsOptimistic(t *testing.T) {
	ctx := context.Background()

	toggler, _ := newToggler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	result, err := toggler.TogglePost(ctx, 7, 5, false, 1)
	require.NoError(t, err)
	assert.True(t, result.Liked)
	assert.Equal(t, 2, result.Count)
}

func TestToggle_FailureRollsBackExactly(t *testing.T) {
	ctx := context.Background()

	toggler, _ := newToggler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"not allowed"}`, http.StatusForbidden)
	}))

	var applied []api.LikeResult
	toggler.OnApply = func(kind reconcile.Kind, entityID, actorID int, result api.LikeResult) {
		applied = append(applied, result)
	}

	_, err := toggler.TogglePost(ctx, 7, 5, false, 3)
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.KindForbidden, apiErr.Kind)

	// optimistic flip first, then the exact prior state restored
	require.Len(t, applied, 2)
	assert.Equal(t, api.LikeResult{Liked: true, Count: 4}, applied[0])
	assert.Equal(t, api.LikeResult{Liked: false, Count: 3}, applied[1])

	view, ok := toggler.View(reconcile.KindPost, 7, 5)
	require.True(t, ok)
	assert.Equal(t, api.LikeResult{Liked: false, Count: 3}, view)
}

func TestToggle_ConcurrentToggleRejected(t *testing.T) {
	ctx := context.Background()

	var entered sync.Once
	enteredCh := make(chan struct{})
	release := make(chan struct{})
	var requests atomic.Int32
	toggler, _ := newToggler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		entered.Do(func() { close(enteredCh) })
		<-release
		w.Write([]byte(`{"count":4}`))
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, err := toggler.TogglePost(ctx, 7, 5, false, 3)
		assert.NoError(t, err)
		assert.True(t, result.Liked)
	}()

	<-enteredCh

	// second toggle while the first is in flight: rejected, no second call
	_, err := toggler.TogglePost(ctx, 7, 5, false, 3)
	assert.ErrorIs(t, err, reconcile.ErrToggleInFlight)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), requests.Load(), "the rejected toggle must not reach the network")

	// the guard releases once the first toggle settles
	result, err := toggler.TogglePost(ctx, 7, 5, true, 4)
	require.NoError(t, err)
	assert.False(t, result.Liked)
}

func TestActive_ReadsPersistedState(t *testing.T) {
	ctx := context.Background()

	toggler, store := newToggler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":1}`))
	}))

	_, known := toggler.Active(ctx, reconcile.KindPost, 7, 5)
	assert.False(t, known)

	_, err := toggler.TogglePost(ctx, 7, 5, false, 0)
	require.NoError(t, err)

	active, known := toggler.Active(ctx, reconcile.KindPost, 7, 5)
	assert.True(t, known)
	assert.True(t, active)

	// a second toggler over the same store sees the persisted state
	other := reconcile.New(nil, store)
	active, known = other.Active(ctx, reconcile.KindPost, 7, 5)
	assert.True(t, known)
	assert.True(t, active)
}
