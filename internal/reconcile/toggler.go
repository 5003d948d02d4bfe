// Package reconcile makes like/unlike toggles feel instantaneous: the
// local state flips before the network call, the server count wins once it
// arrives, and a failed call rolls the flip back exactly.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/olafsocial/olaf-go/api"
	"github.com/olafsocial/olaf-go/internal/kvstore"
	"github.com/olafsocial/olaf-go/internal/transport"
)

// Kind distinguishes the likeable entity types.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// ErrToggleInFlight is returned when a toggle for the same (entity, actor)
// is already running. Serializing by rejection keeps the optimistic delta
// single-applied; queueing a second toggle would net the pair to zero,
// which is never what a double-tap means.
var ErrToggleInFlight = &api.Error{
	Kind:    api.KindConflict,
	Message: "a like toggle for this entity is already in progress",
}

// State is the durably persisted "last known toggle state" for one
// (entity, actor) pair. The boolean is advisory; counts always come from
// the server.
type State struct {
	Kind     Kind `json:"kind"`
	EntityID int  `json:"entityId"`
	ActorID  int  `json:"actorId"`
	Active   bool `json:"active"`
}

// Toggler applies optimistic like toggles and reconciles them with
// server-confirmed counts. It is the sole writer of persisted toggle
// state, gated by a per-key in-flight guard.
type Toggler struct {
	exec  *transport.Executor
	store kvstore.Store

	mu       sync.Mutex
	inflight map[string]struct{}
	view     map[string]api.LikeResult

	// OnApply, when set, observes every optimistic application and
	// rollback, letting a view layer repaint immediately.
	OnApply func(kind Kind, entityID, actorID int, result api.LikeResult)
}

// New creates a Toggler over the given executor and durable store.
func New(exec *transport.Executor, store kvstore.Store) *Toggler {
	return &Toggler{
		exec:     exec,
		store:    store,
		inflight: make(map[string]struct{}),
		view:     make(map[string]api.LikeResult),
	}
}

// TogglePost flips the actor's like on a post.
func (t *Toggler) TogglePost(ctx context.Context, postID, actorID int, currentlyLiked bool, currentCount int) (api.LikeResult, error) {
	return t.toggle(ctx, KindPost, postID, actorID, currentlyLiked, currentCount)
}

// ToggleComment flips the actor's like on a comment.
func (t *Toggler) ToggleComment(ctx context.Context, commentID, actorID int, currentlyLiked bool, currentCount int) (api.LikeResult, error) {
	return t.toggle(ctx, KindComment, commentID, actorID, currentlyLiked, currentCount)
}

// Active reports the last durably persisted toggle state for the pair,
// and whether any state was persisted at all.
func (t *Toggler) Active(ctx context.Context, kind Kind, entityID, actorID int) (bool, bool) {
	raw, found, err := t.store.Get(ctx, stateKey(kind, entityID, actorID))
	if err != nil || !found {
		return false, false
	}
	envelope, ok := kvstore.Open(raw)
	if !ok {
		return false, false
	}
	var state State
	if err := json.Unmarshal(envelope.Data, &state); err != nil {
		return false, false
	}
	return state.Active, true
}

func (t *Toggler) toggle(ctx context.Context, kind Kind, entityID, actorID int, currentlyLiked bool, currentCount int) (api.LikeResult, error) {
	key := stateKey(kind, entityID, actorID)

	prior := api.LikeResult{Liked: currentlyLiked, Count: currentCount}
	optimistic := api.LikeResult{Liked: !currentlyLiked, Count: currentCount + delta(currentlyLiked)}

	if err := t.begin(key, optimistic); err != nil {
		return api.LikeResult{}, err
	}
	t.apply(kind, entityID, actorID, optimistic)

	result, err := t.send(ctx, kind, entityID, actorID, currentlyLiked)
	if err != nil {
		// Exact rollback. The prior state is already persisted, so only
		// the in-memory view moves.
		t.finish(key, prior)
		t.apply(kind, entityID, actorID, prior)
		return api.LikeResult{}, err
	}

	confirmed := optimistic
	if result.count != nil {
		// Server count replaces the ±1 estimate unconditionally.
		confirmed.Count = *result.count
	}

	if err := t.persist(ctx, key, State{
		Kind:     kind,
		EntityID: entityID,
		ActorID:  actorID,
		Active:   confirmed.Liked,
	}); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to persist toggle state")
	}

	t.finish(key, confirmed)
	t.apply(kind, entityID, actorID, confirmed)
	return confirmed, nil
}

// begin acquires the per-key in-flight guard and records the optimistic
// view. A second concurrent toggle for the same key is rejected.
func (t *Toggler) begin(key string, optimistic api.LikeResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.inflight[key]; busy {
		return ErrToggleInFlight
	}
	t.inflight[key] = struct{}{}
	t.view[key] = optimistic
	return nil
}

// finish releases the guard and settles the view.
func (t *Toggler) finish(key string, settled api.LikeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, key)
	t.view[key] = settled
}

// View returns the current (possibly optimistic) local state for the pair.
func (t *Toggler) View(kind Kind, entityID, actorID int) (api.LikeResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	result, ok := t.view[stateKey(kind, entityID, actorID)]
	return result, ok
}

func (t *Toggler) apply(kind Kind, entityID, actorID int, result api.LikeResult) {
	if t.OnApply != nil {
		t.OnApply(kind, entityID, actorID, result)
	}
}

type serverResult struct {
	count *int
}

// send issues the create or delete call for the toggle. Creating sends the
// pair in the body; deleting addresses the pair in the path.
func (t *Toggler) send(ctx context.Context, kind Kind, entityID, actorID int, currentlyLiked bool) (serverResult, error) {
	resource := "postlikes"
	idField := "postId"
	if kind == KindComment {
		resource = "commentlikes"
		idField = "commentId"
	}

	var spec transport.Spec
	if currentlyLiked {
		spec = transport.Spec{
			Method: http.MethodDelete,
			Path:   fmt.Sprintf("/%s/%d/%d", resource, entityID, actorID),
		}
	} else {
		spec = transport.Spec{
			Method: http.MethodPost,
			Path:   "/" + resource,
			Body:   map[string]int{idField: entityID, "userId": actorID},
		}
	}

	result, err := t.exec.Do(ctx, spec)
	if err != nil {
		return serverResult{}, err
	}

	return serverResult{count: extractCount(result.Body)}, nil
}

// extractCount pulls an authoritative like count out of the response when
// the backend supplies one ("count" or "likeCount").
func extractCount(body []byte) *int {
	if len(body) == 0 {
		return nil
	}
	var payload struct {
		Count     *int `json:"count"`
		LikeCount *int `json:"likeCount"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	if payload.Count != nil {
		return payload.Count
	}
	return payload.LikeCount
}

func (t *Toggler) persist(ctx context.Context, key string, state State) error {
	raw, err := kvstore.Wrap(time.Now(), state)
	if err != nil {
		return err
	}
	return t.store.Set(ctx, key, raw)
}

func stateKey(kind Kind, entityID, actorID int) string {
	return fmt.Sprintf("likes:%s:%d:%d", kind, entityID, actorID)
}

func delta(currentlyLiked bool) int {
	if currentlyLiked {
		return -1
	}
	return 1
}
