// Package olaf is the data-access SDK for the Olaf content platform. It
// owns the session lifecycle (cookie credentials plus anti-forgery token),
// resilient request execution with bounded retry, a two-tier read-through
// cache for list fetches, and optimistic like-toggle reconciliation. A
// view layer calls the Client facade; everything underneath is wiring.
package olaf

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/olafsocial/olaf-go/api"
	"github.com/olafsocial/olaf-go/internal/cache"
	"github.com/olafsocial/olaf-go/internal/kvstore"
	"github.com/olafsocial/olaf-go/internal/observe"
	"github.com/olafsocial/olaf-go/internal/reconcile"
	"github.com/olafsocial/olaf-go/internal/session"
	"github.com/olafsocial/olaf-go/internal/transport"
)

// RetryNotice reports a transient failure the executor is about to retry.
// Message is one of the three escalating user-facing tiers; the view layer
// is expected to show it verbatim.
type RetryNotice struct {
	Attempt int
	Delay   time.Duration
	Message string
}

// LikeUpdate reports an optimistic like application or rollback, letting a
// view repaint before (and after) the network settles.
type LikeUpdate struct {
	Kind     string
	EntityID int
	ActorID  int
	Liked    bool
	Count    int
}

// Option customizes Client construction.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	onRetry     func(RetryNotice)
	onLike      func(LikeUpdate)
}

// WithHTTPClient substitutes the HTTP client. A cookie jar is attached
// when the given client has none; cookie-based credentials require one.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithRetryObserver registers a callback for retry notices.
func WithRetryObserver(fn func(RetryNotice)) Option {
	return func(o *options) { o.onRetry = fn }
}

// WithLikeObserver registers a callback for optimistic like updates.
func WithLikeObserver(fn func(LikeUpdate)) Option {
	return func(o *options) { o.onLike = fn }
}

// Client is the use-case facade the view layer consumes: one method per
// business operation, composing session, executor, cache and reconciler.
type Client struct {
	cfg      Config
	sessions *session.Manager
	exec     *transport.Executor
	store    kvstore.Store

	postLists cache.Cache[[]api.Post]
	posts     cache.Cache[api.Post]
	comments  cache.Cache[[]api.Comment]
	groups    *cache.Groups

	toggles *reconcile.Toggler
}

// New constructs a fully wired Client.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: observe.HTTPTransport(
				http.DefaultTransport,
				cfg.Observe.HTTPTransportEnabled,
			),
		}
	}
	if httpClient.Jar == nil {
		// cookiejar.New only errors for a non-nil Options with a nil
		// PublicSuffixList; a nil argument cannot fail.
		jar, _ := cookiejar.New(nil)
		httpClient.Jar = jar
	}

	sessions := session.NewManager(cfg.BaseURL, httpClient, cfg.authTimeout())

	var hooks transport.Hooks
	if o.onRetry != nil {
		onRetry := o.onRetry
		hooks.OnRetry = func(attempt int, delay time.Duration, message string) {
			onRetry(RetryNotice{Attempt: attempt, Delay: delay, Message: message})
		}
	}

	exec := transport.New(transport.Options{
		BaseURL:         cfg.BaseURL,
		Client:          httpClient,
		Tokens:          sessions,
		Refresher:       sessions,
		MaxAttempts:     cfg.MaxAttempts,
		BackoffBase:     cfg.backoffBase(),
		FirstRetryDelay: cfg.firstRetryDelay(),
		Timeout:         cfg.requestTimeout(),
		Hooks:           hooks,
	})

	store, err := kvstore.NewFromConfig(ctx, kvstore.Config{
		Type: cfg.Store.Type,
		Path: cfg.Store.Path,
		Valkey: kvstore.ValkeyConfig{
			Address:  cfg.Store.Valkey.Address,
			TLS:      cfg.Store.Valkey.TLS,
			Username: cfg.Store.Valkey.Username,
			Password: cfg.Store.Valkey.Password,
		},
	})
	if err != nil {
		return nil, err
	}

	postLists, err := newCache[[]api.Post](store, cfg, "post-lists")
	if err != nil {
		store.Close()
		return nil, err
	}
	posts, err := newCache[api.Post](store, cfg, "posts")
	if err != nil {
		store.Close()
		return nil, err
	}
	comments, err := newCache[[]api.Comment](store, cfg, "comments")
	if err != nil {
		store.Close()
		return nil, err
	}

	toggles := reconcile.New(exec, store)
	if o.onLike != nil {
		onLike := o.onLike
		toggles.OnApply = func(kind reconcile.Kind, entityID, actorID int, result api.LikeResult) {
			onLike(LikeUpdate{
				Kind:     string(kind),
				EntityID: entityID,
				ActorID:  actorID,
				Liked:    result.Liked,
				Count:    result.Count,
			})
		}
	}

	return &Client{
		cfg:       cfg,
		sessions:  sessions,
		exec:      exec,
		store:     store,
		postLists: postLists,
		posts:     posts,
		comments:  comments,
		groups:    cache.NewGroups(),
		toggles:   toggles,
	}, nil
}

func newCache[T any](store kvstore.Store, cfg Config, name string) (cache.Cache[T], error) {
	tiered, err := cache.NewTiered[T](store, cfg.cacheTTL(), cfg.CacheMaxEntries)
	if err != nil {
		return nil, err
	}
	return cache.NewInstrumented[T](tiered, name), nil
}

// Close releases the client's resources. In-flight retries are left to
// run to completion; their results are discarded.
func (c *Client) Close() error {
	c.postLists.Close()
	c.posts.Close()
	c.comments.Close()
	return c.store.Close()
}

// invalidateKeys drops the given cache keys, logging rather than failing:
// a missed invalidation self-heals when the TTL lapses.
func invalidateKeys[T any](ctx context.Context, c cache.Cache[T], keys ...string) {
	for _, key := range keys {
		if err := c.Invalidate(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
		}
	}
}
