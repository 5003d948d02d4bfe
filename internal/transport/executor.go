// Package transport executes logical API requests with uniform retry,
// auth-refresh and error normalization. Every outbound call the SDK makes
// (outside the auth endpoints themselves) goes through the Executor.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/olafsocial/olaf-go/api"
	"github.com/olafsocial/olaf-go/internal/session"
)

// TokenSource supplies the anti-forgery token for outbound requests and
// receives rotated tokens observed on responses. The session manager
// implements it; the executor never writes credential state itself.
type TokenSource interface {
	Token() string
	StoreToken(token string)
}

// Refresher renews the session after a 401. The session manager
// implements it with single-flight semantics.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Hooks are optional observation points for the view layer: progressive
// retry messaging, spinners, request logging.
type Hooks struct {
	// OnRetry fires before each retry wait with the attempt that failed
	// (1-based), the upcoming delay and the user-facing message tier.
	OnRetry func(attempt int, delay time.Duration, message string)

	// OnResponse fires for every completed attempt that produced a
	// response.
	OnResponse func(method, path string, status int, elapsed time.Duration)
}

// Options configures an Executor.
type Options struct {
	BaseURL   string
	Client    *http.Client
	Tokens    TokenSource
	Refresher Refresher

	// MaxAttempts bounds the transient-failure retry loop (default 3).
	MaxAttempts int

	// BackoffBase is the first retry delay; subsequent delays double
	// (default 1s).
	BackoffBase time.Duration

	// FirstRetryDelay, when non-zero, replaces the first delay. Used for
	// backends known to cold-start, where the first retry should wait
	// well past the exponential schedule.
	FirstRetryDelay time.Duration

	// Jitter is the backoff randomization factor in [0,1) (default 0.25).
	Jitter float64

	// Timeout is the per-attempt request timeout (default 15s). The
	// retry loop itself is not time-bounded.
	Timeout time.Duration

	Hooks Hooks
}

// Spec describes one logical request.
type Spec struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Timeout overrides the executor's per-attempt timeout when non-zero.
	Timeout time.Duration
}

// Result is a normalized successful response.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// Executor runs requests with bounded retry. It may trigger a session
// refresh but never touches the cache; callers own cache population and
// invalidation.
type Executor struct {
	baseURL   string
	client    *http.Client
	tokens    TokenSource
	refresher Refresher
	hooks     Hooks

	maxAttempts     int
	backoffBase     time.Duration
	firstRetryDelay time.Duration
	jitter          float64
	timeout         time.Duration

	// sleep is replaceable so retry tests don't wall-clock wait.
	sleep func(time.Duration)
}

// New creates an Executor. Zero option fields fall back to defaults.
func New(opts Options) *Executor {
	e := &Executor{
		baseURL:         opts.BaseURL,
		client:          opts.Client,
		tokens:          opts.Tokens,
		refresher:       opts.Refresher,
		hooks:           opts.Hooks,
		maxAttempts:     opts.MaxAttempts,
		backoffBase:     opts.BackoffBase,
		firstRetryDelay: opts.FirstRetryDelay,
		jitter:          opts.Jitter,
		timeout:         opts.Timeout,
		sleep:           time.Sleep,
	}
	if e.client == nil {
		e.client = http.DefaultClient
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = 3
	}
	if e.backoffBase <= 0 {
		e.backoffBase = time.Second
	}
	if e.jitter == 0 {
		e.jitter = 0.25
	}
	if e.timeout <= 0 {
		e.timeout = 15 * time.Second
	}
	return e
}

// retryState tracks one call chain's budget. It exists for the lifetime
// of a single Do invocation, including its refresh-and-resend if any.
type retryState struct {
	attempt     int
	maxAttempts int
	lastDelay   time.Duration
	refreshed   bool
}

// retryableStatus holds the response codes treated as transient.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Do executes the request described by spec. The returned error, when
// non-nil, is always a *api.Error.
//
// Callers that abandon interest simply stop waiting: the chain detaches
// from the caller's cancellation so in-flight retries run to completion
// and their result is discarded.
func (e *Executor) Do(ctx context.Context, spec Spec) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	var body []byte
	if spec.Body != nil {
		var err error
		body, err = json.Marshal(spec.Body)
		if err != nil {
			return nil, api.Errorf(api.KindUnknown, "encoding request body: %v", err)
		}
	}

	chain := uuid.NewString()

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     e.backoffBase,
		RandomizationFactor: e.jitter,
		Multiplier:          2,
		MaxInterval:         30 * time.Second,
	}
	bo.Reset()

	state := retryState{attempt: 1, maxAttempts: e.maxAttempts}

	for {
		result, err := e.send(ctx, spec, body)

		if err != nil {
			// Failures produced before any network I/O (bad path, bad
			// method) are deterministic; retrying cannot help.
			if fatal := asAPIError(err); fatal.Kind == api.KindUnknown {
				return nil, fatal
			}
		} else {
			switch {
			case result.Status >= 200 && result.Status < 300:
				return result, nil

			case result.Status == http.StatusUnauthorized:
				if state.refreshed || e.refresher == nil {
					return nil, &api.Error{
						Kind:    api.KindUnauthorized,
						Status:  http.StatusUnauthorized,
						Message: "session expired, login required",
					}
				}
				// One refresh per chain. The resend does not consume
				// the transient-retry budget.
				state.refreshed = true
				if rerr := e.refresher.Refresh(ctx); rerr != nil {
					log.Info().Str("chain", chain).Err(rerr).Msg("refresh failed, not retrying")
					return nil, &api.Error{
						Kind:    api.KindUnauthorized,
						Status:  http.StatusUnauthorized,
						Message: "session expired, login required",
					}
				}
				log.Debug().Str("chain", chain).Msg("session refreshed, resending request")
				continue

			case !retryableStatus[result.Status]:
				return nil, api.FromResponse(result.Status, result.Body)

			default:
				err = api.FromResponse(result.Status, result.Body)
			}
		}

		// err is a transient failure: network, timeout, or retryable
		// status. Either wait and go again, or give up with the final
		// message tier.
		apiErr := asAPIError(err)
		if state.attempt >= state.maxAttempts {
			apiErr.Message = api.RetryMessage(state.attempt, state.maxAttempts)
			log.Info().
				Str("chain", chain).
				Str("method", spec.Method).
				Str("path", spec.Path).
				Int("attempts", state.attempt).
				Msg("retry budget exhausted")
			return nil, apiErr
		}

		delay := bo.NextBackOff()
		if state.attempt == 1 && e.firstRetryDelay > 0 {
			delay = e.firstRetryDelay
		}
		message := api.RetryMessage(state.attempt, state.maxAttempts)
		if e.hooks.OnRetry != nil {
			e.hooks.OnRetry(state.attempt, delay, message)
		}
		log.Debug().
			Str("chain", chain).
			Str("method", spec.Method).
			Str("path", spec.Path).
			Int("attempt", state.attempt).
			Dur("delay", delay).
			Str("kind", string(apiErr.Kind)).
			Msg("transient failure, backing off")

		e.sleep(delay)
		state.lastDelay = delay
		state.attempt++
	}
}

// DoJSON executes the request and decodes a successful response body.
func (e *Executor) DoJSON(ctx context.Context, spec Spec, out any) error {
	result, err := e.Do(ctx, spec)
	if err != nil {
		return err
	}
	if out == nil || len(result.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Body, out); err != nil {
		return api.Errorf(api.KindUnknown, "decoding response body: %v", err)
	}
	return nil
}

// send performs a single attempt: build, send, slurp. Any response,
// success or not, has its rotated anti-forgery token captured before
// classification.
func (e *Executor) send(ctx context.Context, spec Spec, body []byte) (*Result, error) {
	endpoint, err := url.JoinPath(e.baseURL, spec.Path)
	if err != nil {
		return nil, api.Errorf(api.KindUnknown, "building request url: %v", err)
	}
	if len(spec.Query) > 0 {
		endpoint += "?" + spec.Query.Encode()
	}

	timeout := e.timeout
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, endpoint, reader)
	if err != nil {
		return nil, api.Errorf(api.KindUnknown, "building request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.tokens != nil {
		// Attach when present; absence is not fatal, the server rejects
		// the individual call if it cares.
		if token := e.tokens.Token(); token != "" {
			req.Header.Set(session.HeaderCSRF, token)
		}
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, api.Errorf(api.KindTimeout, "request timed out: %v", err)
		}
		return nil, api.Errorf(api.KindNetworkError, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if e.tokens != nil {
		e.tokens.StoreToken(resp.Header.Get(session.HeaderCSRF))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, api.Errorf(api.KindNetworkError, "reading response: %v", err)
	}

	if e.hooks.OnResponse != nil {
		e.hooks.OnResponse(spec.Method, spec.Path, resp.StatusCode, time.Since(start))
	}

	return &Result{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// asAPIError guarantees the uniform error type at the boundary.
func asAPIError(err error) *api.Error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &api.Error{Kind: api.KindUnknown, Message: err.Error()}
}
