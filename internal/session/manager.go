package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/olafsocial/olaf-go/api"
)

// HeaderCSRF is the header carrying the anti-forgery token, on requests
// and on responses that rotate it.
const HeaderCSRF = "X-CSRF-Token"

// Manager establishes, refreshes and tears down the session. Credentials
// are cookie-based: the http.Client's jar (shared with the executor) holds
// them, the manager tracks the anti-forgery token and the session state.
//
// Auth calls are single-attempt on purpose. Refresh failure must never be
// retried (it would loop), and a probe that fails simply means "not
// authenticated".
type Manager struct {
	creds   *Credentials
	client  *http.Client
	baseURL string
	timeout time.Duration

	// refreshes coalesces concurrent refresh calls into one in-flight
	// request shared by all waiters.
	refreshes singleflight.Group
}

// NewManager creates a session manager. The http.Client must carry a
// cookie jar; the same client (and jar) should back the request executor
// so both see the session cookies.
func NewManager(baseURL string, client *http.Client, timeout time.Duration) *Manager {
	return &Manager{
		creds:   NewCredentials(),
		client:  client,
		baseURL: baseURL,
		timeout: timeout,
	}
}

// Credentials exposes the read side of the credential store.
func (m *Manager) Credentials() *Credentials {
	return m.creds
}

// Current returns a snapshot of the session.
func (m *Manager) Current() api.Session {
	return m.creds.Snapshot()
}

// Token implements the executor's token source.
func (m *Manager) Token() string {
	return m.creds.Token()
}

// StoreToken records a rotated anti-forgery token observed on a response.
// The executor funnels rotations through here so the manager remains the
// sole writer of credential state.
func (m *Manager) StoreToken(token string) {
	m.creds.setToken(token)
}

// Login authenticates with the backend. On success the session becomes
// Authenticated and any anti-forgery token on the response is stored.
func (m *Manager) Login(ctx context.Context, identity, secret string) (api.UserSummary, error) {
	if err := m.ensureToken(ctx); err != nil {
		log.Debug().Err(err).Msg("csrf fetch before login failed, proceeding without token")
	}

	body := map[string]string{"identity": identity, "password": secret}
	var user api.UserSummary
	if err := m.do(ctx, http.MethodPost, "/auth/login", body, &user); err != nil {
		return api.UserSummary{}, loginError(err)
	}

	m.creds.setAuthenticated(user)
	log.Info().Int("user_id", user.ID).Msg("session established")
	return user, nil
}

// Register creates an account and, like login, establishes the session
// when the backend confirms it.
func (m *Manager) Register(ctx context.Context, input api.RegisterInput) (api.UserSummary, error) {
	if err := m.ensureToken(ctx); err != nil {
		log.Debug().Err(err).Msg("csrf fetch before register failed, proceeding without token")
	}

	var user api.UserSummary
	if err := m.do(ctx, http.MethodPost, "/auth/register", input, &user); err != nil {
		return api.UserSummary{}, loginError(err)
	}

	m.creds.setAuthenticated(user)
	return user, nil
}

// Refresh renews the server session using the existing cookies. Concurrent
// callers share one in-flight refresh. On success the anti-forgery token
// is rotated; on failure the session is cleared and the error propagates.
// Refresh is never retried.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshes.Do("refresh", func() (any, error) {
		err := m.do(ctx, http.MethodPost, "/auth/refresh", nil, nil)
		if err != nil {
			log.Info().Err(err).Msg("session refresh failed, clearing session")
			m.creds.clear()
			return nil, err
		}
		return nil, nil
	})
	return err
}

// Logout ends the session. The server call is best-effort: local state is
// cleared unconditionally, even when the network is down.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		log.Info().Err(err).Msg("logout request failed, clearing session locally")
	}
	m.creds.clear()
}

// Probe performs the idempotent "who am I" check, used once at startup to
// resolve the Unknown state. A failed probe is treated as Anonymous and is
// never retried.
func (m *Manager) Probe(ctx context.Context) (api.UserSummary, error) {
	var user api.UserSummary
	if err := m.do(ctx, http.MethodGet, "/auth/user", nil, &user); err != nil {
		m.creds.clear()
		return api.UserSummary{}, err
	}

	m.creds.setAuthenticated(user)
	return user, nil
}

// ensureToken fetches an initial anti-forgery token when none is held. A
// missing token is not fatal; the server may reject the individual call.
func (m *Manager) ensureToken(ctx context.Context) error {
	if m.creds.Token() != "" {
		return nil
	}
	return m.do(ctx, http.MethodGet, "/auth/csrf", nil, nil)
}

// do issues a single-attempt request against an auth endpoint, attaching
// the anti-forgery token and capturing any rotated token on the response.
func (m *Manager) do(ctx context.Context, method, path string, body, out any) error {
	endpoint, err := url.JoinPath(m.baseURL, path)
	if err != nil {
		return api.Errorf(api.KindUnknown, "building auth url: %v", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return api.Errorf(api.KindUnknown, "encoding auth request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return api.Errorf(api.KindUnknown, "building auth request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := m.creds.Token(); token != "" {
		req.Header.Set(HeaderCSRF, token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return api.Errorf(api.KindTimeout, "auth request timed out: %v", err)
		}
		return api.Errorf(api.KindNetworkError, "auth request failed: %v", err)
	}
	defer resp.Body.Close()

	m.creds.setToken(resp.Header.Get(HeaderCSRF))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.Errorf(api.KindNetworkError, "reading auth response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return api.FromResponse(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return api.Errorf(api.KindUnknown, "decoding auth response: %v", err)
		}
	}
	return nil
}

// loginError maps backend failures onto the credential-flow taxonomy:
// 401 means the credentials were wrong, 4xx validation surfaces as-is,
// and transport trouble reads as the server being unavailable.
func loginError(err error) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Kind == api.KindUnauthorized && apiErr.Message == http.StatusText(http.StatusUnauthorized) {
		return &api.Error{
			Kind:    api.KindUnauthorized,
			Status:  apiErr.Status,
			Message: "invalid credentials",
		}
	}
	if apiErr.Kind == api.KindNetworkError || apiErr.Kind == api.KindServerError {
		return &api.Error{
			Kind:    apiErr.Kind,
			Status:  apiErr.Status,
			Message: fmt.Sprintf("server unavailable: %s", apiErr.Message),
		}
	}
	return apiErr
}
