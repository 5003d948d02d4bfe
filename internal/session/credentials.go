// Package session owns the client's authenticated-session lifecycle: the
// credential store, login/logout/refresh against the auth endpoints, and
// the anti-forgery token. The Manager is the only writer of this state.
package session

import (
	"sync"

	"github.com/olafsocial/olaf-go/api"
)

// Credentials holds the anti-forgery token and the session snapshot. It
// performs no network I/O. All mutation happens through the Manager; other
// components only read.
type Credentials struct {
	mu    sync.RWMutex
	token string
	state api.SessionState
	user  api.UserSummary
}

// NewCredentials creates an empty credential store in the Unknown state.
func NewCredentials() *Credentials {
	return &Credentials{state: api.SessionUnknown}
}

// Token returns the current anti-forgery token, or empty when none has
// been obtained yet.
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Snapshot returns a copy of the current session state.
func (c *Credentials) Snapshot() api.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return api.Session{State: c.state, User: c.user}
}

func (c *Credentials) setToken(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Credentials) setAuthenticated(user api.UserSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = api.SessionAuthenticated
	c.user = user
}

// clear resets to Anonymous, dropping the user and the anti-forgery token.
func (c *Credentials) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = api.SessionAnonymous
	c.user = api.UserSummary{}
	c.token = ""
}
