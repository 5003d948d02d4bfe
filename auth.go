package olaf

import (
	"context"

	"github.com/olafsocial/olaf-go/api"
)

// Login authenticates with the backend. On success the session becomes
// Authenticated and subsequent mutating calls carry the anti-forgery
// token.
func (c *Client) Login(ctx context.Context, identity, secret string) (api.UserSummary, error) {
	return c.sessions.Login(ctx, identity, secret)
}

// Register creates an account and establishes the session.
func (c *Client) Register(ctx context.Context, input api.RegisterInput) (api.UserSummary, error) {
	return c.sessions.Register(ctx, input)
}

// Logout ends the session. Local state clears even when the server call
// fails; after Logout the session is always Anonymous.
func (c *Client) Logout(ctx context.Context) {
	c.sessions.Logout(ctx)
}

// ProbeSession checks whether a previously established server session is
// still live. Call it once at startup; a failure means Anonymous and is
// not retried.
func (c *Client) ProbeSession(ctx context.Context) (api.UserSummary, error) {
	return c.sessions.Probe(ctx)
}

// CurrentSession returns a snapshot of the session state.
func (c *Client) CurrentSession() api.Session {
	return c.sessions.Current()
}
