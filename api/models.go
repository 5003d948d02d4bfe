// Package api holds the wire-level types exchanged with the Olaf backend,
// along with the normalized error taxonomy every SDK operation reports
// through.
package api

import "time"

// UserSummary is the public shape of an account, as returned by the auth
// and content endpoints.
type UserSummary struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// SessionState tracks where the client sits in the session lifecycle.
// A freshly constructed client is Unknown until a probe or login resolves
// it one way or the other.
type SessionState string

const (
	SessionUnknown       SessionState = "unknown"
	SessionAnonymous     SessionState = "anonymous"
	SessionAuthenticated SessionState = "authenticated"
)

// Session is a read-only snapshot of the client's session. The anti-forgery
// token is deliberately not part of the snapshot; it never leaves the SDK.
type Session struct {
	State SessionState
	User  UserSummary
}

// Authenticated reports whether the snapshot represents a live login.
func (s Session) Authenticated() bool {
	return s.State == SessionAuthenticated
}

// Post is a published entry in the feed.
type Post struct {
	ID           int         `json:"id"`
	Author       UserSummary `json:"author"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	ImageURL     string      `json:"imageUrl,omitempty"`
	LikeCount    int         `json:"likeCount"`
	CommentCount int         `json:"commentCount"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt,omitempty"`
}

// PostInput carries the writable fields for creating or updating a post.
type PostInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Comment is a reply attached to a post.
type Comment struct {
	ID        int         `json:"id"`
	PostID    int         `json:"postId"`
	Author    UserSummary `json:"author"`
	Content   string      `json:"content"`
	LikeCount int         `json:"likeCount"`
	CreatedAt time.Time   `json:"createdAt"`
}

// CommentInput carries the writable fields for creating or updating a
// comment.
type CommentInput struct {
	PostID  int    `json:"postId"`
	Content string `json:"content"`
}

// RegisterInput carries the fields for account creation.
type RegisterInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// LikeResult is the outcome of a like toggle: the (locally known) toggle
// state and the count the caller should display. Count is authoritative
// when the server returned one, otherwise it is the optimistic estimate.
type LikeResult struct {
	Liked bool `json:"liked"`
	Count int  `json:"count"`
}
