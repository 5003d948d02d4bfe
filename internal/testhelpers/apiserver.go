// Package testhelpers provides a fake Olaf API server for package tests:
// cookie-based login, anti-forgery token issue/rotation, a small post set,
// and per-route call counting so tests can assert cache behavior.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	// TestToken is the anti-forgery token the fake server issues.
	TestToken = "csrf-test-token"

	// RotatedToken is issued by the refresh endpoint.
	RotatedToken = "csrf-rotated-token"

	sessionCookie = "olaf_session"
	csrfHeader    = "X-CSRF-Token"
)

// Post mirrors the wire shape the SDK expects from /posts.
type Post struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	LikeCount int    `json:"likeCount"`
	Author    User   `json:"author"`
}

// User mirrors the wire shape of an account.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// APIServer is a configurable fake backend.
type APIServer struct {
	*httptest.Server

	mu    sync.Mutex
	calls map[string]int

	// User is returned from login and /auth/user.
	User User

	// Posts backs /posts. Deleting removes from the slice.
	Posts []Post

	// RefreshOK controls whether /auth/refresh succeeds.
	RefreshOK bool

	// FailLogin forces /auth/login to return 401.
	FailLogin bool

	// PostStatus, when non-zero, is returned for every /posts request;
	// used for retry and 401 tests. PostStatusTimes bounds how many
	// requests fail before normal behavior resumes (0 means always).
	PostStatus      int
	PostStatusTimes int
}

// NewAPIServer starts a fake backend; it stops with the test.
func NewAPIServer(t *testing.T) *APIServer {
	t.Helper()

	s := &APIServer{
		calls:     make(map[string]int),
		User:      User{ID: 5, Username: "olaf"},
		RefreshOK: true,
		Posts: []Post{
			{ID: 7, Title: "first post", LikeCount: 3, Author: User{ID: 5, Username: "olaf"}},
			{ID: 8, Title: "second post", LikeCount: 0, Author: User{ID: 5, Username: "olaf"}},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/csrf", s.handleCSRF)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /auth/user", s.handleUser)
	mux.HandleFunc("/posts", s.handlePosts)
	mux.HandleFunc("/posts/{id}", s.handlePost)
	mux.HandleFunc("/comments", s.handleComments)
	mux.HandleFunc("POST /postlikes", s.handleLikeCreate)
	mux.HandleFunc("DELETE /postlikes/{post}/{user}", s.handleLikeDelete)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// Calls returns how many requests hit the given method+path pattern, e.g.
// "GET /posts".
func (s *APIServer) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *APIServer) count(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[route]++
}

func (s *APIServer) handleCSRF(w http.ResponseWriter, r *http.Request) {
	s.count("GET /auth/csrf")
	w.Header().Set(csrfHeader, TestToken)
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.count("POST /auth/login")
	if s.FailLogin {
		http.Error(w, `{"message":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "session-1", Path: "/"})
	w.Header().Set(csrfHeader, TestToken)
	writeJSON(w, s.User)
}

func (s *APIServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.count("POST /auth/logout")
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", MaxAge: -1, Path: "/"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.count("POST /auth/refresh")
	if !s.RefreshOK {
		http.Error(w, `{"message":"refresh token expired"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set(csrfHeader, RotatedToken)
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleUser(w http.ResponseWriter, r *http.Request) {
	s.count("GET /auth/user")
	if !s.authenticated(r) {
		http.Error(w, `{"message":"no session"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, s.User)
}

func (s *APIServer) handlePosts(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " /posts"
	s.count(route)

	if s.failInjected(w) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.Posts)
	case http.MethodPost:
		post := Post{ID: 100 + len(s.Posts), Title: "created", Author: s.User}
		s.mu.Lock()
		s.Posts = append(s.Posts, post)
		s.mu.Unlock()
		writeJSON(w, post)
	default:
		http.NotFound(w, r)
	}
}

func (s *APIServer) handlePost(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " /posts/{id}"
	s.count(route)

	if s.failInjected(w) {
		return
	}

	id, _ := strconv.Atoi(r.PathValue("id"))
	switch r.Method {
	case http.MethodGet, http.MethodPut:
		for _, post := range s.Posts {
			if post.ID == id {
				writeJSON(w, post)
				return
			}
		}
		http.Error(w, `{"message":"post not found"}`, http.StatusNotFound)
	case http.MethodDelete:
		s.mu.Lock()
		kept := s.Posts[:0]
		for _, post := range s.Posts {
			if post.ID != id {
				kept = append(kept, post)
			}
		}
		s.Posts = kept
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (s *APIServer) handleComments(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " /comments"
	s.count(route)

	switch r.Method {
	case http.MethodGet:
		fmt.Fprint(w, `[]`)
	case http.MethodPost:
		fmt.Fprint(w, `{"id":1,"postId":7,"content":"hello"}`)
	default:
		http.NotFound(w, r)
	}
}

func (s *APIServer) handleLikeCreate(w http.ResponseWriter, r *http.Request) {
	s.count("POST /postlikes")
	writeJSON(w, map[string]int{"count": 4})
}

func (s *APIServer) handleLikeDelete(w http.ResponseWriter, r *http.Request) {
	s.count("DELETE /postlikes")
	writeJSON(w, map[string]int{"count": 2})
}

// failInjected applies the configured failure status, decrementing the
// bounded counter when one is set. Returns true when the response was
// taken over.
func (s *APIServer) failInjected(w http.ResponseWriter) bool {
	s.mu.Lock()
	status := s.PostStatus
	if status != 0 && s.PostStatusTimes > 0 {
		s.PostStatusTimes--
		if s.PostStatusTimes == 0 {
			s.PostStatus = 0
		}
	}
	s.mu.Unlock()

	if status == 0 {
		return false
	}
	http.Error(w, `{"message":"injected failure"}`, status)
	return true
}

func (s *APIServer) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	return err == nil && strings.HasPrefix(cookie.Value, "session-")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
