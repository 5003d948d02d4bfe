package cache

import (
	"fmt"
	"sync"
)

// Cache keys are built in one place so list addressing stays consistent.
// Page number and limit are part of the key: "load more" pages are
// independent entries, never merged ranges.

// FeedKey addresses one page of the global feed.
func FeedKey(page, limit int) string {
	return fmt.Sprintf("posts:feed:page=%d:limit=%d", page, limit)
}

// UserPostsKey addresses one page of a user's posts.
func UserPostsKey(userID, page, limit int) string {
	return fmt.Sprintf("posts:user=%d:page=%d:limit=%d", userID, page, limit)
}

// PostKey addresses a single post.
func PostKey(postID int) string {
	return fmt.Sprintf("post:%d", postID)
}

// CommentListKey addresses the comments of a post.
func CommentListKey(postID int) string {
	return fmt.Sprintf("comments:post=%d", postID)
}

// Groups tracks which cache keys were populated under which logical group
// (e.g. every cached page of one user's post list), so a membership-changing
// write can invalidate the whole group without being able to enumerate key
// parameters. Keys are recorded on Set and drained on invalidation.
type Groups struct {
	mu sync.Mutex
	m  map[string]map[string]struct{}
}

// NewGroups creates an empty group registry.
func NewGroups() *Groups {
	return &Groups{m: make(map[string]map[string]struct{})}
}

// Record registers key under group.
func (g *Groups) Record(group, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys, ok := g.m[group]
	if !ok {
		keys = make(map[string]struct{})
		g.m[group] = keys
	}
	keys[key] = struct{}{}
}

// Drain removes and returns all keys recorded under group.
func (g *Groups) Drain(group string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := g.m[group]
	delete(g.m, group)
	result := make([]string, 0, len(keys))
	for key := range keys {
		result = append(result, key)
	}
	return result
}
