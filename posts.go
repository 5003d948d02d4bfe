package olaf

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/olafsocial/olaf-go/api"
	"github.com/olafsocial/olaf-go/internal/cache"
	"github.com/olafsocial/olaf-go/internal/transport"
)

// Cache groups: every cached page of a list is recorded under its group so
// a membership-changing write can invalidate all of them at once.
const feedGroup = "posts:feed"

func userPostsGroup(userID int) string {
	return fmt.Sprintf("posts:user:%d", userID)
}

// Feed returns one page of the global feed, served from cache within the
// freshness window.
func (c *Client) Feed(ctx context.Context, page, limit int) ([]api.Post, error) {
	key := cache.FeedKey(page, limit)
	query := pageQuery(page, limit)
	return c.fetchPostList(ctx, key, feedGroup, query)
}

// UserPosts returns one page of a user's posts, served from cache within
// the freshness window.
func (c *Client) UserPosts(ctx context.Context, userID, page, limit int) ([]api.Post, error) {
	key := cache.UserPostsKey(userID, page, limit)
	query := pageQuery(page, limit)
	query.Set("user", strconv.Itoa(userID))
	return c.fetchPostList(ctx, key, userPostsGroup(userID), query)
}

func (c *Client) fetchPostList(ctx context.Context, key, group string, query url.Values) ([]api.Post, error) {
	if posts, found, err := c.postLists.Get(ctx, key); found {
		return posts, nil
	} else if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed, fetching from network")
	}

	var posts []api.Post
	err := c.exec.DoJSON(ctx, transport.Spec{
		Method: http.MethodGet,
		Path:   "/posts",
		Query:  query,
	}, &posts)
	if err != nil {
		return nil, err
	}

	if err := c.postLists.Set(ctx, key, posts); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	} else {
		c.groups.Record(group, key)
	}
	return posts, nil
}

// Post returns a single post, served from cache within the freshness
// window.
func (c *Client) Post(ctx context.Context, postID int) (api.Post, error) {
	key := cache.PostKey(postID)
	if post, found, err := c.posts.Get(ctx, key); found {
		return post, nil
	} else if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed, fetching from network")
	}

	var post api.Post
	err := c.exec.DoJSON(ctx, transport.Spec{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/posts/%d", postID),
	}, &post)
	if err != nil {
		return api.Post{}, err
	}

	if err := c.posts.Set(ctx, key, post); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return post, nil
}

// CreatePost publishes a new post and invalidates the affected lists.
func (c *Client) CreatePost(ctx context.Context, input api.PostInput) (api.Post, error) {
	var post api.Post
	err := c.exec.DoJSON(ctx, transport.Spec{
		Method: http.MethodPost,
		Path:   "/posts",
		Body:   input,
	}, &post)
	if err != nil {
		return api.Post{}, err
	}

	c.invalidatePostLists(ctx)
	return post, nil
}

// UpdatePost edits a post and invalidates its cache entries.
func (c *Client) UpdatePost(ctx context.Context, postID int, input api.PostInput) (api.Post, error) {
	var post api.Post
	err := c.exec.DoJSON(ctx, transport.Spec{
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/posts/%d", postID),
		Body:   input,
	}, &post)
	if err != nil {
		return api.Post{}, err
	}

	invalidateKeys(ctx, c.posts, cache.PostKey(postID))
	c.invalidatePostLists(ctx)
	return post, nil
}

// DeletePost removes a post. List invalidation happens synchronously with
// the successful response so a follow-up list fetch goes to the network.
func (c *Client) DeletePost(ctx context.Context, postID int) error {
	_, err := c.exec.Do(ctx, transport.Spec{
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("/posts/%d", postID),
	})
	if err != nil {
		return err
	}

	invalidateKeys(ctx, c.posts, cache.PostKey(postID))
	invalidateKeys(ctx, c.comments, cache.CommentListKey(postID))
	c.invalidatePostLists(ctx)
	return nil
}

// invalidatePostLists drops every cached feed page plus the current
// user's list pages. Other users' cached lists age out via TTL; only the
// session user can have changed membership from this client.
func (c *Client) invalidatePostLists(ctx context.Context) {
	keys := c.groups.Drain(feedGroup)
	if sess := c.sessions.Current(); sess.Authenticated() {
		keys = append(keys, c.groups.Drain(userPostsGroup(sess.User.ID))...)
	}
	invalidateKeys(ctx, c.postLists, keys...)
}

func pageQuery(page, limit int) url.Values {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return query
}
