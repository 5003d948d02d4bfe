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

// Comments returns a post's comments, served from cache within the
// freshness window.
func (c *Client) Comments(ctx context.Context, postID int) ([]api.Comment, error) {
	key := cache.CommentListKey(postID)
	if comments, found, err := c.comments.Get(ctx, key); found {
		return comments, nil
	} else if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed, fetching from network")
	}

	query := url.Values{}
	query.Set("post", strconv.Itoa(postID))

	var comments []api.Comment
	err := c.exec.DoJSON(ctx, transport.Spec{
		Method: http.MethodGet,
		Path:   "/comments",
		Query:  query,
	}, &comments)
	if err != nil {
		return nil, err
	}

	if err := c.comments.Set(ctx, key, comments); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return comments, nil
}

// CreateComment posts a comment and invalidates the post's comment list
// and the post itself (its comment count changed).
func (c *Client) CreateComment(ctx context.Context, input api.CommentInput) (api.Comment, error) {
	var comment api.Comment
	err := c.exec.DoJSON(ctx, transport.Spec{
		Method: http.MethodPost,
		Path:   "/comments",
		Body:   input,
	}, &comment)
	if err != nil {
		return api.Comment{}, err
	}

	c.invalidateCommentCaches(ctx, input.PostID)
	return comment, nil
}

// UpdateComment edits a comment.
func (c *Client) UpdateComment(ctx context.Context, commentID, postID int, content string) (api.Comment, error) {
	var comment api.Comment
	err := c.exec.DoJSON(ctx, transport.Spec{
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/comments/%d", commentID),
		Body:   map[string]string{"content": content},
	}, &comment)
	if err != nil {
		return api.Comment{}, err
	}

	invalidateKeys(ctx, c.comments, cache.CommentListKey(postID))
	return comment, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, commentID, postID int) error {
	_, err := c.exec.Do(ctx, transport.Spec{
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("/comments/%d", commentID),
	})
	if err != nil {
		return err
	}

	c.invalidateCommentCaches(ctx, postID)
	return nil
}

func (c *Client) invalidateCommentCaches(ctx context.Context, postID int) {
	invalidateKeys(ctx, c.comments, cache.CommentListKey(postID))
	invalidateKeys(ctx, c.posts, cache.PostKey(postID))
}
