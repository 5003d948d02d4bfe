package olaf

import (
	"context"

	"github.com/olafsocial/olaf-go/api"
	"github.com/olafsocial/olaf-go/internal/cache"
	"github.com/olafsocial/olaf-go/internal/reconcile"
)

// TogglePostLike flips the current user's like on a post. The optimistic
// state is observable through the like observer before the network call
// settles; the returned result is the reconciled one.
func (c *Client) TogglePostLike(ctx context.Context, postID int, currentlyLiked bool, currentCount int) (api.LikeResult, error) {
	sess := c.sessions.Current()
	if !sess.Authenticated() {
		return api.LikeResult{}, api.Errorf(api.KindUnauthorized, "login required to like posts")
	}

	result, err := c.toggles.TogglePost(ctx, postID, sess.User.ID, currentlyLiked, currentCount)
	if err != nil {
		return api.LikeResult{}, err
	}

	// The cached post now carries a stale count.
	invalidateKeys(ctx, c.posts, cache.PostKey(postID))
	return result, nil
}

// ToggleCommentLike flips the current user's like on a comment. The postID
// locates the comment list entry to invalidate.
func (c *Client) ToggleCommentLike(ctx context.Context, commentID, postID int, currentlyLiked bool, currentCount int) (api.LikeResult, error) {
	sess := c.sessions.Current()
	if !sess.Authenticated() {
		return api.LikeResult{}, api.Errorf(api.KindUnauthorized, "login required to like comments")
	}

	result, err := c.toggles.ToggleComment(ctx, commentID, sess.User.ID, currentlyLiked, currentCount)
	if err != nil {
		return api.LikeResult{}, err
	}

	invalidateKeys(ctx, c.comments, cache.CommentListKey(postID))
	return result, nil
}

// PostLiked reports the last known toggle state for the current user on a
// post, and whether any state has been recorded. The boolean is advisory:
// server responses remain the source of truth for counts.
func (c *Client) PostLiked(ctx context.Context, postID int) (liked, known bool) {
	sess := c.sessions.Current()
	if !sess.Authenticated() {
		return false, false
	}
	return c.toggles.Active(ctx, reconcile.KindPost, postID, sess.User.ID)
}

// CommentLiked reports the last known toggle state for the current user on
// a comment.
func (c *Client) CommentLiked(ctx context.Context, commentID int) (liked, known bool) {
	sess := c.sessions.Current()
	if !sess.Authenticated() {
		return false, false
	}
	return c.toggles.Active(ctx, reconcile.KindComment, commentID, sess.User.ID)
}
