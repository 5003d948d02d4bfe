package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys_PageIsPartOfTheKey(t *testing.T) {
	assert.NotEqual(t, FeedKey(1, 10), FeedKey(2, 10))
	assert.NotEqual(t, FeedKey(1, 10), FeedKey(1, 20))
	assert.NotEqual(t, UserPostsKey(5, 1, 10), UserPostsKey(6, 1, 10))
	assert.NotEqual(t, PostKey(7), PostKey(8))
}

func TestGroups_RecordAndDrain(t *testing.T) {
	groups := NewGroups()

	groups.Record("feed", FeedKey(1, 10))
	groups.Record("feed", FeedKey(2, 10))
	groups.Record("feed", FeedKey(2, 10)) // duplicate is a no-op
	groups.Record("user:5", UserPostsKey(5, 1, 10))

	drained := groups.Drain("feed")
	assert.ElementsMatch(t, []string{FeedKey(1, 10), FeedKey(2, 10)}, drained)

	// drained groups are empty
	assert.Empty(t, groups.Drain("feed"))

	// other groups untouched
	assert.Len(t, groups.Drain("user:5"), 1)
}
