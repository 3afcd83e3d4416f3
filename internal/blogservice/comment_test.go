package blogservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildThreads(t *testing.T) {
	comments := []*Comment{
		{ID: "a", Content: "first"},
		{ID: "b", Content: "second"},
		{ID: "a1", ParentCommentID: strptr("a"), Content: "reply to first"},
		{ID: "a1x", ParentCommentID: strptr("a1"), Content: "nested reply"},
		{ID: "a2", ParentCommentID: strptr("a"), Content: "another reply"},
		{ID: "orphan", ParentCommentID: strptr("gone"), Content: "parent missing"},
	}

	threads := buildThreads(comments)
	require.Len(t, threads, 3)

	assert.Equal(t, "a", threads[0].ID)
	assert.Equal(t, "b", threads[1].ID)
	assert.Equal(t, "orphan", threads[2].ID)

	require.Len(t, threads[0].Replies, 2)
	assert.Equal(t, "a1", threads[0].Replies[0].ID)
	assert.Equal(t, "a2", threads[0].Replies[1].ID)

	require.Len(t, threads[0].Replies[0].Replies, 1)
	assert.Equal(t, "a1x", threads[0].Replies[0].Replies[0].ID)

	assert.Empty(t, threads[1].Replies)
}

func TestBuildThreadsEmpty(t *testing.T) {
	assert.Equal(t, []*CommentThread{}, buildThreads(nil))
}
