package blogservice

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushihentaime/teamblog/internal/common"
)

type fakeNotifier struct {
	mu          sync.Mutex
	notified    []string
	excluded    []string
	invalidated []string
}

func (f *fakeNotifier) NotifyBlogParticipants(ctx context.Context, b *Blog, excludeUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, b.ID)
	f.excluded = append(f.excluded, excludeUserID)
	return nil
}

func (f *fakeNotifier) InvalidateUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
	return nil
}

// failingFiles records every key and fails each delete.
type failingFiles struct {
	keys []string
}

func (f *failingFiles) Delete(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	return errors.New("storage unavailable")
}

type fakeEmails struct{}

func (fakeEmails) GetEmails(ctx context.Context, ids []string) ([]string, error) {
	emails := make([]string, len(ids))
	for i, id := range ids {
		emails[i] = id + "@example.com"
	}
	return emails, nil
}

type recordingProducer struct {
	msgs [][]byte
	keys []common.BindingKey
}

func (p *recordingProducer) Publish(ctx context.Context, msg []byte, key common.BindingKey, exchange common.Exchange) error {
	p.msgs = append(p.msgs, msg)
	p.keys = append(p.keys, key)
	return nil
}

type testEnv struct {
	s        *BlogService
	db       *sql.DB
	notifier *fakeNotifier
	files    *failingFiles
	producer *recordingProducer
}

// setupTestUser is a helper function to create a test user in the database.
func setupTestUser(t *testing.T, db *sql.DB, username string) string {
	password := make([]byte, 16)
	_, err := rand.Read(password)
	require.NoError(t, err)

	id := common.NewID()
	_, err = db.Exec(`INSERT INTO users (id, username, email, password, activated) VALUES ($1, $2, $3, $4, true)`,
		id, username, username+"@example.com", password)
	require.NoError(t, err)

	return id
}

func setupTestEnvironment(t *testing.T) *testEnv {
	db := common.TestDB("file://../../migrations", t)

	env := &testEnv{
		db:       db,
		notifier: &fakeNotifier{},
		files:    &failingFiles{},
		producer: &recordingProducer{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.s = NewBlogService(db, logger,
		WithNotifier(env.notifier),
		WithFileRemover(env.files),
		WithPostEvents(env.producer, fakeEmails{}),
	)

	return env
}

func (env *testEnv) cleanup(t *testing.T) {
	for _, table := range []string{"blogs", "users"} {
		_, err := env.db.Exec("DELETE FROM " + table)
		assert.NoError(t, err)
	}
}

func TestCreateBlog(t *testing.T) {
	env := setupTestEnvironment(t)

	testCases := []struct {
		name        string
		req         *CreateBlogRequest
		anonymous   bool
		expectedErr error
	}{
		{
			name: "valid blog",
			req:  &CreateBlogRequest{Title: "Test Blog", Content: "This is a test blog.", Status: StatusPrivate},
		},
		{
			name: "default status",
			req:  &CreateBlogRequest{Title: "Test Blog", Content: "This is a test blog."},
		},
		{
			name:        "empty title",
			req:         &CreateBlogRequest{Title: "", Content: "This is a test blog."},
			expectedErr: common.ValidationError{Errors: map[string]string{"title": "must be provided"}},
		},
		{
			name:        "empty content",
			req:         &CreateBlogRequest{Title: "Test Blog", Content: ""},
			expectedErr: common.ValidationError{Errors: map[string]string{"content": "must be provided"}},
		},
		{
			name:        "bad status",
			req:         &CreateBlogRequest{Title: "Test Blog", Content: "body", Status: "draft"},
			expectedErr: common.ValidationError{Errors: map[string]string{"status": "must be public or private"}},
		},
		{
			name:        "anonymous",
			req:         &CreateBlogRequest{Title: "Test Blog", Content: "body"},
			anonymous:   true,
			expectedErr: common.ErrForbidden,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Cleanup(func() { env.cleanup(t) })

			actor := setupTestUser(t, env.db, "author")
			if tc.anonymous {
				actor = ""
			}

			b, err := env.s.CreateBlog(context.Background(), actor, tc.req)
			assert.Equal(t, tc.expectedErr, err)
			if tc.expectedErr != nil {
				return
			}

			got, err := env.s.GetBlog(context.Background(), actor, b.ID)
			require.NoError(t, err)
			assert.Equal(t, actor, got.AuthorID)
			assert.Equal(t, "author", got.Author)
			assert.Equal(t, []string{actor}, got.Participants)
			assert.Equal(t, 1, got.Version)
		})
	}
}

func TestBlogVisibilityScenario(t *testing.T) {
	env := setupTestEnvironment(t)
	t.Cleanup(func() { env.cleanup(t) })

	ctx := context.Background()
	a := setupTestUser(t, env.db, "alice")
	c := setupTestUser(t, env.db, "carol")

	y, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Private plans", Content: "secret", Status: StatusPrivate})
	require.NoError(t, err)

	_, err = env.s.GetBlog(ctx, c, y.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = env.s.GetBlog(ctx, "", y.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = env.s.GetBlog(ctx, a, common.NewID())
	assert.ErrorIs(t, err, common.ErrRecordNotFound)

	blogs, err := env.s.ListBlogs(ctx, c, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, blogs)

	blogs, err = env.s.ListBlogs(ctx, a, 0, 0)
	require.NoError(t, err)
	require.Len(t, blogs, 1)
	assert.Equal(t, y.ID, blogs[0].ID)
}

func TestListBlogsSkipsInvalidStatus(t *testing.T) {
	env := setupTestEnvironment(t)
	t.Cleanup(func() { env.cleanup(t) })

	ctx := context.Background()
	a := setupTestUser(t, env.db, "alice")

	var logs bytes.Buffer
	env.s.logger = slog.New(slog.NewTextHandler(&logs, nil))

	older, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Old news", Content: "hello"})
	require.NoError(t, err)
	good, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Public news", Content: "hello"})
	require.NoError(t, err)
	bad, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Broken blog", Content: "hello"})
	require.NoError(t, err)

	_, err = env.db.Exec(`UPDATE blogs SET status = 'archived' WHERE id = $1`, bad.ID)
	require.NoError(t, err)

	blogs, err := env.s.ListBlogs(ctx, a, 0, 0)
	require.NoError(t, err)
	require.Len(t, blogs, 2)
	assert.Equal(t, good.ID, blogs[0].ID)
	assert.Contains(t, logs.String(), bad.ID)

	// The newest blog is broken, a full page still comes back.
	testCases := []struct {
		name   string
		limit  int
		offset int
		want   []string
	}{
		{name: "first page", limit: 2, offset: 0, want: []string{good.ID, older.ID}},
		{name: "second page", limit: 1, offset: 1, want: []string{older.ID}},
		{name: "past the end", limit: 2, offset: 2, want: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := env.s.ListBlogs(ctx, a, tc.limit, tc.offset)
			require.NoError(t, err)

			ids := make([]string, 0, len(page))
			for _, b := range page {
				ids = append(ids, b.ID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}

	_, err = env.s.GetBlog(ctx, a, bad.ID)
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestUpdateAndDeleteBlog(t *testing.T) {
	env := setupTestEnvironment(t)
	t.Cleanup(func() { env.cleanup(t) })

	ctx := context.Background()
	a := setupTestUser(t, env.db, "alice")
	b := setupTestUser(t, env.db, "bob")

	blog, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Team news", Content: "hello", Status: StatusPrivate})
	require.NoError(t, err)
	_, err = env.s.AddParticipant(ctx, a, blog.ID, b)
	require.NoError(t, err)

	title := "Renamed news"
	_, err = env.s.UpdateBlog(ctx, b, blog.ID, &UpdateBlogRequest{Title: &title})
	assert.ErrorIs(t, err, common.ErrForbidden)

	updated, err := env.s.UpdateBlog(ctx, a, blog.ID, &UpdateBlogRequest{Title: &title, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 2, updated.Version)

	_, err = env.s.UpdateBlog(ctx, a, blog.ID, &UpdateBlogRequest{Title: &title, Version: 1})
	assert.ErrorIs(t, err, common.ErrEditConflict)

	_, err = env.s.AddAttachment(ctx, a, &AddAttachmentRequest{
		Filename: "uploads/plan.pdf", OriginalFilename: "plan.pdf", MimeType: "application/pdf", FileSize: 10, BlogID: &blog.ID,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, env.s.DeleteBlog(ctx, b, blog.ID), common.ErrForbidden)

	// File removal fails, the delete still goes through.
	require.NoError(t, env.s.DeleteBlog(ctx, a, blog.ID))
	assert.Equal(t, []string{"uploads/plan.pdf"}, env.files.keys)

	_, err = env.s.GetBlog(ctx, a, blog.ID)
	assert.ErrorIs(t, err, common.ErrRecordNotFound)

	var n int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM blog_participants`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestParticipants(t *testing.T) {
	env := setupTestEnvironment(t)
	t.Cleanup(func() { env.cleanup(t) })

	ctx := context.Background()
	a := setupTestUser(t, env.db, "alice")
	b := setupTestUser(t, env.db, "bob")
	c := setupTestUser(t, env.db, "carol")
	d := setupTestUser(t, env.db, "dave")

	blog, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Private plans", Content: "secret", Status: StatusPrivate})
	require.NoError(t, err)

	_, err = env.s.AddParticipant(ctx, c, blog.ID, c)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = env.s.AddParticipant(ctx, a, blog.ID, b)
	require.NoError(t, err)
	_, err = env.s.AddParticipant(ctx, a, blog.ID, b)
	require.NoError(t, err)

	// A participant may bring others in.
	_, err = env.s.AddParticipant(ctx, b, blog.ID, c)
	require.NoError(t, err)

	_, err = env.s.AddParticipant(ctx, a, blog.ID, common.NewID())
	assert.ErrorIs(t, err, common.ErrRecordNotFound)

	participants, err := env.s.ListParticipants(ctx, a, blog.ID)
	require.NoError(t, err)
	require.Len(t, participants, 3)
	assert.Equal(t, a, participants[0].UserID)

	_, err = env.s.RemoveParticipant(ctx, a, blog.ID, b)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = env.s.RemoveParticipant(ctx, a, blog.ID, a)
	assert.ErrorIs(t, err, common.ErrInvariantViolation)

	updated, err := env.s.RemoveParticipant(ctx, b, blog.ID, b)
	require.NoError(t, err)
	assert.False(t, IsParticipant(updated, b))

	_, err = env.s.GetBlog(ctx, b, blog.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	// Someone who cannot see the private blog learns nothing about it, not
	// even through removing themselves.
	for _, outsider := range []string{b, d} {
		removed, err := env.s.RemoveParticipant(ctx, outsider, blog.ID, outsider)
		assert.ErrorIs(t, err, common.ErrForbidden)
		assert.Nil(t, removed)
	}

	assert.Equal(t, []string{a, b, c, b}, env.notifier.invalidated)
}

func TestPosts(t *testing.T) {
	env := setupTestEnvironment(t)
	t.Cleanup(func() { env.cleanup(t) })

	ctx := context.Background()
	a := setupTestUser(t, env.db, "alice")
	b := setupTestUser(t, env.db, "bob")
	c := setupTestUser(t, env.db, "carol")

	blog, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Team news", Content: "hello", Status: StatusPrivate})
	require.NoError(t, err)
	_, err = env.s.AddParticipant(ctx, a, blog.ID, b)
	require.NoError(t, err)

	_, err = env.s.CreatePost(ctx, c, blog.ID, &CreatePostRequest{Title: "Intruder", Content: "hi"})
	assert.ErrorIs(t, err, common.ErrForbidden)

	p, err := env.s.CreatePost(ctx, b, blog.ID, &CreatePostRequest{Title: "Status update", Content: "<script>x()</script>All good"})
	require.NoError(t, err)
	assert.Equal(t, "All good", p.Content)

	assert.Equal(t, []string{blog.ID}, env.notifier.notified)
	assert.Equal(t, []string{b}, env.notifier.excluded)

	require.Len(t, env.producer.msgs, 1)
	assert.Equal(t, common.PostCreatedKey, env.producer.keys[0])
	var msg PostCreatedMessage
	require.NoError(t, json.Unmarshal(env.producer.msgs[0], &msg))
	assert.Equal(t, []string{a + "@example.com"}, msg.Recipients)
	assert.Equal(t, p.ID, msg.PostID)

	posts, err := env.s.ListPosts(ctx, a, blog.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	title := "Edited update"
	_, err = env.s.UpdatePost(ctx, a, p.ID, &UpdatePostRequest{Title: &title})
	assert.ErrorIs(t, err, common.ErrForbidden)

	edited, err := env.s.UpdatePost(ctx, b, p.ID, &UpdatePostRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 2, edited.Version)

	assert.ErrorIs(t, env.s.DeletePost(ctx, a, p.ID), common.ErrForbidden)
	require.NoError(t, env.s.DeletePost(ctx, b, p.ID))

	_, err = env.s.GetPost(ctx, b, p.ID)
	assert.ErrorIs(t, err, common.ErrRecordNotFound)
}

func TestPostTimesUseServiceClock(t *testing.T) {
	env := setupTestEnvironment(t)
	t.Cleanup(func() { env.cleanup(t) })

	at := time.Date(2024, 6, 3, 10, 15, 30, 123456789, time.UTC)
	env.s.now = func() time.Time { return at }

	ctx := context.Background()
	a := setupTestUser(t, env.db, "alice")

	blog, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Team news", Content: "hello"})
	require.NoError(t, err)

	p, err := env.s.CreatePost(ctx, a, blog.ID, &CreatePostRequest{Title: "Status update", Content: "All good"})
	require.NoError(t, err)

	want := time.Date(2024, 6, 3, 10, 15, 30, 123000000, time.UTC)
	assert.True(t, want.Equal(p.CreatedAt), "got %v want %v", p.CreatedAt, want)
	assert.True(t, p.CreatedAt.Equal(p.UpdatedAt))

	stored, err := env.s.GetPost(ctx, a, p.ID)
	require.NoError(t, err)
	assert.True(t, want.Equal(stored.CreatedAt), "got %v want %v", stored.CreatedAt, want)
}

func TestComments(t *testing.T) {
	env := setupTestEnvironment(t)
	t.Cleanup(func() { env.cleanup(t) })

	ctx := context.Background()
	a := setupTestUser(t, env.db, "alice")
	b := setupTestUser(t, env.db, "bob")
	c := setupTestUser(t, env.db, "carol")

	blog, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Team news", Content: "hello"})
	require.NoError(t, err)
	other, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Other news", Content: "hello"})
	require.NoError(t, err)

	root, err := env.s.AddComment(ctx, b, blog.ID, &AddCommentRequest{Content: "Nice"})
	require.NoError(t, err)

	reply, err := env.s.AddComment(ctx, c, blog.ID, &AddCommentRequest{Content: "Agreed", ParentCommentID: &root.ID})
	require.NoError(t, err)

	_, err = env.s.AddComment(ctx, c, other.ID, &AddCommentRequest{Content: "Wrong thread", ParentCommentID: &root.ID})
	assert.Equal(t, common.ValidationError{Errors: map[string]string{"parent_comment_id": "must belong to the same blog"}}, err)

	_, err = env.s.AddComment(ctx, "", blog.ID, &AddCommentRequest{Content: "anon"})
	assert.ErrorIs(t, err, common.ErrForbidden)

	threads, err := env.s.ListComments(ctx, a, blog.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	require.Len(t, threads[0].Replies, 1)
	assert.Equal(t, reply.ID, threads[0].Replies[0].ID)

	// Only the comment author or the blog author may delete.
	assert.ErrorIs(t, env.s.DeleteComment(ctx, b, reply.ID), common.ErrForbidden)
	require.NoError(t, env.s.DeleteComment(ctx, a, root.ID))

	threads, err = env.s.ListComments(ctx, a, blog.ID)
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestAttachments(t *testing.T) {
	env := setupTestEnvironment(t)
	t.Cleanup(func() { env.cleanup(t) })

	ctx := context.Background()
	a := setupTestUser(t, env.db, "alice")
	b := setupTestUser(t, env.db, "bob")

	blog, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Team news", Content: "hello"})
	require.NoError(t, err)
	p, err := env.s.CreatePost(ctx, b, blog.ID, &CreatePostRequest{Title: "Bob's post", Content: "hello"})
	require.NoError(t, err)

	req := &AddAttachmentRequest{Filename: "uploads/b.png", OriginalFilename: "b.png", MimeType: "image/png", FileSize: 42, PostID: &p.ID}

	_, err = env.s.AddAttachment(ctx, a, req)
	assert.ErrorIs(t, err, common.ErrForbidden)

	att, err := env.s.AddAttachment(ctx, b, req)
	require.NoError(t, err)

	list, err := env.s.ListAttachments(ctx, a, blog.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, att.ID, list[0].ID)

	// The blog author may remove attachments anywhere in the blog.
	require.NoError(t, env.s.DeleteAttachment(ctx, a, att.ID))
	assert.Equal(t, []string{"uploads/b.png"}, env.files.keys)

	assert.ErrorIs(t, env.s.DeleteAttachment(ctx, a, att.ID), common.ErrRecordNotFound)
}

func TestCanAttach(t *testing.T) {
	env := setupTestEnvironment(t)
	t.Cleanup(func() { env.cleanup(t) })

	ctx := context.Background()
	a := setupTestUser(t, env.db, "alice")
	b := setupTestUser(t, env.db, "bob")
	c := setupTestUser(t, env.db, "carol")

	blog, err := env.s.CreateBlog(ctx, a, &CreateBlogRequest{Title: "Team news", Content: "hello", Status: StatusPrivate})
	require.NoError(t, err)
	_, err = env.s.AddParticipant(ctx, a, blog.ID, b)
	require.NoError(t, err)
	p, err := env.s.CreatePost(ctx, b, blog.ID, &CreatePostRequest{Title: "Bob's post", Content: "hello"})
	require.NoError(t, err)

	missing := common.NewID()
	request := func(blogID, postID *string) *AddAttachmentRequest {
		return &AddAttachmentRequest{Filename: "uploads/x.png", OriginalFilename: "x.png", MimeType: "image/png", FileSize: 1, BlogID: blogID, PostID: postID}
	}

	testCases := []struct {
		name    string
		actorID string
		req     *AddAttachmentRequest
		wantErr error
	}{
		{name: "blog author on blog", actorID: a, req: request(&blog.ID, nil)},
		{name: "post author on post", actorID: b, req: request(nil, &p.ID)},
		{name: "participant on blog", actorID: b, req: request(&blog.ID, nil), wantErr: common.ErrForbidden},
		{name: "blog author on post", actorID: a, req: request(nil, &p.ID), wantErr: common.ErrForbidden},
		{name: "outsider on private blog", actorID: c, req: request(&blog.ID, nil), wantErr: common.ErrForbidden},
		{name: "missing blog", actorID: a, req: request(&missing, nil), wantErr: common.ErrRecordNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := env.s.CanAttach(ctx, tc.actorID, tc.req)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("no parent", func(t *testing.T) {
		err := env.s.CanAttach(ctx, a, request(nil, nil))
		assert.Equal(t, common.ValidationError{Errors: map[string]string{"parent": "must reference exactly one of blog, post or comment"}}, err)
	})

	list, err := env.s.ListAttachments(ctx, a, blog.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
