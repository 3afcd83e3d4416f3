package blogservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/sushihentaime/teamblog/internal/common"
)

const postColumns = `id, blog_id, author_id, title, content, created_at, updated_at, version`

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.BlogID, &p.AuthorID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *BlogModel) insertPost(ctx context.Context, p *Post) error {
	query := `
		INSERT INTO posts (id, blog_id, author_id, title, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING created_at, updated_at, version`

	args := []any{p.ID, p.BlogID, p.AuthorID, p.Title, p.Content, p.CreatedAt}
	err := m.db.QueryRowContext(ctx, query, args...).Scan(&p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		switch {
		case ForeignKeyError(err, "posts_blog_id_fkey"):
			return common.ErrRecordNotFound
		case ForeignKeyError(err, "posts_author_id_fkey"):
			return ErrUserNotFound
		default:
			return err
		}
	}

	return nil
}

func (m *BlogModel) getPost(ctx context.Context, id string) (*Post, error) {
	p, err := scanPost(m.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, common.ErrRecordNotFound
		default:
			return nil, err
		}
	}

	return p, nil
}

func (m *BlogModel) listPosts(ctx context.Context, blogID string, limit, offset int) ([]*Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts
		WHERE blog_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := m.db.QueryContext(ctx, query, blogID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []*Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}

	return posts, rows.Err()
}

func (m *BlogModel) updatePost(ctx context.Context, p *Post) error {
	query := `
		UPDATE posts
		SET title = $1, content = $2, updated_at = NOW(), version = version + 1
		WHERE id = $3 AND version = $4
		RETURNING updated_at, version`

	err := m.db.QueryRowContext(ctx, query, p.Title, p.Content, p.ID, p.Version).Scan(&p.UpdatedAt, &p.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return common.ErrEditConflict
		default:
			return err
		}
	}

	return nil
}

func (m *BlogModel) deletePost(ctx context.Context, id string) ([]string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	files, err := queryFilenames(ctx, tx, `SELECT filename FROM attachments WHERE post_id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := execOne(ctx, tx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return files, nil
}

type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CreatePost adds a post to a blog actorID can view. Everyone else in the
// blog is told about it afterwards; those notifications never fail the call.
func (s *BlogService) CreatePost(ctx context.Context, actorID, blogID string, req *CreatePostRequest) (*Post, error) {
	b, err := s.GetBlog(ctx, actorID, blogID)
	if err != nil {
		return nil, err
	}

	v := common.NewValidator()
	validateTitle(v, req.Title)
	validateContent(v, req.Content)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	// Read markers use the same clock and precision.
	p := &Post{
		ID:        common.NewID(),
		BlogID:    b.ID,
		AuthorID:  actorID,
		Title:     req.Title,
		Content:   sanitizeMarkdown(req.Content),
		CreatedAt: common.TruncateTime(s.now()),
	}

	if err := s.m.insertPost(ctx, p); err != nil {
		return nil, err
	}

	s.notifyParticipants(ctx, b, actorID)
	s.publishPostCreated(ctx, b, p)

	return p, nil
}

// publishPostCreated announces p to the members of b other than its author.
func (s *BlogService) publishPostCreated(ctx context.Context, b *Blog, p *Post) {
	if s.mb == nil || s.emails == nil {
		return
	}

	var ids []string
	if b.AuthorID != p.AuthorID {
		ids = append(ids, b.AuthorID)
	}
	for _, id := range b.Participants {
		if id != p.AuthorID && id != b.AuthorID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	emails, err := s.emails.GetEmails(ctx, ids)
	if err != nil {
		s.logger.Warn("could not look up post recipients", slog.String("post_id", p.ID), slog.String("error", err.Error()))
		return
	}
	if len(emails) == 0 {
		return
	}

	msg, err := json.Marshal(PostCreatedMessage{
		BlogID:     b.ID,
		BlogTitle:  b.Title,
		PostID:     p.ID,
		PostTitle:  p.Title,
		Recipients: emails,
	})
	if err != nil {
		s.logger.Error("could not encode post.created", slog.String("post_id", p.ID), slog.String("error", err.Error()))
		return
	}

	if err := s.mb.Publish(ctx, msg, common.PostCreatedKey, common.BlogExchange); err != nil {
		s.logger.Warn("could not publish post.created", slog.String("post_id", p.ID), slog.String("error", err.Error()))
	}
}

// loadPost returns a post and its blog, checking that actorID can view the blog.
func (s *BlogService) loadPost(ctx context.Context, actorID, id string) (*Blog, *Post, error) {
	v := common.NewValidator()
	v.CheckID(id, "post_id")
	if !v.Valid() {
		return nil, nil, v.ValidationError()
	}

	p, err := s.m.getPost(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	b, err := s.GetBlog(ctx, actorID, p.BlogID)
	if err != nil {
		return nil, nil, err
	}

	return b, p, nil
}

func (s *BlogService) GetPost(ctx context.Context, actorID, id string) (*Post, error) {
	_, p, err := s.loadPost(ctx, actorID, id)
	return p, err
}

// ListPosts returns the posts of a blog, newest first. Default limit is 20.
func (s *BlogService) ListPosts(ctx context.Context, actorID, blogID string, limit, offset int) ([]*Post, error) {
	v := common.NewValidator()
	validatePagination(v, limit, offset)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	if limit == 0 {
		limit = 20
	}

	b, err := s.GetBlog(ctx, actorID, blogID)
	if err != nil {
		return nil, err
	}

	return s.m.listPosts(ctx, b.ID, limit, offset)
}

type UpdatePostRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Version int     `json:"version"`
}

// UpdatePost lets the post author change the post while they can still view its blog.
func (s *BlogService) UpdatePost(ctx context.Context, actorID, id string, req *UpdatePostRequest) (*Post, error) {
	b, p, err := s.loadPost(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	if err := authorize(CanEditPost(b, p, actorID)); err != nil {
		return nil, err
	}

	if req.Version != 0 && req.Version != p.Version {
		return nil, common.ErrEditConflict
	}

	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Content != nil {
		p.Content = *req.Content
	}

	v := common.NewValidator()
	validateTitle(v, p.Title)
	validateContent(v, p.Content)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	p.Content = sanitizeMarkdown(p.Content)

	if err := s.m.updatePost(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

func (s *BlogService) DeletePost(ctx context.Context, actorID, id string) error {
	b, p, err := s.loadPost(ctx, actorID, id)
	if err != nil {
		return err
	}

	if err := authorize(CanDeletePost(b, p, actorID)); err != nil {
		return err
	}

	files, err := s.m.deletePost(ctx, p.ID)
	if err != nil {
		return err
	}

	s.removeFiles(ctx, files)
	s.notifyParticipants(ctx, b, "")

	return nil
}
