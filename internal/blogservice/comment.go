package blogservice

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sushihentaime/teamblog/internal/common"
)

const commentColumns = `id, blog_id, author_id, parent_comment_id, content, created_at, updated_at`

func scanComment(row rowScanner) (*Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.BlogID, &c.AuthorID, &c.ParentCommentID, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *BlogModel) insertComment(ctx context.Context, c *Comment) error {
	query := `
		INSERT INTO comments (id, blog_id, author_id, parent_comment_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := m.db.QueryRowContext(ctx, query, c.ID, c.BlogID, c.AuthorID, c.ParentCommentID, c.Content).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		switch {
		case ForeignKeyError(err, "comments_blog_id_fkey"), ForeignKeyError(err, "comments_parent_comment_id_fkey"):
			return common.ErrRecordNotFound
		default:
			return err
		}
	}

	return nil
}

func (m *BlogModel) getComment(ctx context.Context, id string) (*Comment, error) {
	c, err := scanComment(m.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, common.ErrRecordNotFound
		default:
			return nil, err
		}
	}

	return c, nil
}

func (m *BlogModel) listComments(ctx context.Context, blogID string) ([]*Comment, error) {
	query := `SELECT ` + commentColumns + `
		FROM comments
		WHERE blog_id = $1
		ORDER BY created_at, id`

	rows, err := m.db.QueryContext(ctx, query, blogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}

	return comments, rows.Err()
}

// deleteComment removes a comment with all of its replies and returns the
// stored file keys of their attachments.
func (m *BlogModel) deleteComment(ctx context.Context, id string) ([]string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	files, err := queryFilenames(ctx, tx, `
		WITH RECURSIVE thread AS (
			SELECT id FROM comments WHERE id = $1
			UNION ALL
			SELECT c.id FROM comments c JOIN thread t ON c.parent_comment_id = t.id
		)
		SELECT a.filename FROM attachments a JOIN thread t ON a.comment_id = t.id`, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := execOne(ctx, tx, `DELETE FROM comments WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return files, nil
}

// buildThreads arranges comments into trees by parent id. Order among
// siblings follows the input order. Replies whose parent is missing are
// treated as top level.
func buildThreads(comments []*Comment) []*CommentThread {
	nodes := make(map[string]*CommentThread, len(comments))
	for _, c := range comments {
		nodes[c.ID] = &CommentThread{Comment: *c, Replies: []*CommentThread{}}
	}

	roots := []*CommentThread{}
	for _, c := range comments {
		node := nodes[c.ID]
		if c.ParentCommentID != nil {
			if parent, ok := nodes[*c.ParentCommentID]; ok {
				parent.Replies = append(parent.Replies, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	return roots
}

type AddCommentRequest struct {
	Content         string  `json:"content"`
	ParentCommentID *string `json:"parent_comment_id"`
}

// AddComment lets any viewer comment on a blog. A reply must point at a
// comment of the same blog.
func (s *BlogService) AddComment(ctx context.Context, actorID, blogID string, req *AddCommentRequest) (*Comment, error) {
	v := common.NewValidator()
	validateComment(v, req.Content)
	if req.ParentCommentID != nil {
		v.CheckID(*req.ParentCommentID, "parent_comment_id")
	}
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	b, err := s.GetBlog(ctx, actorID, blogID)
	if err != nil {
		return nil, err
	}

	if req.ParentCommentID != nil {
		parent, err := s.m.getComment(ctx, *req.ParentCommentID)
		if err != nil {
			if isNotFound(err) {
				v.AddError("parent_comment_id", "does not exist")
				return nil, v.ValidationError()
			}
			return nil, err
		}
		if parent.BlogID != b.ID {
			v.AddError("parent_comment_id", "must belong to the same blog")
			return nil, v.ValidationError()
		}
	}

	c := &Comment{
		ID:              common.NewID(),
		BlogID:          b.ID,
		AuthorID:        actorID,
		ParentCommentID: req.ParentCommentID,
		Content:         sanitizeMarkdown(req.Content),
	}

	if err := s.m.insertComment(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// ListComments returns the blog's comments as threads, oldest first.
func (s *BlogService) ListComments(ctx context.Context, actorID, blogID string) ([]*CommentThread, error) {
	b, err := s.GetBlog(ctx, actorID, blogID)
	if err != nil {
		return nil, err
	}

	comments, err := s.m.listComments(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	return buildThreads(comments), nil
}

// DeleteComment removes a comment and its replies. The comment author and the
// blog author may do so.
func (s *BlogService) DeleteComment(ctx context.Context, actorID, id string) error {
	v := common.NewValidator()
	v.CheckID(id, "comment_id")
	if !v.Valid() {
		return v.ValidationError()
	}

	c, err := s.m.getComment(ctx, id)
	if err != nil {
		return err
	}

	b, err := s.loadBlog(ctx, c.BlogID)
	if err != nil {
		return err
	}

	if !CanDeleteComment(b, c, actorID) {
		return common.ErrForbidden
	}

	files, err := s.m.deleteComment(ctx, c.ID)
	if err != nil {
		return err
	}

	s.removeFiles(ctx, files)

	return nil
}
