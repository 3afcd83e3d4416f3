package blogservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sushihentaime/teamblog/internal/common"
)

var ErrUserNotFound = fmt.Errorf("user %w", common.ErrRecordNotFound)

func NewBlogModel(db *sql.DB) *BlogModel {
	return &BlogModel{db: db}
}

// ForeignKeyError is a helper function to check if the error is a foreign key constraint error.
func ForeignKeyError(err error, name string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "23503" && pqErr.Constraint == name {
			return true
		}
	}

	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

// blogColumns selects a blog with its author name and explicit participants.
const blogColumns = `
	b.id, b.title, b.content, b.status, b.author_id, u.username,
	COALESCE((SELECT array_agg(p.user_id::text ORDER BY p.added_at, p.user_id) FROM blog_participants p WHERE p.blog_id = b.id), '{}'),
	b.created_at, b.updated_at, b.version`

func scanBlog(row rowScanner) (*Blog, error) {
	var b Blog
	err := row.Scan(&b.ID, &b.Title, &b.Content, &b.Status, &b.AuthorID, &b.Author, pq.Array(&b.Participants), &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (m *BlogModel) queryBlogs(ctx context.Context, query string, args ...any) ([]*Blog, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blogs := []*Blog{}
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		blogs = append(blogs, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return blogs, nil
}

// insertBlog stores b and records its author as the first participant.
func (m *BlogModel) insertBlog(ctx context.Context, b *Blog) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO blogs (id, title, content, status, author_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at, version`

	err = tx.QueryRowContext(ctx, query, b.ID, b.Title, b.Content, b.Status, b.AuthorID).Scan(&b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		_ = tx.Rollback()
		switch {
		case ForeignKeyError(err, "blogs_author_id_fkey"):
			return ErrUserNotFound
		default:
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO blog_participants (blog_id, user_id) VALUES ($1, $2)`, b.ID, b.AuthorID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (m *BlogModel) getBlog(ctx context.Context, id string) (*Blog, error) {
	query := `SELECT ` + blogColumns + `
		FROM blogs b
		JOIN users u ON b.author_id = u.id
		WHERE b.id = $1`

	b, err := scanBlog(m.db.QueryRowContext(ctx, query, id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, common.ErrRecordNotFound
		default:
			return nil, err
		}
	}

	return b, nil
}

// listVisibleBlogs returns the blogs actorID can see, newest first. It is the
// SQL form of CanView, so blogs with an unknown status never match.
func (m *BlogModel) listVisibleBlogs(ctx context.Context, actorID string, limit, offset int) ([]*Blog, error) {
	query := `SELECT ` + blogColumns + `
		FROM blogs b
		JOIN users u ON b.author_id = u.id
		WHERE b.status = 'public'
			OR (b.status = 'private' AND (
				b.author_id = $1
				OR EXISTS (SELECT 1 FROM blog_participants p WHERE p.blog_id = b.id AND p.user_id = $1)))
		ORDER BY b.created_at DESC, b.id
		LIMIT $2 OFFSET $3`

	return m.queryBlogs(ctx, query, actorID, limit, offset)
}

// invalidStatusBlogs returns id and status of every blog whose stored status
// is neither public nor private.
func (m *BlogModel) invalidStatusBlogs(ctx context.Context) (map[string]Status, error) {
	query := `
		SELECT id, status
		FROM blogs
		WHERE status NOT IN ('public', 'private')`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Status)
	for rows.Next() {
		var id string
		var status Status
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		out[id] = status
	}

	return out, rows.Err()
}

// FindBlogsByParticipant returns the blogs listing userID as an explicit participant.
func (m *BlogModel) FindBlogsByParticipant(ctx context.Context, userID string) ([]*Blog, error) {
	query := `SELECT ` + blogColumns + `
		FROM blogs b
		JOIN users u ON b.author_id = u.id
		JOIN blog_participants bp ON bp.blog_id = b.id
		WHERE bp.user_id = $1
		ORDER BY b.created_at DESC, b.id`

	return m.queryBlogs(ctx, query, userID)
}

// FindBlogsByAuthor returns the blogs written by userID.
func (m *BlogModel) FindBlogsByAuthor(ctx context.Context, userID string) ([]*Blog, error) {
	query := `SELECT ` + blogColumns + `
		FROM blogs b
		JOIN users u ON b.author_id = u.id
		WHERE b.author_id = $1
		ORDER BY b.created_at DESC, b.id`

	return m.queryBlogs(ctx, query, userID)
}

// CountPostsSince counts the posts of blogID created after since and not
// written by excludeAuthorID.
func (m *BlogModel) CountPostsSince(ctx context.Context, blogID string, since time.Time, excludeAuthorID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM posts
		WHERE blog_id = $1 AND created_at > $2 AND author_id <> $3`

	var n int
	err := m.db.QueryRowContext(ctx, query, blogID, since, excludeAuthorID).Scan(&n)
	return n, err
}

func (m *BlogModel) updateBlog(ctx context.Context, b *Blog) error {
	query := `
		UPDATE blogs
		SET title = $1, content = $2, status = $3, updated_at = NOW(), version = version + 1
		WHERE id = $4 AND version = $5
		RETURNING updated_at, version`

	err := m.db.QueryRowContext(ctx, query, b.Title, b.Content, b.Status, b.ID, b.Version).Scan(&b.UpdatedAt, &b.Version)
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

// deleteBlog removes the blog and everything under it, returning the stored
// file keys of the attachments that went with it.
func (m *BlogModel) deleteBlog(ctx context.Context, id string) ([]string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	files, err := queryFilenames(ctx, tx, `
		SELECT filename FROM attachments
		WHERE blog_id = $1
			OR post_id IN (SELECT id FROM posts WHERE blog_id = $1)
			OR comment_id IN (SELECT id FROM comments WHERE blog_id = $1)`, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := execOne(ctx, tx, `DELETE FROM blogs WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return files, nil
}

func (m *BlogModel) addParticipant(ctx context.Context, blogID, userID string) error {
	query := `
		INSERT INTO blog_participants (blog_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	_, err := m.db.ExecContext(ctx, query, blogID, userID)
	if err != nil {
		switch {
		case ForeignKeyError(err, "blog_participants_user_id_fkey"):
			return ErrUserNotFound
		case ForeignKeyError(err, "blog_participants_blog_id_fkey"):
			return common.ErrRecordNotFound
		default:
			return err
		}
	}

	return nil
}

func (m *BlogModel) removeParticipant(ctx context.Context, blogID, userID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM blog_participants WHERE blog_id = $1 AND user_id = $2`, blogID, userID)
	return err
}

func (m *BlogModel) listParticipants(ctx context.Context, blogID string) ([]Participant, error) {
	query := `
		SELECT u.id, u.username, p.added_at
		FROM users u
		JOIN blog_participants p ON p.user_id = u.id
		WHERE p.blog_id = $1
		ORDER BY p.added_at, u.id`

	rows, err := m.db.QueryContext(ctx, query, blogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []Participant{}
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.UserID, &p.Username, &p.AddedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func queryFilenames(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows != 1 {
		switch {
		case rows == 0:
			return common.ErrRecordNotFound
		default:
			return fmt.Errorf("expected 1 row to be affected, got %d", rows)
		}
	}

	return nil
}
