package notificationservice

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/sushihentaime/teamblog/internal/common"
)

// PostgresWatermarks keeps watermarks in the blog_views table. Rows go away
// with their blog through the foreign key.
type PostgresWatermarks struct {
	db *sql.DB
}

func NewPostgresWatermarks(db *sql.DB) *PostgresWatermarks {
	return &PostgresWatermarks{db: db}
}

func (m *PostgresWatermarks) FindOne(ctx context.Context, userID, blogID string) (*BlogView, error) {
	query := `
		SELECT id, user_id, blog_id, last_viewed_at
		FROM blog_views
		WHERE user_id = $1 AND blog_id = $2`

	var v BlogView
	err := m.db.QueryRowContext(ctx, query, userID, blogID).Scan(&v.ID, &v.UserID, &v.BlogID, &v.LastViewedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, common.ErrRecordNotFound
		default:
			return nil, err
		}
	}

	return &v, nil
}

func (m *PostgresWatermarks) Upsert(ctx context.Context, userID, blogID string, viewedAt time.Time) error {
	query := `
		INSERT INTO blog_views (id, user_id, blog_id, last_viewed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, blog_id)
		DO UPDATE SET last_viewed_at = GREATEST(blog_views.last_viewed_at, EXCLUDED.last_viewed_at)`

	_, err := m.db.ExecContext(ctx, query, common.NewID(), userID, blogID, viewedAt)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return common.ErrRecordNotFound
		default:
			return err
		}
	}

	return nil
}

func (m *PostgresWatermarks) DeleteByBlog(ctx context.Context, blogID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM blog_views WHERE blog_id = $1`, blogID)
	return err
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
