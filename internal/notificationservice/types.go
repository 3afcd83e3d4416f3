package notificationservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/sushihentaime/teamblog/internal/blogservice"
)

type Reason string

const (
	// ReasonNewBlog marks a blog the user has never opened.
	ReasonNewBlog Reason = "new_blog"
	// ReasonNewPosts marks a blog with posts by others since the last visit.
	ReasonNewPosts Reason = "new_posts"

	defaultConcurrency = 8
	defaultCacheTTL    = time.Minute
	// generationTTL only has to outlive one unread computation.
	generationTTL = 24 * time.Hour
)

type UnreadBlog struct {
	Blog            *blogservice.Blog `json:"blog"`
	Reason          Reason            `json:"reason"`
	UnreadPostCount int               `json:"unread_post_count"`
}

// BlogView is the read watermark of one user on one blog.
type BlogView struct {
	ID           string    `json:"id" bson:"_id"`
	UserID       string    `json:"user_id" bson:"user_id"`
	BlogID       string    `json:"blog_id" bson:"blog_id"`
	LastViewedAt time.Time `json:"last_viewed_at" bson:"last_viewed_at"`
}

// BlogFinder reads the blogs and posts the unread computation needs.
type BlogFinder interface {
	FindBlogsByParticipant(ctx context.Context, userID string) ([]*blogservice.Blog, error)
	FindBlogsByAuthor(ctx context.Context, userID string) ([]*blogservice.Blog, error)
	CountPostsSince(ctx context.Context, blogID string, since time.Time, excludeAuthorID string) (int, error)
}

// WatermarkStore keeps one BlogView per (user, blog). Upsert never moves a
// watermark backwards. FindOne returns common.ErrRecordNotFound when the user
// has never viewed the blog.
type WatermarkStore interface {
	FindOne(ctx context.Context, userID, blogID string) (*BlogView, error)
	Upsert(ctx context.Context, userID, blogID string, viewedAt time.Time) error
	DeleteByBlog(ctx context.Context, blogID string) error
}

// UnreadEntry is the cached classification of one blog. The blog itself is
// never cached; visibility is checked again on every read.
type UnreadEntry struct {
	BlogID          string `msgpack:"blog_id"`
	Reason          Reason `msgpack:"reason"`
	UnreadPostCount int    `msgpack:"unread_post_count"`
}

// UnreadCache holds computed unread entries per user. Every Invalidate of a
// user bumps their generation, and Set is dropped when the generation it was
// computed under is no longer current.
type UnreadCache interface {
	Generation(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string) ([]UnreadEntry, bool, error)
	Set(ctx context.Context, userID string, gen int64, entries []UnreadEntry) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

type NotificationService struct {
	blogs       BlogFinder
	marks       WatermarkStore
	cache       UnreadCache
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}
