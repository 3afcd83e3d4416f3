package blogservice

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/sushihentaime/teamblog/internal/common"
)

type Status string

const (
	StatusPublic  Status = "public"
	StatusPrivate Status = "private"
)

type Blog struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// Content is stored in Markdown format.
	Content  string `json:"content"`
	Status   Status `json:"status"`
	AuthorID string `json:"author_id"`
	Author   string `json:"author,omitempty"`
	// Participants holds explicit members only. The author is a member
	// whether listed here or not.
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"`
}

type Post struct {
	ID        string    `json:"id"`
	BlogID    string    `json:"blog_id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Comment struct {
	ID              string    `json:"id"`
	BlogID          string    `json:"blog_id"`
	AuthorID        string    `json:"author_id"`
	ParentCommentID *string   `json:"parent_comment_id,omitempty"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Participant struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	AddedAt  time.Time `json:"added_at"`
}

// CommentThread is a comment with its replies resolved by parent id.
type CommentThread struct {
	Comment
	Replies []*CommentThread `json:"replies"`
}

type Attachment struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	FileSize         int64     `json:"file_size"`
	BlogID           *string   `json:"blog_id,omitempty"`
	PostID           *string   `json:"post_id,omitempty"`
	CommentID        *string   `json:"comment_id,omitempty"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// PostCreatedMessage is published on post.created so subscribers can be told
// about a new post.
type PostCreatedMessage struct {
	BlogID     string   `json:"blog_id"`
	BlogTitle  string   `json:"blog_title"`
	PostID     string   `json:"post_id"`
	PostTitle  string   `json:"post_title"`
	Recipients []string `json:"recipients"`
}

// ParticipantNotifier is told when a blog gets new content so per-user unread
// state can be refreshed.
type ParticipantNotifier interface {
	NotifyBlogParticipants(ctx context.Context, blog *Blog, excludeUserID string) error
	InvalidateUser(ctx context.Context, userID string) error
}

// WatermarkRemover drops read watermarks of a deleted blog when they are not
// kept next to the blogs table.
type WatermarkRemover interface {
	DeleteByBlog(ctx context.Context, blogID string) error
}

// FileRemover deletes the stored bytes of an attachment.
type FileRemover interface {
	Delete(ctx context.Context, key string) error
}

// EmailLookup resolves the addresses notified about new posts.
type EmailLookup interface {
	GetEmails(ctx context.Context, ids []string) ([]string, error)
}

type BlogModel struct {
	db *sql.DB
}

type BlogService struct {
	m        *BlogModel
	mb       common.MessageProducer
	notifier ParticipantNotifier
	files    FileRemover
	marks    WatermarkRemover
	emails   EmailLookup
	now      func() time.Time
	logger   *slog.Logger
}
