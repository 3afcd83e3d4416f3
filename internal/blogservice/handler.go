package blogservice

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/sushihentaime/teamblog/internal/common"
)

type Option func(*BlogService)

func WithNotifier(n ParticipantNotifier) Option {
	return func(s *BlogService) { s.notifier = n }
}

func WithFileRemover(f FileRemover) Option {
	return func(s *BlogService) { s.files = f }
}

func WithWatermarkRemover(w WatermarkRemover) Option {
	return func(s *BlogService) { s.marks = w }
}

// WithPostEvents publishes post.created to mb, addressed to the emails found by lookup.
func WithPostEvents(mb common.MessageProducer, lookup EmailLookup) Option {
	return func(s *BlogService) {
		s.mb = mb
		s.emails = lookup
	}
}

// WithClock replaces time.Now as the source of post timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *BlogService) { s.now = now }
}

func NewBlogService(db *sql.DB, logger *slog.Logger, opts ...Option) *BlogService {
	s := &BlogService{m: NewBlogModel(db), now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateBlogRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  Status `json:"status"`
}

// CreateBlog creates a blog written by actorID, who becomes its first participant.
func (s *BlogService) CreateBlog(ctx context.Context, actorID string, req *CreateBlogRequest) (*Blog, error) {
	if actorID == "" {
		return nil, common.ErrForbidden
	}

	if req.Status == "" {
		req.Status = StatusPublic
	}

	v := common.NewValidator()
	validateTitle(v, req.Title)
	validateContent(v, req.Content)
	validateStatus(v, req.Status)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	b := &Blog{
		ID:           common.NewID(),
		Title:        req.Title,
		Content:      sanitizeMarkdown(req.Content),
		Status:       req.Status,
		AuthorID:     actorID,
		Participants: []string{actorID},
	}

	if err := s.m.insertBlog(ctx, b); err != nil {
		return nil, err
	}

	// The new blog is unread for its author until first opened.
	s.invalidateUser(ctx, actorID)

	return b, nil
}

// loadBlog fetches a blog without any access check.
func (s *BlogService) loadBlog(ctx context.Context, id string) (*Blog, error) {
	v := common.NewValidator()
	v.CheckID(id, "blog_id")
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	return s.m.getBlog(ctx, id)
}

// GetBlog returns the blog if actorID may view it.
func (s *BlogService) GetBlog(ctx context.Context, actorID, id string) (*Blog, error) {
	b, err := s.loadBlog(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := AuthorizeView(b, actorID); err != nil {
		return nil, err
	}

	return b, nil
}

// ListBlogs returns the blogs actorID can view, newest first. Default limit is 10.
func (s *BlogService) ListBlogs(ctx context.Context, actorID string, limit, offset int) ([]*Blog, error) {
	if actorID == "" {
		return nil, common.ErrForbidden
	}

	v := common.NewValidator()
	validatePagination(v, limit, offset)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	if limit == 0 {
		limit = 10
	}

	if offset == 0 {
		s.reportInvalidStatus(ctx)
	}

	return s.m.listVisibleBlogs(ctx, actorID, limit, offset)
}

// reportInvalidStatus logs the blogs that listings leave out because their
// status is unknown. Failures here never fail the listing.
func (s *BlogService) reportInvalidStatus(ctx context.Context) {
	invalid, err := s.m.invalidStatusBlogs(ctx)
	if err != nil {
		s.logger.Error("checking blog status", slog.String("error", err.Error()))
		return
	}

	for id, status := range invalid {
		s.logger.Error("skipping blog in listing", slog.String("blog_id", id), slog.String("status", string(status)))
	}
}

type UpdateBlogRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Status  *Status `json:"status"`
	Version int     `json:"version"`
}

// UpdateBlog applies the non-nil fields of req. Only the author may update,
// and a stale version fails with common.ErrEditConflict.
func (s *BlogService) UpdateBlog(ctx context.Context, actorID, id string, req *UpdateBlogRequest) (*Blog, error) {
	b, err := s.loadBlog(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := AuthorizeEdit(b, actorID); err != nil {
		return nil, err
	}

	if req.Version != 0 && req.Version != b.Version {
		return nil, common.ErrEditConflict
	}

	if req.Title != nil {
		b.Title = *req.Title
	}
	if req.Content != nil {
		b.Content = *req.Content
	}
	if req.Status != nil {
		b.Status = *req.Status
	}

	v := common.NewValidator()
	validateTitle(v, b.Title)
	validateContent(v, b.Content)
	validateStatus(v, b.Status)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	b.Content = sanitizeMarkdown(b.Content)

	if err := s.m.updateBlog(ctx, b); err != nil {
		return nil, err
	}

	// A status change can hide the blog from cached unread lists.
	s.notifyParticipants(ctx, b, "")

	return b, nil
}

// DeleteBlog removes the blog with its posts, comments and attachments. Stored
// files and external watermarks are cleaned up afterwards on a best-effort basis.
func (s *BlogService) DeleteBlog(ctx context.Context, actorID, id string) error {
	b, err := s.loadBlog(ctx, id)
	if err != nil {
		return err
	}

	if err := AuthorizeDelete(b, actorID); err != nil {
		return err
	}

	files, err := s.m.deleteBlog(ctx, b.ID)
	if err != nil {
		return err
	}

	s.removeFiles(ctx, files)

	if s.marks != nil {
		if err := s.marks.DeleteByBlog(ctx, b.ID); err != nil {
			s.logger.Warn("could not delete read marks", slog.String("blog_id", b.ID), slog.String("error", err.Error()))
		}
	}

	s.notifyParticipants(ctx, b, "")

	return nil
}

// AddParticipant lets any viewer of the blog add userID to it.
func (s *BlogService) AddParticipant(ctx context.Context, actorID, blogID, userID string) (*Blog, error) {
	v := common.NewValidator()
	v.CheckID(userID, "user_id")
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	b, err := s.loadBlog(ctx, blogID)
	if err != nil {
		return nil, err
	}

	if err := authorize(CanAddParticipant(b, actorID)); err != nil {
		return nil, err
	}

	if !AddParticipant(b, userID) {
		return b, nil
	}

	if err := s.m.addParticipant(ctx, b.ID, userID); err != nil {
		return nil, err
	}

	s.invalidateUser(ctx, userID)

	return b, nil
}

// RemoveParticipant removes userID from the blog. Members may only remove
// themselves, and the author can never leave.
func (s *BlogService) RemoveParticipant(ctx context.Context, actorID, blogID, userID string) (*Blog, error) {
	v := common.NewValidator()
	v.CheckID(userID, "user_id")
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	b, err := s.loadBlog(ctx, blogID)
	if err != nil {
		return nil, err
	}

	if err := AuthorizeView(b, actorID); err != nil {
		return nil, err
	}

	if !CanRemoveParticipant(b, actorID, userID) {
		if actorID != "" && actorID == userID {
			// The author trying to leave.
			_, err := RemoveParticipant(b, userID)
			return nil, err
		}
		return nil, common.ErrForbidden
	}

	changed, err := RemoveParticipant(b, userID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return b, nil
	}

	if err := s.m.removeParticipant(ctx, b.ID, userID); err != nil {
		return nil, err
	}

	s.invalidateUser(ctx, userID)

	return b, nil
}

func (s *BlogService) ListParticipants(ctx context.Context, actorID, blogID string) ([]Participant, error) {
	if _, err := s.GetBlog(ctx, actorID, blogID); err != nil {
		return nil, err
	}

	return s.m.listParticipants(ctx, blogID)
}

func (s *BlogService) removeFiles(ctx context.Context, keys []string) {
	if s.files == nil {
		return
	}

	for _, key := range keys {
		if err := s.files.Delete(ctx, key); err != nil {
			s.logger.Warn("could not delete attachment file", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

func (s *BlogService) notifyParticipants(ctx context.Context, b *Blog, excludeUserID string) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.NotifyBlogParticipants(ctx, b, excludeUserID); err != nil {
		s.logger.Warn("could not notify blog participants", slog.String("blog_id", b.ID), slog.String("error", err.Error()))
	}
}

func (s *BlogService) invalidateUser(ctx context.Context, userID string) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("could not invalidate unread state", slog.String("user_id", userID), slog.String("error", err.Error()))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrRecordNotFound)
}
