package notificationservice

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/sushihentaime/teamblog/internal/blogservice"
	"github.com/sushihentaime/teamblog/internal/common"
	"golang.org/x/sync/errgroup"
)

// NewNotificationService builds the unread tracker. cache may be nil, in
// which case every call recomputes from the store.
func NewNotificationService(blogs BlogFinder, marks WatermarkStore, cache UnreadCache, logger *slog.Logger, opts ...Option) *NotificationService {
	s := &NotificationService{
		blogs:       blogs,
		marks:       marks,
		cache:       cache,
		logger:      logger,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*NotificationService)

// WithClock replaces time.Now as the source of read markers. Share it with
// the blog service so post times and markers come from one clock.
func WithClock(now func() time.Time) Option {
	return func(s *NotificationService) { s.now = now }
}

// candidates merges participant and authored blogs, keeping the first
// occurrence of each id.
func candidates(participant, authored []*blogservice.Blog) []*blogservice.Blog {
	seen := make(map[string]struct{}, len(participant)+len(authored))
	merged := make([]*blogservice.Blog, 0, len(participant)+len(authored))

	for _, list := range [][]*blogservice.Blog{participant, authored} {
		for _, b := range list {
			if _, ok := seen[b.ID]; ok {
				continue
			}
			seen[b.ID] = struct{}{}
			merged = append(merged, b)
		}
	}

	return merged
}

// classify returns nil when userID has seen everything in b.
func (s *NotificationService) classify(ctx context.Context, userID string, b *blogservice.Blog) (*UnreadBlog, error) {
	view, err := s.marks.FindOne(ctx, userID, b.ID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrRecordNotFound):
			return &UnreadBlog{Blog: b, Reason: ReasonNewBlog}, nil
		default:
			return nil, err
		}
	}

	n, err := s.blogs.CountPostsSince(ctx, b.ID, view.LastViewedAt, userID)
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, nil
	}

	return &UnreadBlog{Blog: b, Reason: ReasonNewPosts, UnreadPostCount: n}, nil
}

// visibleCandidates loads the blogs userID authored or participates in and
// keeps those they can view right now.
func (s *NotificationService) visibleCandidates(ctx context.Context, userID string) ([]*blogservice.Blog, error) {
	participant, err := s.blogs.FindBlogsByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}

	authored, err := s.blogs.FindBlogsByAuthor(ctx, userID)
	if err != nil {
		return nil, err
	}

	all := candidates(participant, authored)
	visible := make([]*blogservice.Blog, 0, len(all))

	for _, b := range all {
		ok, err := blogservice.CanView(b, userID)
		if err != nil {
			s.logger.Error("skipping blog in unread computation", slog.String("blog_id", b.ID), slog.String("error", err.Error()))
			continue
		}
		if ok {
			visible = append(visible, b)
		}
	}

	return visible, nil
}

// GetUnreadBlogs returns the blogs userID authored or participates in that
// hold content they have not seen. Blogs the user can no longer view are
// left out. The order of the result is not significant.
func (s *NotificationService) GetUnreadBlogs(ctx context.Context, userID string) ([]UnreadBlog, error) {
	if userID == "" {
		return []UnreadBlog{}, nil
	}

	// The generation is read before anything else so that an invalidation
	// racing with the computation below keeps its result out of the cache.
	gen, cacheable := s.generation(ctx, userID)

	blogs, err := s.visibleCandidates(ctx, userID)
	if err != nil {
		return nil, err
	}

	if entries, ok := s.cached(ctx, userID); ok {
		return fromEntries(blogs, entries), nil
	}

	results := make([]*UnreadBlog, len(blogs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, b := range blogs {
		g.Go(func() error {
			u, err := s.classify(gctx, userID, b)
			if err != nil {
				return err
			}
			results[i] = u
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	unread := make([]UnreadBlog, 0, len(results))
	for _, u := range results {
		if u != nil {
			unread = append(unread, *u)
		}
	}

	if cacheable {
		if err := s.cache.Set(ctx, userID, gen, toEntries(unread)); err != nil {
			s.logger.Warn("could not cache unread blogs", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}

	return unread, nil
}

func toEntries(unread []UnreadBlog) []UnreadEntry {
	entries := make([]UnreadEntry, len(unread))
	for i, u := range unread {
		entries[i] = UnreadEntry{BlogID: u.Blog.ID, Reason: u.Reason, UnreadPostCount: u.UnreadPostCount}
	}
	return entries
}

// fromEntries pairs cached entries with the freshly loaded visible blogs.
// Entries for blogs that are no longer visible are dropped.
func fromEntries(visible []*blogservice.Blog, entries []UnreadEntry) []UnreadBlog {
	byID := make(map[string]*blogservice.Blog, len(visible))
	for _, b := range visible {
		byID[b.ID] = b
	}

	unread := make([]UnreadBlog, 0, len(entries))
	for _, e := range entries {
		b, ok := byID[e.BlogID]
		if !ok {
			continue
		}
		unread = append(unread, UnreadBlog{Blog: b, Reason: e.Reason, UnreadPostCount: e.UnreadPostCount})
	}
	return unread
}

// GetUnreadCount is the number of unread blogs, not of unread posts.
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	unread, err := s.GetUnreadBlogs(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// MarkBlogAsRead moves the watermark of userID on b to now, at the
// precision post times are stored with.
func (s *NotificationService) MarkBlogAsRead(ctx context.Context, userID string, b *blogservice.Blog) error {
	v := common.NewValidator()
	v.CheckID(userID, "user_id")
	v.CheckID(b.ID, "blog_id")
	if !v.Valid() {
		return v.ValidationError()
	}

	if err := s.marks.Upsert(ctx, userID, b.ID, common.TruncateTime(s.now())); err != nil {
		return err
	}

	return s.InvalidateUser(ctx, userID)
}

// NotifyBlogParticipants drops the cached unread state of the author and every
// participant of b except excludeUserID.
func (s *NotificationService) NotifyBlogParticipants(ctx context.Context, b *blogservice.Blog, excludeUserID string) error {
	if s.cache == nil {
		return nil
	}

	ids := make([]string, 0, len(b.Participants)+1)
	for _, id := range append([]string{b.AuthorID}, b.Participants...) {
		if id == "" || id == excludeUserID || slices.Contains(ids, id) {
			continue
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil
	}

	return s.cache.Invalidate(ctx, ids...)
}

// InvalidateUser drops the cached unread state of userID.
func (s *NotificationService) InvalidateUser(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, userID)
}

// DeleteByBlog forwards to the watermark store.
func (s *NotificationService) DeleteByBlog(ctx context.Context, blogID string) error {
	return s.marks.DeleteByBlog(ctx, blogID)
}

func (s *NotificationService) generation(ctx context.Context, userID string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}

	gen, err := s.cache.Generation(ctx, userID)
	if err != nil {
		s.logger.Warn("could not read unread generation", slog.String("user_id", userID), slog.String("error", err.Error()))
		return 0, false
	}

	return gen, true
}

func (s *NotificationService) cached(ctx context.Context, userID string) ([]UnreadEntry, bool) {
	if s.cache == nil {
		return nil, false
	}

	entries, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("could not read unread cache", slog.String("user_id", userID), slog.String("error", err.Error()))
		return nil, false
	}

	return entries, ok
}
