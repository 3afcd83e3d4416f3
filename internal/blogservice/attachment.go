package blogservice

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sushihentaime/teamblog/internal/common"
)

const attachmentColumns = `id, filename, original_filename, mime_type, file_size, blog_id, post_id, comment_id, uploaded_at`

func scanAttachment(row rowScanner) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.Filename, &a.OriginalFilename, &a.MimeType, &a.FileSize, &a.BlogID, &a.PostID, &a.CommentID, &a.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (m *BlogModel) insertAttachment(ctx context.Context, a *Attachment) error {
	query := `
		INSERT INTO attachments (id, filename, original_filename, mime_type, file_size, blog_id, post_id, comment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING uploaded_at`

	args := []any{a.ID, a.Filename, a.OriginalFilename, a.MimeType, a.FileSize, a.BlogID, a.PostID, a.CommentID}

	err := m.db.QueryRowContext(ctx, query, args...).Scan(&a.UploadedAt)
	if err != nil {
		switch {
		case ForeignKeyError(err, "attachments_blog_id_fkey"),
			ForeignKeyError(err, "attachments_post_id_fkey"),
			ForeignKeyError(err, "attachments_comment_id_fkey"):
			return common.ErrRecordNotFound
		default:
			return err
		}
	}

	return nil
}

func (m *BlogModel) getAttachment(ctx context.Context, id string) (*Attachment, error) {
	a, err := scanAttachment(m.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, common.ErrRecordNotFound
		default:
			return nil, err
		}
	}

	return a, nil
}

// listAttachments returns the attachments of the blog itself and of its posts
// and comments.
func (m *BlogModel) listAttachments(ctx context.Context, blogID string) ([]*Attachment, error) {
	query := `SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE blog_id = $1
			OR post_id IN (SELECT id FROM posts WHERE blog_id = $1)
			OR comment_id IN (SELECT id FROM comments WHERE blog_id = $1)
		ORDER BY uploaded_at, id`

	rows, err := m.db.QueryContext(ctx, query, blogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := []*Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}

	return attachments, rows.Err()
}

func (m *BlogModel) deleteAttachment(ctx context.Context, id string) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return common.ErrRecordNotFound
	}

	return nil
}

// attachmentTarget resolves the blog an attachment hangs off and the author
// of its direct parent.
func (s *BlogService) attachmentTarget(ctx context.Context, a *Attachment) (*Blog, string, error) {
	switch {
	case a.BlogID != nil:
		b, err := s.loadBlog(ctx, *a.BlogID)
		if err != nil {
			return nil, "", err
		}
		return b, b.AuthorID, nil
	case a.PostID != nil:
		p, err := s.m.getPost(ctx, *a.PostID)
		if err != nil {
			return nil, "", err
		}
		b, err := s.loadBlog(ctx, p.BlogID)
		if err != nil {
			return nil, "", err
		}
		return b, p.AuthorID, nil
	case a.CommentID != nil:
		c, err := s.m.getComment(ctx, *a.CommentID)
		if err != nil {
			return nil, "", err
		}
		b, err := s.loadBlog(ctx, c.BlogID)
		if err != nil {
			return nil, "", err
		}
		return b, c.AuthorID, nil
	default:
		return nil, "", common.ErrRecordNotFound
	}
}

type AddAttachmentRequest struct {
	Filename         string  `json:"filename"`
	OriginalFilename string  `json:"original_filename"`
	MimeType         string  `json:"mime_type"`
	FileSize         int64   `json:"file_size"`
	BlogID           *string `json:"blog_id"`
	PostID           *string `json:"post_id"`
	CommentID        *string `json:"comment_id"`
}

func (req *AddAttachmentRequest) attachment() *Attachment {
	return &Attachment{
		ID:               common.NewID(),
		Filename:         req.Filename,
		OriginalFilename: req.OriginalFilename,
		MimeType:         req.MimeType,
		FileSize:         req.FileSize,
		BlogID:           req.BlogID,
		PostID:           req.PostID,
		CommentID:        req.CommentID,
	}
}

// authorizeAttachment validates a and checks that actorID authored the entity
// it hangs off, in a blog they can view.
func (s *BlogService) authorizeAttachment(ctx context.Context, actorID string, a *Attachment) error {
	v := common.NewValidator()
	validateAttachment(v, a)
	if !v.Valid() {
		return v.ValidationError()
	}

	b, ownerID, err := s.attachmentTarget(ctx, a)
	if err != nil {
		return err
	}

	if err := AuthorizeView(b, actorID); err != nil {
		return err
	}
	if actorID != ownerID {
		return common.ErrForbidden
	}

	return nil
}

// CanAttach runs the checks of AddAttachment without recording anything.
// Call it before storing the upload.
func (s *BlogService) CanAttach(ctx context.Context, actorID string, req *AddAttachmentRequest) error {
	return s.authorizeAttachment(ctx, actorID, req.attachment())
}

// AddAttachment records a file that is already stored. Only the author of
// the entity it is attached to may add it.
func (s *BlogService) AddAttachment(ctx context.Context, actorID string, req *AddAttachmentRequest) (*Attachment, error) {
	a := req.attachment()
	if err := s.authorizeAttachment(ctx, actorID, a); err != nil {
		return nil, err
	}

	if err := s.m.insertAttachment(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

func (s *BlogService) ListAttachments(ctx context.Context, actorID, blogID string) ([]*Attachment, error) {
	b, err := s.GetBlog(ctx, actorID, blogID)
	if err != nil {
		return nil, err
	}

	return s.m.listAttachments(ctx, b.ID)
}

// DeleteAttachment removes the attachment record, then its file on a
// best-effort basis. The blog author and the owner of the parent entity may
// delete it.
func (s *BlogService) DeleteAttachment(ctx context.Context, actorID, id string) error {
	v := common.NewValidator()
	v.CheckID(id, "attachment_id")
	if !v.Valid() {
		return v.ValidationError()
	}

	a, err := s.m.getAttachment(ctx, id)
	if err != nil {
		return err
	}

	b, ownerID, err := s.attachmentTarget(ctx, a)
	if err != nil {
		return err
	}

	if actorID == "" || (actorID != ownerID && actorID != b.AuthorID) {
		return common.ErrForbidden
	}

	if err := s.m.deleteAttachment(ctx, a.ID); err != nil {
		return err
	}

	s.removeFiles(ctx, []string{a.Filename})

	return nil
}
