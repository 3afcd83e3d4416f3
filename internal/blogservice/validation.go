package blogservice

import (
	"strings"

	"github.com/sushihentaime/teamblog/internal/common"
)

const (
	maxContentLength  = 100_000
	maxCommentLength  = 5_000
	maxAttachmentSize = 25 << 20
)

func validateTitle(v *common.Validator, title string) {
	v.Check(strings.TrimSpace(title) != "", "title", "must be provided")
	v.Check(v.CheckStringLength(title, 3, 200), "title", "must be between 3 and 200 characters long")
}

func validateContent(v *common.Validator, content string) {
	v.Check(strings.TrimSpace(content) != "", "content", "must be provided")
	v.Check(v.CheckStringLength(content, 1, maxContentLength), "content", "must not be more than 100000 characters long")
}

func validateStatus(v *common.Validator, status Status) {
	v.Check(status != "", "status", "must be provided")
	v.Check(common.PermittedValue(status, StatusPublic, StatusPrivate), "status", "must be public or private")
}

func validateComment(v *common.Validator, content string) {
	v.Check(strings.TrimSpace(content) != "", "content", "must be provided")
	v.Check(v.CheckStringLength(content, 1, maxCommentLength), "content", "must not be more than 5000 characters long")
}

func validatePagination(v *common.Validator, limit, offset int) {
	v.Check(limit >= 0 && limit <= 100, "limit", "must be between 0 and 100")
	v.Check(offset >= 0, "offset", "must not be negative")
}

func validateAttachment(v *common.Validator, a *Attachment) {
	v.Check(a.Filename != "", "filename", "must be provided")
	v.Check(a.OriginalFilename != "", "original_filename", "must be provided")
	v.Check(v.CheckStringLength(a.OriginalFilename, 1, 255), "original_filename", "must not be more than 255 characters long")
	v.Check(a.MimeType != "", "mime_type", "must be provided")
	v.Check(a.FileSize >= 0 && a.FileSize <= maxAttachmentSize, "file_size", "must be between 0 and 25MB")

	parents := 0
	for field, id := range map[string]*string{"blog_id": a.BlogID, "post_id": a.PostID, "comment_id": a.CommentID} {
		if id != nil {
			v.CheckID(*id, field)
			parents++
		}
	}
	v.Check(parents == 1, "parent", "must reference exactly one of blog, post or comment")
}
