package blogservice

import (
	"fmt"

	"github.com/sushihentaime/teamblog/internal/common"
)

// CanView reports whether actorID may read b. Anonymous actors never can.
// A status other than public or private fails with common.ErrInvalidState.
func CanView(b *Blog, actorID string) (bool, error) {
	switch b.Status {
	case StatusPublic:
		return actorID != "", nil
	case StatusPrivate:
		return IsParticipant(b, actorID), nil
	default:
		return false, fmt.Errorf("%w: blog %s has status %q", common.ErrInvalidState, b.ID, b.Status)
	}
}

// CanEdit reports whether actorID may change b. Only the author can.
func CanEdit(b *Blog, actorID string) (bool, error) {
	ok, err := CanView(b, actorID)
	if err != nil || !ok {
		return false, err
	}
	return actorID == b.AuthorID, nil
}

func CanDelete(b *Blog, actorID string) (bool, error) {
	return CanEdit(b, actorID)
}

// CanEditPost reports whether actorID may change p, which lives in b.
func CanEditPost(b *Blog, p *Post, actorID string) (bool, error) {
	ok, err := CanView(b, actorID)
	if err != nil || !ok {
		return false, err
	}
	return actorID == p.AuthorID, nil
}

func CanDeletePost(b *Blog, p *Post, actorID string) (bool, error) {
	return CanEditPost(b, p, actorID)
}

// CanDeleteComment grants the comment author and the blog author.
func CanDeleteComment(b *Blog, c *Comment, actorID string) bool {
	if actorID == "" {
		return false
	}
	return actorID == c.AuthorID || actorID == b.AuthorID
}

func CanAddParticipant(b *Blog, actorID string) (bool, error) {
	return CanView(b, actorID)
}

// CanRemoveParticipant only allows members to remove themselves, and never
// the author.
func CanRemoveParticipant(b *Blog, actorID, targetID string) bool {
	return actorID != "" && actorID == targetID && targetID != b.AuthorID
}

// authorize turns a policy decision into common.ErrForbidden.
func authorize(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrForbidden
	}
	return nil
}

func AuthorizeView(b *Blog, actorID string) error {
	return authorize(CanView(b, actorID))
}

func AuthorizeEdit(b *Blog, actorID string) error {
	return authorize(CanEdit(b, actorID))
}

func AuthorizeDelete(b *Blog, actorID string) error {
	return authorize(CanDelete(b, actorID))
}
