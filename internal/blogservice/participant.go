package blogservice

import (
	"fmt"
	"slices"

	"github.com/sushihentaime/teamblog/internal/common"
)

// IsParticipant reports whether userID belongs to the audience of b. The
// author always does. An empty id never does.
func IsParticipant(b *Blog, userID string) bool {
	if userID == "" {
		return false
	}
	if userID == b.AuthorID {
		return true
	}
	return slices.Contains(b.Participants, userID)
}

// AddParticipant adds userID to the explicit participant set and reports
// whether membership changed. Adding a member, the author included, is a
// no-op.
func AddParticipant(b *Blog, userID string) bool {
	if userID == "" || IsParticipant(b, userID) {
		return false
	}
	b.Participants = append(b.Participants, userID)
	return true
}

// RemoveParticipant drops userID from the explicit participant set and
// reports whether the set changed. The author can never be removed.
func RemoveParticipant(b *Blog, userID string) (bool, error) {
	if userID == b.AuthorID {
		return false, fmt.Errorf("%w: the author of a blog cannot be removed", common.ErrInvariantViolation)
	}

	i := slices.Index(b.Participants, userID)
	if i < 0 {
		return false, nil
	}
	b.Participants = slices.Delete(b.Participants, i, i+1)
	return true, nil
}
