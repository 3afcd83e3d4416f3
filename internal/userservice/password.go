package userservice

import (
	"errors"
	"fmt"

	"github.com/sushihentaime/teamblog/internal/common"
	"golang.org/x/crypto/bcrypt"
)

const passwordCost = 12

var errNoPasswordHash = errors.New("user has no password hash")

// set hashes pwd. bcrypt reads at most 72 bytes, so a longer password is
// reported as a validation error instead of being cut.
func (p *Password) set(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), passwordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return common.ValidationError{Errors: map[string]string{"password": "must not be more than 72 bytes long"}}
		}
		return fmt.Errorf("hashing password: %w", err)
	}

	p.Plain = pwd
	p.hash = hash

	return nil
}

// matches reports whether pwd is the password behind the stored hash.
func (p *Password) matches(pwd string) (bool, error) {
	if len(p.hash) == 0 {
		return false, errNoPasswordHash
	}

	err := bcrypt.CompareHashAndPassword(p.hash, []byte(pwd))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("comparing password hash: %w", err)
	}
}
