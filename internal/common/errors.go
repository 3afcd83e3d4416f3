package common

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrEditConflict   = errors.New("edit conflict")

	// ErrForbidden is returned when the actor fails an access check.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState marks stored data that breaks a documented rule, such as a
	// blog status outside public/private. It is a data fault, not user input.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvariantViolation is returned when an operation would break an
	// invariant. Nothing is applied when it is returned.
	ErrInvariantViolation = errors.New("invariant violation")
)
