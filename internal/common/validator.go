package common

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/google/uuid"
)

type ValidationError struct {
	Errors map[string]string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %+v", e.Errors)
}

type Validator struct {
	Errors map[string]string
}

func NewValidator() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

func (v *Validator) AddError(field, message string) {
	if _, ok := v.Errors[field]; !ok {
		v.Errors[field] = message
	}
}

func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.AddError(field, message)
	}
}

// CheckStringLength counts runes, so titles in any script are measured the same way.
func (v *Validator) CheckStringLength(s string, min, max int) bool {
	n := utf8.RuneCountInString(s)
	return n >= min && n <= max
}

func (v *Validator) ValidationError() error {
	return ValidationError{Errors: v.Errors}
}

// CheckID records an error unless id is a well-formed UUID.
func (v *Validator) CheckID(id, field string) {
	v.Check(id != "", field, "must be provided")
	if id != "" {
		_, err := uuid.Parse(id)
		v.Check(err == nil, field, "must be a valid id")
	}
}

func PermittedValue[T comparable](value T, permitted ...T) bool {
	return slices.Contains(permitted, value)
}

// NewID returns a fresh opaque entity identifier.
func NewID() string {
	return uuid.NewString()
}
