package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the caller credential is absent, malformed, or
	// carries no identity claim.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the credential identity does not match the target
	// account.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means a queried record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInternal wraps an unclassified evaluation failure surfaced to the
	// caller as a generic server error.
	ErrInternal = errors.New("internal error")
)

// ValidationError is a caller-visible rejection of the request itself, such
// as a malformed account identifier or an origin account that could not be
// resolved after a sync attempt.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
