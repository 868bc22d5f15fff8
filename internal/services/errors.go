package services

import (
	"errors"
	"fmt"
)

// ErrEmailExists is returned when an attempt is made to use an email that already exists.
var ErrEmailExists = errors.New("email already in use by another account")

// ErrInvalidCredentials is returned by sign-in for an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrAuthenticationRequired is returned when an owner-scoped operation is
// attempted without an active session.
var ErrAuthenticationRequired = errors.New("authentication required")

// Media upload failures detected before any network call.
var (
	ErrUnsupportedFormat  = errors.New("unsupported media format")
	ErrFileTooLarge       = errors.New("file exceeds the maximum allowed size")
	ErrPhotoLimitExceeded = errors.New("listing already has the maximum number of photos")
	ErrVideoLimitExceeded = errors.New("listing already has a video")
)

// ErrNotOwner is returned when a mutation targets a listing the caller does not own.
var ErrNotOwner = errors.New("listing not found or not owned by user")

// ErrInvalidResetToken is returned when a password reset token is unknown or expired.
var ErrInvalidResetToken = errors.New("invalid or expired password reset token")

// ValidationError is a client-detectable bad input, surfaced before any
// backend call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
