package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input that was rejected before any mutation happened.
	ErrValidation = errors.New("validation error")
	// ErrUnsupportedMediaType is returned for uploads outside the allowed extensions.
	ErrUnsupportedMediaType = fmt.Errorf("%w: unsupported media type", ErrValidation)
	// ErrMissingMedia is returned when a post is created without an upload or media URL.
	ErrMissingMedia = fmt.Errorf("%w: missing media", ErrValidation)

	ErrNotFound = errors.New("post not found")

	// ErrStoreUnavailable means the store could not be reached at all.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStore            = errors.New("store error")
)

// ValidationErrorf builds an error wrapping ErrValidation.
func ValidationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
