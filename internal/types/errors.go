package types

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown persona or memory id.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName marks a persona name collision.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrGeneration marks a failed generation call.
	ErrGeneration = errors.New("generation failed")
	// ErrRetrieval marks a failed memory or context lookup.
	ErrRetrieval = errors.New("retrieval failed")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IsClientError reports whether err should be surfaced as a rejected request rather than a processing failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateName)
}
