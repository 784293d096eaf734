// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"strings"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (base version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication (bad credentials, missing or unusable token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken indicates a malformed token or a signature mismatch.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates a correctly signed token past its expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (username or email taken).
	ErrAlreadyExists = errors.New("user already exists")

	// ErrValidation indicates malformed input. Concrete failures are *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable indicates a transient store failure; the call is safe to retry.
	ErrUnavailable = errors.New("store unavailable")
)

// ValidationError names the request fields that failed validation.
type ValidationError struct {
	Fields []string
}

// NewValidation builds a ValidationError for the given fields.
func NewValidation(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Fields, ", ")
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return ErrValidation }
