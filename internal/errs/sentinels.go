// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/client layers.
var (
	// ErrNotFound indicates the requested row does not exist (zero rows on a single-row query).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller tried to touch a row it does not own.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a request failed basic validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoSession indicates an operation needs an authenticated user and there is none.
	ErrNoSession = errors.New("no session")
)
