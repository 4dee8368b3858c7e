package common

import "errors"

var (
	// ErrNotFound covers both a missing entity and an ownership mismatch so
	// callers cannot tell whether another user's entity exists.
	ErrNotFound = errors.New("not found")

	// ErrConflict: a unique field (email, username) is already taken.
	ErrConflict = errors.New("already exists")

	// ErrUnauthorized: missing, invalid or expired credential proof.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden: valid credentials but the account is disabled.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalid: malformed input shape.
	ErrInvalid = errors.New("invalid input")
)
