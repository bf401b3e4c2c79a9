package services

import "errors"

var (
	// ErrValidation marks malformed or missing input, rejected before
	// any write.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced transaction, referral or user that
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks a privileged change attempted by a
	// non-privileged actor.
	ErrUnauthorized = errors.New("unauthorized")
)
