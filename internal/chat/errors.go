package chat

import "errors"

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown or inactive session, or a sender who is
	// not a participant.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks a read by a user who is not a participant.
	ErrForbidden = errors.New("forbidden")

	// ErrPersistence marks a failed store write. Nothing was broadcast.
	ErrPersistence = errors.New("persistence error")
)
