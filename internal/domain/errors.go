package domain

import "errors"

var (
	// ErrInvalidArgument marks malformed or rule-violating input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when a workout cannot be located.
	ErrNotFound = errors.New("workout not found")
	// ErrStorage wraps failures reported by the backing store.
	ErrStorage = errors.New("storage failure")
)
