package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced column, item or task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned when a request violates a board invariant.
	ErrInvalid = errors.New("invalid request")
)
