package store

import "errors"

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict signals a unique constraint violation (duplicate slug, title or email).
	ErrConflict = errors.New("record already exists")
)
