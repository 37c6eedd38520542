package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches a lookup or a guarded update.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("record already exists")
)
