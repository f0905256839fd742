package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist
	// or does not satisfy the conditions of a guarded update.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("entity conflict")
)
