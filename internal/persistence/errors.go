package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrNoCopies is returned when an availability decrement finds no copy
	// left to lend.
	ErrNoCopies = errors.New("persistence: no copies available")
	// ErrConstraintViolation is returned when a CHECK constraint rejects a
	// write, e.g. an availability counter that would go negative.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
