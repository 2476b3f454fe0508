package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a CHECK or NOT NULL constraint rejects a row.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced row is missing or still referenced.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrOverlap is returned when a conditional approval loses to an overlapping approved booking.
	ErrOverlap = errors.New("persistence: overlapping approved booking")
	// ErrStaleState is returned when a conditional update finds the row in a different state.
	ErrStaleState = errors.New("persistence: stale state")
	// ErrBusy is returned when the database stays locked beyond the retry budget.
	ErrBusy = errors.New("persistence: database busy")
)
