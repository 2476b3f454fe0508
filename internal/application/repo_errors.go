package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/hall-booking/internal/persistence"
)

// mapRepoError translates persistence failures shared by every repository.
// Application sentinels pass through untouched.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnknown),
		errors.Is(err, ErrTimeout):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrOverlap):
		return ErrConflict
	case errors.Is(err, persistence.ErrStaleState):
		return ErrInvalidTransition
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, persistence.ErrBusy):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// isTransient reports whether a read may be retried.
func isTransient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, persistence.ErrBusy) ||
		errors.Is(err, context.DeadlineExceeded)
}
