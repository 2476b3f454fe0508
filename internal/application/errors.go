package application

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated is returned when no valid session backs the request.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrAccountDeactivated is returned when the account behind a session has been switched off.
	ErrAccountDeactivated = errors.New("application: account deactivated")
	// ErrAccountNotApproved is returned when an unapproved account attempts a mutating booking operation.
	ErrAccountNotApproved = errors.New("application: account not approved")
	// ErrProfileNotReady is returned when a session exists but its profile row never appeared.
	ErrProfileNotReady = errors.New("application: profile not ready")
	// ErrInsufficientRole is returned when the principal's role ranks below the one required.
	ErrInsufficientRole = errors.New("application: insufficient role")
	// ErrForbidden is returned when the role suffices but the specific target is off limits.
	ErrForbidden = errors.New("application: forbidden")
	// ErrHallUnavailable is returned when a hall is inactive or under maintenance.
	ErrHallUnavailable = errors.New("application: hall unavailable")
	// ErrConflict is returned when an approved booking already holds the requested window.
	ErrConflict = errors.New("application: conflict")
	// ErrAlreadyElapsed is returned when the booking date is in the past.
	ErrAlreadyElapsed = errors.New("application: already elapsed")
	// ErrInvalidTransition is returned when the current state does not allow the requested move.
	ErrInvalidTransition = errors.New("application: invalid transition")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrTimeout is returned when a deadline expired before the operation finished.
	ErrTimeout = errors.New("application: timeout")
	// ErrUnknown is returned for unrecognised stored values and unexpected failures.
	ErrUnknown = errors.New("application: unknown")
	// ErrInvalidCredentials is returned when an email and password pair does not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
