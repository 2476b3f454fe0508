// Package booking defines the booking status lifecycle.
package booking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownStatus is returned when a stored or supplied status is not recognised.
	ErrUnknownStatus = errors.New("booking: unknown status")
	// ErrInvalidTransition is returned when the requested move is not allowed from the current status.
	ErrInvalidTransition = errors.New("booking: invalid transition")
)

// Status is the closed set of booking states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted}

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCancelled, StatusCompleted},
}

// ParseStatus converts raw input into a Status, failing closed on unknown values.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
	return s, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Occupying reports whether a booking in status s holds (or may come to hold) its hall window.
func (s Status) Occupying() bool {
	return s == StatusPending || s == StatusApproved
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a move and returns the resulting status.
func Transition(from, to Status) (Status, error) {
	if !from.Valid() {
		return from, fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !to.Valid() {
		return from, fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}
