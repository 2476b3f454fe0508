package scheduler

import (
	"sort"

	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
)

// Reservation is the slice of a booking needed to reason about hall occupancy.
type Reservation struct {
	ID     string
	HallID string
	Window calendar.Window
	Status booking.Status
}

// ConflictType describes how strongly an overlapping reservation holds the hall.
type ConflictType string

const (
	// ConflictTypeApproved indicates the hall is already confirmed for an overlapping window.
	ConflictTypeApproved ConflictType = "approved"
	// ConflictTypePending indicates another request is waiting for the same window.
	ConflictTypePending ConflictType = "pending"
)

// Conflict details an overlapping reservation that callers can present to users.
type Conflict struct {
	WithBookingID string
	Type          ConflictType
	Window        calendar.Window
}

// DetectConflicts identifies reservations of the same hall whose windows overlap the candidate.
// Only pending and approved reservations occupy a hall; the candidate itself is skipped by ID.
func DetectConflicts(existing []Reservation, candidate Reservation) []Conflict {
	var conflicts []Conflict
	for _, other := range existing {
		if other.ID != "" && other.ID == candidate.ID {
			continue
		}
		if other.HallID != candidate.HallID {
			continue
		}
		if !other.Status.Occupying() {
			continue
		}
		if !other.Window.Overlaps(candidate.Window) {
			continue
		}
		kind := ConflictTypePending
		if other.Status == booking.StatusApproved {
			kind = ConflictTypeApproved
		}
		conflicts = append(conflicts, Conflict{WithBookingID: other.ID, Type: kind, Window: other.Window})
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		a, b := conflicts[i].Window, conflicts[j].Window
		if a.Start != b.Start {
			return a.Start.Before(b.Start)
		}
		return conflicts[i].WithBookingID < conflicts[j].WithBookingID
	})
	return conflicts
}

// HasApprovedOverlap reports whether any approved reservation blocks the candidate window.
func HasApprovedOverlap(existing []Reservation, candidate Reservation) bool {
	for _, c := range DetectConflicts(existing, candidate) {
		if c.Type == ConflictTypeApproved {
			return true
		}
	}
	return false
}

// ApprovedSetConsistent reports whether no two approved reservations of the same hall overlap.
func ApprovedSetConsistent(reservations []Reservation) bool {
	for i := range reservations {
		if reservations[i].Status != booking.StatusApproved {
			continue
		}
		for j := i + 1; j < len(reservations); j++ {
			if reservations[j].Status != booking.StatusApproved || reservations[j].HallID != reservations[i].HallID {
				continue
			}
			if reservations[i].Window.Overlaps(reservations[j].Window) {
				return false
			}
		}
	}
	return true
}
