package scheduler

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
)

func TestDetectConflicts(t *testing.T) {
	day, _ := calendar.ParseDate("2025-03-10")

	t.Run("approved overlap produces blocking conflict", func(t *testing.T) {
		existing := []Reservation{
			reservation("b1", "hall-1", day, 10*60, 11*60, booking.StatusApproved),
		}
		candidate := reservation("", "hall-1", day, 10*60+30, 11*60+30, booking.StatusPending)

		conflicts := DetectConflicts(existing, candidate)
		if len(conflicts) != 1 {
			t.Fatalf("expected one conflict, got %d", len(conflicts))
		}
		if conflicts[0].Type != ConflictTypeApproved || conflicts[0].WithBookingID != "b1" {
			t.Fatalf("unexpected conflict %+v", conflicts[0])
		}
		if !HasApprovedOverlap(existing, candidate) {
			t.Fatalf("expected approved overlap")
		}
	})

	t.Run("pending overlap is advisory", func(t *testing.T) {
		existing := []Reservation{
			reservation("b1", "hall-1", day, 10*60, 11*60, booking.StatusPending),
		}
		candidate := reservation("", "hall-1", day, 10*60, 11*60, booking.StatusPending)

		conflicts := DetectConflicts(existing, candidate)
		if len(conflicts) != 1 || conflicts[0].Type != ConflictTypePending {
			t.Fatalf("expected pending conflict, got %+v", conflicts)
		}
		if HasApprovedOverlap(existing, candidate) {
			t.Fatalf("pending reservations must not block")
		}
	})

	t.Run("non-overlapping and inactive reservations yield no conflicts", func(t *testing.T) {
		existing := []Reservation{
			reservation("b1", "hall-1", day, 9*60, 10*60, booking.StatusApproved),
			reservation("b2", "hall-1", day, 10*60, 11*60, booking.StatusCancelled),
			reservation("b3", "hall-2", day, 10*60, 11*60, booking.StatusApproved),
			reservation("b4", "hall-1", day, 11*60, 12*60, booking.StatusApproved),
		}
		candidate := reservation("", "hall-1", day, 10*60, 11*60, booking.StatusPending)

		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", conflicts)
		}
	})

	t.Run("candidate does not conflict with itself", func(t *testing.T) {
		existing := []Reservation{
			reservation("b1", "hall-1", day, 10*60, 11*60, booking.StatusApproved),
		}
		candidate := reservation("b1", "hall-1", day, 10*60, 11*60, booking.StatusApproved)

		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected self to be excluded, got %+v", conflicts)
		}
	})
}

// Approving requests in random order while refusing any that overlap an
// already approved window must never produce an inconsistent approved set.
func TestApprovalGateKeepsApprovedSetConsistent(t *testing.T) {
	day, _ := calendar.ParseDate("2025-03-10")
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var all []Reservation
		for i := 0; i < 12; i++ {
			start := rng.Intn(20) * 30
			length := (rng.Intn(4) + 1) * 30
			all = append(all, reservation(fmt.Sprintf("r%d-%d", round, i), "hall-1", day, 8*60+start, 8*60+start+length, booking.StatusPending))
		}

		rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
		for i := range all {
			if HasApprovedOverlap(all, all[i]) {
				continue
			}
			all[i].Status = booking.StatusApproved
		}

		if !ApprovedSetConsistent(all) {
			t.Fatalf("round %d produced overlapping approved reservations", round)
		}
	}
}

func reservation(id, hall string, day calendar.Date, start, end int, status booking.Status) Reservation {
	s, _ := calendar.NewClock(start/60, start%60)
	e, _ := calendar.NewClock(end/60, end%60)
	return Reservation{
		ID:     id,
		HallID: hall,
		Status: status,
		Window: calendar.Window{Date: day, Start: s, End: e},
	}
}
