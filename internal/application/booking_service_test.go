package application

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/events"
	"github.com/example/hall-booking/internal/pagination"
	"github.com/example/hall-booking/internal/persistence"
	"github.com/example/hall-booking/internal/scheduler"
)

var (
	facultyU1  = Principal{UserID: "u1", Role: RoleFaculty, IsActive: true, Approved: true}
	facultyU2  = Principal{UserID: "u2", Role: RoleFaculty, IsActive: true, Approved: true}
	adminA1    = Principal{UserID: "a1", Role: RoleAdmin, IsActive: true, Approved: true}
	superAdmin = Principal{UserID: "s1", Role: RoleSuperAdmin, IsActive: true, Approved: true}
)

type bookingFixture struct {
	svc       *BookingService
	bookings  *bookingRepoStub
	halls     *hallRepoStub
	publisher *publisherStub
}

func newBookingFixture(t *testing.T, existing ...Booking) bookingFixture {
	t.Helper()
	hall := Hall{ID: "h1", Name: "Main Hall", Capacity: 50, Location: "Block A", Equipment: []string{"Projector", "Microphone"}, IsActive: true}
	closed := Hall{ID: "h2", Name: "Annex", Capacity: 20, Location: "Block B", IsActive: true, IsMaintenance: true}
	f := bookingFixture{
		bookings:  newBookingRepoStub(existing...),
		halls:     newHallRepoStub(hall, closed),
		publisher: &publisherStub{},
	}
	f.svc = NewBookingService(f.bookings, f.halls, f.publisher, sequentialIDs("b"), fixedNow(testEpoch), time.UTC)
	return f
}

func validBookingInput() CreateBookingInput {
	return CreateBookingInput{
		HallID:         "h1",
		Date:           "2026-03-10",
		StartTime:      "10:00",
		EndTime:        "11:00",
		Purpose:        "Thesis defence",
		AttendeesCount: 20,
	}
}

func storedBooking(t *testing.T, id, userID, date, start, end string, status booking.Status) Booking {
	t.Helper()
	return Booking{
		ID:             id,
		HallID:         "h1",
		UserID:         userID,
		Date:           mustDate(t, date),
		Start:          mustClock(t, start),
		End:            mustClock(t, end),
		Purpose:        "Seminar",
		AttendeesCount: 10,
		Status:         status,
		CreatedAt:      testEpoch,
		UpdatedAt:      testEpoch,
	}
}

func TestBookingService_CreateBooking_StoresPendingRequest(t *testing.T) {
	f := newBookingFixture(t)

	input := validBookingInput()
	input.EquipmentNeeded = []string{" projector ", "Projector"}
	created, warnings, err := f.svc.CreateBooking(context.Background(), facultyU1, input)
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	if created.Status != booking.StatusPending {
		t.Fatalf("expected pending booking, got %s", created.Status)
	}
	if created.DurationMinutes != 60 {
		t.Fatalf("expected 60 minute duration, got %d", created.DurationMinutes)
	}
	if len(created.EquipmentNeeded) != 1 || created.EquipmentNeeded[0] != "projector" {
		t.Fatalf("expected equipment to be trimmed and deduplicated, got %#v", created.EquipmentNeeded)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %#v", warnings)
	}
	if stored := f.bookings.booking(created.ID); stored.UserID != "u1" {
		t.Fatalf("expected booking to be persisted for u1, got %#v", stored)
	}
	if topics := f.publisher.topics(); len(topics) != 1 || topics[0] != events.TopicBookingCreated {
		t.Fatalf("expected booking.created event, got %v", topics)
	}
}

func TestBookingService_CreateBooking_AcceptsCompactDate(t *testing.T) {
	f := newBookingFixture(t)

	input := validBookingInput()
	input.Date = "10032026"
	created, _, err := f.svc.CreateBooking(context.Background(), facultyU1, input)
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	if created.Date.String() != "2026-03-10" {
		t.Fatalf("expected normalized date, got %s", created.Date)
	}
}

func TestBookingService_CreateBooking_RequiresApprovedAccount(t *testing.T) {
	f := newBookingFixture(t)

	pending := Principal{UserID: "u9", Role: RoleFaculty, IsActive: true}
	_, _, err := f.svc.CreateBooking(context.Background(), pending, validBookingInput())
	if !errors.Is(err, ErrAccountNotApproved) {
		t.Fatalf("expected ErrAccountNotApproved, got %v", err)
	}
	if len(f.bookings.bookings) != 0 {
		t.Fatal("expected nothing to be stored")
	}
}

func TestBookingService_CreateBooking_ValidatesInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateBookingInput)
		field  string
	}{
		{"malformed date", func(in *CreateBookingInput) { in.Date = "2026/03/10" }, "date"},
		{"past date", func(in *CreateBookingInput) { in.Date = "2026-03-01" }, "date"},
		{"start already passed today", func(in *CreateBookingInput) { in.Date = "2026-03-02"; in.StartTime = "08:30" }, "start_time"},
		{"malformed start", func(in *CreateBookingInput) { in.StartTime = "9am" }, "start_time"},
		{"end before start", func(in *CreateBookingInput) { in.EndTime = "09:00" }, "end_time"},
		{"zero length", func(in *CreateBookingInput) { in.EndTime = in.StartTime }, "end_time"},
		{"missing purpose", func(in *CreateBookingInput) { in.Purpose = "  " }, "purpose"},
		{"no attendees", func(in *CreateBookingInput) { in.AttendeesCount = 0 }, "attendees_count"},
		{"over capacity", func(in *CreateBookingInput) { in.AttendeesCount = 51 }, "attendees_count"},
		{"equipment not offered", func(in *CreateBookingInput) { in.EquipmentNeeded = []string{"Piano"} }, "equipment_needed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newBookingFixture(t)
			input := validBookingInput()
			tc.mutate(&input)

			_, _, err := f.svc.CreateBooking(context.Background(), facultyU1, input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected %s field error, got %#v", tc.field, vErr.FieldErrors)
			}
		})
	}
}

func TestBookingService_CreateBooking_AllowsLaterStartToday(t *testing.T) {
	f := newBookingFixture(t)

	input := validBookingInput()
	input.Date = "2026-03-02"
	input.StartTime = "09:30"
	input.EndTime = "10:30"
	if _, _, err := f.svc.CreateBooking(context.Background(), facultyU1, input); err != nil {
		t.Fatalf("expected same-day booking with future start to succeed, got %v", err)
	}
}

func TestBookingService_CreateBooking_RejectsUnavailableHall(t *testing.T) {
	f := newBookingFixture(t)

	input := validBookingInput()
	input.HallID = "h2"
	input.AttendeesCount = 5
	if _, _, err := f.svc.CreateBooking(context.Background(), facultyU1, input); !errors.Is(err, ErrHallUnavailable) {
		t.Fatalf("expected ErrHallUnavailable, got %v", err)
	}

	input.HallID = "missing"
	if _, _, err := f.svc.CreateBooking(context.Background(), facultyU1, input); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingService_CreateBooking_ReturnsConflictWarnings(t *testing.T) {
	f := newBookingFixture(t,
		storedBooking(t, "approved-1", "u2", "2026-03-10", "09:30", "10:30", booking.StatusApproved),
		storedBooking(t, "pending-1", "u3", "2026-03-10", "10:45", "12:00", booking.StatusPending),
		storedBooking(t, "touching", "u3", "2026-03-10", "11:00", "12:00", booking.StatusRejected),
		storedBooking(t, "adjacent", "u3", "2026-03-10", "08:00", "09:30", booking.StatusApproved),
	)

	created, warnings, err := f.svc.CreateBooking(context.Background(), facultyU1, validBookingInput())
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	if created.Status != booking.StatusPending {
		t.Fatalf("expected booking to be stored despite warnings, got %s", created.Status)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected two warnings, got %#v", warnings)
	}
	if warnings[0].BookingID != "approved-1" || warnings[0].Type != "approved" {
		t.Fatalf("unexpected first warning %#v", warnings[0])
	}
	if warnings[1].BookingID != "pending-1" || warnings[1].Type != "pending" {
		t.Fatalf("unexpected second warning %#v", warnings[1])
	}
}

func TestBookingService_ApproveBooking(t *testing.T) {
	t.Run("approves pending booking and publishes event", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusPending))

		notes := "  room set up at 9:45 "
		approved, err := f.svc.ApproveBooking(context.Background(), adminA1, "b1", &notes)
		if err != nil {
			t.Fatalf("ApproveBooking failed: %v", err)
		}
		if approved.Status != booking.StatusApproved {
			t.Fatalf("expected approved status, got %s", approved.Status)
		}
		if approved.AdminNotes == nil || *approved.AdminNotes != "room set up at 9:45" {
			t.Fatalf("expected trimmed admin notes, got %v", approved.AdminNotes)
		}
		if topics := f.publisher.topics(); len(topics) != 1 || topics[0] != events.TopicBookingApproved {
			t.Fatalf("expected booking.approved, got %v", topics)
		}
	})

	t.Run("requires administrator", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusPending))

		if _, err := f.svc.ApproveBooking(context.Background(), facultyU1, "b1", nil); !errors.Is(err, ErrInsufficientRole) {
			t.Fatalf("expected ErrInsufficientRole, got %v", err)
		}
	})

	t.Run("fails with conflict when overlapping booking is approved", func(t *testing.T) {
		f := newBookingFixture(t,
			storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusApproved),
			storedBooking(t, "b2", "u2", "2026-03-10", "10:30", "11:30", booking.StatusPending),
		)

		if _, err := f.svc.ApproveBooking(context.Background(), adminA1, "b2", nil); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if got := f.bookings.booking("b2").Status; got != booking.StatusPending {
			t.Fatalf("expected b2 to remain pending, got %s", got)
		}
		if len(f.publisher.topics()) != 0 {
			t.Fatal("expected no event for a failed approval")
		}
	})

	t.Run("rejects non-pending booking", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusCancelled))

		if _, err := f.svc.ApproveBooking(context.Background(), adminA1, "b1", nil); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("rejects elapsed booking", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-01", "10:00", "11:00", booking.StatusPending))

		if _, err := f.svc.ApproveBooking(context.Background(), adminA1, "b1", nil); !errors.Is(err, ErrAlreadyElapsed) {
			t.Fatalf("expected ErrAlreadyElapsed, got %v", err)
		}
	})

	t.Run("returns not found for unknown booking", func(t *testing.T) {
		f := newBookingFixture(t)

		if _, err := f.svc.ApproveBooking(context.Background(), adminA1, "nope", nil); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("maps stale state from a concurrent change", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusPending))
		f.bookings.failApprove = persistence.ErrStaleState

		if _, err := f.svc.ApproveBooking(context.Background(), adminA1, "b1", nil); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestBookingService_ApproveBooking_ConcurrentOverlapsHaveOneWinner(t *testing.T) {
	f := newBookingFixture(t,
		storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusPending),
		storedBooking(t, "b2", "u2", "2026-03-10", "10:30", "11:30", booking.StatusPending),
		storedBooking(t, "b3", "u3", "2026-03-10", "09:00", "10:15", booking.StatusPending),
	)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, id := range []string{"b1", "b2", "b3"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.ApproveBooking(context.Background(), adminA1, id, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if successes < 1 || successes+conflicts != 3 {
		t.Fatalf("expected every approval to succeed or conflict, got %d successes and %d conflicts", successes, conflicts)
	}
	assertApprovedSetConsistent(t, f.bookings)
}

func TestBookingService_RejectBooking(t *testing.T) {
	f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusPending))

	var vErr *ValidationError
	if _, err := f.svc.RejectBooking(context.Background(), adminA1, "b1", "  ", nil); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for missing reason, got %v", err)
	}

	rejected, err := f.svc.RejectBooking(context.Background(), adminA1, "b1", "Hall reserved for exams", nil)
	if err != nil {
		t.Fatalf("RejectBooking failed: %v", err)
	}
	if rejected.Status != booking.StatusRejected || rejected.RejectedReason == nil || *rejected.RejectedReason != "Hall reserved for exams" {
		t.Fatalf("unexpected rejected booking %#v", rejected)
	}
	payload := f.publisher.events[0].Payload.(BookingEvent)
	if payload.Reason != "Hall reserved for exams" {
		t.Fatalf("expected reason on event, got %q", payload.Reason)
	}

	if _, err := f.svc.RejectBooking(context.Background(), adminA1, "b1", "again", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestBookingService_CancelBooking(t *testing.T) {
	t.Run("owner cancels approved booking once", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusApproved))

		cancelled, err := f.svc.CancelBooking(context.Background(), facultyU1, "b1", "Speaker unavailable")
		if err != nil {
			t.Fatalf("CancelBooking failed: %v", err)
		}
		if cancelled.Status != booking.StatusCancelled {
			t.Fatalf("expected cancelled status, got %s", cancelled.Status)
		}
		if cancelled.CancelledBy == nil || *cancelled.CancelledBy != "u1" {
			t.Fatalf("expected owner recorded as actor, got %v", cancelled.CancelledBy)
		}
		if _, err := f.svc.CancelBooking(context.Background(), facultyU1, "b1", ""); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition on second cancel, got %v", err)
		}
	})

	t.Run("administrator cancels on behalf of owner", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusPending))

		cancelled, err := f.svc.CancelBooking(context.Background(), adminA1, "b1", "Hall closed")
		if err != nil {
			t.Fatalf("CancelBooking failed: %v", err)
		}
		if *cancelled.CancelledBy != "a1" || *cancelled.CancellationReason != "Hall closed" {
			t.Fatalf("expected actor and reason to stay separate, got %v / %v", *cancelled.CancelledBy, *cancelled.CancellationReason)
		}
		payload := f.publisher.events[0].Payload.(BookingEvent)
		if payload.ActorRole != RoleAdmin || payload.ActorID != "a1" {
			t.Fatalf("expected admin actor on event, got %#v", payload)
		}
	})

	t.Run("other faculty cannot cancel", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusApproved))

		if _, err := f.svc.CancelBooking(context.Background(), facultyU2, "b1", ""); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("elapsed booking cannot be cancelled", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-01", "10:00", "11:00", booking.StatusApproved))

		if _, err := f.svc.CancelBooking(context.Background(), facultyU1, "b1", ""); !errors.Is(err, ErrAlreadyElapsed) {
			t.Fatalf("expected ErrAlreadyElapsed, got %v", err)
		}
	})

	t.Run("booking for today can still be cancelled", func(t *testing.T) {
		f := newBookingFixture(t, storedBooking(t, "b1", "u1", "2026-03-02", "08:00", "08:30", booking.StatusApproved))

		if _, err := f.svc.CancelBooking(context.Background(), facultyU1, "b1", ""); err != nil {
			t.Fatalf("expected same-day cancellation to succeed, got %v", err)
		}
	})
}

func TestBookingService_RateBooking(t *testing.T) {
	f := newBookingFixture(t,
		storedBooking(t, "done", "u1", "2026-02-20", "10:00", "11:00", booking.StatusCompleted),
		storedBooking(t, "open", "u1", "2026-03-10", "10:00", "11:00", booking.StatusApproved),
	)

	var vErr *ValidationError
	if _, err := f.svc.RateBooking(context.Background(), facultyU1, "done", 6); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := f.svc.RateBooking(context.Background(), facultyU2, "done", 4); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.RateBooking(context.Background(), facultyU1, "open", 4); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for uncompleted booking, got %v", err)
	}

	rated, err := f.svc.RateBooking(context.Background(), facultyU1, "done", 4)
	if err != nil {
		t.Fatalf("RateBooking failed: %v", err)
	}
	if rated.Rating == nil || *rated.Rating != 4 {
		t.Fatalf("expected rating 4, got %v", rated.Rating)
	}
	if _, err := f.svc.RateBooking(context.Background(), facultyU1, "done", 5); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second rating, got %v", err)
	}
}

func TestBookingService_CompleteElapsed(t *testing.T) {
	f := newBookingFixture(t,
		storedBooking(t, "yesterday", "u1", "2026-03-01", "10:00", "11:00", booking.StatusApproved),
		storedBooking(t, "ended", "u1", "2026-03-02", "07:00", "09:00", booking.StatusApproved),
		storedBooking(t, "running", "u1", "2026-03-02", "08:30", "09:30", booking.StatusApproved),
		storedBooking(t, "pending", "u1", "2026-03-01", "10:00", "11:00", booking.StatusPending),
	)

	count, err := f.svc.CompleteElapsed(context.Background())
	if err != nil {
		t.Fatalf("CompleteElapsed failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two completed bookings, got %d", count)
	}
	for id, want := range map[string]booking.Status{
		"yesterday": booking.StatusCompleted,
		"ended":     booking.StatusCompleted,
		"running":   booking.StatusApproved,
		"pending":   booking.StatusPending,
	} {
		if got := f.bookings.booking(id).Status; got != want {
			t.Fatalf("expected %s to be %s, got %s", id, want, got)
		}
	}
	if topics := f.publisher.topics(); len(topics) != 2 || topics[0] != events.TopicBookingCompleted {
		t.Fatalf("expected two booking.completed events, got %v", topics)
	}
}

func TestBookingService_GetUserBookingStats(t *testing.T) {
	rated := func(b Booking, r int) Booking { b.Rating = &r; return b }
	f := newBookingFixture(t,
		rated(storedBooking(t, "b1", "u1", "2026-02-10", "10:00", "11:00", booking.StatusCompleted), 4),
		rated(storedBooking(t, "b2", "u1", "2026-03-01", "10:00", "11:00", booking.StatusCompleted), 5),
		storedBooking(t, "b3", "u1", "2026-03-20", "10:00", "11:00", booking.StatusPending),
		storedBooking(t, "b4", "u2", "2026-03-20", "12:00", "13:00", booking.StatusPending),
	)

	stats, err := f.svc.GetUserBookingStats(context.Background(), facultyU1, "u1")
	if err != nil {
		t.Fatalf("GetUserBookingStats failed: %v", err)
	}
	if stats.TotalBookings != 3 || stats.ThisMonthBookings != 2 || stats.AverageRating != 4.5 {
		t.Fatalf("unexpected stats %#v", stats)
	}

	empty, err := f.svc.GetUserBookingStats(context.Background(), facultyU2, "u2")
	if err != nil {
		t.Fatalf("GetUserBookingStats failed: %v", err)
	}
	if empty.AverageRating != 0 {
		t.Fatalf("expected zero average without ratings, got %v", empty.AverageRating)
	}

	if _, err := f.svc.GetUserBookingStats(context.Background(), facultyU2, "u1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestBookingService_ListUserBookings(t *testing.T) {
	f := newBookingFixture(t,
		storedBooking(t, "b1", "u1", "2026-03-10", "10:00", "11:00", booking.StatusPending),
		storedBooking(t, "b2", "u1", "2026-03-12", "10:00", "11:00", booking.StatusApproved),
		storedBooking(t, "b3", "u1", "2026-03-12", "14:00", "15:00", booking.StatusApproved),
	)

	all, err := f.svc.ListUserBookings(context.Background(), facultyU1, "u1", nil)
	if err != nil {
		t.Fatalf("ListUserBookings failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "b3" || all[1].ID != "b2" || all[2].ID != "b1" {
		t.Fatalf("expected newest date and start first, got %v", bookingIDs(all))
	}

	approved := booking.StatusApproved
	filtered, err := f.svc.ListUserBookings(context.Background(), adminA1, "u1", &approved)
	if err != nil {
		t.Fatalf("ListUserBookings failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected two approved bookings, got %v", bookingIDs(filtered))
	}

	bogus := booking.Status("archived")
	var vErr *ValidationError
	if _, err := f.svc.ListUserBookings(context.Background(), facultyU1, "u1", &bogus); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestBookingService_ListBookingsAndAnalytics(t *testing.T) {
	var seeded []Booking
	statuses := []booking.Status{
		booking.StatusPending, booking.StatusApproved, booking.StatusApproved,
		booking.StatusRejected, booking.StatusCompleted, booking.StatusCancelled,
	}
	for i, status := range statuses {
		start := calendarClock(t, 8+i)
		end := calendarClock(t, 9+i)
		b := storedBooking(t, "b"+string(rune('a'+i)), "u1", "2026-03-10", start.String(), end.String(), status)
		seeded = append(seeded, b)
	}
	f := newBookingFixture(t, seeded...)

	if _, err := f.svc.ListBookings(context.Background(), facultyU1, BookingListFilter{}); !errors.Is(err, ErrInsufficientRole) {
		t.Fatalf("expected ErrInsufficientRole, got %v", err)
	}

	page, err := f.svc.ListBookings(context.Background(), adminA1, BookingListFilter{Page: pagination.Params{Page: 2, Limit: 4}})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if len(page.Items) != 2 || page.Meta.Total != 6 || page.Meta.TotalPages != 2 || page.Meta.HasNext || !page.Meta.HasPrev {
		t.Fatalf("unexpected page %v %#v", bookingIDs(page.Items), page.Meta)
	}

	analytics, err := f.svc.BookingAnalytics(context.Background(), adminA1, nil, nil)
	if err != nil {
		t.Fatalf("BookingAnalytics failed: %v", err)
	}
	if analytics.Total != 6 || analytics.ByStatus[booking.StatusApproved] != 2 || analytics.ByStatus[booking.StatusCancelled] != 1 {
		t.Fatalf("unexpected analytics %#v", analytics)
	}
	if analytics.ApprovalRate != 0.75 {
		t.Fatalf("expected approval rate 0.75, got %v", analytics.ApprovalRate)
	}

	from := mustDate(t, "2026-04-01")
	empty, err := f.svc.BookingAnalytics(context.Background(), adminA1, &from, nil)
	if err != nil {
		t.Fatalf("BookingAnalytics failed: %v", err)
	}
	if empty.Total != 0 || empty.ApprovalRate != 0 || len(empty.ByStatus) != len(booking.Statuses) {
		t.Fatalf("expected zeroed analytics, got %#v", empty)
	}
}

func TestBookingService_CheckConflictsUsesOccupancyCache(t *testing.T) {
	f := newBookingFixture(t, storedBooking(t, "b1", "u2", "2026-03-10", "10:00", "11:00", booking.StatusApproved))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		warnings, err := f.svc.CheckConflicts(ctx, facultyU1, "h1", "2026-03-10", "10:30", "11:30", "")
		if err != nil {
			t.Fatalf("CheckConflicts failed: %v", err)
		}
		if len(warnings) != 1 || warnings[0].BookingID != "b1" {
			t.Fatalf("expected conflict with b1, got %#v", warnings)
		}
	}
	if f.bookings.overlapCalls != 1 {
		t.Fatalf("expected second check to hit the cache, got %d lookups", f.bookings.overlapCalls)
	}

	if _, err := f.svc.CancelBooking(ctx, adminA1, "b1", ""); err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}
	warnings, err := f.svc.CheckConflicts(ctx, facultyU1, "h1", "2026-03-10", "10:30", "11:30", "")
	if err != nil {
		t.Fatalf("CheckConflicts failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected cancellation to invalidate the cache, got %#v", warnings)
	}
}

func TestBookingService_HasConflictReadsApprovedOnly(t *testing.T) {
	f := newBookingFixture(t,
		storedBooking(t, "approved", "u2", "2026-03-10", "10:00", "11:00", booking.StatusApproved),
		storedBooking(t, "pending", "u2", "2026-03-10", "12:00", "13:00", booking.StatusPending),
	)
	window := func(start, end string) calendar.Window {
		return calendar.Window{Date: mustDate(t, "2026-03-10"), Start: mustClock(t, start), End: mustClock(t, end)}
	}

	cases := []struct {
		name    string
		window  calendar.Window
		exclude string
		want    bool
	}{
		{"overlaps approved", window("10:30", "11:30"), "", true},
		{"touches approved", window("11:00", "12:00"), "", false},
		{"overlaps only pending", window("12:15", "12:45"), "", false},
		{"excluded self", window("10:00", "11:00"), "approved", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.svc.HasConflict(context.Background(), "h1", tc.window, tc.exclude)
			if err != nil {
				t.Fatalf("HasConflict failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

// Random create/approve/cancel sequences must never leave two overlapping
// approved bookings in the same hall.
func TestBookingService_RandomizedApprovalsKeepApprovedSetDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(20260302))
	f := newBookingFixture(t)
	ctx := context.Background()
	var ids []string

	for step := 0; step < 300; step++ {
		switch op := rng.Intn(10); {
		case op < 5 || len(ids) == 0:
			startHour := 8 + rng.Intn(9)
			length := 1 + rng.Intn(3)
			input := validBookingInput()
			input.Date = []string{"2026-03-10", "2026-03-11"}[rng.Intn(2)]
			input.StartTime = calendarClock(t, startHour).String()
			input.EndTime = calendarClock(t, min(startHour+length, 23)).String()
			created, _, err := f.svc.CreateBooking(ctx, facultyU1, input)
			if err != nil {
				t.Fatalf("step %d: CreateBooking failed: %v", step, err)
			}
			ids = append(ids, created.ID)
		case op < 9:
			id := ids[rng.Intn(len(ids))]
			_, err := f.svc.ApproveBooking(ctx, adminA1, id, nil)
			if err != nil && !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("step %d: unexpected approval error %v", step, err)
			}
		default:
			id := ids[rng.Intn(len(ids))]
			_, err := f.svc.CancelBooking(ctx, adminA1, id, "random")
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("step %d: unexpected cancel error %v", step, err)
			}
		}
		assertApprovedSetConsistent(t, f.bookings)
	}
}

func assertApprovedSetConsistent(t *testing.T, repo *bookingRepoStub) {
	t.Helper()
	repo.mu.Lock()
	reservations := make([]scheduler.Reservation, 0, len(repo.bookings))
	for _, b := range repo.bookings {
		reservations = append(reservations, toReservation(b))
	}
	repo.mu.Unlock()
	if !scheduler.ApprovedSetConsistent(reservations) {
		t.Fatalf("approved bookings overlap: %#v", reservations)
	}
}

func calendarClock(t *testing.T, hour int) calendar.Clock {
	t.Helper()
	c, err := calendar.NewClock(hour, 0)
	if err != nil {
		t.Fatalf("NewClock(%d): %v", hour, err)
	}
	return c
}

func bookingIDs(bookings []Booking) []string {
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	return ids
}
