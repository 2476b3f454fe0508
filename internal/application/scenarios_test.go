package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/hall-booking/internal/backoff"
	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/events"
	"github.com/example/hall-booking/internal/notify"
)

// world wires every service against the in-memory stubs and a real bus.
type world struct {
	now           *time.Time
	users         *userRepoStub
	bookingsRepo  *bookingRepoStub
	notifications *notificationRepoStub
	auth          *AuthService
	gate          *IdentityGate
	approvals     *ApprovalService
	bookings      *BookingService
	inbox         *NotificationService
}

func newWorld(t *testing.T) *world {
	t.Helper()
	now := testEpoch
	w := &world{
		now: &now,
		users: newUserRepoStub(
			User{ID: "u1", Name: "Dr. Rao", Email: "u1@example.edu", Role: RoleFaculty, IsActive: true, RegistrationStatus: RegistrationApproved},
			User{ID: "u2", Name: "Dr. Iyer", Email: "u2@example.edu", Role: RoleFaculty, IsActive: true, RegistrationStatus: RegistrationApproved},
			User{ID: "a1", Name: "Admin", Email: "a1@example.edu", Role: RoleAdmin, IsActive: true, RegistrationStatus: RegistrationApproved},
			User{ID: "s1", Name: "Root", Email: "s1@example.edu", Role: RoleSuperAdmin, IsActive: true, RegistrationStatus: RegistrationApproved},
		),
		bookingsRepo:  newBookingRepoStub(),
		notifications: newNotificationRepoStub(),
	}
	for id := range w.users.users {
		w.users.hashes[id] = "hash:password123"
	}
	clock := func() time.Time { return *w.now }
	bus := events.NewBus(nil)
	sessions := newSessionRepoStub()

	w.auth = NewAuthService(w.users, w.users, sessions, tokenCodecStub{now: clock}, AuthServiceConfig{
		HashPassword:   func(password string) (string, error) { return "hash:" + password, nil },
		VerifyPassword: plainVerifier,
		IDGenerator:    sequentialIDs("id"),
		Now:            clock,
		SessionTTL:     time.Hour,
	})
	w.gate = NewIdentityGate(w.auth, w.users, backoff.Policy{Attempts: 1}, nil)
	w.approvals = NewApprovalService(w.users, w.auth, bus, clock)
	halls := newHallRepoStub(Hall{ID: "h1", Name: "H1", Location: "Block A", Capacity: 80, IsActive: true})
	w.bookings = NewBookingService(w.bookingsRepo, halls, bus, sequentialIDs("b"), clock, time.UTC)
	w.inbox = NewNotificationService(w.notifications, newSettingsRepoStub(), w.users, w.bookingsRepo, NotificationServiceConfig{
		Hub:         notify.NewHub[Notification](8),
		Publisher:   bus,
		IDGenerator: sequentialIDs("n"),
		Now:         clock,
		Location:    time.UTC,
	})
	t.Cleanup(w.inbox.Register(bus))
	return w
}

func (w *world) principal(t *testing.T, email string) Principal {
	t.Helper()
	result, err := w.auth.SignIn(context.Background(), email, "password123")
	if err != nil {
		t.Fatalf("SignIn(%s) failed: %v", email, err)
	}
	p, err := w.gate.Authorize(context.Background(), result.Token, nil)
	if err != nil {
		t.Fatalf("Authorize(%s) failed: %v", email, err)
	}
	return p
}

func (w *world) request(t *testing.T, p Principal) Booking {
	t.Helper()
	b, _, err := w.bookings.CreateBooking(context.Background(), p, CreateBookingInput{
		HallID:         "h1",
		Date:           "2026-03-10",
		StartTime:      "10:00",
		EndTime:        "11:00",
		Purpose:        "Research seminar",
		AttendeesCount: 30,
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	return b
}

func unreadOf(t *testing.T, w *world, p Principal) int {
	t.Helper()
	count, err := w.inbox.GetUnreadCount(context.Background(), p)
	if err != nil {
		t.Fatalf("GetUnreadCount failed: %v", err)
	}
	return count
}

func TestScenario_ApprovalConflictAndCancellation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	u1 := w.principal(t, "u1@example.edu")
	u2 := w.principal(t, "u2@example.edu")
	a1 := w.principal(t, "a1@example.edu")

	first := w.request(t, u1)
	before := unreadOf(t, w, u1)
	approved, err := w.bookings.ApproveBooking(ctx, a1, first.ID, nil)
	if err != nil {
		t.Fatalf("ApproveBooking failed: %v", err)
	}
	if approved.Status != booking.StatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if got := unreadOf(t, w, u1); got != before+1 {
		t.Fatalf("expected unread count %d, got %d", before+1, got)
	}
	latest := w.notifications.forUser("u1")[0]
	if latest.Type != NotificationBooking || latest.Data.BookingID != first.ID {
		t.Fatalf("unexpected notification %#v", latest)
	}

	second := w.request(t, u2)
	if _, err := w.bookings.ApproveBooking(ctx, a1, second.ID, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := w.bookingsRepo.booking(second.ID).Status; got != booking.StatusPending {
		t.Fatalf("expected conflicting booking to stay pending, got %s", got)
	}

	*w.now = time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	cancelled, err := w.bookings.CancelBooking(ctx, u1, first.ID, "Speaker unavailable")
	if err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}
	if cancelled.Status != booking.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	latest = w.notifications.forUser("u1")[0]
	if latest.Type != NotificationCancellation || latest.Data.CancellationReason != "Speaker unavailable" {
		t.Fatalf("expected cancellation notification, got %#v", latest)
	}
	if _, err := w.bookings.CancelBooking(ctx, u1, first.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestScenario_NewFacultyWaitsForApproval(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	user, err := w.auth.Register(ctx, RegisterInput{Name: "Dr. Menon", Email: "new@example.edu", Password: "password123"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ApprovedByAdmin() {
		t.Fatal("expected new account to await approval")
	}

	pending := w.principal(t, "new@example.edu")
	if _, _, err := w.bookings.CreateBooking(ctx, pending, CreateBookingInput{
		HallID: "h1", Date: "2026-03-10", StartTime: "10:00", EndTime: "11:00", Purpose: "Talk", AttendeesCount: 5,
	}); !errors.Is(err, ErrAccountNotApproved) {
		t.Fatalf("expected ErrAccountNotApproved, got %v", err)
	}

	a1 := w.principal(t, "a1@example.edu")
	if _, err := w.approvals.ApproveUser(ctx, a1, "new@example.edu"); err != nil {
		t.Fatalf("ApproveUser failed: %v", err)
	}
	if items := w.notifications.forUser(user.ID); len(items) != 1 || items[0].Type != NotificationUpdate {
		t.Fatalf("expected approval notification, got %#v", items)
	}

	approved := w.principal(t, "new@example.edu")
	if !approved.Approved {
		t.Fatal("expected principal to reflect approval")
	}
	w.request(t, approved)
}

func TestScenario_SoleSuperAdminCannotBeDeleted(t *testing.T) {
	w := newWorld(t)
	a1 := w.principal(t, "a1@example.edu")

	if err := w.approvals.DeleteUser(context.Background(), a1, "s1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if got := w.users.user("s1"); got.Role != RoleSuperAdmin || !got.IsActive {
		t.Fatalf("expected super admin to be untouched, got %#v", got)
	}
	if len(w.users.deleted) != 0 {
		t.Fatalf("expected no deletions, got %v", w.users.deleted)
	}
}
