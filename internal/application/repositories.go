package application

import (
	"context"
	"time"

	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/events"
	"github.com/example/hall-booking/internal/token"
)

// UserRepository captures the account persistence used by the services.
type UserRepository interface {
	CreateUser(ctx context.Context, user User, passwordHash string) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, user User) error
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	CountUsersByRole(ctx context.Context, role Role) (int, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
}

// CredentialStore exposes credential lookup required by sign-in.
type CredentialStore interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
}

// SessionRepository captures the persistence interactions for issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	UpdateSession(ctx context.Context, session Session) error
	RevokeSession(ctx context.Context, id string, revokedAt time.Time) error
	RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) (int, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error)
}

// TokenCodec signs and verifies bearer tokens.
type TokenCodec interface {
	Issue(sessionID, userID, role string, expiresAt time.Time) (string, error)
	Parse(raw string) (*token.Claims, error)
	ParseIgnoringExpiry(raw string) (*token.Claims, error)
}

// HallRepository captures hall catalog persistence.
type HallRepository interface {
	CreateHall(ctx context.Context, hall Hall) error
	UpdateHall(ctx context.Context, hall Hall) error
	GetHall(ctx context.Context, id string) (Hall, error)
	ListHalls(ctx context.Context, includeInactive bool) ([]Hall, error)
}

// BookingQuery narrows booking reads at the repository level.
type BookingQuery struct {
	UserID          string
	HallID          string
	Statuses        []booking.Status
	From            *calendar.Date
	To              *calendar.Date
	ReminderPending bool
	Limit           int
	Offset          int
}

// BookingRepository captures booking persistence. Transition methods are
// atomic conditional updates; they fail when the row moved underneath.
type BookingRepository interface {
	CreateBooking(ctx context.Context, b Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error)
	CountBookings(ctx context.Context, query BookingQuery) (int, error)
	CountByStatus(ctx context.Context, query BookingQuery) (map[booking.Status]int, error)
	FindOverlapping(ctx context.Context, hallID string, window calendar.Window, excludeID string, statuses []booking.Status) ([]Booking, error)
	ApproveBooking(ctx context.Context, id string, adminNotes *string, at time.Time) (Booking, error)
	RejectBooking(ctx context.Context, id, reason string, adminNotes *string, at time.Time) (Booking, error)
	CancelBooking(ctx context.Context, id, reason, cancelledBy string, today calendar.Date, at time.Time) (Booking, error)
	CompleteElapsed(ctx context.Context, today calendar.Date, now calendar.Clock, at time.Time) ([]Booking, error)
	RateBooking(ctx context.Context, id string, rating int, at time.Time) (Booking, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error)
	RatingSummary(ctx context.Context, userID string) (float64, int, error)
}

// NotificationQuery narrows inbox reads.
type NotificationQuery struct {
	UnreadOnly   bool
	CreatedAfter *time.Time
	Limit        int
	Offset       int
}

// NotificationRepository captures inbox persistence.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n Notification) error
	GetNotification(ctx context.Context, id string) (Notification, error)
	ListNotifications(ctx context.Context, userID string, query NotificationQuery) ([]Notification, error)
	CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	DeleteNotification(ctx context.Context, id string) (bool, error)
}

// SettingsRepository captures notification preference persistence.
type SettingsRepository interface {
	GetSettings(ctx context.Context, userID string) (NotificationSettings, error)
	SaveSettings(ctx context.Context, settings NotificationSettings) error
}

// EventPublisher receives post-commit domain events. *events.Bus satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event)
}
