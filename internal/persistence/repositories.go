package persistence

import (
	"context"
	"time"
)

// UserFilter narrows user listings. Nil fields are ignored.
type UserFilter struct {
	Role               *string
	RegistrationStatus *string
	IsActive           *bool
}

// UserRepository exposes CRUD operations for accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	CountUsersByRole(ctx context.Context, role string) (int, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
}

// HallRepository exposes catalog operations for halls.
type HallRepository interface {
	CreateHall(ctx context.Context, hall Hall) error
	UpdateHall(ctx context.Context, hall Hall) error
	GetHall(ctx context.Context, id string) (Hall, error)
	ListHalls(ctx context.Context, includeInactive bool) ([]Hall, error)
}

// BookingFilter narrows booking queries. Empty fields are ignored; date
// bounds are inclusive YYYY-MM-DD strings.
type BookingFilter struct {
	UserID          string
	HallID          string
	Statuses        []string
	DateFrom        string
	DateTo          string
	ReminderPending bool
	Limit           int
	Offset          int
}

// BookingRepository stores hall bookings. The transition methods are
// conditional updates: they only succeed when the row is still in an
// allowed source state, and report ErrStaleState otherwise.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	CountBookings(ctx context.Context, filter BookingFilter) (int, error)
	CountByStatus(ctx context.Context, filter BookingFilter) (map[string]int, error)
	FindOverlapping(ctx context.Context, hallID, date, start, end, excludeID string, statuses []string) ([]Booking, error)
	ApproveBooking(ctx context.Context, id string, adminNotes *string, at time.Time) (Booking, error)
	RejectBooking(ctx context.Context, id, reason string, adminNotes *string, at time.Time) (Booking, error)
	CancelBooking(ctx context.Context, id, reason, cancelledBy, today string, at time.Time) (Booking, error)
	CompleteElapsed(ctx context.Context, today, now string, at time.Time) ([]Booking, error)
	RateBooking(ctx context.Context, id string, rating int, at time.Time) (Booking, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error)
	RatingSummary(ctx context.Context, userID string) (average float64, count int, err error)
}

// NotificationFilter narrows inbox queries.
type NotificationFilter struct {
	UnreadOnly   bool
	CreatedAfter *time.Time
	Limit        int
	Offset       int
}

// NotificationRepository stores per-user notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification Notification) error
	GetNotification(ctx context.Context, id string) (Notification, error)
	ListNotifications(ctx context.Context, userID string, filter NotificationFilter) ([]Notification, error)
	CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	DeleteNotification(ctx context.Context, id string) (bool, error)
}

// SettingsRepository stores notification preferences.
type SettingsRepository interface {
	GetSettings(ctx context.Context, userID string) (NotificationSettings, error)
	SaveSettings(ctx context.Context, settings NotificationSettings) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	UpdateSession(ctx context.Context, session Session) error
	RevokeSession(ctx context.Context, id string, revokedAt time.Time) error
	RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) (int, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error)
}
