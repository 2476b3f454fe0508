package application

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/pagination"
)

// Role is the closed set of account roles, ordered faculty < admin < super_admin.
type Role string

const (
	RoleFaculty    Role = "faculty"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole converts a stored or supplied value, failing closed on anything unrecognised.
func ParseRole(value string) (Role, error) {
	role := Role(strings.TrimSpace(value))
	if role.rank() == 0 {
		return "", fmt.Errorf("%w: role %q", ErrUnknown, value)
	}
	return role, nil
}

func (r Role) rank() int {
	switch r {
	case RoleFaculty:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	}
	return 0
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r.rank() > 0 }

// AtLeast reports whether r ranks at or above required. Unknown roles never qualify.
func (r Role) AtLeast(required Role) bool {
	return r.rank() > 0 && required.rank() > 0 && r.rank() >= required.rank()
}

// RegistrationStatus tracks the admin decision on a sign-up, independently of IsActive.
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationApproved RegistrationStatus = "approved"
	RegistrationRejected RegistrationStatus = "rejected"
)

// ParseRegistrationStatus converts a stored value, failing closed.
func ParseRegistrationStatus(value string) (RegistrationStatus, error) {
	switch status := RegistrationStatus(value); status {
	case RegistrationPending, RegistrationApproved, RegistrationRejected:
		return status, nil
	}
	return "", fmt.Errorf("%w: registration status %q", ErrUnknown, value)
}

// Principal is the resolved identity invoking a service method. It is passed
// explicitly to every operation.
type Principal struct {
	UserID    string
	SessionID string
	Role      Role
	IsActive  bool
	Approved  bool
}

// HasRole reports whether the principal ranks at or above role.
func (p Principal) HasRole(role Role) bool {
	return p.Role.AtLeast(role)
}

// User is an account as exposed by the application services.
type User struct {
	ID                 string
	Name               string
	Email              string
	Phone              *string
	EmployeeID         *string
	Department         *string
	Role               Role
	IsActive           bool
	RegistrationStatus RegistrationStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastLoginAt        *time.Time
}

// ApprovedByAdmin reports whether an administrator accepted the registration.
func (u User) ApprovedByAdmin() bool {
	return u.RegistrationStatus == RegistrationApproved
}

// UserFilter narrows account listings.
type UserFilter struct {
	Role               *Role
	RegistrationStatus *RegistrationStatus
	IsActive           *bool
}

// UserCredentials pairs an account with its stored password hash.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Session is a server-side record backing an issued bearer token.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionEventKind names a session lifecycle change.
type SessionEventKind string

const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
	SessionRefreshed SessionEventKind = "refreshed"
	SessionRevoked   SessionEventKind = "revoked"
)

// SessionEvent is delivered to OnSessionChange listeners.
type SessionEvent struct {
	Kind      SessionEventKind
	UserID    string
	SessionID string
	At        time.Time
}

// RegisterInput captures a self sign-up.
type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	Phone      *string
	EmployeeID *string
	Department *string
}

// SignInResult carries the issued bearer token.
type SignInResult struct {
	User      User
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// Hall is a bookable seminar hall.
type Hall struct {
	ID               string
	Name             string
	Capacity         int
	Location         string
	Building         *string
	FloorNumber      *int
	Equipment        []string
	Amenities        []string
	IsActive         bool
	IsMaintenance    bool
	MaintenanceNotes *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Bookable reports whether new requests may target the hall.
func (h Hall) Bookable() bool {
	return h.IsActive && !h.IsMaintenance
}

// Offers reports whether item is part of the hall's equipment, ignoring case.
func (h Hall) Offers(item string) bool {
	return slices.ContainsFunc(h.Equipment, func(e string) bool {
		return strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(item))
	})
}

// HallInput captures caller provided hall fields.
type HallInput struct {
	Name        string
	Capacity    int
	Location    string
	Building    *string
	FloorNumber *int
	Equipment   []string
	Amenities   []string
	IsActive    *bool
}

// Booking is a reservation of one hall for one window on one date.
type Booking struct {
	ID                  string
	HallID              string
	UserID              string
	Date                calendar.Date
	Start               calendar.Clock
	End                 calendar.Clock
	DurationMinutes     int
	Purpose             string
	Description         *string
	AttendeesCount      int
	EquipmentNeeded     []string
	SpecialRequirements *string
	Status              booking.Status
	RejectedReason      *string
	CancellationReason  *string
	CancelledBy         *string
	AdminNotes          *string
	Rating              *int
	ReminderSentAt      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Window returns the booking's date and half-open time range.
func (b Booking) Window() calendar.Window {
	return calendar.Window{Date: b.Date, Start: b.Start, End: b.End}
}

// CreateBookingInput captures a booking request as received at the boundary.
// Date accepts YYYY-MM-DD or DDMMYYYY; times are HH:MM.
type CreateBookingInput struct {
	HallID              string
	Date                string
	StartTime           string
	EndTime             string
	Purpose             string
	Description         *string
	AttendeesCount      int
	EquipmentNeeded     []string
	SpecialRequirements *string
}

// ConflictWarning describes an overlapping booking reported at creation time.
type ConflictWarning struct {
	BookingID string
	Type      string
	Start     calendar.Clock
	End       calendar.Clock
}

// BookingStats summarises one user's bookings.
type BookingStats struct {
	TotalBookings     int
	ThisMonthBookings int
	AverageRating     float64
}

// BookingListFilter narrows administrative booking listings.
type BookingListFilter struct {
	HallID   string
	UserID   string
	Statuses []booking.Status
	From     *calendar.Date
	To       *calendar.Date
	Page     pagination.Params
}

// BookingPage is one page of a booking listing.
type BookingPage struct {
	Items []Booking
	Meta  pagination.Meta
}

// BookingAnalytics aggregates bookings by status.
type BookingAnalytics struct {
	Total        int
	ByStatus     map[booking.Status]int
	ApprovalRate float64
}

// NotificationType is the closed set of inbox categories.
type NotificationType string

const (
	NotificationBooking      NotificationType = "booking"
	NotificationUpdate       NotificationType = "update"
	NotificationRejection    NotificationType = "rejection"
	NotificationCancellation NotificationType = "cancellation"
	NotificationReminder     NotificationType = "reminder"
	NotificationMaintenance  NotificationType = "maintenance"
	NotificationSystem       NotificationType = "system"
)

// ParseNotificationType converts a stored value, failing closed.
func ParseNotificationType(value string) (NotificationType, error) {
	switch t := NotificationType(value); t {
	case NotificationBooking, NotificationUpdate, NotificationRejection, NotificationCancellation,
		NotificationReminder, NotificationMaintenance, NotificationSystem:
		return t, nil
	}
	return "", fmt.Errorf("%w: notification type %q", ErrUnknown, value)
}

// NotificationData links a notification to the entity it is about.
type NotificationData struct {
	BookingID          string `json:"bookingId,omitempty"`
	HallID             string `json:"hallId,omitempty"`
	RejectionReason    string `json:"rejectionReason,omitempty"`
	CancellationReason string `json:"cancellationReason,omitempty"`
	CancelledBy        string `json:"cancelledBy,omitempty"`
	ActorRole          string `json:"actorRole,omitempty"`
}

// Notification is one inbox entry.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Data      NotificationData
	IsRead    bool
	CreatedAt time.Time
}

// NotificationPage is one page of an inbox listing.
type NotificationPage struct {
	Items []Notification
	Meta  pagination.Meta
}

// NotificationSnapshot lets a reconnecting client reconcile its view.
type NotificationSnapshot struct {
	UnreadCount int
	Items       []Notification
	// Truncated is set when more notifications arrived after the cursor than
	// Items holds; the client must re-list its inbox to see the older ones.
	Truncated bool
}

// EmailFrequency controls when email copies are sent.
type EmailFrequency string

const (
	EmailImmediate EmailFrequency = "immediate"
	EmailDaily     EmailFrequency = "daily"
	EmailWeekly    EmailFrequency = "weekly"
)

// ParseEmailFrequency converts a stored or supplied value, failing closed.
func ParseEmailFrequency(value string) (EmailFrequency, error) {
	switch f := EmailFrequency(value); f {
	case EmailImmediate, EmailDaily, EmailWeekly:
		return f, nil
	}
	return "", fmt.Errorf("%w: email frequency %q", ErrUnknown, value)
}

// DefaultReminderMinutes is how long before a booking starts its reminder goes out.
const DefaultReminderMinutes = 30

// NotificationSettings are a user's delivery preferences.
type NotificationSettings struct {
	UserID              string
	PushEnabled         bool
	EmailEnabled        bool
	EmailFrequency      EmailFrequency
	BookingUpdates      bool
	Reminders           bool
	ReminderTimeMinutes int
	MaintenanceAlerts   bool
	SystemAnnouncements bool
	UpdatedAt           time.Time
}

// DefaultNotificationSettings returns the preferences a user starts with.
func DefaultNotificationSettings(userID string, now time.Time) NotificationSettings {
	return NotificationSettings{
		UserID:              userID,
		PushEnabled:         true,
		EmailEnabled:        true,
		EmailFrequency:      EmailImmediate,
		BookingUpdates:      true,
		Reminders:           true,
		ReminderTimeMinutes: DefaultReminderMinutes,
		MaintenanceAlerts:   true,
		SystemAnnouncements: true,
		UpdatedAt:           now,
	}
}

// Allows reports whether a notification of type t should be stored for this user.
func (s NotificationSettings) Allows(t NotificationType) bool {
	switch t {
	case NotificationBooking, NotificationRejection, NotificationCancellation:
		return s.BookingUpdates
	case NotificationReminder:
		return s.BookingUpdates && s.Reminders
	case NotificationMaintenance:
		return s.MaintenanceAlerts
	case NotificationSystem, NotificationUpdate:
		return s.SystemAnnouncements
	}
	return false
}

// SettingsPatch is a partial update of NotificationSettings; nil fields are left alone.
type SettingsPatch struct {
	PushEnabled         *bool
	EmailEnabled        *bool
	EmailFrequency      *string
	BookingUpdates      *bool
	Reminders           *bool
	ReminderTimeMinutes *int
	MaintenanceAlerts   *bool
	SystemAnnouncements *bool
}
