package persistence

import "time"

// User is a stored account row. Enum columns are kept as raw strings and
// validated when mapped into the domain.
type User struct {
	ID                 string
	Name               string
	Email              string
	Phone              *string
	EmployeeID         *string
	Department         *string
	Role               string
	IsActive           bool
	RegistrationStatus string
	PasswordHash       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastLoginAt        *time.Time
}

// Hall is a seminar hall catalog row.
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

// Booking is a hall reservation row. BookingDate is YYYY-MM-DD and the
// times are zero-padded HH:MM so lexical and chronological order agree.
type Booking struct {
	ID                  string
	HallID              string
	UserID              string
	BookingDate         string
	StartTime           string
	EndTime             string
	DurationMinutes     int
	Purpose             string
	Description         *string
	AttendeesCount      int
	EquipmentNeeded     []string
	SpecialRequirements *string
	Status              string
	RejectedReason      *string
	CancellationReason  *string
	CancelledBy         *string
	AdminNotes          *string
	Rating              *int
	ReminderSentAt      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NotificationData is the structured payload stored alongside a notification.
type NotificationData struct {
	BookingID          string `json:"booking_id,omitempty"`
	HallID             string `json:"hall_id,omitempty"`
	RejectionReason    string `json:"rejection_reason,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	CancelledBy        string `json:"cancelled_by,omitempty"`
	ActorRole          string `json:"actor_role,omitempty"`
}

// Notification is a per-user inbox row.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Data      NotificationData
	IsRead    bool
	CreatedAt time.Time
}

// NotificationSettings stores a user's delivery preferences.
type NotificationSettings struct {
	UserID              string
	PushEnabled         bool
	EmailEnabled        bool
	EmailFrequency      string
	BookingUpdates      bool
	Reminders           bool
	ReminderTimeMinutes int
	MaintenanceAlerts   bool
	SystemAnnouncements bool
	UpdatedAt           time.Time
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
