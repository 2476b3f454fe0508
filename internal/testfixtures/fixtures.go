package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/hall-booking/internal/application"
	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/persistence"
)

var (
	userCounter         uint64
	hallCounter         uint64
	bookingCounter      uint64
	sessionCounter      uint64
	notificationCounter uint64
)

// referenceTime is a Monday morning; DefaultBookingDate falls a week later.
var referenceTime = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// DefaultBookingDate is the date booking fixtures use unless overridden.
const DefaultBookingDate = "2026-03-10"

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic account that can be materialised
// for application or persistence tests.
type UserFixture struct {
	ID                 string
	Name               string
	Email              string
	Department         *string
	Role               application.Role
	IsActive           bool
	RegistrationStatus application.RegistrationStatus
	PasswordHash       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns an approved, active faculty member unless overridden.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:                 id,
		Name:               fmt.Sprintf("User %03d", idx),
		Email:              fmt.Sprintf("%s@example.edu", id),
		Role:               application.RoleFaculty,
		IsActive:           true,
		RegistrationStatus: application.RegistrationApproved,
		PasswordHash:       fmt.Sprintf("hash-%03d", idx),
		CreatedAt:          created,
		UpdatedAt:          created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserName overrides the generated display name.
func WithUserName(name string) UserOption {
	return func(f *UserFixture) {
		f.Name = name
	}
}

// WithUserRole sets the account role.
func WithUserRole(role application.Role) UserOption {
	return func(f *UserFixture) {
		f.Role = role
	}
}

// WithUserPending marks the registration as awaiting an administrator.
func WithUserPending() UserOption {
	return func(f *UserFixture) {
		f.RegistrationStatus = application.RegistrationPending
	}
}

// WithUserInactive deactivates the account.
func WithUserInactive() UserOption {
	return func(f *UserFixture) {
		f.IsActive = false
	}
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.PasswordHash = hash
	}
}

// WithUserTimestamps sets both created and updated timestamps on the fixture.
func WithUserTimestamps(created, updated time.Time) UserOption {
	return func(f *UserFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Application converts the fixture into an application.User.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:                 f.ID,
		Name:               f.Name,
		Email:              f.Email,
		Department:         copyStringPtr(f.Department),
		Role:               f.Role,
		IsActive:           f.IsActive,
		RegistrationStatus: f.RegistrationStatus,
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.UpdatedAt,
	}
}

// Principal returns the identity the gate would resolve for this account.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{
		UserID:   f.ID,
		Role:     f.Role,
		IsActive: f.IsActive,
		Approved: f.RegistrationStatus == application.RegistrationApproved,
	}
}

// Persistence converts the fixture into a persistence.User row.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:                 f.ID,
		Name:               f.Name,
		Email:              f.Email,
		Department:         copyStringPtr(f.Department),
		Role:               string(f.Role),
		IsActive:           f.IsActive,
		RegistrationStatus: string(f.RegistrationStatus),
		PasswordHash:       f.PasswordHash,
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.UpdatedAt,
	}
}

// ----------------------------- Hall fixtures -----------------------------

// HallFixture represents a deterministic seminar hall.
type HallFixture struct {
	ID            string
	Name          string
	Capacity      int
	Location      string
	Equipment     []string
	IsActive      bool
	IsMaintenance bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HallOption configures the generated hall fixture.
type HallOption func(*HallFixture)

// NewHallFixture returns an active hall with a projector.
func NewHallFixture(opts ...HallOption) HallFixture {
	idx := atomic.AddUint64(&hallCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := HallFixture{
		ID:        fmt.Sprintf("hall-%03d", idx),
		Name:      fmt.Sprintf("Hall %03d", idx),
		Capacity:  60,
		Location:  "Main Block",
		Equipment: []string{"projector"},
		IsActive:  true,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithHallID overrides the generated hall ID.
func WithHallID(id string) HallOption {
	return func(f *HallFixture) {
		f.ID = id
	}
}

// WithHallName overrides the generated name.
func WithHallName(name string) HallOption {
	return func(f *HallFixture) {
		f.Name = name
	}
}

// WithHallCapacity sets the seat count.
func WithHallCapacity(capacity int) HallOption {
	return func(f *HallFixture) {
		f.Capacity = capacity
	}
}

// WithHallEquipment replaces the equipment list.
func WithHallEquipment(items ...string) HallOption {
	return func(f *HallFixture) {
		f.Equipment = append([]string(nil), items...)
	}
}

// WithHallMaintenance puts the hall under maintenance.
func WithHallMaintenance() HallOption {
	return func(f *HallFixture) {
		f.IsMaintenance = true
	}
}

// WithHallInactive retires the hall.
func WithHallInactive() HallOption {
	return func(f *HallFixture) {
		f.IsActive = false
	}
}

// Application converts the fixture into an application.Hall.
func (f HallFixture) Application() application.Hall {
	return application.Hall{
		ID:            f.ID,
		Name:          f.Name,
		Capacity:      f.Capacity,
		Location:      f.Location,
		Equipment:     append([]string(nil), f.Equipment...),
		IsActive:      f.IsActive,
		IsMaintenance: f.IsMaintenance,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

// Persistence converts the fixture into a persistence.Hall row.
func (f HallFixture) Persistence() persistence.Hall {
	return persistence.Hall{
		ID:            f.ID,
		Name:          f.Name,
		Capacity:      f.Capacity,
		Location:      f.Location,
		Equipment:     append([]string(nil), f.Equipment...),
		IsActive:      f.IsActive,
		IsMaintenance: f.IsMaintenance,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

// ---------------------------- Booking fixtures ---------------------------

// BookingFixture represents a deterministic booking. Date and times use the
// canonical YYYY-MM-DD and HH:MM forms.
type BookingFixture struct {
	ID             string
	HallID         string
	UserID         string
	Date           string
	Start          string
	End            string
	Purpose        string
	AttendeesCount int
	Status         booking.Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a pending one-hour booking on DefaultBookingDate.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := BookingFixture{
		ID:             fmt.Sprintf("booking-%03d", idx),
		Date:           DefaultBookingDate,
		Start:          "10:00",
		End:            "11:00",
		Purpose:        fmt.Sprintf("Seminar %03d", idx),
		AttendeesCount: 20,
		Status:         booking.StatusPending,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the generated booking ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithBookingHall sets the booked hall.
func WithBookingHall(hallID string) BookingOption {
	return func(f *BookingFixture) {
		f.HallID = hallID
	}
}

// WithBookingOwner sets the requesting user.
func WithBookingOwner(userID string) BookingOption {
	return func(f *BookingFixture) {
		f.UserID = userID
	}
}

// WithBookingWindow sets the date and HH:MM range.
func WithBookingWindow(date, start, end string) BookingOption {
	return func(f *BookingFixture) {
		f.Date = date
		f.Start = start
		f.End = end
	}
}

// WithBookingStatus sets the lifecycle status.
func WithBookingStatus(status booking.Status) BookingOption {
	return func(f *BookingFixture) {
		f.Status = status
	}
}

// Window parses the fixture's date and times. It panics on malformed
// values since fixtures are test-authored.
func (f BookingFixture) Window() calendar.Window {
	date, err := calendar.ParseDate(f.Date)
	if err != nil {
		panic(err)
	}
	start, err := calendar.ParseClock(f.Start)
	if err != nil {
		panic(err)
	}
	end, err := calendar.ParseClock(f.End)
	if err != nil {
		panic(err)
	}
	return calendar.Window{Date: date, Start: start, End: end}
}

// Application converts the fixture into an application.Booking.
func (f BookingFixture) Application() application.Booking {
	w := f.Window()
	return application.Booking{
		ID:              f.ID,
		HallID:          f.HallID,
		UserID:          f.UserID,
		Date:            w.Date,
		Start:           w.Start,
		End:             w.End,
		DurationMinutes: int(w.Duration() / time.Minute),
		Purpose:         f.Purpose,
		AttendeesCount:  f.AttendeesCount,
		Status:          f.Status,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

// Persistence converts the fixture into a persistence.Booking row.
func (f BookingFixture) Persistence() persistence.Booking {
	w := f.Window()
	return persistence.Booking{
		ID:              f.ID,
		HallID:          f.HallID,
		UserID:          f.UserID,
		BookingDate:     f.Date,
		StartTime:       f.Start,
		EndTime:         f.End,
		DurationMinutes: int(w.Duration() / time.Minute),
		Purpose:         f.Purpose,
		AttendeesCount:  f.AttendeesCount,
		Status:          string(f.Status),
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

// ---------------------------- Session fixtures ---------------------------

// SessionFixture represents a deterministic server-side session.
type SessionFixture struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a live session expiring a day after ReferenceTime.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:        fmt.Sprintf("session-%03d", idx),
		ExpiresAt: referenceTime.Add(24 * time.Hour),
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithSessionUserID sets the owning user.
func WithSessionUserID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.UserID = id
	}
}

// WithSessionExpiresAt sets the expiry instant.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.ExpiresAt = t
	}
}

// WithSessionRevokedAt marks the session as revoked.
func WithSessionRevokedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.RevokedAt = &t
	}
}

// Application converts the fixture into an application.Session.
func (f SessionFixture) Application() application.Session {
	return application.Session{
		ID:        f.ID,
		UserID:    f.UserID,
		ExpiresAt: f.ExpiresAt,
		RevokedAt: copyTimePtr(f.RevokedAt),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Persistence converts the fixture into a persistence.Session row.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:        f.ID,
		UserID:    f.UserID,
		ExpiresAt: f.ExpiresAt,
		RevokedAt: copyTimePtr(f.RevokedAt),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// ------------------------- Notification fixtures -------------------------

// NotificationFixture represents a deterministic inbox entry.
type NotificationFixture struct {
	ID        string
	UserID    string
	Type      application.NotificationType
	Title     string
	Message   string
	BookingID string
	IsRead    bool
	CreatedAt time.Time
}

// NotificationOption configures the generated notification fixture.
type NotificationOption func(*NotificationFixture)

// NewNotificationFixture returns an unread system notification. Successive
// fixtures are a second apart so inbox ordering is deterministic.
func NewNotificationFixture(opts ...NotificationOption) NotificationFixture {
	idx := atomic.AddUint64(&notificationCounter, 1)
	fixture := NotificationFixture{
		ID:        fmt.Sprintf("notification-%03d", idx),
		Type:      application.NotificationSystem,
		Title:     fmt.Sprintf("Notice %03d", idx),
		Message:   "Scheduled maintenance tonight",
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithNotificationID overrides the generated notification ID.
func WithNotificationID(id string) NotificationOption {
	return func(f *NotificationFixture) {
		f.ID = id
	}
}

// WithNotificationUserID sets the recipient.
func WithNotificationUserID(id string) NotificationOption {
	return func(f *NotificationFixture) {
		f.UserID = id
	}
}

// WithNotificationType sets the inbox category.
func WithNotificationType(t application.NotificationType) NotificationOption {
	return func(f *NotificationFixture) {
		f.Type = t
	}
}

// WithNotificationBooking links the entry to a booking.
func WithNotificationBooking(bookingID string) NotificationOption {
	return func(f *NotificationFixture) {
		f.BookingID = bookingID
	}
}

// WithNotificationRead marks the entry as read.
func WithNotificationRead() NotificationOption {
	return func(f *NotificationFixture) {
		f.IsRead = true
	}
}

// WithNotificationCreatedAt sets the creation instant.
func WithNotificationCreatedAt(t time.Time) NotificationOption {
	return func(f *NotificationFixture) {
		f.CreatedAt = t
	}
}

// Application converts the fixture into an application.Notification.
func (f NotificationFixture) Application() application.Notification {
	return application.Notification{
		ID:        f.ID,
		UserID:    f.UserID,
		Type:      f.Type,
		Title:     f.Title,
		Message:   f.Message,
		Data:      application.NotificationData{BookingID: f.BookingID},
		IsRead:    f.IsRead,
		CreatedAt: f.CreatedAt,
	}
}

// Persistence converts the fixture into a persistence.Notification row.
func (f NotificationFixture) Persistence() persistence.Notification {
	return persistence.Notification{
		ID:        f.ID,
		UserID:    f.UserID,
		Type:      string(f.Type),
		Title:     f.Title,
		Message:   f.Message,
		Data:      persistence.NotificationData{BookingID: f.BookingID},
		IsRead:    f.IsRead,
		CreatedAt: f.CreatedAt,
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
