package main

import (
	"context"
	"fmt"
	"time"

	"github.com/example/hall-booking/internal/application"
	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/persistence"
)

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, user application.User, passwordHash string) error {
	return a.repo.CreateUser(ctx, toPersistenceUser(user, passwordHash))
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored)
}

func (a *userRepositoryAdapter) GetUserByEmail(ctx context.Context, email string) (application.User, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored)
}

// UpdateUser leaves the stored password hash untouched.
func (a *userRepositoryAdapter) UpdateUser(ctx context.Context, user application.User) error {
	return a.repo.UpdateUser(ctx, toPersistenceUser(user, ""))
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context, filter application.UserFilter) ([]application.User, error) {
	var persisted persistence.UserFilter
	if filter.Role != nil {
		role := string(*filter.Role)
		persisted.Role = &role
	}
	if filter.RegistrationStatus != nil {
		status := string(*filter.RegistrationStatus)
		persisted.RegistrationStatus = &status
	}
	if filter.IsActive != nil {
		active := *filter.IsActive
		persisted.IsActive = &active
	}
	models, err := a.repo.ListUsers(ctx, persisted)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		user, err := toApplicationUser(model)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (a *userRepositoryAdapter) CountUsersByRole(ctx context.Context, role application.Role) (int, error) {
	return a.repo.CountUsersByRole(ctx, string(role))
}

func (a *userRepositoryAdapter) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return a.repo.TouchLastLogin(ctx, id, at)
}

func (a *userRepositoryAdapter) DeleteUser(ctx context.Context, id string) error {
	return a.repo.DeleteUser(ctx, id)
}

// GetUserCredentialsByEmail makes the adapter usable as the credential store.
func (a *userRepositoryAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	user, err := toApplicationUser(stored)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{User: user, PasswordHash: stored.PasswordHash}, nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) error {
	return a.repo.CreateSession(ctx, toPersistenceSession(session))
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, id string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) UpdateSession(ctx context.Context, session application.Session) error {
	return a.repo.UpdateSession(ctx, toPersistenceSession(session))
}

func (a *sessionRepositoryAdapter) RevokeSession(ctx context.Context, id string, revokedAt time.Time) error {
	return a.repo.RevokeSession(ctx, id, revokedAt)
}

func (a *sessionRepositoryAdapter) RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) (int, error) {
	return a.repo.RevokeUserSessions(ctx, userID, revokedAt)
}

func (a *sessionRepositoryAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error) {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

type hallRepositoryAdapter struct {
	repo persistence.HallRepository
}

func newHallRepositoryAdapter(repo persistence.HallRepository) *hallRepositoryAdapter {
	return &hallRepositoryAdapter{repo: repo}
}

func (a *hallRepositoryAdapter) CreateHall(ctx context.Context, hall application.Hall) error {
	return a.repo.CreateHall(ctx, toPersistenceHall(hall))
}

func (a *hallRepositoryAdapter) UpdateHall(ctx context.Context, hall application.Hall) error {
	return a.repo.UpdateHall(ctx, toPersistenceHall(hall))
}

func (a *hallRepositoryAdapter) GetHall(ctx context.Context, id string) (application.Hall, error) {
	stored, err := a.repo.GetHall(ctx, id)
	if err != nil {
		return application.Hall{}, err
	}
	return toApplicationHall(stored), nil
}

func (a *hallRepositoryAdapter) ListHalls(ctx context.Context, includeInactive bool) ([]application.Hall, error) {
	models, err := a.repo.ListHalls(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	halls := make([]application.Hall, 0, len(models))
	for _, model := range models {
		halls = append(halls, toApplicationHall(model))
	}
	return halls, nil
}

type bookingRepositoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingRepositoryAdapter(repo persistence.BookingRepository) *bookingRepositoryAdapter {
	return &bookingRepositoryAdapter{repo: repo}
}

func (a *bookingRepositoryAdapter) CreateBooking(ctx context.Context, b application.Booking) error {
	return a.repo.CreateBooking(ctx, toPersistenceBooking(b))
}

func (a *bookingRepositoryAdapter) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	return convertBooking(a.repo.GetBooking(ctx, id))
}

func (a *bookingRepositoryAdapter) ListBookings(ctx context.Context, query application.BookingQuery) ([]application.Booking, error) {
	return convertBookings(a.repo.ListBookings(ctx, toPersistenceBookingFilter(query)))
}

func (a *bookingRepositoryAdapter) CountBookings(ctx context.Context, query application.BookingQuery) (int, error) {
	return a.repo.CountBookings(ctx, toPersistenceBookingFilter(query))
}

func (a *bookingRepositoryAdapter) CountByStatus(ctx context.Context, query application.BookingQuery) (map[booking.Status]int, error) {
	raw, err := a.repo.CountByStatus(ctx, toPersistenceBookingFilter(query))
	if err != nil {
		return nil, err
	}
	counts := make(map[booking.Status]int, len(raw))
	for value, n := range raw {
		status, err := booking.ParseStatus(value)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}

func (a *bookingRepositoryAdapter) FindOverlapping(ctx context.Context, hallID string, window calendar.Window, excludeID string, statuses []booking.Status) ([]application.Booking, error) {
	return convertBookings(a.repo.FindOverlapping(ctx, hallID,
		window.Date.String(), window.Start.String(), window.End.String(),
		excludeID, statusStrings(statuses)))
}

func (a *bookingRepositoryAdapter) ApproveBooking(ctx context.Context, id string, adminNotes *string, at time.Time) (application.Booking, error) {
	return convertBooking(a.repo.ApproveBooking(ctx, id, adminNotes, at))
}

func (a *bookingRepositoryAdapter) RejectBooking(ctx context.Context, id, reason string, adminNotes *string, at time.Time) (application.Booking, error) {
	return convertBooking(a.repo.RejectBooking(ctx, id, reason, adminNotes, at))
}

func (a *bookingRepositoryAdapter) CancelBooking(ctx context.Context, id, reason, cancelledBy string, today calendar.Date, at time.Time) (application.Booking, error) {
	return convertBooking(a.repo.CancelBooking(ctx, id, reason, cancelledBy, today.String(), at))
}

func (a *bookingRepositoryAdapter) CompleteElapsed(ctx context.Context, today calendar.Date, now calendar.Clock, at time.Time) ([]application.Booking, error) {
	return convertBookings(a.repo.CompleteElapsed(ctx, today.String(), now.String(), at))
}

func (a *bookingRepositoryAdapter) RateBooking(ctx context.Context, id string, rating int, at time.Time) (application.Booking, error) {
	return convertBooking(a.repo.RateBooking(ctx, id, rating, at))
}

func (a *bookingRepositoryAdapter) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	return a.repo.MarkReminderSent(ctx, id, at)
}

func (a *bookingRepositoryAdapter) RatingSummary(ctx context.Context, userID string) (float64, int, error) {
	return a.repo.RatingSummary(ctx, userID)
}

type notificationRepositoryAdapter struct {
	repo persistence.NotificationRepository
}

func newNotificationRepositoryAdapter(repo persistence.NotificationRepository) *notificationRepositoryAdapter {
	return &notificationRepositoryAdapter{repo: repo}
}

func (a *notificationRepositoryAdapter) CreateNotification(ctx context.Context, n application.Notification) error {
	return a.repo.CreateNotification(ctx, toPersistenceNotification(n))
}

func (a *notificationRepositoryAdapter) GetNotification(ctx context.Context, id string) (application.Notification, error) {
	stored, err := a.repo.GetNotification(ctx, id)
	if err != nil {
		return application.Notification{}, err
	}
	return toApplicationNotification(stored)
}

func (a *notificationRepositoryAdapter) ListNotifications(ctx context.Context, userID string, query application.NotificationQuery) ([]application.Notification, error) {
	models, err := a.repo.ListNotifications(ctx, userID, persistence.NotificationFilter{
		UnreadOnly:   query.UnreadOnly,
		CreatedAfter: cloneTime(query.CreatedAfter),
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	items := make([]application.Notification, 0, len(models))
	for _, model := range models {
		n, err := toApplicationNotification(model)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, nil
}

func (a *notificationRepositoryAdapter) CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	return a.repo.CountNotifications(ctx, userID, unreadOnly)
}

func (a *notificationRepositoryAdapter) MarkRead(ctx context.Context, id string) error {
	return a.repo.MarkRead(ctx, id)
}

func (a *notificationRepositoryAdapter) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return a.repo.MarkAllRead(ctx, userID)
}

func (a *notificationRepositoryAdapter) DeleteNotification(ctx context.Context, id string) (bool, error) {
	return a.repo.DeleteNotification(ctx, id)
}

type settingsRepositoryAdapter struct {
	repo persistence.SettingsRepository
}

func newSettingsRepositoryAdapter(repo persistence.SettingsRepository) *settingsRepositoryAdapter {
	return &settingsRepositoryAdapter{repo: repo}
}

func (a *settingsRepositoryAdapter) GetSettings(ctx context.Context, userID string) (application.NotificationSettings, error) {
	stored, err := a.repo.GetSettings(ctx, userID)
	if err != nil {
		return application.NotificationSettings{}, err
	}
	frequency, err := application.ParseEmailFrequency(stored.EmailFrequency)
	if err != nil {
		return application.NotificationSettings{}, err
	}
	return application.NotificationSettings{
		UserID:              stored.UserID,
		PushEnabled:         stored.PushEnabled,
		EmailEnabled:        stored.EmailEnabled,
		EmailFrequency:      frequency,
		BookingUpdates:      stored.BookingUpdates,
		Reminders:           stored.Reminders,
		ReminderTimeMinutes: stored.ReminderTimeMinutes,
		MaintenanceAlerts:   stored.MaintenanceAlerts,
		SystemAnnouncements: stored.SystemAnnouncements,
		UpdatedAt:           stored.UpdatedAt,
	}, nil
}

func (a *settingsRepositoryAdapter) SaveSettings(ctx context.Context, s application.NotificationSettings) error {
	return a.repo.SaveSettings(ctx, persistence.NotificationSettings{
		UserID:              s.UserID,
		PushEnabled:         s.PushEnabled,
		EmailEnabled:        s.EmailEnabled,
		EmailFrequency:      string(s.EmailFrequency),
		BookingUpdates:      s.BookingUpdates,
		Reminders:           s.Reminders,
		ReminderTimeMinutes: s.ReminderTimeMinutes,
		MaintenanceAlerts:   s.MaintenanceAlerts,
		SystemAnnouncements: s.SystemAnnouncements,
		UpdatedAt:           s.UpdatedAt,
	})
}

func toApplicationUser(model persistence.User) (application.User, error) {
	role, err := application.ParseRole(model.Role)
	if err != nil {
		return application.User{}, err
	}
	status, err := application.ParseRegistrationStatus(model.RegistrationStatus)
	if err != nil {
		return application.User{}, err
	}
	return application.User{
		ID:                 model.ID,
		Name:               model.Name,
		Email:              model.Email,
		Phone:              cloneString(model.Phone),
		EmployeeID:         cloneString(model.EmployeeID),
		Department:         cloneString(model.Department),
		Role:               role,
		IsActive:           model.IsActive,
		RegistrationStatus: status,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
		LastLoginAt:        cloneTime(model.LastLoginAt),
	}, nil
}

func toPersistenceUser(user application.User, passwordHash string) persistence.User {
	return persistence.User{
		ID:                 user.ID,
		Name:               user.Name,
		Email:              user.Email,
		Phone:              cloneString(user.Phone),
		EmployeeID:         cloneString(user.EmployeeID),
		Department:         cloneString(user.Department),
		Role:               string(user.Role),
		IsActive:           user.IsActive,
		RegistrationStatus: string(user.RegistrationStatus),
		PasswordHash:       passwordHash,
		CreatedAt:          user.CreatedAt,
		UpdatedAt:          user.UpdatedAt,
		LastLoginAt:        cloneTime(user.LastLoginAt),
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:        model.ID,
		UserID:    model.UserID,
		ExpiresAt: model.ExpiresAt,
		RevokedAt: cloneTime(model.RevokedAt),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
		RevokedAt: cloneTime(session.RevokedAt),
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
}

func toApplicationHall(model persistence.Hall) application.Hall {
	return application.Hall{
		ID:               model.ID,
		Name:             model.Name,
		Capacity:         model.Capacity,
		Location:         model.Location,
		Building:         cloneString(model.Building),
		FloorNumber:      cloneInt(model.FloorNumber),
		Equipment:        append([]string(nil), model.Equipment...),
		Amenities:        append([]string(nil), model.Amenities...),
		IsActive:         model.IsActive,
		IsMaintenance:    model.IsMaintenance,
		MaintenanceNotes: cloneString(model.MaintenanceNotes),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toPersistenceHall(hall application.Hall) persistence.Hall {
	return persistence.Hall{
		ID:               hall.ID,
		Name:             hall.Name,
		Capacity:         hall.Capacity,
		Location:         hall.Location,
		Building:         cloneString(hall.Building),
		FloorNumber:      cloneInt(hall.FloorNumber),
		Equipment:        append([]string(nil), hall.Equipment...),
		Amenities:        append([]string(nil), hall.Amenities...),
		IsActive:         hall.IsActive,
		IsMaintenance:    hall.IsMaintenance,
		MaintenanceNotes: cloneString(hall.MaintenanceNotes),
		CreatedAt:        hall.CreatedAt,
		UpdatedAt:        hall.UpdatedAt,
	}
}

func toApplicationBooking(model persistence.Booking) (application.Booking, error) {
	date, err := calendar.ParseDate(model.BookingDate)
	if err != nil {
		return application.Booking{}, fmt.Errorf("booking %s: %w", model.ID, err)
	}
	start, err := calendar.ParseClock(model.StartTime)
	if err != nil {
		return application.Booking{}, fmt.Errorf("booking %s: %w", model.ID, err)
	}
	end, err := calendar.ParseClock(model.EndTime)
	if err != nil {
		return application.Booking{}, fmt.Errorf("booking %s: %w", model.ID, err)
	}
	status, err := booking.ParseStatus(model.Status)
	if err != nil {
		return application.Booking{}, fmt.Errorf("booking %s: %w", model.ID, err)
	}
	return application.Booking{
		ID:                  model.ID,
		HallID:              model.HallID,
		UserID:              model.UserID,
		Date:                date,
		Start:               start,
		End:                 end,
		DurationMinutes:     model.DurationMinutes,
		Purpose:             model.Purpose,
		Description:         cloneString(model.Description),
		AttendeesCount:      model.AttendeesCount,
		EquipmentNeeded:     append([]string(nil), model.EquipmentNeeded...),
		SpecialRequirements: cloneString(model.SpecialRequirements),
		Status:              status,
		RejectedReason:      cloneString(model.RejectedReason),
		CancellationReason:  cloneString(model.CancellationReason),
		CancelledBy:         cloneString(model.CancelledBy),
		AdminNotes:          cloneString(model.AdminNotes),
		Rating:              cloneInt(model.Rating),
		ReminderSentAt:      cloneTime(model.ReminderSentAt),
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}, nil
}

func toPersistenceBooking(b application.Booking) persistence.Booking {
	return persistence.Booking{
		ID:                  b.ID,
		HallID:              b.HallID,
		UserID:              b.UserID,
		BookingDate:         b.Date.String(),
		StartTime:           b.Start.String(),
		EndTime:             b.End.String(),
		DurationMinutes:     b.DurationMinutes,
		Purpose:             b.Purpose,
		Description:         cloneString(b.Description),
		AttendeesCount:      b.AttendeesCount,
		EquipmentNeeded:     append([]string(nil), b.EquipmentNeeded...),
		SpecialRequirements: cloneString(b.SpecialRequirements),
		Status:              string(b.Status),
		RejectedReason:      cloneString(b.RejectedReason),
		CancellationReason:  cloneString(b.CancellationReason),
		CancelledBy:         cloneString(b.CancelledBy),
		AdminNotes:          cloneString(b.AdminNotes),
		Rating:              cloneInt(b.Rating),
		ReminderSentAt:      cloneTime(b.ReminderSentAt),
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

func convertBooking(model persistence.Booking, err error) (application.Booking, error) {
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(model)
}

func convertBookings(models []persistence.Booking, err error) ([]application.Booking, error) {
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	bookings := make([]application.Booking, 0, len(models))
	for _, model := range models {
		b, err := toApplicationBooking(model)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func toPersistenceBookingFilter(query application.BookingQuery) persistence.BookingFilter {
	filter := persistence.BookingFilter{
		UserID:          query.UserID,
		HallID:          query.HallID,
		Statuses:        statusStrings(query.Statuses),
		ReminderPending: query.ReminderPending,
		Limit:           query.Limit,
		Offset:          query.Offset,
	}
	if query.From != nil {
		filter.DateFrom = query.From.String()
	}
	if query.To != nil {
		filter.DateTo = query.To.String()
	}
	return filter
}

func statusStrings(statuses []booking.Status) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func toApplicationNotification(model persistence.Notification) (application.Notification, error) {
	kind, err := application.ParseNotificationType(model.Type)
	if err != nil {
		return application.Notification{}, err
	}
	return application.Notification{
		ID:      model.ID,
		UserID:  model.UserID,
		Type:    kind,
		Title:   model.Title,
		Message: model.Message,
		Data: application.NotificationData{
			BookingID:          model.Data.BookingID,
			HallID:             model.Data.HallID,
			RejectionReason:    model.Data.RejectionReason,
			CancellationReason: model.Data.CancellationReason,
			CancelledBy:        model.Data.CancelledBy,
			ActorRole:          model.Data.ActorRole,
		},
		IsRead:    model.IsRead,
		CreatedAt: model.CreatedAt,
	}, nil
}

func toPersistenceNotification(n application.Notification) persistence.Notification {
	return persistence.Notification{
		ID:      n.ID,
		UserID:  n.UserID,
		Type:    string(n.Type),
		Title:   n.Title,
		Message: n.Message,
		Data: persistence.NotificationData{
			BookingID:          n.Data.BookingID,
			HallID:             n.Data.HallID,
			RejectionReason:    n.Data.RejectionReason,
			CancellationReason: n.Data.CancellationReason,
			CancelledBy:        n.Data.CancelledBy,
			ActorRole:          n.Data.ActorRole,
		},
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
