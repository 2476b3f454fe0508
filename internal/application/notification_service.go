package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/delivery"
	"github.com/example/hall-booking/internal/events"
	"github.com/example/hall-booking/internal/notify"
	"github.com/example/hall-booking/internal/pagination"
)

// snapshotLimit bounds how many notifications a reconnecting client receives.
const snapshotLimit = 50

// EventSubscriber registers bus handlers. *events.Bus satisfies it.
type EventSubscriber interface {
	Subscribe(topic events.Topic, name string, handler events.Handler) func()
}

// NotificationServiceConfig carries the optional collaborators of NotificationService.
type NotificationServiceConfig struct {
	Hub         *notify.Hub[Notification]
	Push        delivery.PushSender
	Email       delivery.EmailSender
	Publisher   EventPublisher
	IDGenerator func() string
	Now         func() time.Time
	Location    *time.Location
	Logger      *slog.Logger
}

// NotificationService turns domain events into inbox rows and serves the inbox.
type NotificationService struct {
	notifications NotificationRepository
	settings      SettingsRepository
	users         UserRepository
	bookings      BookingRepository
	hub           *notify.Hub[Notification]
	push          delivery.PushSender
	email         delivery.EmailSender
	publisher     EventPublisher
	idGenerator   func() string
	now           func() time.Time
	location      *time.Location
	logger        *slog.Logger
}

// NewNotificationService wires the notification fan-out.
func NewNotificationService(notifications NotificationRepository, settings SettingsRepository, users UserRepository, bookings BookingRepository, cfg NotificationServiceConfig) *NotificationService {
	s := &NotificationService{
		notifications: notifications,
		settings:      settings,
		users:         users,
		bookings:      bookings,
		hub:           cfg.Hub,
		push:          cfg.Push,
		email:         cfg.Email,
		publisher:     cfg.Publisher,
		idGenerator:   cfg.IDGenerator,
		now:           cfg.Now,
		location:      cfg.Location,
		logger:        defaultLogger(cfg.Logger),
	}
	if s.idGenerator == nil {
		s.idGenerator = func() string { return "" }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.location == nil {
		s.location = time.Local
	}
	return s
}

func (s *NotificationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NotificationService", operation, attrs...)
}

// Register subscribes the fan-out handlers to bus and returns a function
// removing all of them.
func (s *NotificationService) Register(bus EventSubscriber) func() {
	handlers := map[events.Topic]events.Handler{
		events.TopicBookingCreated:     s.onBookingCreated,
		events.TopicBookingApproved:    s.onBookingApproved,
		events.TopicBookingRejected:    s.onBookingRejected,
		events.TopicBookingCancelled:   s.onBookingCancelled,
		events.TopicBookingReminder:    s.onBookingReminder,
		events.TopicUserApproved:       s.onUserApproved,
		events.TopicUserRejected:       s.onUserRejected,
		events.TopicHallMaintenance:    s.onHallMaintenance,
		events.TopicSystemAnnouncement: s.onAnnouncement,
	}
	unsubscribe := make([]func(), 0, len(handlers))
	for topic, handler := range handlers {
		unsubscribe = append(unsubscribe, bus.Subscribe(topic, "notifications", handler))
	}
	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}

func (s *NotificationService) onBookingCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(BookingEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	admins, err := s.activeUsers(ctx, RoleRef(RoleAdmin))
	if err != nil {
		return err
	}
	b := payload.Booking
	var errs []error
	for _, admin := range admins {
		if admin.ID == b.UserID {
			continue
		}
		_, err := s.deliver(ctx, admin.ID, NotificationBooking,
			"New booking request",
			fmt.Sprintf("A booking request for %s %s-%s is waiting for review.", b.Date, b.Start, b.End),
			NotificationData{BookingID: b.ID, HallID: b.HallID})
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *NotificationService) onBookingApproved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(BookingEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	b := payload.Booking
	_, err := s.deliver(ctx, b.UserID, NotificationBooking,
		"Booking approved",
		fmt.Sprintf("Your booking on %s from %s to %s has been approved.", b.Date, b.Start, b.End),
		NotificationData{BookingID: b.ID, HallID: b.HallID})
	return err
}

func (s *NotificationService) onBookingRejected(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(BookingEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	b := payload.Booking
	_, err := s.deliver(ctx, b.UserID, NotificationRejection,
		"Booking rejected",
		fmt.Sprintf("Your booking on %s from %s to %s was rejected.", b.Date, b.Start, b.End),
		NotificationData{BookingID: b.ID, HallID: b.HallID, RejectionReason: payload.Reason})
	return err
}

func (s *NotificationService) onBookingCancelled(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(BookingEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	b := payload.Booking
	message := fmt.Sprintf("Your booking on %s from %s to %s has been cancelled.", b.Date, b.Start, b.End)
	if payload.ActorID != "" && payload.ActorID != b.UserID {
		message = fmt.Sprintf("Your booking on %s from %s to %s was cancelled by an administrator.", b.Date, b.Start, b.End)
	}
	_, err := s.deliver(ctx, b.UserID, NotificationCancellation, "Booking cancelled", message, NotificationData{
		BookingID:          b.ID,
		HallID:             b.HallID,
		CancellationReason: payload.Reason,
		CancelledBy:        payload.ActorID,
		ActorRole:          string(payload.ActorRole),
	})
	return err
}

func (s *NotificationService) onBookingReminder(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(BookingEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	b := payload.Booking
	_, err := s.deliver(ctx, b.UserID, NotificationReminder,
		"Upcoming booking",
		fmt.Sprintf("Your booking starts at %s on %s.", b.Start, b.Date),
		NotificationData{BookingID: b.ID, HallID: b.HallID})
	return err
}

func (s *NotificationService) onUserApproved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(UserEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	_, err := s.deliver(ctx, payload.User.ID, NotificationUpdate,
		"Account approved",
		"Your account has been approved. You can now request seminar halls.",
		NotificationData{})
	return err
}

func (s *NotificationService) onUserRejected(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(UserEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	message := "Your registration was not approved."
	if payload.Reason != "" {
		message = fmt.Sprintf("Your registration was not approved: %s", payload.Reason)
	}
	_, err := s.deliver(ctx, payload.User.ID, NotificationSystem, "Registration rejected", message,
		NotificationData{RejectionReason: payload.Reason})
	return err
}

func (s *NotificationService) onHallMaintenance(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(MaintenanceEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	notified := make(map[string]struct{})
	var errs []error
	for _, b := range payload.Affected {
		if _, done := notified[b.UserID]; done {
			continue
		}
		notified[b.UserID] = struct{}{}
		_, err := s.deliver(ctx, b.UserID, NotificationMaintenance,
			"Hall under maintenance",
			fmt.Sprintf("%s is under maintenance. Your booking on %s may be affected.", payload.Hall.Name, b.Date),
			NotificationData{BookingID: b.ID, HallID: payload.Hall.ID})
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *NotificationService) onAnnouncement(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(AnnouncementEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	recipients, err := s.activeUsers(ctx, payload.Audience)
	if err != nil {
		return err
	}
	var errs []error
	for _, user := range recipients {
		_, err := s.deliver(ctx, user.ID, NotificationSystem, payload.Title, payload.Message, NotificationData{})
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// deliver stores a notification when the recipient's settings allow it and
// then hands it to the live hub and the outbound transports. Transport
// failures are logged only. The boolean is false when settings skipped it.
func (s *NotificationService) deliver(ctx context.Context, userID string, kind NotificationType, title, message string, data NotificationData) (bool, error) {
	if userID == "" {
		return false, nil
	}
	logger := s.loggerWith(ctx, "deliver", "user_id", userID, "type", string(kind))

	settings, err := s.settingsFor(ctx, userID)
	if err != nil {
		return false, err
	}
	if !settings.Allows(kind) {
		logger.DebugContext(ctx, "notification suppressed by settings")
		return false, nil
	}

	n := Notification{
		ID:        s.idGenerator(),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: s.now(),
	}
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		return false, mapRepoError(err)
	}

	if s.hub != nil {
		s.hub.Publish(userID, n)
	}
	if settings.PushEnabled && s.push != nil {
		if err := s.push.SendPush(ctx, delivery.PushMessage{
			UserID: userID, Title: title, Body: message, Data: data.fields(),
		}); err != nil {
			logger.WarnContext(ctx, "push delivery failed", "error", err)
		}
	}
	if settings.EmailEnabled && settings.EmailFrequency == EmailImmediate && s.email != nil && s.users != nil {
		user, err := s.users.GetUser(ctx, userID)
		if err != nil {
			logger.WarnContext(ctx, "email recipient lookup failed", "error", err)
		} else if err := s.email.SendEmail(ctx, delivery.EmailMessage{
			To: user.Email, Template: string(kind), Data: data.withText(title, message),
		}); err != nil {
			logger.WarnContext(ctx, "email delivery failed", "error", err)
		}
	}
	return true, nil
}

// settingsFor returns the stored preferences, creating defaults on first use.
func (s *NotificationService) settingsFor(ctx context.Context, userID string) (NotificationSettings, error) {
	if s.settings == nil {
		return DefaultNotificationSettings(userID, s.now()), nil
	}
	settings, err := s.settings.GetSettings(ctx, userID)
	if err == nil {
		return settings, nil
	}
	if err = mapRepoError(err); !errors.Is(err, ErrNotFound) {
		return NotificationSettings{}, err
	}
	settings = DefaultNotificationSettings(userID, s.now())
	if err := s.settings.SaveSettings(ctx, settings); err != nil {
		return NotificationSettings{}, mapRepoError(err)
	}
	return settings, nil
}

func (s *NotificationService) activeUsers(ctx context.Context, minimum *Role) ([]User, error) {
	if s.users == nil {
		return nil, nil
	}
	active := true
	users, err := s.users.ListUsers(ctx, UserFilter{IsActive: &active})
	if err != nil {
		return nil, mapRepoError(err)
	}
	if minimum == nil {
		return users, nil
	}
	out := users[:0:0]
	for _, u := range users {
		if u.Role.AtLeast(*minimum) {
			out = append(out, u)
		}
	}
	return out, nil
}

// GetUnreadCount returns the number of unread notifications of the principal.
func (s *NotificationService) GetUnreadCount(ctx context.Context, principal Principal) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("NotificationService is nil")
	}
	count, err := s.notifications.CountNotifications(ctx, principal.UserID, true)
	if err != nil {
		return 0, mapRepoError(err)
	}
	return count, nil
}

// ListNotifications pages through the principal's inbox, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, principal Principal, unreadOnly bool, params pagination.Params) (page NotificationPage, err error) {
	if s == nil {
		err = fmt.Errorf("NotificationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListNotifications", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list notifications", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	params = pagination.New(params.Page, params.Limit)
	var total int
	if total, err = s.notifications.CountNotifications(ctx, principal.UserID, unreadOnly); err != nil {
		err = mapRepoError(err)
		return
	}
	page.Items, err = s.notifications.ListNotifications(ctx, principal.UserID, NotificationQuery{
		UnreadOnly: unreadOnly,
		Limit:      params.Limit,
		Offset:     params.Offset(),
	})
	if err != nil {
		err = mapRepoError(err)
		page.Items = nil
		return
	}
	page.Meta = pagination.BuildMeta(total, params)
	return
}

// MarkAsRead marks one of the principal's notifications read. Marking it
// again succeeds without change.
func (s *NotificationService) MarkAsRead(ctx context.Context, principal Principal, notificationID string) (err error) {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}

	logger := s.loggerWith(ctx, "MarkAsRead", "principal_id", principal.UserID, "notification_id", notificationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark notification read", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var n Notification
	if n, err = s.ownedNotification(ctx, principal, notificationID); err != nil {
		return
	}
	if n.IsRead {
		return nil
	}
	err = mapRepoError(s.notifications.MarkRead(ctx, n.ID))
	return
}

// MarkAllAsRead marks every unread notification of the principal and returns how many changed.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, principal Principal) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("NotificationService is nil")
	}
	count, err := s.notifications.MarkAllRead(ctx, principal.UserID)
	if err != nil {
		err = mapRepoError(err)
		s.loggerWith(ctx, "MarkAllAsRead", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to mark notifications read", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}
	return count, nil
}

// DeleteNotification removes one of the principal's notifications. Deleting
// a notification that is already gone reports false without error.
func (s *NotificationService) DeleteNotification(ctx context.Context, principal Principal, notificationID string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("NotificationService is nil")
	}
	n, err := s.ownedNotification(ctx, principal, notificationID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	deleted, err := s.notifications.DeleteNotification(ctx, n.ID)
	if err != nil {
		return false, mapRepoError(err)
	}
	return deleted, nil
}

// Snapshot returns the unread count and the notifications created after the
// one identified by afterID, newest first. An empty or unknown afterID
// returns the most recent notifications. At most snapshotLimit items are
// returned and Truncated reports whether older ones were left out.
func (s *NotificationService) Snapshot(ctx context.Context, principal Principal, afterID string) (snapshot NotificationSnapshot, err error) {
	if s == nil {
		err = fmt.Errorf("NotificationService is nil")
		return
	}

	query := NotificationQuery{Limit: snapshotLimit + 1}
	if afterID != "" {
		cursor, cErr := s.ownedNotification(ctx, principal, afterID)
		switch {
		case cErr == nil:
			query.CreatedAfter = &cursor.CreatedAt
		case !errors.Is(cErr, ErrNotFound):
			err = cErr
			return
		}
	}

	if snapshot.UnreadCount, err = s.GetUnreadCount(ctx, principal); err != nil {
		return
	}
	if snapshot.Items, err = s.notifications.ListNotifications(ctx, principal.UserID, query); err != nil {
		err = mapRepoError(err)
		snapshot = NotificationSnapshot{}
		return
	}
	if len(snapshot.Items) > snapshotLimit {
		snapshot.Items = snapshot.Items[:snapshotLimit]
		snapshot.Truncated = true
	}
	return
}

// Subscribe opens a live feed of the principal's new notifications. The
// subscription closes when ctx ends or when the reader falls behind.
func (s *NotificationService) Subscribe(ctx context.Context, principal Principal) (*notify.Subscription[Notification], error) {
	if s == nil || s.hub == nil {
		return nil, fmt.Errorf("live notifications not configured")
	}
	return s.hub.Subscribe(ctx, principal.UserID)
}

// GetSettings returns the principal's preferences, creating defaults on first use.
func (s *NotificationService) GetSettings(ctx context.Context, principal Principal) (NotificationSettings, error) {
	if s == nil {
		return NotificationSettings{}, fmt.Errorf("NotificationService is nil")
	}
	return s.settingsFor(ctx, principal.UserID)
}

// UpdateSettings applies patch to the principal's preferences.
func (s *NotificationService) UpdateSettings(ctx context.Context, principal Principal, patch SettingsPatch) (settings NotificationSettings, err error) {
	if s == nil {
		err = fmt.Errorf("NotificationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSettings", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update settings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "settings updated")
	}()

	if s.settings == nil {
		err = fmt.Errorf("settings repository not configured")
		return
	}

	vErr := &ValidationError{}
	var frequency EmailFrequency
	if patch.EmailFrequency != nil {
		f, fErr := ParseEmailFrequency(strings.TrimSpace(*patch.EmailFrequency))
		if fErr != nil {
			vErr.add("email_frequency", "email frequency must be immediate, daily or weekly")
		}
		frequency = f
	}
	if patch.ReminderTimeMinutes != nil && (*patch.ReminderTimeMinutes < 5 || *patch.ReminderTimeMinutes > 1440) {
		vErr.add("reminder_time_minutes", "reminder lead time must be between 5 and 1440 minutes")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if settings, err = s.settingsFor(ctx, principal.UserID); err != nil {
		return
	}
	applyBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	applyBool(&settings.PushEnabled, patch.PushEnabled)
	applyBool(&settings.EmailEnabled, patch.EmailEnabled)
	applyBool(&settings.BookingUpdates, patch.BookingUpdates)
	applyBool(&settings.Reminders, patch.Reminders)
	applyBool(&settings.MaintenanceAlerts, patch.MaintenanceAlerts)
	applyBool(&settings.SystemAnnouncements, patch.SystemAnnouncements)
	if patch.EmailFrequency != nil {
		settings.EmailFrequency = frequency
	}
	if patch.ReminderTimeMinutes != nil {
		settings.ReminderTimeMinutes = *patch.ReminderTimeMinutes
	}
	settings.UpdatedAt = s.now()

	if err = s.settings.SaveSettings(ctx, settings); err != nil {
		err = mapRepoError(err)
		settings = NotificationSettings{}
	}
	return
}

// Announce broadcasts a system notification to every active user, or to
// users at or above audience when it is set.
func (s *NotificationService) Announce(ctx context.Context, principal Principal, title, message string, audience *Role) (err error) {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}

	logger := s.loggerWith(ctx, "Announce", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to announce", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "announcement published")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}
	vErr := &ValidationError{}
	title, message = strings.TrimSpace(title), strings.TrimSpace(message)
	if title == "" {
		vErr.add("title", "title is required")
	}
	if message == "" {
		vErr.add("message", "message is required")
	}
	if audience != nil && !audience.Valid() {
		vErr.add("audience", "audience must be a known role")
	}
	if vErr.HasErrors() {
		return vErr
	}

	publish(ctx, s.publisher, events.TopicSystemAnnouncement, s.now(), AnnouncementEvent{
		Title: title, Message: message, Audience: audience, ActorID: principal.UserID,
	})
	return nil
}

// DispatchReminders emits booking.reminder for approved bookings starting
// within their owner's reminder lead time. Each booking is reminded at most
// once. It returns the number of reminders sent.
func (s *NotificationService) DispatchReminders(ctx context.Context) (sent int, err error) {
	if s == nil {
		err = fmt.Errorf("NotificationService is nil")
		return
	}
	if s.bookings == nil {
		return 0, nil
	}

	logger := s.loggerWith(ctx, "DispatchReminders")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "reminder sweep failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if sent > 0 {
			logger.InfoContext(ctx, "reminders sent", "count", sent)
		}
	}()

	now := s.now()
	today := calendar.DateOf(now.In(s.location))
	tomorrow := today.AddDays(1)
	var candidates []Booking
	candidates, err = s.bookings.ListBookings(ctx, BookingQuery{
		Statuses:        []booking.Status{booking.StatusApproved},
		From:            &today,
		To:              &tomorrow,
		ReminderPending: true,
	})
	if err != nil {
		err = mapRepoError(err)
		return
	}

	for _, b := range candidates {
		settings, sErr := s.settingsFor(ctx, b.UserID)
		if sErr != nil {
			logger.WarnContext(ctx, "failed to load settings", "user_id", b.UserID, "error", sErr)
			continue
		}
		if !settings.Allows(NotificationReminder) {
			continue
		}
		lead := time.Duration(settings.ReminderTimeMinutes) * time.Minute
		if lead <= 0 {
			lead = DefaultReminderMinutes * time.Minute
		}
		start := b.Date.At(b.Start, s.location)
		if now.Before(start.Add(-lead)) || !now.Before(start) {
			continue
		}

		marked, mErr := s.bookings.MarkReminderSent(ctx, b.ID, now)
		if mErr != nil {
			logger.WarnContext(ctx, "failed to mark reminder", "booking_id", b.ID, "error", mErr)
			continue
		}
		if !marked {
			continue
		}
		publish(ctx, s.publisher, events.TopicBookingReminder, now, BookingEvent{Booking: b})
		sent++
	}
	return
}

func (s *NotificationService) ownedNotification(ctx context.Context, principal Principal, id string) (Notification, error) {
	if strings.TrimSpace(id) == "" {
		return Notification{}, ErrNotFound
	}
	n, err := s.notifications.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, mapRepoError(err)
	}
	if n.UserID != principal.UserID {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

func unexpectedPayload(event events.Event) error {
	return fmt.Errorf("%w: %s payload %T", ErrUnknown, event.Topic, event.Payload)
}

// fields flattens data for transports that take string maps.
func (d NotificationData) fields() map[string]string {
	out := make(map[string]string)
	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	set("bookingId", d.BookingID)
	set("hallId", d.HallID)
	set("rejectionReason", d.RejectionReason)
	set("cancellationReason", d.CancellationReason)
	set("cancelledBy", d.CancelledBy)
	set("actorRole", d.ActorRole)
	return out
}

func (d NotificationData) withText(title, message string) map[string]string {
	out := d.fields()
	out["title"] = title
	out["message"] = message
	return out
}
