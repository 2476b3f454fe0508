package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/events"
	"github.com/example/hall-booking/internal/persistence"
	"github.com/example/hall-booking/internal/token"
)

var testEpoch = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%02d", prefix, n)
	}
}

type userRepoStub struct {
	mu        sync.Mutex
	users     map[string]User
	hashes    map[string]string
	getErr    error
	getCalls  int
	updateErr error
	touchErr  error
	deleted   []string
}

func newUserRepoStub(users ...User) *userRepoStub {
	r := &userRepoStub{users: make(map[string]User), hashes: make(map[string]string)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *userRepoStub) CreateUser(ctx context.Context, user User, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return persistence.ErrDuplicate
		}
	}
	r.users[user.ID] = user
	r.hashes[user.ID] = passwordHash
	return nil
}

func (r *userRepoStub) GetUser(ctx context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if r.getErr != nil {
		return User{}, r.getErr
	}
	u, ok := r.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return u, nil
}

func (r *userRepoStub) GetUserByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, persistence.ErrNotFound
}

func (r *userRepoStub) GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error) {
	u, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		return UserCredentials{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return UserCredentials{User: u, PasswordHash: r.hashes[u.ID]}, nil
}

func (r *userRepoStub) UpdateUser(ctx context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.users[user.ID]; !ok {
		return persistence.ErrNotFound
	}
	r.users[user.ID] = user
	return nil
}

func (r *userRepoStub) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []User
	for _, u := range r.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.RegistrationStatus != nil && u.RegistrationStatus != *filter.RegistrationStatus {
			continue
		}
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *userRepoStub) CountUsersByRole(ctx context.Context, role Role) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, u := range r.users {
		if u.Role == role {
			count++
		}
	}
	return count, nil
}

func (r *userRepoStub) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touchErr != nil {
		return r.touchErr
	}
	u := r.users[id]
	u.LastLoginAt = &at
	r.users[id] = u
	return nil
}

func (r *userRepoStub) DeleteUser(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.users, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *userRepoStub) user(id string) User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

type sessionRepoStub struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func newSessionRepoStub() *sessionRepoStub {
	return &sessionRepoStub{sessions: make(map[string]Session)}
}

func (r *sessionRepoStub) CreateSession(ctx context.Context, session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *sessionRepoStub) GetSession(ctx context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	return s, nil
}

func (r *sessionRepoStub) UpdateSession(ctx context.Context, session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *sessionRepoStub) RevokeSession(ctx context.Context, id string, revokedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if s.RevokedAt == nil {
		s.RevokedAt = &revokedAt
	}
	r.sessions[id] = s
	return nil
}

func (r *sessionRepoStub) RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &revokedAt
			r.sessions[id] = s
			count++
		}
	}
	return count, nil
}

func (r *sessionRepoStub) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(reference) {
			delete(r.sessions, id)
			count++
		}
	}
	return count, nil
}

// tokenCodecStub encodes "sessionID|userID|unixExpiry" without signing.
type tokenCodecStub struct {
	now func() time.Time
}

func (c tokenCodecStub) Issue(sessionID, userID, role string, expiresAt time.Time) (string, error) {
	return sessionID + "|" + userID + "|" + expiresAt.UTC().Format(time.RFC3339), nil
}

func (c tokenCodecStub) Parse(raw string) (*token.Claims, error) {
	claims, expiresAt, err := c.decode(raw)
	if err != nil {
		return nil, err
	}
	if !expiresAt.After(c.now()) {
		return nil, token.ErrTokenExpired
	}
	return claims, nil
}

func (c tokenCodecStub) ParseIgnoringExpiry(raw string) (*token.Claims, error) {
	claims, _, err := c.decode(raw)
	return claims, err
}

func (c tokenCodecStub) decode(raw string) (*token.Claims, time.Time, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 3 {
		return nil, time.Time{}, token.ErrTokenInvalid
	}
	expiresAt, err := time.Parse(time.RFC3339, parts[2])
	if err != nil {
		return nil, time.Time{}, token.ErrTokenInvalid
	}
	claims := &token.Claims{SessionID: parts[0]}
	claims.Subject = parts[1]
	return claims, expiresAt, nil
}

type hallRepoStub struct {
	mu    sync.Mutex
	halls map[string]Hall
}

func newHallRepoStub(halls ...Hall) *hallRepoStub {
	r := &hallRepoStub{halls: make(map[string]Hall)}
	for _, h := range halls {
		r.halls[h.ID] = h
	}
	return r
}

func (r *hallRepoStub) CreateHall(ctx context.Context, hall Hall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.halls {
		if strings.EqualFold(h.Name, hall.Name) {
			return persistence.ErrDuplicate
		}
	}
	r.halls[hall.ID] = hall
	return nil
}

func (r *hallRepoStub) UpdateHall(ctx context.Context, hall Hall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.halls[hall.ID]; !ok {
		return persistence.ErrNotFound
	}
	r.halls[hall.ID] = hall
	return nil
}

func (r *hallRepoStub) GetHall(ctx context.Context, id string) (Hall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.halls[id]
	if !ok {
		return Hall{}, persistence.ErrNotFound
	}
	return h, nil
}

func (r *hallRepoStub) ListHalls(ctx context.Context, includeInactive bool) ([]Hall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Hall
	for _, h := range r.halls {
		if h.IsActive || includeInactive {
			out = append(out, h)
		}
	}
	return out, nil
}

// bookingRepoStub mirrors the conditional updates of the SQLite repository.
type bookingRepoStub struct {
	mu           sync.Mutex
	bookings     map[string]Booking
	overlapCalls int
	failOverlap  error
	failApprove  error
	listQueries  []BookingQuery
}

func newBookingRepoStub(bookings ...Booking) *bookingRepoStub {
	r := &bookingRepoStub{bookings: make(map[string]Booking)}
	for _, b := range bookings {
		r.bookings[b.ID] = b
	}
	return r
}

func (r *bookingRepoStub) CreateBooking(ctx context.Context, b Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bookings[b.ID]; exists {
		return persistence.ErrDuplicate
	}
	r.bookings[b.ID] = b
	return nil
}

func (r *bookingRepoStub) GetBooking(ctx context.Context, id string) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, persistence.ErrNotFound
	}
	return b, nil
}

func (r *bookingRepoStub) matching(query BookingQuery) []Booking {
	var out []Booking
	for _, b := range r.bookings {
		if query.UserID != "" && b.UserID != query.UserID {
			continue
		}
		if query.HallID != "" && b.HallID != query.HallID {
			continue
		}
		if len(query.Statuses) > 0 && !containsStatus(query.Statuses, b.Status) {
			continue
		}
		if query.From != nil && b.Date.Before(*query.From) {
			continue
		}
		if query.To != nil && b.Date.After(*query.To) {
			continue
		}
		if query.ReminderPending && b.ReminderSentAt != nil {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c > 0
		}
		if out[i].Start != out[j].Start {
			return out[i].Start.After(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *bookingRepoStub) ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listQueries = append(r.listQueries, query)
	out := r.matching(query)
	if query.Offset > 0 {
		if query.Offset >= len(out) {
			return nil, nil
		}
		out = out[query.Offset:]
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (r *bookingRepoStub) CountBookings(ctx context.Context, query BookingQuery) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matching(query)), nil
}

func (r *bookingRepoStub) CountByStatus(ctx context.Context, query BookingQuery) (map[booking.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[booking.Status]int)
	for _, b := range r.matching(query) {
		counts[b.Status]++
	}
	return counts, nil
}

func (r *bookingRepoStub) FindOverlapping(ctx context.Context, hallID string, window calendar.Window, excludeID string, statuses []booking.Status) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlapCalls++
	if r.failOverlap != nil {
		return nil, r.failOverlap
	}
	var out []Booking
	for _, b := range r.bookings {
		if b.HallID != hallID || b.ID == excludeID || !containsStatus(statuses, b.Status) {
			continue
		}
		if b.Window().Overlaps(window) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *bookingRepoStub) ApproveBooking(ctx context.Context, id string, adminNotes *string, at time.Time) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApprove != nil {
		return Booking{}, r.failApprove
	}
	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, persistence.ErrNotFound
	}
	if b.Status != booking.StatusPending {
		return Booking{}, persistence.ErrStaleState
	}
	for _, other := range r.bookings {
		if other.ID != id && other.HallID == b.HallID && other.Status == booking.StatusApproved && other.Window().Overlaps(b.Window()) {
			return Booking{}, persistence.ErrOverlap
		}
	}
	b.Status = booking.StatusApproved
	b.AdminNotes = adminNotes
	b.UpdatedAt = at
	r.bookings[id] = b
	return b, nil
}

func (r *bookingRepoStub) RejectBooking(ctx context.Context, id, reason string, adminNotes *string, at time.Time) (Booking, error) {
	return r.transition(id, func(b Booking) bool { return b.Status == booking.StatusPending }, func(b *Booking) {
		b.Status = booking.StatusRejected
		b.RejectedReason = &reason
		b.AdminNotes = adminNotes
		b.UpdatedAt = at
	})
}

func (r *bookingRepoStub) CancelBooking(ctx context.Context, id, reason, cancelledBy string, today calendar.Date, at time.Time) (Booking, error) {
	return r.transition(id, func(b Booking) bool {
		return (b.Status == booking.StatusPending || b.Status == booking.StatusApproved) && !b.Date.Before(today)
	}, func(b *Booking) {
		b.Status = booking.StatusCancelled
		if reason != "" {
			b.CancellationReason = &reason
		}
		b.CancelledBy = &cancelledBy
		b.UpdatedAt = at
	})
}

func (r *bookingRepoStub) CompleteElapsed(ctx context.Context, today calendar.Date, now calendar.Clock, at time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var done []Booking
	for id, b := range r.bookings {
		if b.Status != booking.StatusApproved {
			continue
		}
		if b.Date.Before(today) || (b.Date.Equal(today) && !now.Before(b.End)) {
			b.Status = booking.StatusCompleted
			b.UpdatedAt = at
			r.bookings[id] = b
			done = append(done, b)
		}
	}
	return done, nil
}

func (r *bookingRepoStub) RateBooking(ctx context.Context, id string, rating int, at time.Time) (Booking, error) {
	return r.transition(id, func(b Booking) bool { return b.Status == booking.StatusCompleted }, func(b *Booking) {
		b.Rating = &rating
		b.UpdatedAt = at
	})
}

func (r *bookingRepoStub) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.ReminderSentAt != nil || b.Status != booking.StatusApproved {
		return false, nil
	}
	b.ReminderSentAt = &at
	r.bookings[id] = b
	return true, nil
}

func (r *bookingRepoStub) RatingSummary(ctx context.Context, userID string) (float64, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total, count := 0, 0
	for _, b := range r.bookings {
		if b.UserID == userID && b.Rating != nil {
			total += *b.Rating
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(total) / float64(count), count, nil
}

func (r *bookingRepoStub) transition(id string, allowed func(Booking) bool, apply func(*Booking)) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, persistence.ErrNotFound
	}
	if !allowed(b) {
		return Booking{}, persistence.ErrStaleState
	}
	apply(&b)
	r.bookings[id] = b
	return b, nil
}

func (r *bookingRepoStub) booking(id string) Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookings[id]
}

func containsStatus(statuses []booking.Status, s booking.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

type notificationRepoStub struct {
	mu            sync.Mutex
	notifications map[string]Notification
	createErr     error
}

func newNotificationRepoStub() *notificationRepoStub {
	return &notificationRepoStub{notifications: make(map[string]Notification)}
}

func (r *notificationRepoStub) CreateNotification(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.notifications[n.ID] = n
	return nil
}

func (r *notificationRepoStub) GetNotification(ctx context.Context, id string) (Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return Notification{}, persistence.ErrNotFound
	}
	return n, nil
}

func (r *notificationRepoStub) ListNotifications(ctx context.Context, userID string, query NotificationQuery) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.notifications {
		if n.UserID != userID || (query.UnreadOnly && n.IsRead) {
			continue
		}
		if query.CreatedAfter != nil && !n.CreatedAt.After(*query.CreatedAfter) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if query.Offset > 0 {
		if query.Offset >= len(out) {
			return nil, nil
		}
		out = out[query.Offset:]
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (r *notificationRepoStub) CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepoStub) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return persistence.ErrNotFound
	}
	n.IsRead = true
	r.notifications[id] = n
	return nil
}

func (r *notificationRepoStub) MarkAllRead(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			r.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (r *notificationRepoStub) DeleteNotification(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notifications[id]; !ok {
		return false, nil
	}
	delete(r.notifications, id)
	return true, nil
}

func (r *notificationRepoStub) forUser(userID string) []Notification {
	items, _ := r.ListNotifications(context.Background(), userID, NotificationQuery{})
	return items
}

type settingsRepoStub struct {
	mu       sync.Mutex
	settings map[string]NotificationSettings
}

func newSettingsRepoStub(settings ...NotificationSettings) *settingsRepoStub {
	r := &settingsRepoStub{settings: make(map[string]NotificationSettings)}
	for _, s := range settings {
		r.settings[s.UserID] = s
	}
	return r
}

func (r *settingsRepoStub) GetSettings(ctx context.Context, userID string) (NotificationSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[userID]
	if !ok {
		return NotificationSettings{}, persistence.ErrNotFound
	}
	return s, nil
}

func (r *settingsRepoStub) SaveSettings(ctx context.Context, settings NotificationSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[settings.UserID] = settings
	return nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *publisherStub) Publish(ctx context.Context, event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *publisherStub) topics() []events.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Topic, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Topic)
	}
	return out
}

type sessionRevokerStub struct {
	revoked []string
}

func (s *sessionRevokerStub) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	s.revoked = append(s.revoked, userID)
	return 1, nil
}
