package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/events"
	"github.com/example/hall-booking/internal/pagination"
	"github.com/example/hall-booking/internal/scheduler"
)

var occupyingStatuses = []booking.Status{booking.StatusPending, booking.StatusApproved}

// BookingService owns booking state transitions, cancellation eligibility
// and date/time parsing at the boundary.
type BookingService struct {
	bookings    BookingRepository
	halls       HallRepository
	publisher   EventPublisher
	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	occupancy   *occupancyCache
	logger      *slog.Logger
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(bookings BookingRepository, halls HallRepository, publisher EventPublisher, idGenerator func() string, now func() time.Time, location *time.Location) *BookingService {
	return NewBookingServiceWithLogger(bookings, halls, publisher, idGenerator, now, location, nil)
}

// NewBookingServiceWithLogger constructs a booking service with a specified logger.
// location defines what "today" means for date checks.
func NewBookingServiceWithLogger(bookings BookingRepository, halls HallRepository, publisher EventPublisher, idGenerator func() string, now func() time.Time, location *time.Location, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.Local
	}
	return &BookingService{
		bookings:    bookings,
		halls:       halls,
		publisher:   publisher,
		idGenerator: idGenerator,
		now:         now,
		location:    location,
		occupancy:   newOccupancyCache(30*time.Second, 256, now),
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// today returns the current local date and wall clock.
func (s *BookingService) today() (calendar.Date, calendar.Clock) {
	local := s.now().In(s.location)
	return calendar.DateOf(local), calendar.ClockOf(local)
}

// CreateBooking validates a request and stores it as pending. Overlapping
// pending or approved bookings are returned as warnings; approval decides.
func (s *BookingService) CreateBooking(ctx context.Context, principal Principal, input CreateBookingInput) (created Booking, warnings []ConflictWarning, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil || s.halls == nil {
		err = fmt.Errorf("booking service not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", principal.UserID,
		"hall_id", input.HallID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", created.ID, "warning_count", len(warnings)).InfoContext(ctx, "booking created")
	}()

	if err = requireApproved(principal); err != nil {
		return
	}

	window, vErr := parseBookingInput(input)
	today, nowClock := s.today()
	if !window.Date.IsZero() {
		if window.Date.Before(today) {
			vErr.add("date", "date must be today or later")
		} else if window.Date.Equal(today) && !window.Start.After(nowClock) {
			vErr.add("start_time", "start time has already passed")
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hall Hall
	hall, err = s.halls.GetHall(ctx, input.HallID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if !hall.Bookable() {
		err = ErrHallUnavailable
		return
	}

	if input.AttendeesCount > hall.Capacity {
		vErr.add("attendees_count", fmt.Sprintf("attendees exceed hall capacity of %d", hall.Capacity))
	}
	equipment := normalizeList(input.EquipmentNeeded)
	for _, item := range equipment {
		if !hall.Offers(item) {
			vErr.add("equipment_needed", fmt.Sprintf("%q is not available in this hall", item))
			break
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	candidate := scheduler.Reservation{HallID: hall.ID, Window: window, Status: booking.StatusPending}
	var existing []scheduler.Reservation
	existing, err = s.dayOccupancy(ctx, hall.ID, window.Date)
	if err != nil {
		return
	}
	warnings = toConflictWarnings(scheduler.DetectConflicts(existing, candidate))

	now := s.now()
	created = Booking{
		ID:                  s.idGenerator(),
		HallID:              hall.ID,
		UserID:              principal.UserID,
		Date:                window.Date,
		Start:               window.Start,
		End:                 window.End,
		DurationMinutes:     int(window.Duration() / time.Minute),
		Purpose:             strings.TrimSpace(input.Purpose),
		Description:         normalizeOptionalString(input.Description),
		AttendeesCount:      input.AttendeesCount,
		EquipmentNeeded:     equipment,
		SpecialRequirements: normalizeOptionalString(input.SpecialRequirements),
		Status:              booking.StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err = s.bookings.CreateBooking(ctx, created); err != nil {
		err = mapRepoError(err)
		created, warnings = Booking{}, nil
		return
	}
	s.occupancy.Invalidate(hall.ID, window.Date)

	publish(ctx, s.publisher, events.TopicBookingCreated, now, BookingEvent{
		Booking: created, ActorID: principal.UserID, ActorRole: principal.Role,
	})
	return
}

// HasConflict reports whether an approved booking of hallID overlaps the
// window. It always reads the store.
func (s *BookingService) HasConflict(ctx context.Context, hallID string, window calendar.Window, excludeID string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("BookingService is nil")
	}
	if !window.Valid() {
		return false, newValidationError("end_time", "end time must be after start time")
	}
	overlapping, err := s.bookings.FindOverlapping(ctx, hallID, window, excludeID, []booking.Status{booking.StatusApproved})
	if err != nil {
		return false, mapRepoError(err)
	}
	return len(overlapping) > 0, nil
}

// CheckConflicts previews the pending and approved bookings a request for
// the given window would overlap.
func (s *BookingService) CheckConflicts(ctx context.Context, principal Principal, hallID, date, start, end, excludeID string) (warnings []ConflictWarning, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CheckConflicts", "principal_id", principal.UserID, "hall_id", hallID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to check conflicts", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	window, vErr := parseWindow(date, start, end)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if _, err = s.halls.GetHall(ctx, hallID); err != nil {
		err = mapRepoError(err)
		return
	}

	var existing []scheduler.Reservation
	existing, err = s.dayOccupancy(ctx, hallID, window.Date)
	if err != nil {
		return
	}
	candidate := scheduler.Reservation{ID: excludeID, HallID: hallID, Window: window, Status: booking.StatusPending}
	warnings = toConflictWarnings(scheduler.DetectConflicts(existing, candidate))
	return
}

// ApproveBooking moves a pending booking to approved. The overlap check and
// the transition commit together; a concurrent approval of an overlapping
// booking makes this call fail with ErrConflict.
func (s *BookingService) ApproveBooking(ctx context.Context, principal Principal, bookingID string, adminNotes *string) (approved Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ApproveBooking", "principal_id", principal.UserID, "booking_id", bookingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to approve booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking approved")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}

	var current Booking
	current, err = s.getBooking(ctx, bookingID)
	if err != nil {
		return
	}
	if _, err = booking.Transition(current.Status, booking.StatusApproved); err != nil {
		err = mapTransitionError(err)
		return
	}
	if today, _ := s.today(); current.Date.Before(today) {
		err = ErrAlreadyElapsed
		return
	}

	now := s.now()
	approved, err = s.bookings.ApproveBooking(ctx, bookingID, normalizeOptionalString(adminNotes), now)
	if err != nil {
		err = mapRepoError(err)
		approved = Booking{}
		return
	}
	s.occupancy.Invalidate(approved.HallID, approved.Date)

	publish(ctx, s.publisher, events.TopicBookingApproved, now, BookingEvent{
		Booking: approved, ActorID: principal.UserID, ActorRole: principal.Role,
	})
	return
}

// RejectBooking moves a pending booking to rejected. The reason is mandatory.
func (s *BookingService) RejectBooking(ctx context.Context, principal Principal, bookingID, reason string, adminNotes *string) (rejected Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RejectBooking", "principal_id", principal.UserID, "booking_id", bookingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reject booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking rejected")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		err = newValidationError("reason", "a rejection reason is required")
		return
	}

	var current Booking
	current, err = s.getBooking(ctx, bookingID)
	if err != nil {
		return
	}
	if _, err = booking.Transition(current.Status, booking.StatusRejected); err != nil {
		err = mapTransitionError(err)
		return
	}

	now := s.now()
	rejected, err = s.bookings.RejectBooking(ctx, bookingID, reason, normalizeOptionalString(adminNotes), now)
	if err != nil {
		err = mapRepoError(err)
		rejected = Booking{}
		return
	}
	s.occupancy.Invalidate(rejected.HallID, rejected.Date)

	publish(ctx, s.publisher, events.TopicBookingRejected, now, BookingEvent{
		Booking: rejected, ActorID: principal.UserID, ActorRole: principal.Role, Reason: reason,
	})
	return
}

// CancelBooking cancels a pending or approved booking dated today or later.
// Owners and administrators may cancel; the actor is recorded apart from the reason.
func (s *BookingService) CancelBooking(ctx context.Context, principal Principal, bookingID, reason string) (cancelled Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CancelBooking", "principal_id", principal.UserID, "booking_id", bookingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking cancelled")
	}()

	var current Booking
	current, err = s.getBooking(ctx, bookingID)
	if err != nil {
		return
	}
	if current.UserID != principal.UserID && !principal.HasRole(RoleAdmin) {
		err = ErrForbidden
		return
	}

	today, _ := s.today()
	if current.Date.Before(today) {
		err = ErrAlreadyElapsed
		return
	}
	if _, err = booking.Transition(current.Status, booking.StatusCancelled); err != nil {
		err = mapTransitionError(err)
		return
	}

	reason = strings.TrimSpace(reason)
	now := s.now()
	cancelled, err = s.bookings.CancelBooking(ctx, bookingID, reason, principal.UserID, today, now)
	if err != nil {
		err = mapRepoError(err)
		cancelled = Booking{}
		return
	}
	s.occupancy.Invalidate(cancelled.HallID, cancelled.Date)

	publish(ctx, s.publisher, events.TopicBookingCancelled, now, BookingEvent{
		Booking: cancelled, ActorID: principal.UserID, ActorRole: principal.Role, Reason: reason,
	})
	return
}

// RateBooking records the owner's 1-5 rating of a completed booking. A
// booking can be rated once.
func (s *BookingService) RateBooking(ctx context.Context, principal Principal, bookingID string, rating int) (rated Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RateBooking", "principal_id", principal.UserID, "booking_id", bookingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to rate booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking rated", "rating", rating)
	}()

	if rating < 1 || rating > 5 {
		err = newValidationError("rating", "rating must be between 1 and 5")
		return
	}

	var current Booking
	current, err = s.getBooking(ctx, bookingID)
	if err != nil {
		return
	}
	if current.UserID != principal.UserID {
		err = ErrForbidden
		return
	}
	if current.Status != booking.StatusCompleted || current.Rating != nil {
		err = ErrInvalidTransition
		return
	}

	rated, err = s.bookings.RateBooking(ctx, bookingID, rating, s.now())
	if err != nil {
		err = mapRepoError(err)
		rated = Booking{}
	}
	return
}

// CompleteElapsed marks approved bookings whose window has ended as completed.
// It runs from the scheduled sweep and returns how many bookings changed.
func (s *BookingService) CompleteElapsed(ctx context.Context) (count int, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CompleteElapsed")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "completion sweep failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if count > 0 {
			logger.InfoContext(ctx, "bookings completed", "count", count)
		}
	}()

	today, clock := s.today()
	now := s.now()
	var completed []Booking
	completed, err = s.bookings.CompleteElapsed(ctx, today, clock, now)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	for _, b := range completed {
		s.occupancy.Invalidate(b.HallID, b.Date)
		publish(ctx, s.publisher, events.TopicBookingCompleted, now, BookingEvent{Booking: b})
	}
	count = len(completed)
	return
}

// GetBooking returns a booking visible to the principal.
func (s *BookingService) GetBooking(ctx context.Context, principal Principal, bookingID string) (Booking, error) {
	if s == nil {
		return Booking{}, fmt.Errorf("BookingService is nil")
	}
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if b.UserID != principal.UserID && !principal.HasRole(RoleAdmin) {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

// ListUserBookings returns a user's bookings, newest date and start first.
func (s *BookingService) ListUserBookings(ctx context.Context, principal Principal, userID string, status *booking.Status) (bookings []Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListUserBookings", "principal_id", principal.UserID, "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list bookings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(bookings)).DebugContext(ctx, "bookings listed")
	}()

	if err = requireSelfOrAdmin(principal, userID); err != nil {
		return
	}

	query := BookingQuery{UserID: userID}
	if status != nil {
		if !status.Valid() {
			err = newValidationError("status", "unknown booking status")
			return
		}
		query.Statuses = []booking.Status{*status}
	}
	bookings, err = s.bookings.ListBookings(ctx, query)
	err = mapRepoError(err)
	return
}

// GetUserBookingStats aggregates a user's booking history. AverageRating is
// zero when the user has not rated anything.
func (s *BookingService) GetUserBookingStats(ctx context.Context, principal Principal, userID string) (stats BookingStats, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetUserBookingStats", "principal_id", principal.UserID, "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute booking stats", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if err = requireSelfOrAdmin(principal, userID); err != nil {
		return
	}

	if stats.TotalBookings, err = s.bookings.CountBookings(ctx, BookingQuery{UserID: userID}); err != nil {
		err = mapRepoError(err)
		return
	}

	today, _ := s.today()
	first, last := today.FirstOfMonth(), today.LastOfMonth()
	if stats.ThisMonthBookings, err = s.bookings.CountBookings(ctx, BookingQuery{UserID: userID, From: &first, To: &last}); err != nil {
		err = mapRepoError(err)
		return
	}

	var (
		average float64
		rated   int
	)
	if average, rated, err = s.bookings.RatingSummary(ctx, userID); err != nil {
		err = mapRepoError(err)
		return
	}
	if rated > 0 && !math.IsNaN(average) {
		stats.AverageRating = math.Round(average*10) / 10
	}
	return
}

// ListBookings pages through all bookings for administrators.
func (s *BookingService) ListBookings(ctx context.Context, principal Principal, filter BookingListFilter) (page BookingPage, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListBookings", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list bookings", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}

	params := pagination.New(filter.Page.Page, filter.Page.Limit)
	query := BookingQuery{
		UserID:   filter.UserID,
		HallID:   filter.HallID,
		Statuses: filter.Statuses,
		From:     filter.From,
		To:       filter.To,
	}

	var total int
	if total, err = s.bookings.CountBookings(ctx, query); err != nil {
		err = mapRepoError(err)
		return
	}
	query.Limit = params.Limit
	query.Offset = params.Offset()
	if page.Items, err = s.bookings.ListBookings(ctx, query); err != nil {
		err = mapRepoError(err)
		page.Items = nil
		return
	}
	page.Meta = pagination.BuildMeta(total, params)
	return
}

// BookingAnalytics counts bookings per status in an optional date range.
// ApprovalRate is approved plus completed over every decided booking.
func (s *BookingService) BookingAnalytics(ctx context.Context, principal Principal, from, to *calendar.Date) (analytics BookingAnalytics, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}

	var counts map[booking.Status]int
	counts, err = s.bookings.CountByStatus(ctx, BookingQuery{From: from, To: to})
	if err != nil {
		err = mapRepoError(err)
		s.loggerWith(ctx, "BookingAnalytics", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to aggregate bookings", "error", err, "error_kind", ErrorKind(err))
		return
	}

	analytics.ByStatus = make(map[booking.Status]int, len(booking.Statuses))
	for _, status := range booking.Statuses {
		analytics.ByStatus[status] = counts[status]
		analytics.Total += counts[status]
	}
	accepted := counts[booking.StatusApproved] + counts[booking.StatusCompleted]
	if decided := accepted + counts[booking.StatusRejected]; decided > 0 {
		analytics.ApprovalRate = math.Round(float64(accepted)/float64(decided)*1000) / 1000
	}
	return
}

func (s *BookingService) getBooking(ctx context.Context, bookingID string) (Booking, error) {
	if strings.TrimSpace(bookingID) == "" {
		return Booking{}, ErrNotFound
	}
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepoError(err)
	}
	return b, nil
}

// dayOccupancy returns the pending and approved reservations of a hall on date.
func (s *BookingService) dayOccupancy(ctx context.Context, hallID string, date calendar.Date) ([]scheduler.Reservation, error) {
	if cached, ok := s.occupancy.Get(hallID, date); ok {
		return cached, nil
	}
	day := calendar.Window{Date: date, Start: calendar.Clock{}, End: endOfDay}
	bookings, err := s.bookings.FindOverlapping(ctx, hallID, day, "", occupyingStatuses)
	if err != nil {
		return nil, mapRepoError(err)
	}
	reservations := make([]scheduler.Reservation, 0, len(bookings))
	for _, b := range bookings {
		reservations = append(reservations, toReservation(b))
	}
	s.occupancy.Store(hallID, date, reservations)
	return reservations, nil
}

var endOfDay = func() calendar.Clock {
	c, _ := calendar.NewClock(23, 59)
	return c
}()

func toReservation(b Booking) scheduler.Reservation {
	return scheduler.Reservation{ID: b.ID, HallID: b.HallID, Window: b.Window(), Status: b.Status}
}

func toConflictWarnings(conflicts []scheduler.Conflict) []ConflictWarning {
	if len(conflicts) == 0 {
		return nil
	}
	warnings := make([]ConflictWarning, 0, len(conflicts))
	for _, c := range conflicts {
		warnings = append(warnings, ConflictWarning{
			BookingID: c.WithBookingID,
			Type:      string(c.Type),
			Start:     c.Window.Start,
			End:       c.Window.End,
		})
	}
	return warnings
}

func parseBookingInput(input CreateBookingInput) (calendar.Window, *ValidationError) {
	window, vErr := parseWindow(input.Date, input.StartTime, input.EndTime)
	if strings.TrimSpace(input.HallID) == "" {
		vErr.add("hall_id", "hall is required")
	}
	if strings.TrimSpace(input.Purpose) == "" {
		vErr.add("purpose", "purpose is required")
	}
	if input.AttendeesCount < 1 {
		vErr.add("attendees_count", "at least one attendee is required")
	}
	return window, vErr
}

// parseWindow parses boundary strings into a window. The compact DDMMYYYY
// date form is accepted here and nowhere else.
func parseWindow(date, start, end string) (calendar.Window, *ValidationError) {
	vErr := &ValidationError{}
	var window calendar.Window

	d, err := calendar.ParseDateInput(date)
	if err != nil {
		vErr.add("date", "date must be YYYY-MM-DD or DDMMYYYY")
	} else {
		window.Date = d
	}

	startClock, startErr := calendar.ParseClock(start)
	if startErr != nil {
		vErr.add("start_time", "start time must be HH:MM")
	} else {
		window.Start = startClock
	}
	endClock, endErr := calendar.ParseClock(end)
	if endErr != nil {
		vErr.add("end_time", "end time must be HH:MM")
	} else {
		window.End = endClock
	}
	if startErr == nil && endErr == nil && !startClock.Before(endClock) {
		vErr.add("end_time", "end time must be after start time")
	}
	return window, vErr
}

func requireSelfOrAdmin(principal Principal, userID string) error {
	if principal.UserID == userID || principal.HasRole(RoleAdmin) {
		return nil
	}
	return ErrForbidden
}

func mapTransitionError(err error) error {
	switch {
	case errors.Is(err, booking.ErrInvalidTransition):
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	case errors.Is(err, booking.ErrUnknownStatus):
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	return err
}

func normalizeList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		key := strings.ToLower(trimmed)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
