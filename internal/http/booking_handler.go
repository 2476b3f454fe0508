package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/hall-booking/internal/application"
	"github.com/example/hall-booking/internal/booking"
	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/pagination"
)

type bookingService interface {
	CreateBooking(ctx context.Context, principal application.Principal, input application.CreateBookingInput) (application.Booking, []application.ConflictWarning, error)
	CheckConflicts(ctx context.Context, principal application.Principal, hallID, date, start, end, excludeID string) ([]application.ConflictWarning, error)
	ApproveBooking(ctx context.Context, principal application.Principal, bookingID string, adminNotes *string) (application.Booking, error)
	RejectBooking(ctx context.Context, principal application.Principal, bookingID, reason string, adminNotes *string) (application.Booking, error)
	CancelBooking(ctx context.Context, principal application.Principal, bookingID, reason string) (application.Booking, error)
	RateBooking(ctx context.Context, principal application.Principal, bookingID string, rating int) (application.Booking, error)
	GetBooking(ctx context.Context, principal application.Principal, bookingID string) (application.Booking, error)
	ListUserBookings(ctx context.Context, principal application.Principal, userID string, status *booking.Status) ([]application.Booking, error)
	GetUserBookingStats(ctx context.Context, principal application.Principal, userID string) (application.BookingStats, error)
	ListBookings(ctx context.Context, principal application.Principal, filter application.BookingListFilter) (application.BookingPage, error)
	BookingAnalytics(ctx context.Context, principal application.Principal, from, to *calendar.Date) (application.BookingAnalytics, error)
}

type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

// Create handles POST /bookings. Overlaps with other requests come back as warnings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	var req createBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	created, warnings, err := h.service.CreateBooking(r.Context(), principal, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "booking request failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("booking_id", created.ID, "warnings", len(warnings)).InfoContext(r.Context(), "booking requested")
	h.responder.writeData(r.Context(), w, http.StatusCreated, bookingWithWarningsDTO{
		Booking:  toBookingDTO(created),
		Warnings: toWarningDTOs(warnings),
	})
}

// Conflicts handles GET /halls/{id}/conflicts.
func (h *BookingHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	q := r.URL.Query()
	warnings, err := h.service.CheckConflicts(r.Context(), principal, chi.URLParam(r, "id"),
		q.Get("date"), q.Get("start"), q.Get("end"), q.Get("exclude"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toWarningDTOs(warnings))
}

// Get handles GET /bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	b, err := h.service.GetBooking(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toBookingDTO(b))
}

// Approve handles POST /bookings/{id}/approve.
func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.transition(w, r, "Approve", func(ctx context.Context, p application.Principal, id string) (application.Booking, error) {
		return h.service.ApproveBooking(ctx, p, id, req.AdminNotes)
	})
}

// Reject handles POST /bookings/{id}/reject.
func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}
	h.transition(w, r, "Reject", func(ctx context.Context, p application.Principal, id string) (application.Booking, error) {
		return h.service.RejectBooking(ctx, p, id, req.Reason, req.AdminNotes)
	})
}

// Cancel handles POST /bookings/{id}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.transition(w, r, "Cancel", func(ctx context.Context, p application.Principal, id string) (application.Booking, error) {
		return h.service.CancelBooking(ctx, p, id, req.Reason)
	})
}

// Rate handles POST /bookings/{id}/rate.
func (h *BookingHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}
	h.transition(w, r, "Rate", func(ctx context.Context, p application.Principal, id string) (application.Booking, error) {
		return h.service.RateBooking(ctx, p, id, req.Rating)
	})
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, operation string, apply func(context.Context, application.Principal, string) (application.Booking, error)) {
	principal, _ := PrincipalFromContext(r.Context())
	bookingID := chi.URLParam(r, "id")
	logger := h.log(r.Context(), operation, "principal_id", principal.UserID, "booking_id", bookingID)

	updated, err := apply(r.Context(), principal, bookingID)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.With("status", string(updated.Status)).InfoContext(r.Context(), "booking updated")
	h.responder.writeData(r.Context(), w, http.StatusOK, toBookingDTO(updated))
}

// decodeOptional accepts an empty body as the zero request.
func (h *BookingHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := decodeJSON(w, r, dst); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return false
	}
	return true
}

// UserBookings handles GET /users/{id}/bookings.
func (h *BookingHandler) UserBookings(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var status *booking.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		s, err := booking.ParseStatus(raw)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, fieldError("status", "unknown booking status"))
			return
		}
		status = &s
	}

	bookings, err := h.service.ListUserBookings(r.Context(), principal, chi.URLParam(r, "id"), status)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toBookingDTOs(bookings))
}

// UserStats handles GET /users/{id}/stats.
func (h *BookingHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	stats, err := h.service.GetUserBookingStats(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, statsDTO{
		TotalBookings:     stats.TotalBookings,
		ThisMonthBookings: stats.ThisMonthBookings,
		AverageRating:     stats.AverageRating,
	})
}

// List handles GET /bookings for administrators.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	filter, err := parseBookingFilter(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	page, err := h.service.ListBookings(r.Context(), principal, filter)
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID).ErrorContext(r.Context(), "booking list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, bookingPageDTO{Items: toBookingDTOs(page.Items), Meta: page.Meta})
}

// Analytics handles GET /bookings/analytics.
func (h *BookingHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	from, to, err := parseRange(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	analytics, err := h.service.BookingAnalytics(r.Context(), principal, from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	byStatus := make(map[string]int, len(analytics.ByStatus))
	for status, count := range analytics.ByStatus {
		byStatus[string(status)] = count
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, analyticsDTO{
		Total:        analytics.Total,
		ByStatus:     byStatus,
		ApprovalRate: analytics.ApprovalRate,
	})
}

func parseBookingFilter(r *http.Request) (application.BookingListFilter, error) {
	q := r.URL.Query()
	filter := application.BookingListFilter{
		HallID: strings.TrimSpace(q.Get("hallId")),
		UserID: strings.TrimSpace(q.Get("userId")),
		Page:   pagination.New(queryInt(r, "page"), queryInt(r, "limit")),
	}
	for _, raw := range queryList(r, "status") {
		s, err := booking.ParseStatus(raw)
		if err != nil {
			return filter, fieldError("status", "unknown booking status")
		}
		filter.Statuses = append(filter.Statuses, s)
	}
	var err error
	filter.From, filter.To, err = parseRange(r)
	return filter, err
}

func parseRange(r *http.Request) (from, to *calendar.Date, err error) {
	parse := func(key string) (*calendar.Date, error) {
		raw := strings.TrimSpace(r.URL.Query().Get(key))
		if raw == "" {
			return nil, nil
		}
		d, err := calendar.ParseDateInput(raw)
		if err != nil {
			return nil, fieldError(key, "must be YYYY-MM-DD or DDMMYYYY")
		}
		return &d, nil
	}
	if from, err = parse("from"); err != nil {
		return nil, nil, err
	}
	if to, err = parse("to"); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func fieldError(field, message string) *application.ValidationError {
	return &application.ValidationError{FieldErrors: map[string]string{field: message}}
}

type createBookingRequest struct {
	HallID              string   `json:"hallId" validate:"required"`
	Date                string   `json:"bookingDate" validate:"required"`
	StartTime           string   `json:"startTime" validate:"required"`
	EndTime             string   `json:"endTime" validate:"required"`
	Purpose             string   `json:"purpose" validate:"required,max=500"`
	Description         *string  `json:"description" validate:"omitempty,max=2000"`
	AttendeesCount      int      `json:"attendeesCount" validate:"min=1"`
	EquipmentNeeded     []string `json:"equipmentNeeded" validate:"omitempty,dive,max=80"`
	SpecialRequirements *string  `json:"specialRequirements" validate:"omitempty,max=2000"`
}

func (r createBookingRequest) toInput() application.CreateBookingInput {
	return application.CreateBookingInput{
		HallID:              r.HallID,
		Date:                r.Date,
		StartTime:           r.StartTime,
		EndTime:             r.EndTime,
		Purpose:             r.Purpose,
		Description:         r.Description,
		AttendeesCount:      r.AttendeesCount,
		EquipmentNeeded:     r.EquipmentNeeded,
		SpecialRequirements: r.SpecialRequirements,
	}
}

type decisionRequest struct {
	Reason     string  `json:"reason" validate:"max=1000"`
	AdminNotes *string `json:"adminNotes" validate:"omitempty,max=2000"`
}

type rateRequest struct {
	Rating int `json:"rating" validate:"min=1,max=5"`
}

type bookingDTO struct {
	ID                  string   `json:"id"`
	HallID              string   `json:"hallId"`
	UserID              string   `json:"userId"`
	BookingDate         string   `json:"bookingDate"`
	StartTime           string   `json:"startTime"`
	EndTime             string   `json:"endTime"`
	DurationMinutes     int      `json:"durationMinutes"`
	Purpose             string   `json:"purpose"`
	Description         *string  `json:"description,omitempty"`
	AttendeesCount      int      `json:"attendeesCount"`
	EquipmentNeeded     []string `json:"equipmentNeeded"`
	SpecialRequirements *string  `json:"specialRequirements,omitempty"`
	Status              string   `json:"status"`
	RejectedReason      *string  `json:"rejectedReason,omitempty"`
	CancellationReason  *string  `json:"cancellationReason,omitempty"`
	CancelledBy         *string  `json:"cancelledBy,omitempty"`
	AdminNotes          *string  `json:"adminNotes,omitempty"`
	Rating              *int     `json:"rating,omitempty"`
	CreatedAt           string   `json:"createdAt"`
	UpdatedAt           string   `json:"updatedAt"`
}

func toBookingDTO(b application.Booking) bookingDTO {
	return bookingDTO{
		ID:                  b.ID,
		HallID:              b.HallID,
		UserID:              b.UserID,
		BookingDate:         b.Date.String(),
		StartTime:           b.Start.String(),
		EndTime:             b.End.String(),
		DurationMinutes:     b.DurationMinutes,
		Purpose:             b.Purpose,
		Description:         b.Description,
		AttendeesCount:      b.AttendeesCount,
		EquipmentNeeded:     nonNil(b.EquipmentNeeded),
		SpecialRequirements: b.SpecialRequirements,
		Status:              string(b.Status),
		RejectedReason:      b.RejectedReason,
		CancellationReason:  b.CancellationReason,
		CancelledBy:         b.CancelledBy,
		AdminNotes:          b.AdminNotes,
		Rating:              b.Rating,
		CreatedAt:           b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:           b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toBookingDTOs(bookings []application.Booking) []bookingDTO {
	out := make([]bookingDTO, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingDTO(b))
	}
	return out
}

type conflictWarningDTO struct {
	BookingID string `json:"bookingId"`
	Type      string `json:"type"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func toWarningDTOs(warnings []application.ConflictWarning) []conflictWarningDTO {
	out := make([]conflictWarningDTO, 0, len(warnings))
	for _, warning := range warnings {
		out = append(out, conflictWarningDTO{
			BookingID: warning.BookingID,
			Type:      warning.Type,
			StartTime: warning.Start.String(),
			EndTime:   warning.End.String(),
		})
	}
	return out
}

type bookingWithWarningsDTO struct {
	Booking  bookingDTO           `json:"booking"`
	Warnings []conflictWarningDTO `json:"warnings"`
}

type bookingPageDTO struct {
	Items []bookingDTO    `json:"items"`
	Meta  pagination.Meta `json:"meta"`
}

type statsDTO struct {
	TotalBookings     int     `json:"totalBookings"`
	ThisMonthBookings int     `json:"thisMonthBookings"`
	AverageRating     float64 `json:"averageRating"`
}

type analyticsDTO struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"byStatus"`
	ApprovalRate float64        `json:"approvalRate"`
}
