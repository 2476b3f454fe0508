package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/hall-booking/internal/application"
)

type hallService interface {
	CreateHall(ctx context.Context, principal application.Principal, input application.HallInput) (application.Hall, error)
	UpdateHall(ctx context.Context, principal application.Principal, hallID string, input application.HallInput) (application.Hall, error)
	SetMaintenance(ctx context.Context, principal application.Principal, hallID string, enabled bool, notes *string) (application.Hall, error)
	GetHall(ctx context.Context, hallID string) (application.Hall, error)
	ListHalls(ctx context.Context, principal application.Principal, includeInactive bool) ([]application.Hall, error)
}

type HallHandler struct {
	service   hallService
	responder responder
	logger    *slog.Logger
}

func NewHallHandler(service hallService, logger *slog.Logger) *HallHandler {
	base := defaultLogger(logger)
	return &HallHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *HallHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "HallHandler", operation, attrs...)
}

// List handles GET /halls. Administrators may pass includeInactive=true.
func (h *HallHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	halls, err := h.service.ListHalls(r.Context(), principal, queryBool(r, "includeInactive"))
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID).ErrorContext(r.Context(), "hall list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toHallDTOs(halls))
}

// Get handles GET /halls/{id}.
func (h *HallHandler) Get(w http.ResponseWriter, r *http.Request) {
	hall, err := h.service.GetHall(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toHallDTO(hall))
}

// Create handles POST /halls.
func (h *HallHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	var req hallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	hall, err := h.service.CreateHall(r.Context(), principal, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "hall creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("hall_id", hall.ID).InfoContext(r.Context(), "hall created")
	h.responder.writeData(r.Context(), w, http.StatusCreated, toHallDTO(hall))
}

// Update handles PUT /halls/{id}.
func (h *HallHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	hallID := chi.URLParam(r, "id")
	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "hall_id", hallID)

	var req hallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	hall, err := h.service.UpdateHall(r.Context(), principal, hallID, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "hall update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "hall updated")
	h.responder.writeData(r.Context(), w, http.StatusOK, toHallDTO(hall))
}

// SetMaintenance handles PUT /halls/{id}/maintenance.
func (h *HallHandler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	hallID := chi.URLParam(r, "id")

	var req maintenanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	hall, err := h.service.SetMaintenance(r.Context(), principal, hallID, *req.Enabled, req.Notes)
	if err != nil {
		h.log(r.Context(), "SetMaintenance", "principal_id", principal.UserID, "hall_id", hallID).
			ErrorContext(r.Context(), "maintenance update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toHallDTO(hall))
}

type hallRequest struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Capacity    int      `json:"capacity" validate:"min=1"`
	Location    string   `json:"location" validate:"required,max=200"`
	Building    *string  `json:"building" validate:"omitempty,max=120"`
	FloorNumber *int     `json:"floorNumber" validate:"omitempty,min=0"`
	Equipment   []string `json:"equipment" validate:"omitempty,dive,max=80"`
	Amenities   []string `json:"amenities" validate:"omitempty,dive,max=80"`
	IsActive    *bool    `json:"isActive"`
}

func (r hallRequest) toInput() application.HallInput {
	return application.HallInput{
		Name:        r.Name,
		Capacity:    r.Capacity,
		Location:    r.Location,
		Building:    r.Building,
		FloorNumber: r.FloorNumber,
		Equipment:   r.Equipment,
		Amenities:   r.Amenities,
		IsActive:    r.IsActive,
	}
}

type maintenanceRequest struct {
	Enabled *bool   `json:"enabled" validate:"required"`
	Notes   *string `json:"notes" validate:"omitempty,max=500"`
}

type hallDTO struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Capacity         int      `json:"capacity"`
	Location         string   `json:"location"`
	Building         *string  `json:"building,omitempty"`
	FloorNumber      *int     `json:"floorNumber,omitempty"`
	Equipment        []string `json:"equipment"`
	Amenities        []string `json:"amenities"`
	IsActive         bool     `json:"isActive"`
	IsMaintenance    bool     `json:"isMaintenance"`
	MaintenanceNotes *string  `json:"maintenanceNotes,omitempty"`
	UpdatedAt        string   `json:"updatedAt"`
}

func toHallDTO(hall application.Hall) hallDTO {
	return hallDTO{
		ID:               hall.ID,
		Name:             hall.Name,
		Capacity:         hall.Capacity,
		Location:         hall.Location,
		Building:         hall.Building,
		FloorNumber:      hall.FloorNumber,
		Equipment:        nonNil(hall.Equipment),
		Amenities:        nonNil(hall.Amenities),
		IsActive:         hall.IsActive,
		IsMaintenance:    hall.IsMaintenance,
		MaintenanceNotes: hall.MaintenanceNotes,
		UpdatedAt:        hall.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toHallDTOs(halls []application.Hall) []hallDTO {
	out := make([]hallDTO, 0, len(halls))
	for _, hall := range halls {
		out = append(out, toHallDTO(hall))
	}
	return out
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
