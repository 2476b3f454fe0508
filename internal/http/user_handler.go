package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/hall-booking/internal/application"
)

type approvalService interface {
	ListPendingApprovals(ctx context.Context, principal application.Principal) ([]application.User, error)
	ListUsers(ctx context.Context, principal application.Principal, filter application.UserFilter) ([]application.User, error)
	ApproveUser(ctx context.Context, principal application.Principal, email string) (application.User, error)
	RejectUser(ctx context.Context, principal application.Principal, email, reason string) (application.User, error)
	ChangeUserRole(ctx context.Context, principal application.Principal, userID string, role application.Role) (application.User, error)
	ToggleActiveStatus(ctx context.Context, principal application.Principal, userID string, active bool) (application.User, error)
	DeleteUser(ctx context.Context, principal application.Principal, userID string) error
}

// UserHandler serves the registration approval queue and account administration.
type UserHandler struct {
	service   approvalService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service approvalService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

// PendingApprovals handles GET /approvals.
func (h *UserHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	users, err := h.service.ListPendingApprovals(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toUserDTOs(users))
}

// List handles GET /users with optional role, status and active filters.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	q := r.URL.Query()

	var filter application.UserFilter
	if raw := strings.TrimSpace(q.Get("role")); raw != "" {
		role, err := application.ParseRole(raw)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, fieldError("role", "unknown role"))
			return
		}
		filter.Role = &role
	}
	if raw := strings.TrimSpace(q.Get("registrationStatus")); raw != "" {
		status, err := application.ParseRegistrationStatus(raw)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, fieldError("registrationStatus", "unknown registration status"))
			return
		}
		filter.RegistrationStatus = &status
	}
	if raw := strings.TrimSpace(q.Get("active")); raw != "" {
		active := queryBool(r, "active")
		filter.IsActive = &active
	}

	users, err := h.service.ListUsers(r.Context(), principal, filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toUserDTOs(users))
}

// Approve handles POST /approvals/approve.
func (h *UserHandler) Approve(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req approvalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Approve", "principal_id", principal.UserID)
	user, err := h.service.ApproveUser(r.Context(), principal, req.Email)
	if err != nil {
		logger.ErrorContext(r.Context(), "user approval failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.With("user_id", user.ID).InfoContext(r.Context(), "user approved")
	h.responder.writeData(r.Context(), w, http.StatusOK, toUserDTO(user))
}

// Reject handles POST /approvals/reject.
func (h *UserHandler) Reject(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req approvalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Reject", "principal_id", principal.UserID)
	user, err := h.service.RejectUser(r.Context(), principal, req.Email, req.Reason)
	if err != nil {
		logger.ErrorContext(r.Context(), "user rejection failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.With("user_id", user.ID).InfoContext(r.Context(), "user rejected")
	h.responder.writeData(r.Context(), w, http.StatusOK, toUserDTO(user))
}

// ChangeRole handles PUT /users/{id}/role.
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	user, err := h.service.ChangeUserRole(r.Context(), principal, chi.URLParam(r, "id"), application.Role(req.Role))
	if err != nil {
		h.log(r.Context(), "ChangeRole", "principal_id", principal.UserID).
			ErrorContext(r.Context(), "role change failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toUserDTO(user))
}

// SetActive handles PUT /users/{id}/active.
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	user, err := h.service.ToggleActiveStatus(r.Context(), principal, chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toUserDTO(user))
}

// Delete handles DELETE /users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	userID := chi.URLParam(r, "id")
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "user_id", userID)

	if err := h.service.DeleteUser(r.Context(), principal, userID); err != nil {
		logger.ErrorContext(r.Context(), "user delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "user deleted")
	h.responder.writeData(r.Context(), w, http.StatusNoContent, nil)
}

type approvalRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Reason string `json:"reason" validate:"max=1000"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=faculty admin super_admin"`
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}
