package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/hall-booking/internal/application"
)

type authService interface {
	Register(ctx context.Context, input application.RegisterInput) (application.User, error)
	SignIn(ctx context.Context, email, password string) (application.SignInResult, error)
	SignOut(ctx context.Context, token string) error
	Refresh(ctx context.Context, token string) (application.SignInResult, error)
	CurrentUser(ctx context.Context, principal application.Principal) (application.User, error)
}

type AuthHandler struct {
	service   authService
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service authService, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Register", "error_kind", "bad_request").WarnContext(r.Context(), "invalid registration request", "error", err)
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	user, err := h.service.Register(r.Context(), req.toInput())
	if err != nil {
		h.log(r.Context(), "Register").ErrorContext(r.Context(), "registration failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Register", "user_id", user.ID).InfoContext(r.Context(), "registration received")
	h.responder.writeData(r.Context(), w, http.StatusCreated, toUserDTO(user))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	result, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.log(r.Context(), "Login").WarnContext(r.Context(), "sign-in rejected", "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeData(r.Context(), w, http.StatusCreated, toSessionDTO(result))
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", errMissingToken)
		return
	}
	result, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toSessionDTO(result))
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", errMissingToken)
		return
	}

	if err := h.service.SignOut(r.Context(), token); err != nil {
		h.log(r.Context(), "Logout").ErrorContext(r.Context(), "sign-out failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusNoContent, nil)
}

// Me handles GET /me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", errMissingPrincipal)
		return
	}
	user, err := h.service.CurrentUser(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toUserDTO(user))
}

type registerRequest struct {
	Name       string  `json:"name" validate:"required,max=120"`
	Email      string  `json:"email" validate:"required,email"`
	Password   string  `json:"password" validate:"required,min=8"`
	Phone      *string `json:"phone" validate:"omitempty,max=32"`
	EmployeeID *string `json:"employeeId" validate:"omitempty,max=64"`
	Department *string `json:"department" validate:"omitempty,max=120"`
}

func (r registerRequest) toInput() application.RegisterInput {
	return application.RegisterInput{
		Name:       r.Name,
		Email:      r.Email,
		Password:   r.Password,
		Phone:      r.Phone,
		EmployeeID: r.EmployeeID,
		Department: r.Department,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sessionDTO struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expiresAt"`
	User      userDTO `json:"user"`
}

func toSessionDTO(result application.SignInResult) sessionDTO {
	return sessionDTO{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toUserDTO(result.User),
	}
}

type userDTO struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	Phone              *string `json:"phone,omitempty"`
	EmployeeID         *string `json:"employeeId,omitempty"`
	Department         *string `json:"department,omitempty"`
	Role               string  `json:"role"`
	IsActive           bool    `json:"isActive"`
	RegistrationStatus string  `json:"registrationStatus"`
	ApprovedByAdmin    bool    `json:"approvedByAdmin"`
	CreatedAt          string  `json:"createdAt"`
	LastLoginAt        *string `json:"lastLoginAt,omitempty"`
}

func toUserDTO(user application.User) userDTO {
	dto := userDTO{
		ID:                 user.ID,
		Name:               user.Name,
		Email:              user.Email,
		Phone:              user.Phone,
		EmployeeID:         user.EmployeeID,
		Department:         user.Department,
		Role:               string(user.Role),
		IsActive:           user.IsActive,
		RegistrationStatus: string(user.RegistrationStatus),
		ApprovedByAdmin:    user.ApprovedByAdmin(),
		CreatedAt:          user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.LastLoginAt != nil {
		ts := user.LastLoginAt.UTC().Format(time.RFC3339)
		dto.LastLoginAt = &ts
	}
	return dto
}

func toUserDTOs(users []application.User) []userDTO {
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	return out
}
