package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/hall-booking/internal/application"
	"github.com/example/hall-booking/internal/logging"
)

const retryMessage = "Something went wrong. Please try again."

var (
	errBadRequestBody   = errors.New("request body is not valid JSON")
	errMissingToken     = errors.New("a bearer token is required")
	errMissingPrincipal = errors.New("no authenticated principal")
)

// envelope is the single response shape of every endpoint.
type envelope struct {
	Data      any               `json:"data,omitempty"`
	ErrorKind string            `json:"errorKind,omitempty"`
	Message   string            `json:"message,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeData(ctx context.Context, w http.ResponseWriter, status int, data any) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	r.writeJSON(ctx, w, status, envelope{Data: data})
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload envelope) {
	if w == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError answers with a client error that did not come from a service.
func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, kind string, err error) {
	message := http.StatusText(status)
	if err != nil {
		message = err.Error()
	}
	r.writeJSON(ctx, w, status, envelope{ErrorKind: kind, Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := application.ErrorKind(err)
	status := statusForKind(kind)

	payload := envelope{ErrorKind: kind, Message: messageForKind(kind)}
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		payload.Errors = vErr.FieldErrors
	}
	if status == http.StatusInternalServerError {
		payload.RequestID = middleware.GetReqID(ctx)
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected failure", "error", err, "request_id", payload.RequestID)
	}
	r.writeJSON(ctx, w, status, payload)
}

// handleRequestError answers a decode or validation failure.
func (r responder) handleRequestError(ctx context.Context, w http.ResponseWriter, err error) {
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.handleServiceError(ctx, w, err)
		return
	}
	r.writeError(ctx, w, http.StatusBadRequest, "bad_request", errBadRequestBody)
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, r.logger)
}

func statusForKind(kind string) int {
	switch kind {
	case "unauthenticated", "invalid_credentials":
		return http.StatusUnauthorized
	case "account_deactivated", "account_not_approved", "insufficient_role", "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "conflict", "already_exists", "invalid_transition", "hall_unavailable":
		return http.StatusConflict
	case "validation", "already_elapsed":
		return http.StatusUnprocessableEntity
	case "profile_not_ready":
		return http.StatusServiceUnavailable
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func messageForKind(kind string) string {
	switch kind {
	case "unauthenticated":
		return "Please sign in again."
	case "invalid_credentials":
		return "The email or password is incorrect."
	case "account_deactivated":
		return "This account has been deactivated."
	case "account_not_approved":
		return "This account is waiting for administrator approval."
	case "insufficient_role", "forbidden":
		return "You are not allowed to perform this action."
	case "not_found":
		return "The requested resource was not found."
	case "conflict":
		return "The hall is already booked for this time."
	case "already_exists":
		return "A resource with the same identity already exists."
	case "invalid_transition":
		return "The request cannot be applied in its current state."
	case "hall_unavailable":
		return "The hall is not available for booking."
	case "already_elapsed":
		return "The booking date has already passed."
	case "validation":
		return "Some fields are invalid."
	case "profile_not_ready":
		return "Your profile is still being set up. Please try again shortly."
	case "timeout":
		return "The request timed out. Please try again."
	default:
		return retryMessage
	}
}
