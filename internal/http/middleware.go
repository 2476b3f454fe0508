package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/hall-booking/internal/application"
	"github.com/example/hall-booking/internal/logging"
)

// Authorizer resolves a bearer token into a principal. *application.IdentityGate satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, token string, required *application.Role) (application.Principal, error)
}

// RequireSession authenticates the request and stores the principal in its context.
func RequireSession(gate Authorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireRole(gate, nil, logger)
}

// RequireRole is RequireSession plus a minimum role. Behind RequireSession it
// only checks the role of the principal already resolved.
func RequireRole(gate Authorizer, role application.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireRole(gate, &role, logger)
}

func requireRole(gate Authorizer, required *application.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal, ok := PrincipalFromContext(r.Context()); ok {
				if required != nil && !principal.HasRole(*required) {
					responder.handleServiceError(r.Context(), w, application.ErrInsufficientRole)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", errMissingToken)
				return
			}

			principal, err := gate.Authorize(r.Context(), token, required)
			if err != nil {
				responder.handleServiceError(r.Context(), w, err)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger attaches a request scoped logger and writes one access line per request.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed",
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
