package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/hall-booking/internal/application"
)

type RouterConfig struct {
	Gate          Authorizer
	Auth          *AuthHandler
	Halls         *HallHandler
	Bookings      *BookingHandler
	Users         *UserHandler
	Notifications *NotificationHandler
	Logger        *slog.Logger
}

// NewRouter mounts every endpoint. Routes whose handler is nil are skipped.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	authed := RequireSession(cfg.Gate, cfg.Logger)
	admin := RequireRole(cfg.Gate, application.RoleAdmin, cfg.Logger)

	if cfg.Auth != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", cfg.Auth.Register)
			r.Post("/login", cfg.Auth.Login)
			r.Post("/refresh", cfg.Auth.Refresh)
			r.Post("/logout", cfg.Auth.Logout)
		})
		r.With(authed).Get("/me", cfg.Auth.Me)
	}

	if cfg.Notifications != nil {
		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.Get("/me/settings", cfg.Notifications.Settings)
			r.Patch("/me/settings", cfg.Notifications.UpdateSettings)
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", cfg.Notifications.List)
				r.Get("/unread-count", cfg.Notifications.UnreadCount)
				r.Get("/stream", cfg.Notifications.Stream)
				r.Post("/read-all", cfg.Notifications.MarkAllRead)
				r.Post("/{id}/read", cfg.Notifications.MarkRead)
				r.Delete("/{id}", cfg.Notifications.Delete)
			})
		})
		r.With(admin).Post("/announcements", cfg.Notifications.Announce)
	}

	if cfg.Halls != nil {
		r.Route("/halls", func(r chi.Router) {
			r.Use(authed)
			r.Get("/", cfg.Halls.List)
			r.Get("/{id}", cfg.Halls.Get)
			if cfg.Bookings != nil {
				r.Get("/{id}/conflicts", cfg.Bookings.Conflicts)
			}
			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Post("/", cfg.Halls.Create)
				r.Put("/{id}", cfg.Halls.Update)
				r.Put("/{id}/maintenance", cfg.Halls.SetMaintenance)
			})
		})
	}

	if cfg.Bookings != nil {
		r.Route("/bookings", func(r chi.Router) {
			r.Use(authed)
			r.Post("/", cfg.Bookings.Create)
			r.With(admin).Get("/", cfg.Bookings.List)
			r.With(admin).Get("/analytics", cfg.Bookings.Analytics)
			r.Get("/{id}", cfg.Bookings.Get)
			r.Post("/{id}/cancel", cfg.Bookings.Cancel)
			r.Post("/{id}/rate", cfg.Bookings.Rate)
			r.With(admin).Post("/{id}/approve", cfg.Bookings.Approve)
			r.With(admin).Post("/{id}/reject", cfg.Bookings.Reject)
		})
	}

	r.Route("/users", func(r chi.Router) {
		r.Use(authed)
		if cfg.Bookings != nil {
			r.Get("/{id}/bookings", cfg.Bookings.UserBookings)
			r.Get("/{id}/stats", cfg.Bookings.UserStats)
		}
		if cfg.Users != nil {
			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/", cfg.Users.List)
				r.Put("/{id}/role", cfg.Users.ChangeRole)
				r.Put("/{id}/active", cfg.Users.SetActive)
				r.Delete("/{id}", cfg.Users.Delete)
			})
		}
	})

	if cfg.Users != nil {
		r.Route("/approvals", func(r chi.Router) {
			r.Use(admin)
			r.Get("/", cfg.Users.PendingApprovals)
			r.Post("/approve", cfg.Users.Approve)
			r.Post("/reject", cfg.Users.Reject)
		})
	}

	return r
}
