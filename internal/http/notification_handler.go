package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/hall-booking/internal/application"
	"github.com/example/hall-booking/internal/notify"
	"github.com/example/hall-booking/internal/pagination"
)

const heartbeatInterval = 25 * time.Second

type notificationService interface {
	GetUnreadCount(ctx context.Context, principal application.Principal) (int, error)
	ListNotifications(ctx context.Context, principal application.Principal, unreadOnly bool, params pagination.Params) (application.NotificationPage, error)
	MarkAsRead(ctx context.Context, principal application.Principal, notificationID string) error
	MarkAllAsRead(ctx context.Context, principal application.Principal) (int, error)
	DeleteNotification(ctx context.Context, principal application.Principal, notificationID string) (bool, error)
	Snapshot(ctx context.Context, principal application.Principal, afterID string) (application.NotificationSnapshot, error)
	Subscribe(ctx context.Context, principal application.Principal) (*notify.Subscription[application.Notification], error)
	GetSettings(ctx context.Context, principal application.Principal) (application.NotificationSettings, error)
	UpdateSettings(ctx context.Context, principal application.Principal, patch application.SettingsPatch) (application.NotificationSettings, error)
	Announce(ctx context.Context, principal application.Principal, title, message string, audience *application.Role) error
}

type NotificationHandler struct {
	service   notificationService
	responder responder
	logger    *slog.Logger
	heartbeat time.Duration
}

func NewNotificationHandler(service notificationService, logger *slog.Logger) *NotificationHandler {
	base := defaultLogger(logger)
	return &NotificationHandler{service: service, responder: newResponder(base), logger: base, heartbeat: heartbeatInterval}
}

func (h *NotificationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "NotificationHandler", operation, attrs...)
}

// List handles GET /notifications.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	page, err := h.service.ListNotifications(r.Context(), principal, queryBool(r, "unreadOnly"),
		pagination.New(queryInt(r, "page"), queryInt(r, "limit")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, notificationPageDTO{
		Items: toNotificationDTOs(page.Items),
		Meta:  page.Meta,
	})
}

// UnreadCount handles GET /notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	count, err := h.service.GetUnreadCount(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, countDTO{Count: count})
}

// MarkRead handles POST /notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.MarkAsRead(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusNoContent, nil)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	count, err := h.service.MarkAllAsRead(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, countDTO{Count: count})
}

// Delete handles DELETE /notifications/{id}.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	deleted, err := h.service.DeleteNotification(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, deletedDTO{Deleted: deleted})
}

// Stream handles GET /notifications/stream as server-sent events. The
// subscription is opened before the snapshot is read so nothing created in
// between is lost; items seen in the snapshot are not repeated.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "Stream", "principal_id", principal.UserID)

	sub, err := h.service.Subscribe(ctx, principal)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	defer sub.Close()

	lastID := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if lastID == "" {
		lastID = strings.TrimSpace(r.URL.Query().Get("lastEventId"))
	}
	snapshot, err := h.service.Snapshot(ctx, principal, lastID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event, id string, payload any) bool {
		body, err := json.Marshal(payload)
		if err != nil {
			logger.ErrorContext(ctx, "failed to encode event", "error", err)
			return false
		}
		if id != "" {
			fmt.Fprintf(w, "id: %s\n", id)
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	seen := make(map[string]struct{}, len(snapshot.Items))
	if !send("unread", "", countDTO{Count: snapshot.UnreadCount}) {
		return
	}
	// older gap items did not fit; the client re-lists /notifications
	if snapshot.Truncated && !send("truncated", "", struct{}{}) {
		return
	}
	for i := len(snapshot.Items) - 1; i >= 0; i-- {
		n := snapshot.Items[i]
		seen[n.ID] = struct{}{}
		if !send("notification", n.ID, toNotificationDTO(n)) {
			return
		}
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		case n, ok := <-sub.C():
			if !ok {
				if sub.Lagged() {
					logger.WarnContext(ctx, "subscriber fell behind")
					send("lagged", "", struct{}{})
				}
				return
			}
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			if !send("notification", n.ID, toNotificationDTO(n)) {
				return
			}
		}
	}
}

// Settings handles GET /me/settings.
func (h *NotificationHandler) Settings(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	settings, err := h.service.GetSettings(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toSettingsDTO(settings))
}

// UpdateSettings handles PATCH /me/settings.
func (h *NotificationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	settings, err := h.service.UpdateSettings(r.Context(), principal, application.SettingsPatch(req))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toSettingsDTO(settings))
}

// Announce handles POST /announcements.
func (h *NotificationHandler) Announce(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req announcementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleRequestError(r.Context(), w, err)
		return
	}

	var audience *application.Role
	if req.Audience != nil {
		role := application.Role(*req.Audience)
		audience = &role
	}
	if err := h.service.Announce(r.Context(), principal, req.Title, req.Message, audience); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusAccepted, struct{}{})
}

type settingsRequest struct {
	PushEnabled         *bool   `json:"pushEnabled"`
	EmailEnabled        *bool   `json:"emailEnabled"`
	EmailFrequency      *string `json:"emailFrequency"`
	BookingUpdates      *bool   `json:"bookingUpdates"`
	Reminders           *bool   `json:"reminders"`
	ReminderTimeMinutes *int    `json:"reminderTimeMinutes"`
	MaintenanceAlerts   *bool   `json:"maintenanceAlerts"`
	SystemAnnouncements *bool   `json:"systemAnnouncements"`
}

type announcementRequest struct {
	Title    string  `json:"title" validate:"required,max=200"`
	Message  string  `json:"message" validate:"required,max=4000"`
	Audience *string `json:"audience" validate:"omitempty,oneof=faculty admin super_admin"`
}

type notificationDTO struct {
	ID        string                       `json:"id"`
	Type      string                       `json:"type"`
	Title     string                       `json:"title"`
	Message   string                       `json:"message"`
	Data      application.NotificationData `json:"data"`
	IsRead    bool                         `json:"isRead"`
	CreatedAt string                       `json:"createdAt"`
}

func toNotificationDTO(n application.Notification) notificationDTO {
	return notificationDTO{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toNotificationDTOs(items []application.Notification) []notificationDTO {
	out := make([]notificationDTO, 0, len(items))
	for _, n := range items {
		out = append(out, toNotificationDTO(n))
	}
	return out
}

type notificationPageDTO struct {
	Items []notificationDTO `json:"items"`
	Meta  pagination.Meta   `json:"meta"`
}

type countDTO struct {
	Count int `json:"count"`
}

type deletedDTO struct {
	Deleted bool `json:"deleted"`
}

type settingsDTO struct {
	PushEnabled         bool   `json:"pushEnabled"`
	EmailEnabled        bool   `json:"emailEnabled"`
	EmailFrequency      string `json:"emailFrequency"`
	BookingUpdates      bool   `json:"bookingUpdates"`
	Reminders           bool   `json:"reminders"`
	ReminderTimeMinutes int    `json:"reminderTimeMinutes"`
	MaintenanceAlerts   bool   `json:"maintenanceAlerts"`
	SystemAnnouncements bool   `json:"systemAnnouncements"`
}

func toSettingsDTO(s application.NotificationSettings) settingsDTO {
	return settingsDTO{
		PushEnabled:         s.PushEnabled,
		EmailEnabled:        s.EmailEnabled,
		EmailFrequency:      string(s.EmailFrequency),
		BookingUpdates:      s.BookingUpdates,
		Reminders:           s.Reminders,
		ReminderTimeMinutes: s.ReminderTimeMinutes,
		MaintenanceAlerts:   s.MaintenanceAlerts,
		SystemAnnouncements: s.SystemAnnouncements,
	}
}
