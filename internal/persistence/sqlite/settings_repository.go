package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/hall-booking/internal/persistence"
)

// SettingsRepository implements persistence.SettingsRepository using SQLite.
type SettingsRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSettingsRepository creates a new SQLite settings repository.
func NewSettingsRepository(pool *ConnectionPool) *SettingsRepository {
	return &SettingsRepository{pool: pool, mapper: NewErrorMapper()}
}

// GetSettings returns the stored preferences of userID or ErrNotFound.
func (r *SettingsRepository) GetSettings(ctx context.Context, userID string) (persistence.NotificationSettings, error) {
	var settings persistence.NotificationSettings
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		var (
			push, email, updates, reminders, maintenance, system int
			updatedAt                                            string
		)
		err := r.pool.DB().QueryRowContext(ctx, `
			SELECT user_id, push_enabled, email_enabled, email_frequency, booking_updates, reminders,
				reminder_time_minutes, maintenance_alerts, system_announcements, updated_at
			FROM notification_settings WHERE user_id = ?`, userID,
		).Scan(
			&settings.UserID, &push, &email, &settings.EmailFrequency, &updates, &reminders,
			&settings.ReminderTimeMinutes, &maintenance, &system, &updatedAt,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return err
		}
		settings.PushEnabled = push != 0
		settings.EmailEnabled = email != 0
		settings.BookingUpdates = updates != 0
		settings.Reminders = reminders != 0
		settings.MaintenanceAlerts = maintenance != 0
		settings.SystemAnnouncements = system != 0
		if settings.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return fmt.Errorf("failed to parse updated_at: %w", err)
		}
		return nil
	})
	return settings, err
}

// SaveSettings inserts or replaces the preferences row.
func (r *SettingsRepository) SaveSettings(ctx context.Context, settings persistence.NotificationSettings) error {
	if settings.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now()
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO notification_settings (
			user_id, push_enabled, email_enabled, email_frequency, booking_updates, reminders,
			reminder_time_minutes, maintenance_alerts, system_announcements, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			push_enabled = excluded.push_enabled,
			email_enabled = excluded.email_enabled,
			email_frequency = excluded.email_frequency,
			booking_updates = excluded.booking_updates,
			reminders = excluded.reminders,
			reminder_time_minutes = excluded.reminder_time_minutes,
			maintenance_alerts = excluded.maintenance_alerts,
			system_announcements = excluded.system_announcements,
			updated_at = excluded.updated_at`,
		settings.UserID,
		boolInt(settings.PushEnabled),
		boolInt(settings.EmailEnabled),
		settings.EmailFrequency,
		boolInt(settings.BookingUpdates),
		boolInt(settings.Reminders),
		settings.ReminderTimeMinutes,
		boolInt(settings.MaintenanceAlerts),
		boolInt(settings.SystemAnnouncements),
		formatTime(settings.UpdatedAt),
	)
	return r.mapper.MapError(err)
}
