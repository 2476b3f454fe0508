package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/hall-booking/internal/persistence"
)

// NotificationRepository implements persistence.NotificationRepository using SQLite.
type NotificationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewNotificationRepository creates a new SQLite notification repository.
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{pool: pool, mapper: NewErrorMapper()}
}

const notificationColumns = `id, user_id, type, title, message, data, is_read, created_at`

// CreateNotification inserts an inbox row.
func (r *NotificationRepository) CreateNotification(ctx context.Context, notification persistence.Notification) error {
	if notification.ID == "" || notification.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}
	data, err := json.Marshal(notification.Data)
	if err != nil {
		return fmt.Errorf("encode notification data: %w", err)
	}

	_, err = r.pool.DB().ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		notification.ID,
		notification.UserID,
		notification.Type,
		notification.Title,
		notification.Message,
		string(data),
		boolInt(notification.IsRead),
		formatTime(notification.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetNotification retrieves one inbox row.
func (r *NotificationRepository) GetNotification(ctx context.Context, id string) (persistence.Notification, error) {
	if id == "" {
		return persistence.Notification{}, persistence.ErrNotFound
	}
	var notification persistence.Notification
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		var scanErr error
		notification, scanErr = scanNotification(r.pool.DB().QueryRowContext(ctx,
			`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
		return scanErr
	})
	return notification, err
}

// ListNotifications returns a user's inbox, newest first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID string, filter persistence.NotificationFilter) ([]persistence.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if filter.UnreadOnly {
		query += ` AND is_read = 0`
	}
	if filter.CreatedAfter != nil {
		query += ` AND created_at > ?`
		args = append(args, formatTime(*filter.CreatedAfter))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	var notifications []persistence.Notification
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		notifications = nil
		rows, err := r.pool.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			notification, err := scanNotification(rows)
			if err != nil {
				return err
			}
			notifications = append(notifications, notification)
		}
		return rows.Err()
	})
	return notifications, err
}

// CountNotifications counts a user's inbox rows.
func (r *NotificationRepository) CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	var count int
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		return r.pool.DB().QueryRowContext(ctx, query, userID).Scan(&count)
	})
	return count, err
}

// MarkRead flags one notification as read. Marking an already read row succeeds.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// MarkAllRead flags every unread notification of userID and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// DeleteNotification removes one row and reports whether it existed.
func (r *NotificationRepository) DeleteNotification(ctx context.Context, id string) (bool, error) {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func scanNotification(row rowScanner) (persistence.Notification, error) {
	var (
		n         persistence.Notification
		data      string
		isRead    int
		createdAt string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &isRead, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Notification{}, persistence.ErrNotFound
		}
		return persistence.Notification{}, err
	}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return persistence.Notification{}, fmt.Errorf("decode notification data: %w", err)
		}
	}
	n.IsRead = isRead != 0
	var err error
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Notification{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return n, nil
}
