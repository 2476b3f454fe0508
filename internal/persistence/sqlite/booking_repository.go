package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/hall-booking/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite.
//
// Status transitions are single conditional UPDATE statements executed inside
// an immediate transaction, so of two concurrent writers only the first to
// commit changes the row and the other observes ErrStaleState.
type BookingRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewBookingRepository creates a new SQLite booking repository.
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{pool: pool, mapper: NewErrorMapper()}
}

const bookingColumns = `id, hall_id, user_id, booking_date, start_time, end_time, duration_minutes,
	purpose, description, attendees_count, equipment_needed, special_requirements, status,
	rejected_reason, cancellation_reason, cancelled_by, admin_notes, rating, reminder_sent_at,
	created_at, updated_at`

// CreateBooking inserts a new booking.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" || booking.HallID == "" || booking.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID,
		booking.HallID,
		booking.UserID,
		booking.BookingDate,
		booking.StartTime,
		booking.EndTime,
		booking.DurationMinutes,
		booking.Purpose,
		nullableString(booking.Description),
		booking.AttendeesCount,
		encodeList(booking.EquipmentNeeded),
		nullableString(booking.SpecialRequirements),
		booking.Status,
		nullableString(booking.RejectedReason),
		nullableString(booking.CancellationReason),
		nullableString(booking.CancelledBy),
		nullableString(booking.AdminNotes),
		nullableInt(booking.Rating),
		nullableTime(booking.ReminderSentAt),
		formatTime(booking.CreatedAt),
		formatTime(booking.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetBooking retrieves a booking by ID.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	if id == "" {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	var booking persistence.Booking
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		var scanErr error
		booking, scanErr = getBooking(ctx, r.pool.DB(), id)
		return scanErr
	})
	return booking, err
}

// ListBookings returns bookings matching filter ordered by date and start time, newest first.
func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	where, args := bookingWhere(filter)
	query := `SELECT ` + bookingColumns + ` FROM bookings` + where +
		` ORDER BY booking_date DESC, start_time DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	var bookings []persistence.Booking
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		var queryErr error
		bookings, queryErr = queryBookings(ctx, r.pool.DB(), query, args...)
		return queryErr
	})
	return bookings, err
}

// CountBookings counts bookings matching filter, ignoring paging.
func (r *BookingRepository) CountBookings(ctx context.Context, filter persistence.BookingFilter) (int, error) {
	where, args := bookingWhere(filter)
	var count int
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		return r.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&count)
	})
	return count, err
}

// CountByStatus groups matching bookings by status.
func (r *BookingRepository) CountByStatus(ctx context.Context, filter persistence.BookingFilter) (map[string]int, error) {
	where, args := bookingWhere(filter)
	counts := make(map[string]int)
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		clear(counts)
		rows, err := r.pool.DB().QueryContext(ctx, `SELECT status, COUNT(*) FROM bookings`+where+` GROUP BY status`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status string
				count  int
			)
			if err := rows.Scan(&status, &count); err != nil {
				return err
			}
			counts[status] = count
		}
		return rows.Err()
	})
	return counts, err
}

// FindOverlapping returns bookings of hallID on date whose [start,end) intersects the given window.
func (r *BookingRepository) FindOverlapping(ctx context.Context, hallID, date, start, end, excludeID string, statuses []string) ([]persistence.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE hall_id = ? AND booking_date = ? AND start_time < ? AND end_time > ? AND id <> ?`
	args := []any{hallID, date, end, start, excludeID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY start_time ASC, id ASC`

	var bookings []persistence.Booking
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		var queryErr error
		bookings, queryErr = queryBookings(ctx, r.pool.DB(), query, args...)
		return queryErr
	})
	return bookings, err
}

// ApproveBooking moves a pending booking to approved unless an approved booking of the
// same hall already overlaps it. The check and the write are one statement.
func (r *BookingRepository) ApproveBooking(ctx context.Context, id string, adminNotes *string, at time.Time) (persistence.Booking, error) {
	var approved persistence.Booking
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = 'approved', admin_notes = COALESCE(?, admin_notes), updated_at = ?
			WHERE id = ? AND status = 'pending'
			AND NOT EXISTS (
				SELECT 1 FROM bookings AS other
				WHERE other.hall_id = bookings.hall_id
				AND other.booking_date = bookings.booking_date
				AND other.status = 'approved'
				AND other.id <> bookings.id
				AND other.start_time < bookings.end_time
				AND other.end_time > bookings.start_time
			)`,
			nullableString(adminNotes), formatTime(at), id,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			current, err := getBooking(ctx, tx, id)
			if err != nil {
				return err
			}
			if current.Status != "pending" {
				return fmt.Errorf("%w: booking %s is %s", persistence.ErrStaleState, id, current.Status)
			}
			return fmt.Errorf("%w: booking %s", persistence.ErrOverlap, id)
		}
		approved, err = getBooking(ctx, tx, id)
		return err
	})
	return approved, err
}

// RejectBooking moves a pending booking to rejected.
func (r *BookingRepository) RejectBooking(ctx context.Context, id, reason string, adminNotes *string, at time.Time) (persistence.Booking, error) {
	return r.transition(ctx, id, `
		UPDATE bookings
		SET status = 'rejected', rejected_reason = ?, admin_notes = COALESCE(?, admin_notes), updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		reason, nullableString(adminNotes), formatTime(at), id,
	)
}

// CancelBooking moves a pending or approved booking dated today or later to cancelled.
func (r *BookingRepository) CancelBooking(ctx context.Context, id, reason, cancelledBy, today string, at time.Time) (persistence.Booking, error) {
	return r.transition(ctx, id, `
		UPDATE bookings
		SET status = 'cancelled', cancellation_reason = ?, cancelled_by = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'approved') AND booking_date >= ?`,
		reason, cancelledBy, formatTime(at), id, today,
	)
}

// RateBooking stores a rating on a completed booking.
func (r *BookingRepository) RateBooking(ctx context.Context, id string, rating int, at time.Time) (persistence.Booking, error) {
	return r.transition(ctx, id, `
		UPDATE bookings SET rating = ?, updated_at = ?
		WHERE id = ? AND status = 'completed'`,
		rating, formatTime(at), id,
	)
}

// CompleteElapsed marks approved bookings whose window ended before (today, now) as completed.
func (r *BookingRepository) CompleteElapsed(ctx context.Context, today, now string, at time.Time) ([]persistence.Booking, error) {
	var completed []persistence.Booking
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		completed = nil
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM bookings
			WHERE status = 'approved' AND (booking_date < ? OR (booking_date = ? AND end_time <= ?))
			ORDER BY booking_date ASC, end_time ASC`,
			today, today, now,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			result, err := tx.ExecContext(ctx,
				`UPDATE bookings SET status = 'completed', updated_at = ? WHERE id = ? AND status = 'approved'`,
				formatTime(at), id,
			)
			if err != nil {
				return r.mapper.MapError(err)
			}
			if affected, _ := result.RowsAffected(); affected == 0 {
				continue
			}
			booking, err := getBooking(ctx, tx, id)
			if err != nil {
				return err
			}
			completed = append(completed, booking)
		}
		return nil
	})
	return completed, err
}

// MarkReminderSent stamps the reminder time once; it reports false when another
// sweep already did.
func (r *BookingRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE bookings SET reminder_sent_at = ? WHERE id = ? AND reminder_sent_at IS NULL AND status = 'approved'`,
		formatTime(at), id,
	)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RatingSummary returns the mean and number of ratings left by userID.
func (r *BookingRepository) RatingSummary(ctx context.Context, userID string) (float64, int, error) {
	var (
		average sql.NullFloat64
		count   int
	)
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		return r.pool.DB().QueryRowContext(ctx,
			`SELECT AVG(rating), COUNT(rating) FROM bookings WHERE user_id = ? AND rating IS NOT NULL`,
			userID,
		).Scan(&average, &count)
	})
	if err != nil {
		return 0, 0, err
	}
	if !average.Valid {
		return 0, 0, nil
	}
	return average.Float64, count, nil
}

func (r *BookingRepository) transition(ctx context.Context, id, query string, args ...any) (persistence.Booking, error) {
	var updated persistence.Booking
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			current, err := getBooking(ctx, tx, id)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: booking %s is %s", persistence.ErrStaleState, id, current.Status)
		}
		updated, err = getBooking(ctx, tx, id)
		return err
	})
	return updated, err
}

func bookingWhere(filter persistence.BookingFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.HallID != "" {
		clauses = append(clauses, "hall_id = ?")
		args = append(args, filter.HallID)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}
	if filter.DateFrom != "" {
		clauses = append(clauses, "booking_date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		clauses = append(clauses, "booking_date <= ?")
		args = append(args, filter.DateTo)
	}
	if filter.ReminderPending {
		clauses = append(clauses, "reminder_sent_at IS NULL")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func getBooking(ctx context.Context, q queryer, id string) (persistence.Booking, error) {
	return scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
}

func queryBookings(ctx context.Context, q queryer, query string, args ...any) ([]persistence.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []persistence.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		b                                         persistence.Booking
		description, special, rejected, cancelled sql.NullString
		cancelledBy, notes, reminder              sql.NullString
		rating                                    sql.NullInt64
		equipment, createdAt, updatedAt           string
	)
	err := row.Scan(
		&b.ID, &b.HallID, &b.UserID, &b.BookingDate, &b.StartTime, &b.EndTime, &b.DurationMinutes,
		&b.Purpose, &description, &b.AttendeesCount, &equipment, &special, &b.Status,
		&rejected, &cancelled, &cancelledBy, &notes, &rating, &reminder,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Booking{}, persistence.ErrNotFound
		}
		return persistence.Booking{}, err
	}

	b.Description = stringPtr(description)
	b.SpecialRequirements = stringPtr(special)
	b.RejectedReason = stringPtr(rejected)
	b.CancellationReason = stringPtr(cancelled)
	b.CancelledBy = stringPtr(cancelledBy)
	b.AdminNotes = stringPtr(notes)
	b.Rating = intPtr(rating)
	if b.EquipmentNeeded, err = decodeList(equipment); err != nil {
		return persistence.Booking{}, err
	}
	if b.ReminderSentAt, err = parseNullableTime(reminder); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse reminder_sent_at: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return b, nil
}
