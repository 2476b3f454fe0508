package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/hall-booking/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{pool: pool, mapper: NewErrorMapper()}
}

const sessionColumns = `id, user_id, expires_at, revoked_at, created_at, updated_at`

// CreateSession stores a new session for a user.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) error {
	if session.ID == "" || session.UserID == "" || session.ExpiresAt.IsZero() {
		return persistence.ErrConstraintViolation
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		formatTime(session.ExpiresAt),
		nullableTime(session.RevokedAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetSession retrieves a session by ID.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	if id == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	var session persistence.Session
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		var scanErr error
		session, scanErr = scanSession(r.pool.DB().QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
		return scanErr
	})
	return session, err
}

// UpdateSession rewrites the expiry and revocation of an existing session.
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) error {
	if session.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now()
	}
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE sessions SET expires_at = ?, revoked_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(session.ExpiresAt),
		nullableTime(session.RevokedAt),
		formatTime(session.UpdatedAt),
		session.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// RevokeSession marks a session revoked. Revoking twice keeps the first timestamp.
func (r *SessionRepository) RevokeSession(ctx context.Context, id string, revokedAt time.Time) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?), updated_at = ? WHERE id = ?`,
		formatTime(revokedAt), formatTime(revokedAt), id,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// RevokeUserSessions revokes every live session of userID.
func (r *SessionRepository) RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) (int, error) {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		formatTime(revokedAt), formatTime(revokedAt), userID,
	)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// DeleteExpiredSessions removes sessions that expired on or before reference.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error) {
	result, err := r.pool.DB().ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference))
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                         persistence.Session
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	if err := row.Scan(&session.ID, &session.UserID, &expiresAt, &revokedAt, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Session{}, persistence.ErrNotFound
		}
		return persistence.Session{}, err
	}

	var err error
	if session.RevokedAt, err = parseNullableTime(revokedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse revoked_at: %w", err)
	}
	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return session, nil
}
