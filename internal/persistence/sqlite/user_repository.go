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

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{pool: pool, mapper: NewErrorMapper()}
}

const userColumns = `id, name, email, phone, employee_id, department, role, is_active,
	registration_status, password_hash, created_at, updated_at, last_login_at`

// CreateUser inserts a new account.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		strings.TrimSpace(user.Name),
		normalizeEmail(user.Email),
		nullableString(user.Phone),
		nullableString(user.EmployeeID),
		nullableString(user.Department),
		user.Role,
		boolInt(user.IsActive),
		user.RegistrationStatus,
		user.PasswordHash,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
		nullableTime(user.LastLoginAt),
	)
	return r.mapper.MapError(err)
}

// UpdateUser overwrites the mutable columns of an account. An empty
// PasswordHash keeps the stored hash.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now()
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE users
		SET name = ?, email = ?, phone = ?, employee_id = ?, department = ?, role = ?,
			is_active = ?, registration_status = ?,
			password_hash = COALESCE(NULLIF(?, ''), password_hash),
			updated_at = ?
		WHERE id = ?`,
		strings.TrimSpace(user.Name),
		normalizeEmail(user.Email),
		nullableString(user.Phone),
		nullableString(user.EmployeeID),
		nullableString(user.Department),
		user.Role,
		boolInt(user.IsActive),
		user.RegistrationStatus,
		user.PasswordHash,
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetUser retrieves an account by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	var user persistence.User
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		var scanErr error
		user, scanErr = scanUser(r.pool.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
		return scanErr
	})
	return user, err
}

// GetUserByEmail retrieves an account by case-insensitive email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	var user persistence.User
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		var scanErr error
		user, scanErr = scanUser(r.pool.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalized))
		return scanErr
	})
	return user, err
}

// ListUsers returns accounts matching filter, newest first.
func (r *UserRepository) ListUsers(ctx context.Context, filter persistence.UserFilter) ([]persistence.User, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Role != nil {
		clauses = append(clauses, "role = ?")
		args = append(args, *filter.Role)
	}
	if filter.RegistrationStatus != nil {
		clauses = append(clauses, "registration_status = ?")
		args = append(args, *filter.RegistrationStatus)
	}
	if filter.IsActive != nil {
		clauses = append(clauses, "is_active = ?")
		args = append(args, boolInt(*filter.IsActive))
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	var users []persistence.User
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		users = nil
		rows, err := r.pool.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			user, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return rows.Err()
	})
	return users, err
}

// CountUsersByRole counts accounts holding role.
func (r *UserRepository) CountUsersByRole(ctx context.Context, role string) (int, error) {
	var count int
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		return r.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, role).Scan(&count)
	})
	return count, err
}

// TouchLastLogin records a successful sign-in.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := r.pool.DB().ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// DeleteUser removes an account. Owned sessions, settings, notifications and bookings cascade.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                  persistence.User
		phone, employee, dept sql.NullString
		active                int
		createdAt, updatedAt  string
		lastLogin             sql.NullString
	)
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &phone, &employee, &dept, &user.Role, &active,
		&user.RegistrationStatus, &user.PasswordHash, &createdAt, &updatedAt, &lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, err
	}

	user.Phone = stringPtr(phone)
	user.EmployeeID = stringPtr(employee)
	user.Department = stringPtr(dept)
	user.IsActive = active != 0
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if user.LastLoginAt, err = parseNullableTime(lastLogin); err != nil {
		return persistence.User{}, fmt.Errorf("failed to parse last_login_at: %w", err)
	}
	return user, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
