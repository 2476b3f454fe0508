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

// HallRepository implements persistence.HallRepository using SQLite.
type HallRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewHallRepository creates a new SQLite hall repository.
func NewHallRepository(pool *ConnectionPool) *HallRepository {
	return &HallRepository{pool: pool, mapper: NewErrorMapper()}
}

const hallColumns = `id, name, capacity, location, building, floor_number, equipment, amenities,
	is_active, is_maintenance, maintenance_notes, created_at, updated_at`

// CreateHall inserts a hall.
func (r *HallRepository) CreateHall(ctx context.Context, hall persistence.Hall) error {
	if hall.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if hall.CreatedAt.IsZero() {
		hall.CreatedAt = time.Now()
	}
	if hall.UpdatedAt.IsZero() {
		hall.UpdatedAt = hall.CreatedAt
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO halls (`+hallColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hall.ID,
		strings.TrimSpace(hall.Name),
		hall.Capacity,
		strings.TrimSpace(hall.Location),
		nullableString(hall.Building),
		nullableInt(hall.FloorNumber),
		encodeList(hall.Equipment),
		encodeList(hall.Amenities),
		boolInt(hall.IsActive),
		boolInt(hall.IsMaintenance),
		nullableString(hall.MaintenanceNotes),
		formatTime(hall.CreatedAt),
		formatTime(hall.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateHall overwrites a hall's mutable columns.
func (r *HallRepository) UpdateHall(ctx context.Context, hall persistence.Hall) error {
	if hall.UpdatedAt.IsZero() {
		hall.UpdatedAt = time.Now()
	}
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE halls
		SET name = ?, capacity = ?, location = ?, building = ?, floor_number = ?, equipment = ?,
			amenities = ?, is_active = ?, is_maintenance = ?, maintenance_notes = ?, updated_at = ?
		WHERE id = ?`,
		strings.TrimSpace(hall.Name),
		hall.Capacity,
		strings.TrimSpace(hall.Location),
		nullableString(hall.Building),
		nullableInt(hall.FloorNumber),
		encodeList(hall.Equipment),
		encodeList(hall.Amenities),
		boolInt(hall.IsActive),
		boolInt(hall.IsMaintenance),
		nullableString(hall.MaintenanceNotes),
		formatTime(hall.UpdatedAt),
		hall.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetHall retrieves a hall by ID.
func (r *HallRepository) GetHall(ctx context.Context, id string) (persistence.Hall, error) {
	if id == "" {
		return persistence.Hall{}, persistence.ErrNotFound
	}
	var hall persistence.Hall
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		var scanErr error
		hall, scanErr = scanHall(r.pool.DB().QueryRowContext(ctx, `SELECT `+hallColumns+` FROM halls WHERE id = ?`, id))
		return scanErr
	})
	return hall, err
}

// ListHalls returns halls ordered by name.
func (r *HallRepository) ListHalls(ctx context.Context, includeInactive bool) ([]persistence.Hall, error) {
	query := `SELECT ` + hallColumns + ` FROM halls`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE ASC, id ASC`

	var halls []persistence.Hall
	err := r.pool.ReadWithRetry(ctx, func(ctx context.Context) error {
		halls = nil
		rows, err := r.pool.DB().QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			hall, err := scanHall(rows)
			if err != nil {
				return err
			}
			halls = append(halls, hall)
		}
		return rows.Err()
	})
	return halls, err
}

func scanHall(row rowScanner) (persistence.Hall, error) {
	var (
		hall                 persistence.Hall
		building, notes      sql.NullString
		floor                sql.NullInt64
		equipment, amenities string
		active, maintenance  int
		createdAt, updatedAt string
	)
	err := row.Scan(
		&hall.ID, &hall.Name, &hall.Capacity, &hall.Location, &building, &floor, &equipment, &amenities,
		&active, &maintenance, &notes, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Hall{}, persistence.ErrNotFound
		}
		return persistence.Hall{}, err
	}

	hall.Building = stringPtr(building)
	hall.FloorNumber = intPtr(floor)
	hall.MaintenanceNotes = stringPtr(notes)
	hall.IsActive = active != 0
	hall.IsMaintenance = maintenance != 0
	if hall.Equipment, err = decodeList(equipment); err != nil {
		return persistence.Hall{}, err
	}
	if hall.Amenities, err = decodeList(amenities); err != nil {
		return persistence.Hall{}, err
	}
	if hall.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Hall{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if hall.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Hall{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return hall, nil
}
