package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/events"
)

// HallService orchestrates validation, authorization, and persistence for halls.
type HallService struct {
	halls       HallRepository
	bookings    BookingRepository
	publisher   EventPublisher
	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	logger      *slog.Logger
}

// NewHallService constructs a hall service with the provided dependencies.
func NewHallService(halls HallRepository, bookings BookingRepository, publisher EventPublisher, idGenerator func() string, now func() time.Time) *HallService {
	return NewHallServiceWithLogger(halls, bookings, publisher, idGenerator, now, nil, nil)
}

// NewHallServiceWithLogger constructs a hall service with a specified logger.
func NewHallServiceWithLogger(halls HallRepository, bookings BookingRepository, publisher EventPublisher, idGenerator func() string, now func() time.Time, location *time.Location, logger *slog.Logger) *HallService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.Local
	}
	return &HallService{
		halls:       halls,
		bookings:    bookings,
		publisher:   publisher,
		idGenerator: idGenerator,
		now:         now,
		location:    location,
		logger:      defaultLogger(logger),
	}
}

func (s *HallService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "HallService", operation, attrs...)
}

// CreateHall validates input and persists a new hall for administrators.
func (s *HallService) CreateHall(ctx context.Context, principal Principal, input HallInput) (hall Hall, err error) {
	if s == nil {
		err = fmt.Errorf("HallService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateHall",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create hall", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("hall_id", hall.ID).InfoContext(ctx, "hall created")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}
	if s.halls == nil {
		err = fmt.Errorf("hall repository not configured")
		return
	}

	vErr := validateHallInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	hall = Hall{
		ID:          s.idGenerator(),
		Name:        strings.TrimSpace(input.Name),
		Capacity:    input.Capacity,
		Location:    strings.TrimSpace(input.Location),
		Building:    normalizeOptionalString(input.Building),
		FloorNumber: input.FloorNumber,
		Equipment:   normalizeList(input.Equipment),
		Amenities:   normalizeList(input.Amenities),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.IsActive != nil {
		hall.IsActive = *input.IsActive
	}

	if err = s.halls.CreateHall(ctx, hall); err != nil {
		err = mapRepoError(err)
		hall = Hall{}
	}
	return
}

// UpdateHall replaces the editable fields of an existing hall. Maintenance
// state is changed through SetMaintenance only.
func (s *HallService) UpdateHall(ctx context.Context, principal Principal, hallID string, input HallInput) (hall Hall, err error) {
	if s == nil {
		err = fmt.Errorf("HallService is nil")
		return
	}
	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}
	if s.halls == nil {
		err = fmt.Errorf("hall repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateHall",
		"principal_id", principal.UserID,
		"hall_id", hallID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update hall", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "hall updated")
	}()

	var existing Hall
	existing, err = s.halls.GetHall(ctx, hallID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	vErr := validateHallInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := existing
	updated.Name = strings.TrimSpace(input.Name)
	updated.Capacity = input.Capacity
	updated.Location = strings.TrimSpace(input.Location)
	updated.Building = normalizeOptionalString(input.Building)
	updated.FloorNumber = input.FloorNumber
	updated.Equipment = normalizeList(input.Equipment)
	updated.Amenities = normalizeList(input.Amenities)
	if input.IsActive != nil {
		updated.IsActive = *input.IsActive
	}
	updated.UpdatedAt = s.now()

	if err = s.halls.UpdateHall(ctx, updated); err != nil {
		err = mapRepoError(err)
		return
	}
	hall = updated
	return
}

// SetMaintenance toggles the maintenance flag. Switching it on notifies the
// owners of pending and approved bookings from today on; those bookings are
// left for administrators to resolve.
func (s *HallService) SetMaintenance(ctx context.Context, principal Principal, hallID string, enabled bool, notes *string) (hall Hall, err error) {
	if s == nil {
		err = fmt.Errorf("HallService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetMaintenance",
		"principal_id", principal.UserID,
		"hall_id", hallID,
		"enabled", enabled,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change maintenance state", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "maintenance state changed")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}

	var existing Hall
	existing, err = s.halls.GetHall(ctx, hallID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	wasEnabled := existing.IsMaintenance
	existing.IsMaintenance = enabled
	existing.MaintenanceNotes = nil
	if enabled {
		existing.MaintenanceNotes = normalizeOptionalString(notes)
	}
	existing.UpdatedAt = s.now()

	if err = s.halls.UpdateHall(ctx, existing); err != nil {
		err = mapRepoError(err)
		return
	}
	hall = existing

	if !enabled || wasEnabled {
		return
	}

	var affected []Booking
	if s.bookings != nil {
		today := calendar.DateOf(s.now().In(s.location))
		affected, err = s.bookings.ListBookings(ctx, BookingQuery{HallID: hall.ID, Statuses: occupyingStatuses, From: &today})
		if err != nil {
			// The flag is already stored; a failed lookup only costs the alerts.
			logger.WarnContext(ctx, "failed to load affected bookings", "error", err)
			err = nil
			affected = nil
		}
	}
	publish(ctx, s.publisher, events.TopicHallMaintenance, hall.UpdatedAt, MaintenanceEvent{Hall: hall, Affected: affected})
	return
}

// GetHall returns one hall.
func (s *HallService) GetHall(ctx context.Context, hallID string) (Hall, error) {
	if s == nil {
		return Hall{}, fmt.Errorf("HallService is nil")
	}
	hall, err := s.halls.GetHall(ctx, hallID)
	if err != nil {
		return Hall{}, mapRepoError(err)
	}
	return hall, nil
}

// ListHalls returns the catalog sorted by name. Inactive halls are visible to
// administrators only.
func (s *HallService) ListHalls(ctx context.Context, principal Principal, includeInactive bool) (halls []Hall, err error) {
	if s == nil {
		err = fmt.Errorf("HallService is nil")
		return
	}
	if s.halls == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListHalls",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list halls", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(halls)).DebugContext(ctx, "halls listed")
	}()

	if !principal.HasRole(RoleAdmin) {
		includeInactive = false
	}

	var raw []Hall
	raw, err = s.halls.ListHalls(ctx, includeInactive)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	halls = make([]Hall, len(raw))
	copy(halls, raw)

	sort.Slice(halls, func(i, j int) bool {
		if strings.EqualFold(halls[i].Name, halls[j].Name) {
			return halls[i].ID < halls[j].ID
		}
		return strings.ToLower(halls[i].Name) < strings.ToLower(halls[j].Name)
	})
	return
}

func validateHallInput(input HallInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if strings.TrimSpace(input.Location) == "" {
		vErr.add("location", "location is required")
	}
	if input.Capacity <= 0 {
		vErr.add("capacity", "capacity must be positive")
	}
	if input.FloorNumber != nil && *input.FloorNumber < 0 {
		vErr.add("floor_number", "floor number cannot be negative")
	}

	return vErr
}
