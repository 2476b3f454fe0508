package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/hall-booking/internal/persistence"
	"github.com/example/hall-booking/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style persistence tests.
type SQLiteHarness struct {
	Users         persistence.UserRepository
	Halls         persistence.HallRepository
	Bookings      persistence.BookingRepository
	Notifications persistence.NotificationRepository
	Settings      persistence.SettingsRepository
	Sessions      persistence.SessionRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dsn := "file:" + filepath.Join(tb.TempDir(), "hallbooking.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	storage, err := sqlite.Open(context.Background(), dsn, logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Users:         storage,
		Halls:         storage,
		Bookings:      storage,
		Notifications: storage,
		Settings:      storage,
		Sessions:      storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// Seed inserts users, halls and bookings in that order, failing the test on
// the first error.
func (h *SQLiteHarness) Seed(tb testing.TB, users []UserFixture, halls []HallFixture, bookings []BookingFixture) {
	tb.Helper()
	ctx := context.Background()
	for _, u := range users {
		if err := h.Users.CreateUser(ctx, u.Persistence()); err != nil {
			tb.Fatalf("failed to seed user %s: %v", u.ID, err)
		}
	}
	for _, hall := range halls {
		if err := h.Halls.CreateHall(ctx, hall.Persistence()); err != nil {
			tb.Fatalf("failed to seed hall %s: %v", hall.ID, err)
		}
	}
	for _, b := range bookings {
		if err := h.Bookings.CreateBooking(ctx, b.Persistence()); err != nil {
			tb.Fatalf("failed to seed booking %s: %v", b.ID, err)
		}
	}
}
