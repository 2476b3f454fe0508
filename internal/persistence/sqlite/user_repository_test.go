package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/hall-booking/internal/persistence"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	dept := "Physics"
	user := persistence.User{
		ID:                 "user1",
		Name:               "  Test User ",
		Email:              "Test@Example.com",
		Department:         &dept,
		Role:               "faculty",
		IsActive:           true,
		RegistrationStatus: "pending",
		PasswordHash:       "hashed_password",
		CreatedAt:          testEpoch,
		UpdatedAt:          testEpoch,
	}
	if err := storage.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	retrieved, err := storage.GetUser(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if retrieved.Email != "test@example.com" {
		t.Errorf("Expected email 'test@example.com', got '%s'", retrieved.Email)
	}
	if retrieved.Name != "Test User" {
		t.Errorf("Expected trimmed name, got '%s'", retrieved.Name)
	}
	if retrieved.Department == nil || *retrieved.Department != "Physics" {
		t.Errorf("Expected department Physics, got %v", retrieved.Department)
	}
	if !retrieved.CreatedAt.Equal(testEpoch) {
		t.Errorf("Expected created_at %v, got %v", testEpoch, retrieved.CreatedAt)
	}

	byEmail, err := storage.GetUserByEmail(ctx, " TEST@example.COM ")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != "user1" {
		t.Errorf("Expected user1, got %s", byEmail.ID)
	}
}

func TestUserRepository_CreateUser_Duplicate(t *testing.T) {
	storage := setupStorage(t)
	seedUser(t, storage, "user1", "test@example.com", "faculty")

	err := storage.CreateUser(context.Background(), persistence.User{
		ID:                 "user2",
		Name:               "Other",
		Email:              "TEST@example.com",
		Role:               "faculty",
		RegistrationStatus: "pending",
		PasswordHash:       "hash",
	})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}
}

func TestUserRepository_CreateUser_UnknownRole(t *testing.T) {
	storage := setupStorage(t)

	err := storage.CreateUser(context.Background(), persistence.User{
		ID:                 "user1",
		Name:               "Someone",
		Email:              "someone@example.com",
		Role:               "janitor",
		RegistrationStatus: "pending",
		PasswordHash:       "hash",
	})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("Expected ErrConstraintViolation, got %v", err)
	}
}

func TestUserRepository_UpdateUser_KeepsPasswordHash(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()
	user := seedUser(t, storage, "user1", "test@example.com", "faculty")

	user.Role = "admin"
	user.PasswordHash = ""
	if err := storage.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	retrieved, err := storage.GetUser(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if retrieved.Role != "admin" {
		t.Errorf("Expected role admin, got %s", retrieved.Role)
	}
	if retrieved.PasswordHash != "hash" {
		t.Errorf("Expected stored hash to survive, got %q", retrieved.PasswordHash)
	}

	user.ID = "missing"
	if err := storage.UpdateUser(ctx, user); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_ListAndCount(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()
	seedUser(t, storage, "u1", "a@example.com", "faculty")
	seedUser(t, storage, "u2", "b@example.com", "admin")
	seedUser(t, storage, "u3", "c@example.com", "super_admin")

	role := "faculty"
	users, err := storage.ListUsers(ctx, persistence.UserFilter{Role: &role})
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 1 || users[0].ID != "u1" {
		t.Fatalf("Expected only u1, got %+v", users)
	}

	all, err := storage.ListUsers(ctx, persistence.UserFilter{})
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 users, got %d", len(all))
	}

	count, err := storage.CountUsersByRole(ctx, "super_admin")
	if err != nil {
		t.Fatalf("CountUsersByRole failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 super admin, got %d", count)
	}
}

func TestUserRepository_TouchLastLoginAndDelete(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()
	seedUser(t, storage, "user1", "test@example.com", "faculty")

	at := testEpoch.Add(2 * time.Hour)
	if err := storage.TouchLastLogin(ctx, "user1", at); err != nil {
		t.Fatalf("TouchLastLogin failed: %v", err)
	}
	retrieved, err := storage.GetUser(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if retrieved.LastLoginAt == nil || !retrieved.LastLoginAt.Equal(at) {
		t.Errorf("Expected last login %v, got %v", at, retrieved.LastLoginAt)
	}

	if err := storage.DeleteUser(ctx, "user1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if _, err := storage.GetUser(ctx, "user1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := storage.DeleteUser(ctx, "user1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestHallRepository_CRUD(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()
	hall := seedHall(t, storage, "h1", "Turing Hall")
	seedHall(t, storage, "h2", "Ada Hall")

	if err := storage.CreateHall(ctx, persistence.Hall{ID: "h3", Name: "turing hall", Capacity: 10, Location: "x", IsActive: true}); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate for case-insensitive name clash, got %v", err)
	}

	notes := "Projector repair"
	hall.IsMaintenance = true
	hall.MaintenanceNotes = &notes
	hall.IsActive = false
	if err := storage.UpdateHall(ctx, hall); err != nil {
		t.Fatalf("UpdateHall failed: %v", err)
	}

	retrieved, err := storage.GetHall(ctx, "h1")
	if err != nil {
		t.Fatalf("GetHall failed: %v", err)
	}
	if !retrieved.IsMaintenance || retrieved.MaintenanceNotes == nil || *retrieved.MaintenanceNotes != notes {
		t.Errorf("Expected maintenance flag with notes, got %+v", retrieved)
	}
	if len(retrieved.Equipment) != 2 || retrieved.Equipment[0] != "projector" {
		t.Errorf("Expected equipment list to round trip, got %v", retrieved.Equipment)
	}

	active, err := storage.ListHalls(ctx, false)
	if err != nil {
		t.Fatalf("ListHalls failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "h2" {
		t.Fatalf("Expected only active hall h2, got %+v", active)
	}

	all, err := storage.ListHalls(ctx, true)
	if err != nil {
		t.Fatalf("ListHalls failed: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Ada Hall" {
		t.Fatalf("Expected halls ordered by name, got %+v", all)
	}
}
