package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"HTTP_PORT",
	"SQLITE_DSN",
	"SESSION_SECRET",
	"SESSION_TTL",
	"TIMEZONE",
	"COMPLETION_SCHEDULE",
	"REMINDER_SCHEDULE",
	"SESSION_PRUNE_SCHEDULE",
	"BOOTSTRAP_ADMIN_NAME",
	"BOOTSTRAP_ADMIN_EMAIL",
	"BOOTSTRAP_ADMIN_PASSWORD",
	"PROFILE_RETRY_ATTEMPTS",
	"PROFILE_RETRY_DELAY",
	"LOG_LEVEL",
}

// clearEnv removes every HALLBOOKING_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(prefix+key, "")
		if err := os.Unsetenv(prefix + key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		const secret = "0123456789abcdef"
		t.Setenv("HALLBOOKING_SESSION_SECRET", secret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "file:hallbooking.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.SessionSecret != secret {
			t.Fatalf("expected session secret to be %q, got %q", secret, cfg.SessionSecret)
		}
		if cfg.SessionTTL != 24*time.Hour {
			t.Fatalf("expected default TTL 24h, got %s", cfg.SessionTTL)
		}
		if cfg.Location != time.UTC {
			t.Fatalf("expected UTC, got %s", cfg.Location)
		}
		if cfg.ReminderSchedule != "* * * * *" {
			t.Fatalf("unexpected reminder schedule %q", cfg.ReminderSchedule)
		}
		if cfg.BootstrapAdmin.Enabled() {
			t.Fatalf("expected bootstrap admin to be disabled")
		}
		if cfg.ProfileRetryAttempts != 3 || cfg.ProfileRetryDelay != 200*time.Millisecond {
			t.Fatalf("unexpected retry defaults: %d %s", cfg.ProfileRetryAttempts, cfg.ProfileRetryDelay)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Fatalf("expected info log level, got %s", cfg.LogLevel)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "missing required environment variables: HALLBOOKING_SESSION_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HALLBOOKING_SESSION_SECRET", "secret-value-long-enough")
		t.Setenv("HALLBOOKING_HTTP_PORT", "9090")
		t.Setenv("HALLBOOKING_SQLITE_DSN", "file:/tmp/halls.db")
		t.Setenv("HALLBOOKING_SESSION_TTL", "12h")
		t.Setenv("HALLBOOKING_TIMEZONE", "Asia/Tokyo")
		t.Setenv("HALLBOOKING_COMPLETION_SCHEDULE", "0 * * * *")
		t.Setenv("HALLBOOKING_PROFILE_RETRY_ATTEMPTS", "5")
		t.Setenv("HALLBOOKING_PROFILE_RETRY_DELAY", "1s")
		t.Setenv("HALLBOOKING_LOG_LEVEL", "debug")
		t.Setenv("HALLBOOKING_BOOTSTRAP_ADMIN_EMAIL", "Root@Example.edu")
		t.Setenv("HALLBOOKING_BOOTSTRAP_ADMIN_PASSWORD", "changeme123")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "file:/tmp/halls.db" {
			t.Fatalf("unexpected DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.SessionTTL != 12*time.Hour {
			t.Fatalf("expected session TTL 12h, got %s", cfg.SessionTTL)
		}
		if cfg.Location.String() != "Asia/Tokyo" {
			t.Fatalf("expected Asia/Tokyo, got %s", cfg.Location)
		}
		if cfg.CompletionSchedule != "0 * * * *" {
			t.Fatalf("unexpected completion schedule %q", cfg.CompletionSchedule)
		}
		if cfg.ProfileRetryAttempts != 5 || cfg.ProfileRetryDelay != time.Second {
			t.Fatalf("unexpected retry settings: %d %s", cfg.ProfileRetryAttempts, cfg.ProfileRetryDelay)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Fatalf("expected debug log level, got %s", cfg.LogLevel)
		}
		if !cfg.BootstrapAdmin.Enabled() || cfg.BootstrapAdmin.Email != "root@example.edu" {
			t.Fatalf("unexpected bootstrap admin: %+v", cfg.BootstrapAdmin)
		}
		if cfg.BootstrapAdmin.Name != "Administrator" {
			t.Fatalf("expected default bootstrap name, got %q", cfg.BootstrapAdmin.Name)
		}
	})

	t.Run("reports every invalid variable in sorted order", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HALLBOOKING_SESSION_SECRET", "short")
		t.Setenv("HALLBOOKING_HTTP_PORT", "70000")
		t.Setenv("HALLBOOKING_REMINDER_SCHEDULE", "every minute")
		t.Setenv("HALLBOOKING_PROFILE_RETRY_ATTEMPTS", "0")
		t.Setenv("HALLBOOKING_BOOTSTRAP_ADMIN_EMAIL", "root@example.edu")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected validation error")
		}
		expected := "invalid environment variables: " +
			"HALLBOOKING_BOOTSTRAP_ADMIN_PASSWORD, HALLBOOKING_HTTP_PORT, " +
			"HALLBOOKING_PROFILE_RETRY_ATTEMPTS, HALLBOOKING_REMINDER_SCHEDULE, " +
			"HALLBOOKING_SESSION_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("seeds unset variables from the file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), ".env")
		content := "HALLBOOKING_SESSION_SECRET=from-dotenv-file-secret\nHALLBOOKING_HTTP_PORT=7000\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Setenv("HALLBOOKING_HTTP_PORT", "7100")

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile returned error: %v", err)
		}
		if cfg.SessionSecret != "from-dotenv-file-secret" {
			t.Fatalf("expected secret from file, got %q", cfg.SessionSecret)
		}
		if cfg.HTTPPort != 7100 {
			t.Fatalf("expected process environment to win, got %d", cfg.HTTPPort)
		}
	})

	t.Run("ignores a missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HALLBOOKING_SESSION_SECRET", "0123456789abcdef")

		if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
			t.Fatalf("expected missing file to be ignored, got %v", err)
		}
	})
}
