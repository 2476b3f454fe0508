// Package config loads the service configuration from HALLBOOKING_*
// environment variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const prefix = "HALLBOOKING_"

// Config captures environment driven configuration values for the booking service.
type Config struct {
	HTTPPort      int
	SQLiteDSN     string
	SessionSecret string
	SessionTTL    time.Duration
	Location      *time.Location

	CompletionSchedule   string
	ReminderSchedule     string
	SessionPruneSchedule string

	BootstrapAdmin BootstrapAdmin

	ProfileRetryAttempts int
	ProfileRetryDelay    time.Duration

	LogLevel slog.Level
}

// BootstrapAdmin is the super_admin account ensured at startup. It is
// disabled when Email is empty.
type BootstrapAdmin struct {
	Name     string
	Email    string
	Password string
}

// Enabled reports whether a bootstrap account was configured.
func (b BootstrapAdmin) Enabled() bool { return b.Email != "" }

// LoadFile seeds the environment from the dotenv file at path, when it
// exists, and then calls Load. Variables already set in the process win.
func LoadFile(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return Load()
}

// Load parses configuration values from the current process environment.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:             8080,
		SQLiteDSN:            "file:hallbooking.db",
		SessionTTL:           24 * time.Hour,
		Location:             time.UTC,
		CompletionSchedule:   "*/5 * * * *",
		ReminderSchedule:     "* * * * *",
		SessionPruneSchedule: "0 3 * * *",
		ProfileRetryAttempts: 3,
		ProfileRetryDelay:    200 * time.Millisecond,
		LogLevel:             slog.LevelInfo,
	}

	var missing, invalid []string
	env := func(name string) string { return strings.TrimSpace(os.Getenv(prefix + name)) }
	bad := func(name string) { invalid = append(invalid, prefix+name) }

	if v := env("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			bad("HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if v := env("SQLITE_DSN"); v != "" {
		cfg.SQLiteDSN = v
	}

	if v := env("SESSION_SECRET"); v == "" {
		missing = append(missing, prefix+"SESSION_SECRET")
	} else if len(v) < 16 {
		bad("SESSION_SECRET")
	} else {
		cfg.SessionSecret = v
	}

	if v := env("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			bad("SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if v := env("TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			bad("TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	for name, dst := range map[string]*string{
		"COMPLETION_SCHEDULE":    &cfg.CompletionSchedule,
		"REMINDER_SCHEDULE":      &cfg.ReminderSchedule,
		"SESSION_PRUNE_SCHEDULE": &cfg.SessionPruneSchedule,
	} {
		v := env(name)
		if v == "" {
			continue
		}
		if _, err := cron.ParseStandard(v); err != nil {
			bad(name)
			continue
		}
		*dst = v
	}

	cfg.BootstrapAdmin = BootstrapAdmin{
		Name:     env("BOOTSTRAP_ADMIN_NAME"),
		Email:    strings.ToLower(env("BOOTSTRAP_ADMIN_EMAIL")),
		Password: os.Getenv(prefix + "BOOTSTRAP_ADMIN_PASSWORD"),
	}
	if cfg.BootstrapAdmin.Email != "" && len(cfg.BootstrapAdmin.Password) < 8 {
		bad("BOOTSTRAP_ADMIN_PASSWORD")
	}
	if cfg.BootstrapAdmin.Name == "" {
		cfg.BootstrapAdmin.Name = "Administrator"
	}

	if v := env("PROFILE_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10 {
			bad("PROFILE_RETRY_ATTEMPTS")
		} else {
			cfg.ProfileRetryAttempts = n
		}
	}

	if v := env("PROFILE_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			bad("PROFILE_RETRY_DELAY")
		} else {
			cfg.ProfileRetryDelay = d
		}
	}

	if v := env("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			bad("LOG_LEVEL")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
