package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/example/hall-booking/internal/application"
	"github.com/example/hall-booking/internal/backoff"
	"github.com/example/hall-booking/internal/config"
	"github.com/example/hall-booking/internal/delivery"
	"github.com/example/hall-booking/internal/events"
	httptransport "github.com/example/hall-booking/internal/http"
	"github.com/example/hall-booking/internal/jobs"
	"github.com/example/hall-booking/internal/logging"
	"github.com/example/hall-booking/internal/notify"
	"github.com/example/hall-booking/internal/persistence/sqlite"
	"github.com/example/hall-booking/internal/token"
)

// streamBuffer is how many undelivered notifications a live subscriber may
// fall behind before it is dropped as lagged.
const streamBuffer = 64

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("hallbooking", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file seeding HALLBOOKING_* variables")
	port := flags.IntP("port", "p", 0, "listen port, overrides HALLBOOKING_HTTP_PORT")
	migrateOnly := flags.Bool("migrate-only", false, "apply database migrations and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFile(*envFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if *port > 0 {
		cfg.HTTPPort = *port
	}

	logger := logging.New(stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, time.Now)
	if err != nil {
		return err
	}
	defer a.Close()

	if *migrateOnly {
		logger.Info("migrations applied, exiting")
		return nil
	}
	return a.Serve(ctx)
}

// app owns every long-lived component of the service.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	storage *sqlite.Storage
	hub     *notify.Hub[application.Notification]
	runner  *jobs.Runner
	handler http.Handler
	cleanup []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, now func() time.Time) (*app, error) {
	storage, err := sqlite.Open(ctx, cfg.SQLiteDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, storage: storage}

	if err := storage.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	codec, err := token.NewCodec(cfg.SessionSecret, now)
	if err != nil {
		a.Close()
		return nil, err
	}

	users := newUserRepositoryAdapter(storage)
	sessions := newSessionRepositoryAdapter(storage)
	halls := newHallRepositoryAdapter(storage)
	bookings := newBookingRepositoryAdapter(storage)
	notifications := newNotificationRepositoryAdapter(storage)
	settings := newSettingsRepositoryAdapter(storage)

	bus := events.NewBus(logger)
	a.hub = notify.NewHub[application.Notification](streamBuffer)
	transport := delivery.NewLogTransport(logger)

	authService := application.NewAuthService(users, users, sessions, codec, application.AuthServiceConfig{
		IDGenerator: uuid.NewString,
		Now:         now,
		SessionTTL:  cfg.SessionTTL,
		Logger:      logger,
	})
	gate := application.NewIdentityGate(authService, users, backoff.Policy{
		Attempts: cfg.ProfileRetryAttempts,
		Initial:  cfg.ProfileRetryDelay,
		Max:      5 * cfg.ProfileRetryDelay,
		Factor:   2,
	}, logger)
	approvalService := application.NewApprovalServiceWithLogger(users, authService, bus, now, logger)
	hallService := application.NewHallServiceWithLogger(halls, bookings, bus, uuid.NewString, now, cfg.Location, logger)
	bookingService := application.NewBookingServiceWithLogger(bookings, halls, bus, uuid.NewString, now, cfg.Location, logger)
	notificationService := application.NewNotificationService(notifications, settings, users, bookings, application.NotificationServiceConfig{
		Hub:         a.hub,
		Push:        transport,
		Email:       transport,
		Publisher:   bus,
		IDGenerator: uuid.NewString,
		Now:         now,
		Location:    cfg.Location,
		Logger:      logger,
	})
	a.cleanup = append(a.cleanup,
		notificationService.Register(bus),
		authService.OnSessionChange(func(e application.SessionEvent) {
			logger.Debug("session changed", "kind", e.Kind, "user_id", e.UserID, "session_id", e.SessionID)
		}),
	)

	if cfg.BootstrapAdmin.Enabled() {
		admin := cfg.BootstrapAdmin
		if _, err := authService.EnsureSuperAdmin(ctx, admin.Name, admin.Email, admin.Password); err != nil {
			a.Close()
			return nil, fmt.Errorf("bootstrap super admin: %w", err)
		}
	}

	a.runner = jobs.NewRunner(cfg.Location, logger)
	for _, job := range []jobs.Job{
		{Name: "complete-elapsed", Schedule: cfg.CompletionSchedule, Run: bookingService.CompleteElapsed},
		{Name: "dispatch-reminders", Schedule: cfg.ReminderSchedule, Run: notificationService.DispatchReminders},
		{Name: "prune-sessions", Schedule: cfg.SessionPruneSchedule, Run: authService.PruneSessions},
	} {
		if err := a.runner.Add(job); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Gate:          gate,
		Auth:          httptransport.NewAuthHandler(authService, logger),
		Halls:         httptransport.NewHallHandler(hallService, logger),
		Bookings:      httptransport.NewBookingHandler(bookingService, logger),
		Users:         httptransport.NewUserHandler(approvalService, logger),
		Notifications: httptransport.NewNotificationHandler(notificationService, logger),
		Logger:        logger,
	})
	return a, nil
}

// Serve runs the HTTP server and the job runner until ctx is cancelled or
// either of them fails.
func (a *app) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second, // the SSE handler lifts it per connection
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("hall booking API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.runner.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		// open streams would otherwise hold Shutdown until its deadline
		a.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases resources in reverse order of acquisition. It is safe to call twice.
func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
	if a.hub != nil {
		a.hub.Close()
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Error("failed to close storage", "error", err)
		}
		a.storage = nil
	}
}
