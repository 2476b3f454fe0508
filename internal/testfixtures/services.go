package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/hall-booking/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = time.UTC
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation sets the zone "today" is evaluated in.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// BookingServiceDeps captures dependencies for constructing a booking service.
type BookingServiceDeps struct {
	Bookings  application.BookingRepository
	Halls     application.HallRepository
	Publisher application.EventPublisher
	Logger    *slog.Logger
}

// NewBookingService builds a booking service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewBookingService(deps BookingServiceDeps) *application.BookingService {
	return application.NewBookingServiceWithLogger(
		deps.Bookings,
		deps.Halls,
		deps.Publisher,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Location,
		deps.Logger,
	)
}

// HallServiceDeps captures dependencies for constructing a hall service.
type HallServiceDeps struct {
	Halls     application.HallRepository
	Bookings  application.BookingRepository
	Publisher application.EventPublisher
	Logger    *slog.Logger
}

// NewHallService builds a hall service using the supplied dependencies.
func (f *ServiceFactory) NewHallService(deps HallServiceDeps) *application.HallService {
	return application.NewHallServiceWithLogger(
		deps.Halls,
		deps.Bookings,
		deps.Publisher,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Location,
		deps.Logger,
	)
}

// ApprovalServiceDeps captures dependencies for constructing an approval service.
type ApprovalServiceDeps struct {
	Users     application.UserRepository
	Sessions  application.SessionRevoker
	Publisher application.EventPublisher
	Logger    *slog.Logger
}

// NewApprovalService builds an approval service using the supplied dependencies.
func (f *ServiceFactory) NewApprovalService(deps ApprovalServiceDeps) *application.ApprovalService {
	return application.NewApprovalServiceWithLogger(
		deps.Users,
		deps.Sessions,
		deps.Publisher,
		f.Clock.NowFunc(),
		deps.Logger,
	)
}

// AuthServiceDeps captures dependencies for constructing an auth service.
type AuthServiceDeps struct {
	Users          application.UserRepository
	Credentials    application.CredentialStore
	Sessions       application.SessionRepository
	Tokens         application.TokenCodec
	HashPassword   application.PasswordHasher
	VerifyPassword application.PasswordVerifier
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// NewAuthService builds an auth service using the supplied dependencies.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) *application.AuthService {
	return application.NewAuthService(deps.Users, deps.Credentials, deps.Sessions, deps.Tokens, application.AuthServiceConfig{
		HashPassword:   deps.HashPassword,
		VerifyPassword: deps.VerifyPassword,
		IDGenerator:    f.IDGenerator.NextFunc(),
		Now:            f.Clock.NowFunc(),
		SessionTTL:     deps.SessionTTL,
		Logger:         deps.Logger,
	})
}
