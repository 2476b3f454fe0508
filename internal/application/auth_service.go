package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/example/hall-booking/internal/token"
)

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// PasswordHasher derives a storable hash from a password.
type PasswordHasher func(password string) (string, error)

const minPasswordLength = 8

// AuthService is the in-process identity provider: registration, sign-in,
// sign-out, refresh and session resolution for the identity gate.
type AuthService struct {
	users          UserRepository
	credentials    CredentialStore
	sessions       SessionRepository
	tokens         TokenCodec
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	idGenerator    func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger

	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(SessionEvent)
}

// AuthServiceConfig groups the optional collaborators of AuthService.
type AuthServiceConfig struct {
	HashPassword   PasswordHasher
	VerifyPassword PasswordVerifier
	IDGenerator    func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(users UserRepository, credentials CredentialStore, sessions SessionRepository, tokens TokenCodec, cfg AuthServiceConfig) *AuthService {
	if cfg.HashPassword == nil {
		cfg.HashPassword = func(password string) (string, error) {
			return CreatePasswordHash(password, DefaultArgon2idParams)
		}
	}
	if cfg.VerifyPassword == nil {
		cfg.VerifyPassword = VerifyPassword
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = func() string { return "" }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &AuthService{
		users:          users,
		credentials:    credentials,
		sessions:       sessions,
		tokens:         tokens,
		hashPassword:   cfg.HashPassword,
		verifyPassword: cfg.VerifyPassword,
		idGenerator:    cfg.IDGenerator,
		now:            cfg.Now,
		sessionTTL:     cfg.SessionTTL,
		logger:         defaultLogger(cfg.Logger),
		listeners:      make(map[uint64]func(SessionEvent)),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// OnSessionChange registers fn for session lifecycle events and returns a
// function that removes it. Listeners run synchronously after the change.
func (s *AuthService) OnSessionChange(fn func(SessionEvent)) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *AuthService) emit(ctx context.Context, event SessionEvent) {
	s.mu.RLock()
	listeners := make([]func(SessionEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.loggerWith(ctx, "OnSessionChange").ErrorContext(ctx, "session listener panicked", "panic", r)
				}
			}()
			fn(event)
		}()
	}
}

// Register creates a pending faculty account.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	email := normalizeEmail(input.Email)
	logger := s.loggerWith(ctx, "Register", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "account registered")
	}()

	vErr := &ValidationError{}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		vErr.add("name", "name is required")
	}
	if !validEmail(email) {
		vErr.add("email", "a valid email address is required")
	}
	if len(input.Password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hashPassword(input.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	user = User{
		ID:                 s.idGenerator(),
		Name:               name,
		Email:              email,
		Phone:              normalizeOptionalString(input.Phone),
		EmployeeID:         normalizeOptionalString(input.EmployeeID),
		Department:         normalizeOptionalString(input.Department),
		Role:               RoleFaculty,
		IsActive:           true,
		RegistrationStatus: RegistrationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err = s.users.CreateUser(ctx, user, hash); err != nil {
		err = mapRepoError(err)
		user = User{}
		return
	}
	return
}

// SignIn validates credentials, opens a session and issues its bearer token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (result SignInResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil || s.sessions == nil || s.tokens == nil {
		err = fmt.Errorf("auth service not configured")
		return
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "SignIn", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sign-in failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID, "session_id", result.SessionID).InfoContext(ctx, "signed in")
	}()

	if email == "" || password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}
	if verifyErr := s.verifyPassword(creds.PasswordHash, password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}
	if !creds.User.IsActive {
		err = ErrAccountDeactivated
		return
	}

	now := s.now()
	session := Session{
		ID:        s.idGenerator(),
		UserID:    creds.User.ID,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.sessions.CreateSession(ctx, session); err != nil {
		err = mapRepoError(err)
		return
	}

	var raw string
	raw, err = s.tokens.Issue(session.ID, session.UserID, string(creds.User.Role), session.ExpiresAt)
	if err != nil {
		err = fmt.Errorf("issue token: %w", err)
		return
	}

	s.touchLastLogin(ctx, creds.User.ID, now)
	creds.User.LastLoginAt = &now

	result = SignInResult{User: creds.User, Token: raw, SessionID: session.ID, ExpiresAt: session.ExpiresAt}
	s.emit(ctx, SessionEvent{Kind: SessionSignedIn, UserID: session.UserID, SessionID: session.ID, At: now})
	return
}

// touchLastLogin is a post-commit hook; its failure never fails sign-in.
func (s *AuthService) touchLastLogin(ctx context.Context, userID string, at time.Time) {
	if s.users == nil {
		return
	}
	if err := s.users.TouchLastLogin(ctx, userID, at); err != nil {
		s.loggerWith(ctx, "SignIn", "user_id", userID).WarnContext(ctx, "failed to record last login",
			"error", err, "error_kind", ErrorKind(mapRepoError(err)))
	}
}

// SignOut revokes the session behind raw. Expired tokens are accepted so
// their session can still be closed.
func (s *AuthService) SignOut(ctx context.Context, raw string) (err error) {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil || s.tokens == nil {
		return fmt.Errorf("auth service not configured")
	}

	logger := s.loggerWith(ctx, "SignOut")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sign-out failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	claims, parseErr := s.tokens.ParseIgnoringExpiry(strings.TrimSpace(raw))
	if parseErr != nil {
		err = ErrUnauthenticated
		return
	}

	now := s.now()
	if err = s.sessions.RevokeSession(ctx, claims.SessionID, now); err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrNotFound) {
			err = ErrUnauthenticated
		}
		return
	}

	logger.With("session_id", claims.SessionID, "user_id", claims.Subject).InfoContext(ctx, "signed out")
	s.emit(ctx, SessionEvent{Kind: SessionSignedOut, UserID: claims.Subject, SessionID: claims.SessionID, At: now})
	return nil
}

// Refresh extends a live session and issues a replacement token.
func (s *AuthService) Refresh(ctx context.Context, raw string) (result SignInResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Refresh")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_id", result.SessionID, "user_id", result.User.ID).InfoContext(ctx, "session refreshed")
	}()

	var session Session
	session, err = s.ResolveSession(ctx, raw)
	if err != nil {
		return
	}

	var user User
	user, err = s.users.GetUser(ctx, session.UserID)
	if err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrNotFound) {
			err = ErrUnauthenticated
		}
		return
	}
	if !user.IsActive {
		err = ErrAccountDeactivated
		return
	}

	now := s.now()
	session.ExpiresAt = now.Add(s.sessionTTL)
	session.UpdatedAt = now
	if err = s.sessions.UpdateSession(ctx, session); err != nil {
		err = mapRepoError(err)
		return
	}

	var issued string
	issued, err = s.tokens.Issue(session.ID, user.ID, string(user.Role), session.ExpiresAt)
	if err != nil {
		err = fmt.Errorf("issue token: %w", err)
		return
	}

	result = SignInResult{User: user, Token: issued, SessionID: session.ID, ExpiresAt: session.ExpiresAt}
	s.emit(ctx, SessionEvent{Kind: SessionRefreshed, UserID: user.ID, SessionID: session.ID, At: now})
	return
}

// ResolveSession verifies raw and returns its live session. Every failure
// other than a timeout surfaces as ErrUnauthenticated.
func (s *AuthService) ResolveSession(ctx context.Context, raw string) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil || s.tokens == nil {
		return Session{}, fmt.Errorf("auth service not configured")
	}

	claims, err := s.tokens.Parse(strings.TrimSpace(raw))
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) || errors.Is(err, token.ErrTokenInvalid) {
			return Session{}, ErrUnauthenticated
		}
		return Session{}, err
	}

	session, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthenticated
		}
		return Session{}, err
	}
	if session.UserID != claims.Subject {
		return Session{}, ErrUnauthenticated
	}
	if session.RevokedAt != nil {
		return Session{}, ErrUnauthenticated
	}
	if !session.ExpiresAt.After(s.now()) {
		return Session{}, ErrUnauthenticated
	}
	return session, nil
}

// CurrentUser returns the account of the authenticated principal.
func (s *AuthService) CurrentUser(ctx context.Context, principal Principal) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("AuthService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}
	user, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		return User{}, mapRepoError(err)
	}
	return user, nil
}

// RevokeUserSessions closes every live session of userID.
func (s *AuthService) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return 0, fmt.Errorf("session repository not configured")
	}
	now := s.now()
	revoked, err := s.sessions.RevokeUserSessions(ctx, userID, now)
	if err != nil {
		return 0, mapRepoError(err)
	}
	if revoked > 0 {
		s.loggerWith(ctx, "RevokeUserSessions", "user_id", userID).InfoContext(ctx, "sessions revoked", "count", revoked)
		s.emit(ctx, SessionEvent{Kind: SessionRevoked, UserID: userID, At: now})
	}
	return revoked, nil
}

// PruneSessions deletes sessions that expired before now.
func (s *AuthService) PruneSessions(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return 0, nil
	}
	removed, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, mapRepoError(err)
	}
	return removed, nil
}

// EnsureSuperAdmin creates or promotes the bootstrap account so a fresh
// deployment always has one super_admin.
func (s *AuthService) EnsureSuperAdmin(ctx context.Context, name, email, password string) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "EnsureSuperAdmin", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "bootstrap account failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "bootstrap account ready")
	}()

	user, err = s.users.GetUserByEmail(ctx, email)
	switch mapped := mapRepoError(err); {
	case mapped == nil:
		if user.Role == RoleSuperAdmin && user.IsActive && user.ApprovedByAdmin() {
			return
		}
		user.Role = RoleSuperAdmin
		user.IsActive = true
		user.RegistrationStatus = RegistrationApproved
		user.UpdatedAt = s.now()
		err = mapRepoError(s.users.UpdateUser(ctx, user))
		return
	case errors.Is(mapped, ErrNotFound):
	default:
		err = mapped
		return
	}

	user, err = s.Register(ctx, RegisterInput{Name: name, Email: email, Password: password})
	if err != nil {
		return
	}
	user.Role = RoleSuperAdmin
	user.RegistrationStatus = RegistrationApproved
	user.UpdatedAt = s.now()
	err = mapRepoError(s.users.UpdateUser(ctx, user))
	return
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
