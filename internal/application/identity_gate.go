package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/hall-booking/internal/backoff"
)

// SessionResolver turns a bearer token into its live server-side session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (Session, error)
	RevokeUserSessions(ctx context.Context, userID string) (int, error)
}

// ProfileReader loads the account row behind a session.
type ProfileReader interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// IdentityGate resolves sessions into principals and enforces the
// activation and role gates in front of every domain operation.
type IdentityGate struct {
	sessions SessionResolver
	profiles ProfileReader
	retry    backoff.Policy
	logger   *slog.Logger
}

// NewIdentityGate constructs a gate. A zero retry policy falls back to backoff.Default.
func NewIdentityGate(sessions SessionResolver, profiles ProfileReader, retry backoff.Policy, logger *slog.Logger) *IdentityGate {
	if retry.Attempts == 0 {
		retry = backoff.Default()
	}
	return &IdentityGate{sessions: sessions, profiles: profiles, retry: retry, logger: defaultLogger(logger)}
}

func (g *IdentityGate) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, g.logger, "IdentityGate", operation, attrs...)
}

// Authorize resolves token and, when required is set, checks the role order.
func (g *IdentityGate) Authorize(ctx context.Context, token string, required *Role) (principal Principal, err error) {
	if g == nil {
		err = fmt.Errorf("IdentityGate is nil")
		return
	}
	if g.sessions == nil || g.profiles == nil {
		err = fmt.Errorf("identity gate not configured")
		return
	}

	logger := g.loggerWith(ctx, "Authorize", "token_provided", strings.TrimSpace(token) != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "authorization denied", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if strings.TrimSpace(token) == "" {
		err = ErrUnauthenticated
		return
	}

	var session Session
	session, err = g.sessions.ResolveSession(ctx, token)
	if err != nil {
		return
	}

	var user User
	err = g.retry.Retry(ctx, func(err error) bool {
		return errors.Is(err, ErrNotFound) || isTransient(err)
	}, func(ctx context.Context) error {
		var lookupErr error
		user, lookupErr = g.profiles.GetUser(ctx, session.UserID)
		return mapRepoError(lookupErr)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = ErrProfileNotReady
		}
		return
	}

	if !user.IsActive {
		if _, revokeErr := g.sessions.RevokeUserSessions(ctx, user.ID); revokeErr != nil {
			logger.ErrorContext(ctx, "failed to revoke sessions of deactivated account",
				"user_id", user.ID, "error", revokeErr, "error_kind", ErrorKind(revokeErr))
		}
		err = ErrAccountDeactivated
		return
	}

	if !user.Role.Valid() {
		err = fmt.Errorf("%w: role %q", ErrUnknown, user.Role)
		return
	}

	principal = Principal{
		UserID:    user.ID,
		SessionID: session.ID,
		Role:      user.Role,
		IsActive:  user.IsActive,
		Approved:  user.ApprovedByAdmin(),
	}

	if required != nil {
		err = requireRole(principal, *required)
		if err != nil {
			principal = Principal{}
		}
	}
	return
}

// requireRole fails with ErrInsufficientRole when p ranks below role.
func requireRole(p Principal, role Role) error {
	if !p.HasRole(role) {
		return ErrInsufficientRole
	}
	return nil
}

// requireApproved blocks faculty accounts an administrator has not accepted yet.
func requireApproved(p Principal) error {
	if p.HasRole(RoleAdmin) || p.Approved {
		return nil
	}
	return ErrAccountNotApproved
}

// RoleRef returns a pointer to role for Authorize's optional argument.
func RoleRef(role Role) *Role {
	return &role
}
