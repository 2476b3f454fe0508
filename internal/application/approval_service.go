package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/hall-booking/internal/events"
)

// SessionRevoker ends every live session of a user. *AuthService satisfies it.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string) (int, error)
}

// ApprovalService handles account approval and user administration.
type ApprovalService struct {
	users     UserRepository
	sessions  SessionRevoker
	publisher EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewApprovalService wires dependencies for the approval workflow.
func NewApprovalService(users UserRepository, sessions SessionRevoker, publisher EventPublisher, now func() time.Time) *ApprovalService {
	return NewApprovalServiceWithLogger(users, sessions, publisher, now, nil)
}

// NewApprovalServiceWithLogger wires dependencies with a specified logger.
func NewApprovalServiceWithLogger(users UserRepository, sessions SessionRevoker, publisher EventPublisher, now func() time.Time, logger *slog.Logger) *ApprovalService {
	if now == nil {
		now = time.Now
	}
	return &ApprovalService{users: users, sessions: sessions, publisher: publisher, now: now, logger: defaultLogger(logger)}
}

func (s *ApprovalService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ApprovalService", operation, attrs...)
}

// ListPendingApprovals returns active faculty awaiting a decision, newest first.
func (s *ApprovalService) ListPendingApprovals(ctx context.Context, principal Principal) (users []User, err error) {
	if s == nil {
		err = fmt.Errorf("ApprovalService is nil")
		return
	}
	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}

	role := RoleFaculty
	status := RegistrationPending
	active := true
	users, err = s.users.ListUsers(ctx, UserFilter{Role: &role, RegistrationStatus: &status, IsActive: &active})
	if err != nil {
		err = mapRepoError(err)
		s.loggerWith(ctx, "ListPendingApprovals", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list pending users", "error", err, "error_kind", ErrorKind(err))
		return
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return
}

// ListUsers returns accounts matching filter for administrators, ordered by email.
func (s *ApprovalService) ListUsers(ctx context.Context, principal Principal, filter UserFilter) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("ApprovalService is nil")
	}
	if err := requireRole(principal, RoleAdmin); err != nil {
		return nil, err
	}

	users, err := s.users.ListUsers(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}

	out := make([]User, len(users))
	copy(out, users)
	sort.Slice(out, func(i, j int) bool {
		if strings.EqualFold(out[i].Email, out[j].Email) {
			return out[i].ID < out[j].ID
		}
		return strings.ToLower(out[i].Email) < strings.ToLower(out[j].Email)
	})
	return out, nil
}

// ApproveUser accepts a registration. Approving an approved account is a
// no-op; a rejected account cannot be approved.
func (s *ApprovalService) ApproveUser(ctx context.Context, principal Principal, email string) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("ApprovalService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ApproveUser", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to approve user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user approved")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}
	if user, err = s.userByEmail(ctx, email); err != nil {
		return
	}

	switch user.RegistrationStatus {
	case RegistrationApproved:
		return
	case RegistrationRejected:
		user = User{}
		err = fmt.Errorf("%w: registration was rejected", ErrInvalidTransition)
		return
	}

	user.RegistrationStatus = RegistrationApproved
	user.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, user); err != nil {
		err = mapRepoError(err)
		user = User{}
		return
	}

	publish(ctx, s.publisher, events.TopicUserApproved, user.UpdatedAt, UserEvent{User: user, ActorID: principal.UserID})
	return
}

// RejectUser declines a registration and deactivates the account.
func (s *ApprovalService) RejectUser(ctx context.Context, principal Principal, email, reason string) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("ApprovalService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RejectUser", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reject user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user rejected")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}
	if user, err = s.userByEmail(ctx, email); err != nil {
		return
	}
	if user.Role.AtLeast(RoleAdmin) {
		user = User{}
		err = ErrForbidden
		return
	}
	if user.RegistrationStatus == RegistrationRejected && !user.IsActive {
		return
	}

	user.RegistrationStatus = RegistrationRejected
	user.IsActive = false
	user.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, user); err != nil {
		err = mapRepoError(err)
		user = User{}
		return
	}
	s.revokeSessions(ctx, logger, user.ID)

	publish(ctx, s.publisher, events.TopicUserRejected, user.UpdatedAt, UserEvent{
		User: user, ActorID: principal.UserID, Reason: strings.TrimSpace(reason),
	})
	return
}

// ChangeUserRole assigns a new role. Granting or removing super_admin needs
// super_admin, and the last super_admin cannot be demoted.
func (s *ApprovalService) ChangeUserRole(ctx context.Context, principal Principal, userID string, role Role) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("ApprovalService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ChangeUserRole", "principal_id", principal.UserID, "user_id", userID, "role", string(role))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change role", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "role changed")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}
	if !role.Valid() {
		err = newValidationError("role", "role must be faculty, admin or super_admin")
		return
	}
	if user, err = s.userByID(ctx, userID); err != nil {
		return
	}

	if (role == RoleSuperAdmin || user.Role == RoleSuperAdmin) && !principal.HasRole(RoleSuperAdmin) {
		user = User{}
		err = fmt.Errorf("%w: only a super admin may grant or change the super_admin role", ErrForbidden)
		return
	}
	if user.Role == role {
		return
	}
	if user.Role == RoleSuperAdmin {
		var remaining int
		if remaining, err = s.users.CountUsersByRole(ctx, RoleSuperAdmin); err != nil {
			err = mapRepoError(err)
			user = User{}
			return
		}
		if remaining <= 1 {
			user = User{}
			err = fmt.Errorf("%w: cannot demote the only super admin", ErrForbidden)
			return
		}
	}

	user.Role = role
	if role.AtLeast(RoleAdmin) && user.RegistrationStatus == RegistrationPending {
		user.RegistrationStatus = RegistrationApproved
	}
	user.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, user); err != nil {
		err = mapRepoError(err)
		user = User{}
	}
	return
}

// ToggleActiveStatus activates or deactivates an account. Deactivation ends
// the user's sessions. Reactivating a rejected account reopens its registration.
func (s *ApprovalService) ToggleActiveStatus(ctx context.Context, principal Principal, userID string, active bool) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("ApprovalService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ToggleActiveStatus", "principal_id", principal.UserID, "user_id", userID, "active", active)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change active status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "active status changed")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}
	if user, err = s.userByID(ctx, userID); err != nil {
		return
	}
	if user.Role == RoleSuperAdmin && !principal.HasRole(RoleSuperAdmin) {
		user = User{}
		err = fmt.Errorf("%w: only a super admin may change a super admin account", ErrForbidden)
		return
	}
	if !active && user.ID == principal.UserID {
		user = User{}
		err = fmt.Errorf("%w: cannot deactivate yourself", ErrForbidden)
		return
	}
	if user.IsActive == active {
		return
	}

	user.IsActive = active
	if active && user.RegistrationStatus == RegistrationRejected {
		user.RegistrationStatus = RegistrationPending
	}
	user.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, user); err != nil {
		err = mapRepoError(err)
		user = User{}
		return
	}
	if !active {
		s.revokeSessions(ctx, logger, user.ID)
	}
	return
}

// DeleteUser removes an account. Super admins and the caller cannot be deleted.
func (s *ApprovalService) DeleteUser(ctx context.Context, principal Principal, userID string) (err error) {
	if s == nil {
		return fmt.Errorf("ApprovalService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteUser", "principal_id", principal.UserID, "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user deleted")
	}()

	if err = requireRole(principal, RoleAdmin); err != nil {
		return
	}
	if userID == principal.UserID {
		return fmt.Errorf("%w: cannot delete yourself", ErrForbidden)
	}

	var user User
	if user, err = s.userByID(ctx, userID); err != nil {
		return
	}
	if user.Role == RoleSuperAdmin {
		return fmt.Errorf("%w: super admins cannot be deleted", ErrForbidden)
	}

	s.revokeSessions(ctx, logger, user.ID)
	if err = s.users.DeleteUser(ctx, user.ID); err != nil {
		err = mapRepoError(err)
	}
	return
}

func (s *ApprovalService) userByEmail(ctx context.Context, email string) (User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, newValidationError("email", "email is required")
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return User{}, mapRepoError(err)
	}
	return user, nil
}

func (s *ApprovalService) userByID(ctx context.Context, id string) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, ErrNotFound
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return User{}, mapRepoError(err)
	}
	return user, nil
}

// revokeSessions is best effort; the gate rejects inactive accounts regardless.
func (s *ApprovalService) revokeSessions(ctx context.Context, logger *slog.Logger, userID string) {
	if s.sessions == nil {
		return
	}
	if _, err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		logger.WarnContext(ctx, "failed to revoke sessions", "error", err)
	}
}
