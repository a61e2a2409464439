package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/ports"
)

// StoreResolverOptions groups dependencies for StoreResolver.
type StoreResolverOptions struct {
	Accounts ports.AccountService // Required
	Logger   *slog.Logger         // Optional
	Clock    func() time.Time
}

// StoreResolver resolves sessions by checking the remote session record and then
// reading the owning user.
type StoreResolver struct {
	accounts ports.AccountService
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.UserResolver = (*StoreResolver)(nil)

// NewStoreResolver constructs a StoreResolver.
func NewStoreResolver(opts StoreResolverOptions) *StoreResolver {
	if opts.Accounts == nil {
		panic("service: StoreResolver requires an AccountService")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &StoreResolver{accounts: opts.Accounts, logger: logger.With("component", "user_resolver"), now: now}
}

// Resolve returns the session's user with role-derived permissions.
// Unknown, revoked, forged and expired sessions yield (nil, nil), as do missing
// and inactive users.
func (r *StoreResolver) Resolve(ctx context.Context, session *domainauth.Session) (*domainauth.SessionUser, error) {
	if session == nil || session.SessionID == "" || session.UserID == "" || session.Secret == "" {
		return nil, nil
	}
	if session.IsExpired(r.now()) {
		return nil, nil
	}

	user, err := r.accounts.GetAccount(ctx, session.SessionID, session.Secret)
	if errors.Is(err, domainauth.ErrSessionNotFound) || errors.Is(err, domainauth.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "session lookup failed",
			"kind", domainauth.KindInfrastructureFailure,
			"user_id", session.UserID,
			"error", err,
		)
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if user.ID != session.UserID {
		r.logger.WarnContext(ctx, "session owner mismatch", "user_id", session.UserID)
		return nil, nil
	}
	if !user.IsActive {
		return nil, nil
	}

	return r.subjectFor(ctx, user), nil
}

func (r *StoreResolver) subjectFor(ctx context.Context, user domainauth.User) *domainauth.SessionUser {
	role := domainauth.DefaultRole
	if user.Role != "" {
		if parsed, ok := domainauth.ParseRole(user.Role); ok {
			role = parsed
		} else {
			role = domainauth.Role(user.Role)
		}
	}
	perms := domainauth.PermissionsFor(role)
	if len(perms) == 0 {
		r.logger.WarnContext(ctx, "stored role grants no permissions", "user_id", user.ID, "role", user.Role)
	}
	return &domainauth.SessionUser{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        role,
		Permissions: perms,
		IsActive:    user.IsActive,
		Labels:      append(make([]string, 0, len(user.Labels)), user.Labels...),
	}
}
