package service

import (
	"context"
	"fmt"
	"log/slog"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/ports"
)

// Listing bounds.
const (
	DefaultUserListLimit = 50
	MaxUserListLimit     = 200
)

// UserServiceOptions groups dependencies for UserService.
type UserServiceOptions struct {
	Users   ports.UserDirectory  // Required
	Revoker ports.SessionRevoker // Optional: revokes sessions of deactivated users
	Logger  *slog.Logger
}

// UserService implements user administration.
type UserService struct {
	users   ports.UserDirectory
	revoker ports.SessionRevoker
	logger  *slog.Logger
}

// NewUserService constructs a UserService.
func NewUserService(opts UserServiceOptions) *UserService {
	if opts.Users == nil {
		panic("service: UserService requires a UserDirectory")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{users: opts.Users, revoker: opts.Revoker, logger: logger.With("component", "user_service")}
}

// List returns a page of users.
func (s *UserService) List(ctx context.Context, opts domainauth.ListUsersOptions) ([]domainauth.User, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultUserListLimit
	}
	if opts.Limit > MaxUserListLimit {
		opts.Limit = MaxUserListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.users.List(ctx, opts)
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id string) (domainauth.User, error) {
	return s.users.GetUser(ctx, id)
}

// Create validates the request, hashes the password, and stores the user.
func (s *UserService) Create(ctx context.Context, req domainauth.CreateUserRequest) (domainauth.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return domainauth.User{}, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("hash password: %w", err)
	}
	req.PasswordHash = hash
	req.Password = ""

	user, err := s.users.Create(ctx, req)
	if err != nil {
		return domainauth.User{}, err
	}
	s.logger.InfoContext(ctx, "user created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Update patches a user. Deactivating a user revokes all their sessions.
func (s *UserService) Update(ctx context.Context, id string, req domainauth.UpdateUserRequest) (domainauth.User, error) {
	if err := req.Validate(); err != nil {
		return domainauth.User{}, err
	}
	user, err := s.users.Update(ctx, id, req)
	if err != nil {
		return domainauth.User{}, err
	}
	if req.IsActive != nil && !*req.IsActive && s.revoker != nil {
		n, revokeErr := s.revoker.DeleteAllForUser(ctx, id)
		if revokeErr != nil {
			s.logger.WarnContext(ctx, "failed to revoke sessions", "user_id", id, "error", revokeErr)
		} else {
			s.logger.InfoContext(ctx, "sessions revoked", "user_id", id, "count", n)
		}
	}
	return user, nil
}
