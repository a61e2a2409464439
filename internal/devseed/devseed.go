// Package devseed creates the well-known test accounts used in development and demos.
package devseed

import (
	"context"
	"fmt"
	"log/slog"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	apperrors "github.com/dernekportal/portal-api/internal/errors"
)

// UserCreator stores a new user. service.UserService satisfies it.
type UserCreator interface {
	Create(ctx context.Context, req domainauth.CreateUserRequest) (domainauth.User, error)
}

// TestUsers returns the seed accounts. Passwords are public; never seed them in production.
func TestUsers() []domainauth.CreateUserRequest {
	return []domainauth.CreateUserRequest{
		{Name: "Test Admin", Email: "admin@test.com", Password: "admin123", Role: domainauth.RoleAdmin},
		{Name: "Test Manager", Email: "manager@test.com", Password: "manager123", Role: domainauth.RoleManager},
		{Name: "Test Member", Email: "member@test.com", Password: "member123", Role: domainauth.RoleMember},
		{Name: "Test Viewer", Email: "viewer@test.com", Password: "viewer123", Role: domainauth.RoleViewer},
	}
}

// Run creates every test user, skipping the ones that already exist.
func Run(ctx context.Context, users UserCreator, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	failures := 0
	for _, req := range TestUsers() {
		created, err := createUser(ctx, users, req)
		switch {
		case err != nil:
			failures++
			logger.ErrorContext(ctx, "failed to seed user", "email", req.Email, "error", err)
		case !created:
			logger.InfoContext(ctx, "user already exists", "email", req.Email)
		default:
			logger.InfoContext(ctx, "seeded user", "email", req.Email, "role", req.Role)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func createUser(ctx context.Context, users UserCreator, req domainauth.CreateUserRequest) (bool, error) {
	if _, err := users.Create(ctx, req); err != nil {
		if apperrors.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
