package service

import (
	"context"
	"errors"
	"fmt"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/ports"
)

// ErrSSODisabled is returned by the SSO flow when no provider is configured.
var ErrSSODisabled = errors.New("single sign-on is not enabled")

// UserProvisioner creates or refreshes SSO users.
type UserProvisioner interface {
	UpsertByEmail(ctx context.Context, req domainauth.UpsertUserRequest) (domainauth.User, error)
}

// SSOOptions wires the optional single sign-on flow.
type SSOOptions struct {
	Provider ports.AuthProvider
	Users    UserProvisioner
	Roles    ports.RoleMapper
	// SyncRoles overwrites stored roles of existing users with the mapped role.
	SyncRoles bool
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an SSO flow.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.sso == nil {
		return nil, ErrSSODisabled
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	authURL, state, nonce, err := s.sso.Provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing an SSO flow.
type CompleteLoginInput struct {
	Code       string
	State      string
	Nonce      string
	RememberMe bool
}

// CompleteLogin exchanges the code, provisions the user with the mapped role, and
// opens a session exactly like password login.
func (s *AuthService) CompleteLogin(ctx context.Context, in CompleteLoginInput) (*LoginResult, error) {
	if s.sso == nil {
		return nil, ErrSSODisabled
	}
	switch {
	case in.Code == "":
		return nil, errors.New("authorization code is required")
	case in.State == "":
		return nil, errors.New("state parameter is required")
	case in.Nonce == "":
		return nil, errors.New("nonce parameter is required")
	}

	identity, err := s.sso.Provider.Exchange(ctx, ports.ExchangeInput{Code: in.Code, State: in.State, Nonce: in.Nonce})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	role := domainauth.DefaultRole
	if s.sso.Roles != nil {
		role = s.sso.Roles.Map(identity.Groups)
	}
	name := identity.Name()
	if name == "" {
		name = identity.Email
	}
	user, err := s.sso.Users.UpsertByEmail(ctx, domainauth.UpsertUserRequest{
		Email:    identity.Email,
		Name:     name,
		Role:     role,
		Labels:   identity.Groups,
		SyncRole: s.sso.SyncRoles,
	})
	if err != nil {
		return nil, fmt.Errorf("provision user: %w", err)
	}

	ttl := s.cfg.SessionTTL
	if in.RememberMe {
		ttl = s.cfg.RememberTTL
	}
	remote, err := s.accounts.CreateSessionForUser(ctx, user.ID, ttl)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, remote, ttl)
}

// SSOEnabled reports whether the SSO flow is wired.
func (s *AuthService) SSOEnabled() bool { return s.sso != nil }
