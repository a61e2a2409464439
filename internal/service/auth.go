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

// Session check outcomes.
var (
	ErrNoSession      = errors.New("no active session")
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")
)

// Default cookie lifetimes.
const (
	DefaultRememberTTL = 30 * 24 * time.Hour
	DefaultCSRFTTL     = 24 * time.Hour
)

// AuthConfig tunes AuthService.
type AuthConfig struct {
	SessionTTL  time.Duration // default 24h
	RememberTTL time.Duration // default 30d
	Logger      *slog.Logger
	Clock       func() time.Time
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Accounts ports.AccountService // Required
	Resolver ports.UserResolver   // Required
	SSO      *SSOOptions          // Optional; nil disables SSO
	Config   AuthConfig
}

// AuthService orchestrates login, logout and session checks.
type AuthService struct {
	accounts ports.AccountService
	resolver ports.UserResolver
	sso      *SSOOptions
	cfg      AuthConfig
	logger   *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Accounts == nil || opts.Resolver == nil {
		panic("service: AuthService requires Accounts and Resolver")
	}
	cfg := opts.Config
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = DefaultRememberTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		accounts: opts.Accounts,
		resolver: opts.Resolver,
		sso:      opts.SSO,
		cfg:      cfg,
		logger:   logger.With("component", "auth_service"),
	}
}

// LoginInput groups password login parameters.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
}

// LoginResult is everything the HTTP layer needs to set cookies and respond.
type LoginResult struct {
	Session   domainauth.Session
	User      *domainauth.SessionUser
	CSRFToken string
	MaxAge    time.Duration
}

// Login verifies credentials, opens a session, and resolves the session's user.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	ttl := s.cfg.SessionTTL
	if in.RememberMe {
		ttl = s.cfg.RememberTTL
	}

	remote, err := s.accounts.CreateEmailPasswordSession(ctx, ports.CreateSessionInput{
		Email:    in.Email,
		Password: in.Password,
		TTL:      ttl,
	})
	if err != nil {
		s.logger.InfoContext(ctx, "login rejected", "email", domainauth.MaskEmail(domainauth.NormalizeEmail(in.Email)), "error", err)
		return nil, err
	}
	return s.finish(ctx, remote, ttl)
}

// finish resolves the user for a freshly opened session and mints the CSRF token.
func (s *AuthService) finish(ctx context.Context, remote domainauth.RemoteSession, ttl time.Duration) (*LoginResult, error) {
	session := remote.Cookie()
	user, err := s.resolver.Resolve(ctx, &session)
	if err != nil {
		s.discard(ctx, remote.ID)
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if user == nil {
		s.discard(ctx, remote.ID)
		return nil, ErrAccountInactive
	}

	token, err := domainauth.NewCSRFToken()
	if err != nil {
		s.discard(ctx, remote.ID)
		return nil, err
	}
	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID, "role", user.Role)
	return &LoginResult{Session: session, User: user, CSRFToken: token, MaxAge: ttl}, nil
}

func (s *AuthService) discard(ctx context.Context, sessionID string) {
	if err := s.accounts.DeleteSession(ctx, sessionID); err != nil {
		s.logger.WarnContext(ctx, "failed to discard session", "error", err)
	}
}

// Logout deletes the remote session. A nil session is a no-op.
func (s *AuthService) Logout(ctx context.Context, session *domainauth.Session) error {
	if session == nil || session.SessionID == "" {
		return nil
	}
	if err := s.accounts.DeleteSession(ctx, session.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CheckSession decodes a cookie value and checks its expiry without touching any store.
func (s *AuthService) CheckSession(raw string) (*domainauth.Session, error) {
	if raw == "" {
		return nil, ErrNoSession
	}
	session := domainauth.DecodeSession(raw)
	if session == nil {
		return nil, ErrInvalidSession
	}
	if session.IsExpired(s.cfg.Clock()) {
		return session, ErrSessionExpired
	}
	return session, nil
}
