package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/ports"
)

// Login failures surfaced to the HTTP layer.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrUpstreamThrottled  = errors.New("too many login attempts")
)

// Account defaults.
const (
	DefaultSessionTTL      = 24 * time.Hour
	DefaultFailedLogins    = 10
	DefaultFailedLoginSpan = 15 * time.Minute
	maxTrackedEmails       = 10000
)

// AccountConfig tunes AccountService.
type AccountConfig struct {
	DefaultTTL      time.Duration
	FailedLogins    int // failures allowed per FailedLoginSpan and email
	FailedLoginSpan time.Duration
	Logger          *slog.Logger
	Clock           func() time.Time
}

// AccountServiceOptions groups dependencies for AccountService.
type AccountServiceOptions struct {
	Users    ports.CredentialStore // Required
	Sessions ports.SessionStore    // Required
	Config   AccountConfig
}

// AccountService verifies passwords and owns remote sessions.
type AccountService struct {
	users    ports.CredentialStore
	sessions ports.SessionStore
	cfg      AccountConfig
	logger   *slog.Logger

	mu       sync.Mutex
	failures map[string]*rate.Limiter
}

var _ ports.AccountService = (*AccountService)(nil)

// NewAccountService constructs an AccountService.
func NewAccountService(opts AccountServiceOptions) *AccountService {
	if opts.Users == nil || opts.Sessions == nil {
		panic("service: AccountService requires Users and Sessions")
	}
	cfg := opts.Config
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultSessionTTL
	}
	if cfg.FailedLogins <= 0 {
		cfg.FailedLogins = DefaultFailedLogins
	}
	if cfg.FailedLoginSpan <= 0 {
		cfg.FailedLoginSpan = DefaultFailedLoginSpan
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:    opts.Users,
		sessions: opts.Sessions,
		cfg:      cfg,
		logger:   logger.With("component", "account_service"),
		failures: make(map[string]*rate.Limiter),
	}
}

// CreateEmailPasswordSession verifies credentials and opens a session.
func (s *AccountService) CreateEmailPasswordSession(
	ctx context.Context,
	in ports.CreateSessionInput,
) (domainauth.RemoteSession, error) {
	email := domainauth.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return domainauth.RemoteSession{}, ErrInvalidCredentials
	}
	if s.throttled(email) {
		return domainauth.RemoteSession{}, ErrUpstreamThrottled
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, domainauth.ErrUserNotFound):
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(in.Password))
		s.recordFailure(email)
		return domainauth.RemoteSession{}, ErrInvalidCredentials
	case err != nil:
		return domainauth.RemoteSession{}, fmt.Errorf("lookup user: %w", err)
	}

	if user.PasswordHash == "" || VerifyPassword(user.PasswordHash, in.Password) != nil {
		s.recordFailure(email)
		return domainauth.RemoteSession{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return domainauth.RemoteSession{}, ErrAccountInactive
	}

	return s.open(ctx, user.ID, in.TTL)
}

// CreateSessionForUser opens a session for a user authenticated elsewhere.
func (s *AccountService) CreateSessionForUser(
	ctx context.Context,
	userID string,
	ttl time.Duration,
) (domainauth.RemoteSession, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domainauth.RemoteSession{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return domainauth.RemoteSession{}, ErrAccountInactive
	}
	return s.open(ctx, user.ID, ttl)
}

// DeleteSession removes a session. Unknown ids are ignored.
func (s *AccountService) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, domainauth.ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// GetAccount returns the user owning the session when secret matches.
func (s *AccountService) GetAccount(ctx context.Context, sessionID, secret string) (domainauth.User, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("get session: %w", err)
	}
	if secret == "" || subtle.ConstantTimeCompare([]byte(sess.Secret), []byte(secret)) != 1 {
		return domainauth.User{}, domainauth.ErrSessionNotFound
	}
	if !sess.ExpiresAt.After(s.cfg.Clock()) {
		return domainauth.User{}, domainauth.ErrSessionNotFound
	}
	return s.users.GetUser(ctx, sess.UserID)
}

func (s *AccountService) open(ctx context.Context, userID string, ttl time.Duration) (domainauth.RemoteSession, error) {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	secret, err := newSecret()
	if err != nil {
		return domainauth.RemoteSession{}, err
	}
	now := s.cfg.Clock().UTC()
	sess := domainauth.RemoteSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Secret:    secret,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl).Truncate(time.Second),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return domainauth.RemoteSession{}, fmt.Errorf("save session: %w", err)
	}
	if err := s.users.TouchLastLogin(ctx, userID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login", "user_id", userID, "error", err)
	}
	return sess, nil
}

func (s *AccountService) limiterFor(email string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.failures[email]
	if !ok {
		if len(s.failures) >= maxTrackedEmails {
			s.pruneLocked()
		}
		every := s.cfg.FailedLoginSpan / time.Duration(s.cfg.FailedLogins)
		lim = rate.NewLimiter(rate.Every(every), s.cfg.FailedLogins)
		s.failures[email] = lim
	}
	return lim
}

// pruneLocked drops limiters that have fully recovered.
func (s *AccountService) pruneLocked() {
	now := s.cfg.Clock()
	for k, lim := range s.failures {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(s.failures, k)
		}
	}
}

func (s *AccountService) throttled(email string) bool {
	return s.limiterFor(email).TokensAt(s.cfg.Clock()) < 1
}

func (s *AccountService) recordFailure(email string) {
	s.limiterFor(email).AllowN(s.cfg.Clock(), 1)
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
