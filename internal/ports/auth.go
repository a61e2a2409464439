// Package ports defines the interfaces between the auth services and their adapters.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.
package ports

import (
	"context"
	"time"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
)

// UserStore is the point-read view of the external user store.
type UserStore interface {
	// GetUser returns the user with id, or an error matching auth.ErrUserNotFound.
	GetUser(ctx context.Context, id string) (domainauth.User, error)
}

// UserResolver turns a session into an authorization subject.
// It returns (nil, nil) when there is no usable user and an error only when the lookup
// itself failed.
type UserResolver interface {
	Resolve(ctx context.Context, session *domainauth.Session) (*domainauth.SessionUser, error)
}

// AccountService is the account/session collaborator consumed by login and logout.
type AccountService interface {
	// CreateEmailPasswordSession verifies credentials and opens a remote session.
	CreateEmailPasswordSession(ctx context.Context, in CreateSessionInput) (domainauth.RemoteSession, error)
	// CreateSessionForUser opens a remote session for an already authenticated user (SSO).
	CreateSessionForUser(ctx context.Context, userID string, ttl time.Duration) (domainauth.RemoteSession, error)
	// DeleteSession invalidates a remote session. Unknown ids are not an error.
	DeleteSession(ctx context.Context, sessionID string) error
	// GetAccount returns the user owning the remote session authenticated by secret.
	GetAccount(ctx context.Context, sessionID, secret string) (domainauth.User, error)
}

// CreateSessionInput groups login credentials.
type CreateSessionInput struct {
	Email    string
	Password string
	TTL      time.Duration
}

// SessionStore persists remote sessions for the account service.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.RemoteSession) error
	Get(ctx context.Context, id string) (domainauth.RemoteSession, error)
	Delete(ctx context.Context, id string) error
}

// CredentialStore is the account-side view of the user store.
type CredentialStore interface {
	UserStore
	GetUserByEmail(ctx context.Context, email string) (domainauth.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// BeginInput carries inputs for initiating an SSO flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// AuthProvider initiates and completes an SSO flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// RoleMapper maps provider groups or account labels to an application role.
type RoleMapper interface {
	Map(labels []string) domainauth.Role
}

// SessionRevoker removes every remote session of a user, e.g. on deactivation.
type SessionRevoker interface {
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}

// UserDirectory is the administrative view of the user store.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (domainauth.User, error)
	List(ctx context.Context, opts domainauth.ListUsersOptions) ([]domainauth.User, error)
	Create(ctx context.Context, req domainauth.CreateUserRequest) (domainauth.User, error)
	Update(ctx context.Context, id string, req domainauth.UpdateUserRequest) (domainauth.User, error)
	UpsertByEmail(ctx context.Context, req domainauth.UpsertUserRequest) (domainauth.User, error)
}
