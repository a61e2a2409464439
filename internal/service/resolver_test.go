package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	portmocks "github.com/dernekportal/portal-api/internal/mocks"
	mocks "github.com/dernekportal/portal-api/internal/mocks/auth"
)

var resolverNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const resolverSecret = "s3cret"

// resolverSessions holds one live remote session per user id, keyed "sess-<userID>".
func resolverSessions(t *testing.T, userIDs ...string) *mocks.MemorySessionStore {
	t.Helper()
	sessions := mocks.NewMemorySessionStore()
	for _, id := range userIDs {
		require.NoError(t, sessions.Save(context.Background(), domainauth.RemoteSession{
			ID:        "sess-" + id,
			UserID:    id,
			Secret:    resolverSecret,
			CreatedAt: resolverNow.Add(-time.Hour),
			ExpiresAt: resolverNow.Add(time.Hour),
		}))
	}
	return sessions
}

func newTestResolver(store *mocks.MemoryUserStore, sessions *mocks.MemorySessionStore) *StoreResolver {
	clock := func() time.Time { return resolverNow }
	accounts := NewAccountService(AccountServiceOptions{
		Users:    store,
		Sessions: sessions,
		Config:   AccountConfig{Clock: clock},
	})
	return NewStoreResolver(StoreResolverOptions{Accounts: accounts, Clock: clock})
}

func validSession(userID string) *domainauth.Session {
	return &domainauth.Session{
		SessionID: "sess-" + userID,
		UserID:    userID,
		Secret:    resolverSecret,
		Expire:    resolverNow.Add(time.Hour).Format(time.RFC3339),
	}
}

func TestStoreResolver_ActiveUser(t *testing.T) {
	store := mocks.NewMemoryUserStore(domainauth.User{
		ID: "u1", Email: "manager@test.com", Name: "Manager", Role: "manager", IsActive: true,
		Labels: []string{"admin"},
	})
	r := newTestResolver(store, resolverSessions(t, "u1"))

	u, err := r.Resolve(context.Background(), validSession("u1"))
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, domainauth.RoleManager, u.Role)
	assert.Equal(t, []string{"admin"}, u.Labels)
	assert.Equal(t, domainauth.PermissionsFor(domainauth.RoleManager), u.Permissions)
	assert.False(t, u.HasPermission(domainauth.PermUsersCreate), "labels must not grant permissions")
	assert.Equal(t, 1, store.Reads())
}

func TestStoreResolver_DefaultsEmptyRoleToMember(t *testing.T) {
	store := mocks.NewMemoryUserStore(domainauth.User{ID: "u1", IsActive: true})
	u, err := newTestResolver(store, resolverSessions(t, "u1")).Resolve(context.Background(), validSession("u1"))
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, domainauth.RoleMember, u.Role)
	assert.NotEmpty(t, u.Permissions)

	body, err := json.Marshal(u)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"labels":[]`)
}

func TestStoreResolver_UnknownRoleGetsNoPermissions(t *testing.T) {
	store := mocks.NewMemoryUserStore(domainauth.User{ID: "u1", Role: "OWNER", IsActive: true})
	u, err := newTestResolver(store, resolverSessions(t, "u1")).Resolve(context.Background(), validSession("u1"))
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Empty(t, u.Permissions)
}

func TestStoreResolver_NoUser(t *testing.T) {
	store := mocks.NewMemoryUserStore(
		domainauth.User{ID: "inactive", Role: "ADMIN", IsActive: false},
		domainauth.User{ID: "admin", Role: "ADMIN", IsActive: true},
		domainauth.User{ID: "viewer", Role: "VIEWER", IsActive: true},
	)
	sessions := resolverSessions(t, "inactive", "ghost", "admin", "viewer")
	require.NoError(t, sessions.Save(context.Background(), domainauth.RemoteSession{
		ID: "sess-stale", UserID: "admin", Secret: resolverSecret, ExpiresAt: resolverNow.Add(-time.Minute),
	}))
	r := newTestResolver(store, sessions)

	withSecret := func(s *domainauth.Session, secret string) *domainauth.Session {
		s.Secret = secret
		return s
	}
	swapped := validSession("admin")
	swapped.SessionID = "sess-viewer"
	stale := validSession("admin")
	stale.SessionID = "sess-stale"

	tests := []struct {
		name      string
		session   *domainauth.Session
		wantReads int
	}{
		{"nil session", nil, 0},
		{"expired session", &domainauth.Session{SessionID: "s", UserID: "inactive", Expire: resolverNow.Add(-time.Second).Format(time.RFC3339)}, 0},
		{"unparseable expiry", &domainauth.Session{SessionID: "s", UserID: "inactive", Expire: "tomorrow"}, 0},
		{"no secret", withSecret(validSession("admin"), ""), 0},
		{"unknown session", &domainauth.Session{SessionID: "made-up", UserID: "admin", Secret: resolverSecret, Expire: resolverNow.Add(time.Hour).Format(time.RFC3339)}, 0},
		{"wrong secret", withSecret(validSession("admin"), "guess"), 0},
		{"server-side expiry", stale, 0},
		{"session owned by another user", swapped, 1},
		{"missing user", validSession("ghost"), 1},
		{"inactive user", validSession("inactive"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := store.Reads()
			u, err := r.Resolve(context.Background(), tt.session)
			require.NoError(t, err)
			assert.Nil(t, u)
			assert.Equal(t, tt.wantReads, store.Reads()-before)
		})
	}
}

func TestStoreResolver_RevokedSession(t *testing.T) {
	store := mocks.NewMemoryUserStore(domainauth.User{ID: "u1", Role: "ADMIN", IsActive: true})
	sessions := resolverSessions(t, "u1")
	r := newTestResolver(store, sessions)

	u, err := r.Resolve(context.Background(), validSession("u1"))
	require.NoError(t, err)
	require.NotNil(t, u)

	require.NoError(t, sessions.Delete(context.Background(), "sess-u1"))
	u, err = r.Resolve(context.Background(), validSession("u1"))
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestStoreResolver_InfrastructureFailure(t *testing.T) {
	store := mocks.NewMemoryUserStore()
	store.Err = errors.New("connection refused")

	u, err := newTestResolver(store, resolverSessions(t, "u1")).Resolve(context.Background(), validSession("u1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.Err)
	assert.Nil(t, u)
}

func TestStoreResolver_SessionStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	accounts := portmocks.NewMockAccountService(ctrl)
	boom := errors.New("redis: connection refused")
	accounts.EXPECT().GetAccount(gomock.Any(), "sess-u1", resolverSecret).Return(domainauth.User{}, boom)

	r := NewStoreResolver(StoreResolverOptions{Accounts: accounts, Clock: func() time.Time { return resolverNow }})
	u, err := r.Resolve(context.Background(), validSession("u1"))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, u)
}

func TestNewStoreResolver_RequiresAccounts(t *testing.T) {
	assert.Panics(t, func() { NewStoreResolver(StoreResolverOptions{}) })
}
