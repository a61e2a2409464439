package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/mocks"
	authmocks "github.com/dernekportal/portal-api/internal/mocks/auth"
	"github.com/dernekportal/portal-api/internal/ports"
)

var authNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newAuthService(t *testing.T, sso *SSOOptions) (*mocks.MockAccountService, *mocks.MockUserResolver, *AuthService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	accounts := mocks.NewMockAccountService(ctrl)
	resolver := mocks.NewMockUserResolver(ctrl)
	svc := NewAuthService(AuthServiceOptions{
		Accounts: accounts,
		Resolver: resolver,
		SSO:      sso,
		Config:   AuthConfig{Clock: func() time.Time { return authNow }},
	})
	return accounts, resolver, svc
}

func remoteFor(userID string, ttl time.Duration) domainauth.RemoteSession {
	return domainauth.RemoteSession{ID: "sess-1", UserID: userID, Secret: "secret", CreatedAt: authNow, ExpiresAt: authNow.Add(ttl)}
}

func TestAuthService_Login(t *testing.T) {
	tests := []struct {
		name       string
		rememberMe bool
		wantTTL    time.Duration
	}{
		{"default lifetime", false, DefaultSessionTTL},
		{"remember me", true, DefaultRememberTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts, resolver, svc := newAuthService(t, nil)
			admin := subjectFor(domainauth.RoleAdmin)

			accounts.EXPECT().
				CreateEmailPasswordSession(gomock.Any(), ports.CreateSessionInput{Email: "admin@test.com", Password: "admin123", TTL: tt.wantTTL}).
				Return(remoteFor(admin.ID, tt.wantTTL), nil)
			resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, s *domainauth.Session) (*domainauth.SessionUser, error) {
					assert.Equal(t, admin.ID, s.UserID)
					assert.Equal(t, "secret", s.Secret)
					return admin, nil
				})

			res, err := svc.Login(context.Background(), LoginInput{Email: "admin@test.com", Password: "admin123", RememberMe: tt.rememberMe})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTTL, res.MaxAge)
			assert.Equal(t, "sess-1", res.Session.SessionID)
			assert.Equal(t, authNow.Add(tt.wantTTL).Format(time.RFC3339), res.Session.Expire)
			assert.Len(t, res.CSRFToken, 43)
			assert.True(t, res.User.HasPermission(domainauth.PermUsersCreate))
		})
	}
}

func TestAuthService_Login_AccountErrorsPassThrough(t *testing.T) {
	for _, want := range []error{ErrInvalidCredentials, ErrUpstreamThrottled, ErrAccountInactive} {
		accounts, _, svc := newAuthService(t, nil)
		accounts.EXPECT().CreateEmailPasswordSession(gomock.Any(), gomock.Any()).Return(domainauth.RemoteSession{}, want)
		_, err := svc.Login(context.Background(), LoginInput{Email: "a@test.com", Password: "x"})
		assert.ErrorIs(t, err, want)
	}
}

func TestAuthService_Login_UnresolvableUserDiscardsSession(t *testing.T) {
	accounts, resolver, svc := newAuthService(t, nil)
	accounts.EXPECT().CreateEmailPasswordSession(gomock.Any(), gomock.Any()).Return(remoteFor("u1", time.Hour), nil)
	resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(nil, nil)
	accounts.EXPECT().DeleteSession(gomock.Any(), "sess-1").Return(nil)

	_, err := svc.Login(context.Background(), LoginInput{Email: "a@test.com", Password: "x"})
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestAuthService_Login_ResolverFailure(t *testing.T) {
	accounts, resolver, svc := newAuthService(t, nil)
	accounts.EXPECT().CreateEmailPasswordSession(gomock.Any(), gomock.Any()).Return(remoteFor("u1", time.Hour), nil)
	boom := errors.New("store unavailable")
	resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(nil, boom)
	accounts.EXPECT().DeleteSession(gomock.Any(), "sess-1").Return(errors.New("also down"))

	_, err := svc.Login(context.Background(), LoginInput{Email: "a@test.com", Password: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestAuthService_Logout(t *testing.T) {
	accounts, _, svc := newAuthService(t, nil)
	require.NoError(t, svc.Logout(context.Background(), nil))

	accounts.EXPECT().DeleteSession(gomock.Any(), "s1").Return(nil)
	require.NoError(t, svc.Logout(context.Background(), &domainauth.Session{SessionID: "s1", UserID: "u1"}))

	accounts.EXPECT().DeleteSession(gomock.Any(), "s2").Return(errors.New("unreachable"))
	require.Error(t, svc.Logout(context.Background(), &domainauth.Session{SessionID: "s2", UserID: "u1"}))
}

func TestAuthService_CheckSession(t *testing.T) {
	_, _, svc := newAuthService(t, nil)
	encode := func(s domainauth.Session) string {
		v, err := domainauth.EncodeSession(s)
		require.NoError(t, err)
		return v
	}

	_, err := svc.CheckSession("")
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = svc.CheckSession("%%%not-a-session")
	assert.ErrorIs(t, err, ErrInvalidSession)

	expired := encode(domainauth.Session{SessionID: "s", UserID: "u", Expire: authNow.Add(-time.Minute).Format(time.RFC3339)})
	s, err := svc.CheckSession(expired)
	assert.ErrorIs(t, err, ErrSessionExpired)
	require.NotNil(t, s)

	live := encode(domainauth.Session{SessionID: "s", UserID: "u", Expire: authNow.Add(time.Hour).Format(time.RFC3339)})
	s, err = svc.CheckSession(live)
	require.NoError(t, err)
	assert.Equal(t, "u", s.UserID)
}

type recordingProvisioner struct {
	got  domainauth.UpsertUserRequest
	user domainauth.User
	err  error
}

func (p *recordingProvisioner) UpsertByEmail(_ context.Context, req domainauth.UpsertUserRequest) (domainauth.User, error) {
	p.got = req
	return p.user, p.err
}

func TestAuthService_SSODisabled(t *testing.T) {
	_, _, svc := newAuthService(t, nil)
	assert.False(t, svc.SSOEnabled())
	_, err := svc.BeginLogin(context.Background(), "/")
	assert.ErrorIs(t, err, ErrSSODisabled)
	_, err = svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	assert.ErrorIs(t, err, ErrSSODisabled)
}

func TestAuthService_SSOFlow(t *testing.T) {
	provider := authmocks.NewMockAuthProvider()
	prov := &recordingProvisioner{user: domainauth.User{ID: "u-sso", Email: "mock.user@example.com", Role: "MANAGER", IsActive: true}}
	accounts, resolver, svc := newAuthService(t, &SSOOptions{
		Provider: provider,
		Users:    prov,
		Roles:    authmocks.StaticRoleMapper{},
	})
	ctx := context.Background()

	begin, err := svc.BeginLogin(ctx, "/dashboard")
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", begin.AuthURL)
	assert.Equal(t, "state-1", begin.State)

	_, err = svc.BeginLogin(ctx, "")
	require.Error(t, err)

	accounts.EXPECT().CreateSessionForUser(gomock.Any(), "u-sso", DefaultSessionTTL).Return(remoteFor("u-sso", DefaultSessionTTL), nil)
	resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(subjectFor(domainauth.RoleManager), nil)

	res, err := svc.CompleteLogin(ctx, CompleteLoginInput{Code: "code", State: begin.State, Nonce: begin.Nonce})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleManager, res.User.Role)
	assert.Equal(t, "mock.user@example.com", prov.got.Email)
	assert.Equal(t, "Mock User", prov.got.Name)
	assert.Equal(t, domainauth.RoleManager, prov.got.Role)
	assert.Equal(t, []string{"manager"}, prov.got.Labels)
}

func TestAuthService_CompleteLogin_Validation(t *testing.T) {
	_, _, svc := newAuthService(t, &SSOOptions{Provider: authmocks.NewMockAuthProvider(), Users: &recordingProvisioner{}})
	for _, in := range []CompleteLoginInput{
		{State: "s", Nonce: "n"},
		{Code: "c", Nonce: "n"},
		{Code: "c", State: "s"},
	} {
		_, err := svc.CompleteLogin(context.Background(), in)
		assert.Error(t, err)
	}
}

func TestAuthService_CompleteLogin_ProvisionFailure(t *testing.T) {
	prov := &recordingProvisioner{err: errors.New("unique violation")}
	_, _, svc := newAuthService(t, &SSOOptions{Provider: authmocks.NewMockAuthProvider(), Users: prov})
	_, err := svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.ErrorContains(t, err, "provision user")
}
