package httpx

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	authmocks "github.com/dernekportal/portal-api/internal/mocks/auth"
	"github.com/dernekportal/portal-api/internal/service"
	"github.com/dernekportal/portal-api/internal/service/ratelimit"
)

const (
	adminID  = "6f1c2a4e-5b7d-4c1e-9a3f-2d8e7b6c5a41"
	viewerID = "0b3e7c55-91d2-4f0a-8a61-5c7d2e9f4b10"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// testEnv wires the real auth services over in-memory stores.
type testEnv struct {
	users    *authmocks.MemoryUserStore
	sessions *authmocks.MemorySessionStore
	auth     *service.AuthService
	guard    *service.Guard
	monitor  *ratelimit.Monitor
	handler  http.Handler
}

type envOptions struct {
	userSvc      UserServiceInterface
	limiter      *ratelimit.Limiter
	tokens       MonitorTokenVerifier
	requireMonit bool
	sso          *service.SSOOptions
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := service.HashPassword(password)
	require.NoError(t, err)
	return h
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	users := authmocks.NewMemoryUserStore(
		domainauth.User{
			ID: adminID, Name: "Admin", Email: "admin@test.com", Role: string(domainauth.RoleAdmin),
			IsActive: true, PasswordHash: mustHash(t, "admin123"),
		},
		domainauth.User{
			ID: viewerID, Name: "Viewer", Email: "viewer@test.com", Role: string(domainauth.RoleViewer),
			IsActive: true, PasswordHash: mustHash(t, "viewer123"),
		},
	)
	sessions := authmocks.NewMemorySessionStore()
	accounts := service.NewAccountService(service.AccountServiceOptions{
		Users: users, Sessions: sessions, Config: service.AccountConfig{Logger: quietLogger},
	})
	resolver := service.NewStoreResolver(service.StoreResolverOptions{Accounts: accounts, Logger: quietLogger})
	auth := service.NewAuthService(service.AuthServiceOptions{
		Accounts: accounts,
		Resolver: resolver,
		SSO:      opts.sso,
		Config:   service.AuthConfig{Logger: quietLogger},
	})
	guard := service.NewGuard(service.GuardOptions{Resolver: resolver, Logger: quietLogger})
	monitor := ratelimit.NewMonitor(ratelimit.MonitorOptions{Logger: quietLogger})

	env := &testEnv{users: users, sessions: sessions, auth: auth, guard: guard, monitor: monitor}
	env.handler = NewRouter(RouterServices{
		Auth:                     auth,
		Guard:                    guard,
		Users:                    opts.userSvc,
		Monitor:                  monitor,
		MonitorTokens:            opts.tokens,
		Limiter:                  opts.limiter,
		MonitoringRequireSession: opts.requireMonit,
		Logger:                   quietLogger,
	})
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// login performs a password login and returns the cookies it set.
func (e *testEnv) login(t *testing.T, email, password string) []*http.Cookie {
	t.Helper()
	rec := e.do(jsonRequest(http.MethodPost, "/api/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec.Result().Cookies()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		if c.MaxAge < 0 {
			continue
		}
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type testEnvelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Errors  map[string]string `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func sessionCookieFor(t *testing.T, s domainauth.Session) *http.Cookie {
	t.Helper()
	v, err := domainauth.EncodeSession(s)
	require.NoError(t, err)
	return &http.Cookie{Name: DefaultSessionCookieName, Value: v}
}

func expiredSession(userID string) domainauth.Session {
	return domainauth.Session{
		SessionID: "expired-1",
		UserID:    userID,
		Expire:    time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	}
}
