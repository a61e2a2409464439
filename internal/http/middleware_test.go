package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	domain "github.com/dernekportal/portal-api/internal/domain/ratelimit"
	"github.com/dernekportal/portal-api/internal/service"
	"github.com/dernekportal/portal-api/internal/service/ratelimit"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCSRFProtection(t *testing.T) {
	mw := CSRFProtection(CSRFConfig{Logger: quietLogger})(okHandler)

	tests := []struct {
		name   string
		method string
		header string
		cookie string
		want   int
	}{
		{"get exempt", http.MethodGet, "", "", http.StatusOK},
		{"head exempt", http.MethodHead, "", "", http.StatusOK},
		{"options exempt", http.MethodOptions, "", "", http.StatusOK},
		{"post without either", http.MethodPost, "", "", http.StatusForbidden},
		{"post without header", http.MethodPost, "", "tok", http.StatusForbidden},
		{"post without cookie", http.MethodPost, "tok", "", http.StatusForbidden},
		{"post mismatch", http.MethodPost, "tok", "other", http.StatusForbidden},
		{"delete mismatch", http.MethodDelete, "tok", "other", http.StatusForbidden},
		{"post match", http.MethodPost, "tok", "tok", http.StatusOK},
		{"patch match", http.MethodPatch, "tok", "tok", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/users", nil)
			if tt.header != "" {
				req.Header.Set(DefaultCSRFHeaderName, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				e := decodeEnvelope(t, rec)
				assert.Equal(t, "INVALID_CSRF", e.Code)
				assert.Equal(t, domainauth.MsgSecurityCheckFail, e.Error)
			}
		})
	}
}

func TestCSRFProtection_CustomNames(t *testing.T) {
	mw := CSRFProtection(CSRFConfig{
		Cookies:    CookieConfig{CSRFName: "xsrf"},
		HeaderName: "X-Xsrf-Token",
	})(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Xsrf-Token", "abc")
	req.AddCookie(&http.Cookie{Name: "xsrf", Value: "abc"})
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type stubAuthorizer struct {
	subject *domainauth.Subject
	err     error
	got     *domainauth.Session
}

func (s *stubAuthorizer) Authorize(_ context.Context, session *domainauth.Session, _ service.Requirements) (*domainauth.Subject, error) {
	s.got = session
	return s.subject, s.err
}

func TestRequirePermission(t *testing.T) {
	user := &domainauth.SessionUser{ID: "u1", Role: domainauth.RoleAdmin}
	cookie := sessionCookieFor(t, domainauth.Session{SessionID: "s1", UserID: "u1"})

	t.Run("allowed stores subject", func(t *testing.T) {
		auth := &stubAuthorizer{subject: &domainauth.Subject{User: user}}
		var seen *domainauth.SessionUser
		h := RequirePermission(auth, CookieConfig{}, service.Requirements{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = UserFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.NotNil(t, auth.got)
		assert.Equal(t, "s1", auth.got.SessionID)
		assert.Equal(t, user, seen)
	})

	t.Run("missing cookie passes nil session", func(t *testing.T) {
		auth := &stubAuthorizer{err: domainauth.Unauthorized(domainauth.MsgNoSession)}
		rec := httptest.NewRecorder()
		RequirePermission(auth, CookieConfig{}, service.Requirements{})(okHandler).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Nil(t, auth.got)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		auth := &stubAuthorizer{err: domainauth.Forbidden(domainauth.MsgAccessDenied)}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		RequirePermission(auth, CookieConfig{}, service.Requirements{Role: domainauth.RoleSuperAdmin})(okHandler).ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, domainauth.MsgAccessDenied, decodeEnvelope(t, rec).Error)
	})

	t.Run("unexpected error is not leaked", func(t *testing.T) {
		auth := &stubAuthorizer{err: errors.New("pq: connection refused")}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		RequirePermission(auth, CookieConfig{}, service.Requirements{})(okHandler).ServeHTTP(rec, req)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal server error", decodeEnvelope(t, rec).Error)
	})
}

func TestRateLimit_WithoutMonitor(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.LimiterOptions{
		Budgets: map[domain.Classification]ratelimit.Budget{
			domain.ClassRead: {Name: "readOnlyRateLimit", Requests: 1, Window: time.Minute},
		},
	})
	h := RateLimit(RateLimitOptions{Limiter: limiter, Logger: quietLogger})(okHandler)

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send("203.0.113.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.1:1001"))
	assert.Equal(t, http.StatusOK, send("203.0.113.2:1000"), "buckets are per client")
}

func TestRateLimit_TrustProxyKeysByForwardedFor(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.LimiterOptions{
		Budgets: map[domain.Classification]ratelimit.Budget{
			domain.ClassModify: {Name: "dataModificationRateLimit", Requests: 1, Window: time.Minute},
		},
	})
	monitor := ratelimit.NewMonitor(ratelimit.MonitorOptions{Logger: quietLogger})
	h := RateLimit(RateLimitOptions{Limiter: limiter, Monitor: monitor, TrustProxy: true})(okHandler)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/things", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
		req.Header.Set("User-Agent", "test-agent")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "request %d", i)
	}
	require.Equal(t, 1, monitor.Len())
	v := monitor.GetRecentViolations(1)[0]
	assert.Equal(t, "198.51.100.7", v.ClientKey)
	assert.Equal(t, domain.ClassModify, v.Classification)
	assert.Equal(t, "test-agent", v.UserAgent)
	assert.Equal(t, domain.OutcomeBlocked, v.Outcome)
	assert.Positive(t, v.RetryAfter)
}

func TestRateLimit_AttributesViolationToSessionUser(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.LimiterOptions{
		Budgets: map[domain.Classification]ratelimit.Budget{
			domain.ClassRead: {Name: "readOnlyRateLimit", Requests: 1, Window: time.Minute},
		},
	})
	monitor := ratelimit.NewMonitor(ratelimit.MonitorOptions{Logger: quietLogger})
	h := RateLimit(RateLimitOptions{Limiter: limiter, Monitor: monitor, Logger: quietLogger})(okHandler)

	cookie := sessionCookieFor(t, domainauth.Session{SessionID: "s1", UserID: "u1", Secret: "x"})
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "request %d", i)
	}
	require.Equal(t, 1, monitor.Len())
	assert.Equal(t, "u1", monitor.GetRecentViolations(1)[0].UserID)

	// Without a cookie the violation is anonymous.
	req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 2, monitor.Len())
	assert.Empty(t, monitor.GetRecentViolations(1)[0].UserID)
}

func TestRateLimit_RequiresLimiter(t *testing.T) {
	assert.Panics(t, func() { RateLimit(RateLimitOptions{}) })
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	e := decodeEnvelope(t, rec)
	assert.Equal(t, CodeInternal, e.Code)
	assert.Equal(t, "internal server error", e.Error)
	assert.Contains(t, buf.String(), `"msg":"panic"`)
	assert.Contains(t, buf.String(), "boom")
}

func TestLogging_CapturesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(Logging(logger, true)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})))
	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	req.Header.Set(RequestIDHeader, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"bytes":5`)
	assert.Contains(t, out, `"path":"/brew"`)
	assert.Contains(t, out, `"client_ip":"198.51.100.4"`)
	assert.Contains(t, out, `"request_id":"req-42"`)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	for _, inbound := range []string{"abc-123", "has space", strings.Repeat("x", 200)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, inbound)
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if inbound == "abc-123" {
			assert.Equal(t, inbound, seen)
		} else {
			assert.NotEqual(t, inbound, seen, "malformed ids are replaced")
		}
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestMaxBodyBytes(t *testing.T) {
	var readErr error
	h := MaxBodyBytes(4)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	require.Error(t, readErr)
}
