package httpx

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"peer address", "192.0.2.1:5000", nil, false, "192.0.2.1"},
		{"forwarded ignored when untrusted", "192.0.2.1:5000", map[string]string{"X-Forwarded-For": "198.51.100.9"}, false, "192.0.2.1"},
		{"first forwarded entry", "10.0.0.1:5000", map[string]string{"X-Forwarded-For": " 198.51.100.9 , 10.0.0.1"}, true, "198.51.100.9"},
		{"real ip fallback", "10.0.0.1:5000", map[string]string{"X-Real-Ip": "198.51.100.10"}, true, "198.51.100.10"},
		{"no port", "192.0.2.7", nil, false, "192.0.2.7"},
		{"garbage forwarded entry skipped", "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "unknown", "X-Real-Ip": "198.51.100.11"}, true, "198.51.100.11"},
		{"mapped ipv6 peer", "[::ffff:192.0.2.8]:443", nil, false, "192.0.2.8"},
		{"ipv6 peer", "[2001:db8::1]:443", nil, false, "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}

func TestParseLimitOffset(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=0&offset=-3", nil)
	lim, off := ParseLimitOffset(req, 50, 200)
	assert.Equal(t, 1, lim)
	assert.Equal(t, 0, off)

	req = httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)
	lim, _ = ParseLimitOffset(req, 50, 200)
	assert.Equal(t, 50, lim)
}

func TestCookieConfig_Secure(t *testing.T) {
	c := CookieConfig{}.withDefaults()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, c.secure(req))

	req.Header.Set("X-Forwarded-Proto", "http, https")
	assert.True(t, c.secure(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	assert.True(t, c.secure(req))

	assert.True(t, CookieConfig{Secure: true}.secure(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestCookieConfig_SessionValuePrefersCanonical(t *testing.T) {
	c := CookieConfig{}.withDefaults()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: LegacySessionCookieName, Value: "legacy"})
	assert.Equal(t, "legacy", c.sessionValue(req))

	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "canonical"})
	assert.Equal(t, "canonical", c.sessionValue(req))

	noLegacy := CookieConfig{DisableLegacy: true}.withDefaults()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: LegacySessionCookieName, Value: "legacy"})
	assert.Empty(t, noLegacy.sessionValue(req))
}
