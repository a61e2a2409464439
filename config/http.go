package config

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the public URL of the portal (e.g., "https://portal.example.org").
	// Used for links in abuse alert notifications.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request host.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// SecureCookies forces the Secure flag; otherwise it follows the request scheme.
	// Always on outside dev mode.
	SecureCookies bool `env:"HTTP_SECURE_COOKIES" envDefault:"false"`

	// TrustProxy keys rate limits on X-Forwarded-For instead of the socket address.
	TrustProxy bool `env:"HTTP_TRUST_PROXY" envDefault:"false"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`

	// CSRFHeader names the header that must echo the csrf-token cookie.
	CSRFHeader string `env:"HTTP_CSRF_HEADER" envDefault:"X-Csrf-Token"`

	// LegacyCookie keeps reading and clearing the appwrite-session cookie.
	LegacyCookie bool `env:"HTTP_LEGACY_COOKIE" envDefault:"true"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.CookieDomain = normalizeCookieDomain(h.CookieDomain)
	if h.MaxBodyBytes < 0 {
		h.MaxBodyBytes = 0
	}
	if strings.TrimSpace(h.CSRFHeader) == "" {
		h.CSRFHeader = "X-Csrf-Token"
	}
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
}

// normalizeCookieDomain drops domains browsers would reject: public suffixes
// such as "com" or "github.io" cannot carry cookies.
func normalizeCookieDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, ".")
	if d == "" || d == "localhost" {
		return d
	}
	if suffix, _ := publicsuffix.PublicSuffix(d); suffix == d {
		return ""
	}
	return d
}
