package config

import (
	"fmt"
	"strings"
	"time"
)

// SSOMode selects the identity provider behind the optional SSO login.
type SSOMode string

const (
	// SSOModeOIDC uses an OpenID Connect IdP.
	SSOModeOIDC SSOMode = "oidc"
	// SSOModeMock uses the config-driven dev provider (development only).
	SSOModeMock SSOMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for SSOMode.
func (m *SSOMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oidc", "mock":
		*m = SSOMode(v)
		return nil
	default:
		return fmt.Errorf("invalid SSOMode: %q (valid options: oidc, mock)", v)
	}
}

// OIDCConfig contains OAuth/OIDC client configuration.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL" envDefault:"http://localhost:8080/api/auth/sso/callback"`
	Scope        string `env:"SCOPE"        envDefault:"openid profile email groups"`
	// IssuerURL may be the issuer or its discovery document URL.
	IssuerURL   string `env:"ISSUER_URL"`
	GroupsClaim string `env:"GROUPS_CLAIM" envDefault:"groups"`
}

// DevSSOConfig controls the identity returned by the mock SSO provider.
type DevSSOConfig struct {
	Subject string   `env:"SUBJECT" envDefault:"dev-user"`
	Email   string   `env:"EMAIL"   envDefault:"dev@example.com"`
	Name    string   `env:"NAME"    envDefault:"Dev User"`
	Groups  []string `env:"GROUPS"  envDefault:"admin"           envSeparator:";"`
}

// SSOConfig groups the optional single sign-on settings.
type SSOConfig struct {
	Enabled bool    `env:"ENABLED" envDefault:"false"`
	Mode    SSOMode `env:"MODE"    envDefault:"oidc"`
	// SyncRoles overwrites the stored role of existing users on every SSO login.
	SyncRoles bool `env:"SYNC_ROLES" envDefault:"false"`

	OIDC OIDCConfig   `envPrefix:"OIDC_"`
	Dev  DevSSOConfig `envPrefix:"DEV_"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// SessionTTL is the lifetime of a normal session and its cookie.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"24h"`
	// RememberTTL applies when the user asks to stay signed in.
	RememberTTL time.Duration `env:"AUTH_REMEMBER_TTL" envDefault:"720h"`

	// FailedLogins per email inside FailedLoginSpan before logins are throttled.
	FailedLogins    int           `env:"AUTH_FAILED_LOGINS"     envDefault:"10"`
	FailedLoginSpan time.Duration `env:"AUTH_FAILED_LOGIN_SPAN" envDefault:"15m"`

	// SessionKeyPrefix namespaces account sessions in Redis.
	SessionKeyPrefix string `env:"AUTH_SESSION_KEY_PREFIX" envDefault:"portal:session:"`

	// DevFixtures resolves "mock-" sessions to built-in users. Dev mode only.
	DevFixtures bool `env:"AUTH_DEV_FIXTURES" envDefault:"false"`
	// SeedTestUsers creates the well-known test accounts at startup. Dev mode only.
	SeedTestUsers bool `env:"DEV_SEED_USERS" envDefault:"false"`

	SSO SSOConfig `envPrefix:"AUTH_SSO_"`
}

// Sanitize clamps durations and turns off development shortcuts outside dev mode.
func (a *AuthConfig) Sanitize(isDev bool) {
	if a.SessionTTL <= 0 {
		a.SessionTTL = 24 * time.Hour
	}
	if a.RememberTTL < a.SessionTTL {
		a.RememberTTL = a.SessionTTL
	}
	if a.FailedLogins <= 0 {
		a.FailedLogins = 10
	}
	if a.FailedLoginSpan <= 0 {
		a.FailedLoginSpan = 15 * time.Minute
	}
	if strings.TrimSpace(a.SessionKeyPrefix) == "" {
		a.SessionKeyPrefix = "portal:session:"
	}
	if !isDev {
		a.DevFixtures = false
		a.SeedTestUsers = false
		if a.SSO.Mode == SSOModeMock {
			a.SSO.Enabled = false
		}
	}
	if a.SSO.Mode == "" {
		a.SSO.Mode = SSOModeOIDC
	}
	a.SSO.OIDC.IssuerURL = strings.TrimSpace(a.SSO.OIDC.IssuerURL)
	if a.SSO.Enabled && a.SSO.Mode == SSOModeOIDC &&
		(a.SSO.OIDC.IssuerURL == "" || a.SSO.OIDC.ClientID == "") {
		a.SSO.Enabled = false
	}
}
