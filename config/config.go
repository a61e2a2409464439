package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// minTokenSecretLen is the shortest HMAC key accepted for monitor reset tokens.
const minTokenSecretLen = 32

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Authentication, session and SSO configuration
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server and cookie configuration
//   - ratelimit.go: Rate limit budgets and violation monitoring
//   - observability.go: Metrics and abuse alert notifications
type AppConfig struct {
	// IsDev controls development mode behavior (dev fixtures, seeded users).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Rate limiting and violation monitoring
	RateLimit  RateLimitConfig  `envPrefix:"RATE_LIMIT_"`
	Monitoring MonitoringConfig `envPrefix:"MONITORING_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	// Dev mode gates the fixture switches below, so resolve it first.
	c.detectDevMode()

	c.Auth.Sanitize(c.IsDev)
	c.HTTP.Sanitize()
	if !c.IsDev {
		c.HTTP.SecureCookies = true
	}
	c.RateLimit.Sanitize()
	c.Monitoring.Sanitize()
	c.Observability.Sanitize()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// Validate reports settings that Sanitize cannot repair. It is called after Sanitize.
func (c *AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	if u, err := url.Parse(c.HTTP.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("APP_BASE_URL must be an absolute URL, got %q", c.HTTP.BaseURL))
	}
	if strings.TrimSpace(c.Postgres.Host) == "" || strings.TrimSpace(c.Postgres.Name) == "" {
		errs = append(errs, errors.New("DB_HOST and DB_NAME are required"))
	}
	if c.Redis.UseCluster && c.Redis.UseSentinel {
		errs = append(errs, errors.New("REDIS_USE_CLUSTER and REDIS_USE_SENTINEL are mutually exclusive"))
	}
	if !c.IsDev && c.Monitoring.TokenSecret != "" && len(c.Monitoring.TokenSecret) < minTokenSecretLen {
		errs = append(errs, fmt.Errorf("MONITORING_TOKEN_SECRET must be at least %d bytes", minTokenSecretLen))
	}
	return errors.Join(errs...)
}
