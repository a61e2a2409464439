package service

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ScopeMonitoringReset authorizes clearing the rate limit monitor.
const ScopeMonitoringReset = "monitoring:reset"

const monitorTokenIssuer = "portal-api"

// Monitor token errors.
var (
	ErrMonitorTokensDisabled = errors.New("monitoring tokens are not configured")
	ErrInvalidMonitorToken   = errors.New("invalid monitoring token")
)

// MonitorClaims are the claims of an operator token.
type MonitorClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// MonitorTokens issues and verifies HS256 operator tokens.
// A zero-value secret disables both operations.
type MonitorTokens struct {
	secret []byte
	now    func() time.Time
}

// NewMonitorTokens constructs MonitorTokens. An empty secret yields a disabled instance.
func NewMonitorTokens(secret string) *MonitorTokens {
	return &MonitorTokens{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether a secret is configured.
func (m *MonitorTokens) Enabled() bool { return m != nil && len(m.secret) > 0 }

// Issue signs a token for subject carrying scopes.
func (m *MonitorTokens) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	if !m.Enabled() {
		return "", ErrMonitorTokensDisabled
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := m.now().UTC()
	claims := MonitorClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    monitorTokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry, issuer, and that scope is granted.
func (m *MonitorTokens) Verify(token, scope string) (*MonitorClaims, error) {
	if !m.Enabled() {
		return nil, ErrMonitorTokensDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidMonitorToken
	}
	parsed, err := jwt.ParseWithClaims(token, &MonitorClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return m.secret, nil
	},
		jwt.WithIssuer(monitorTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMonitorToken, err)
	}
	claims, ok := parsed.Claims.(*MonitorClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidMonitorToken
	}
	if !slices.Contains(claims.Scopes, scope) {
		return nil, fmt.Errorf("%w: missing scope %s", ErrInvalidMonitorToken, scope)
	}
	return claims, nil
}
