package devauth

// Package devauth provides a config-driven SSO provider for local development.
// It stands in for the IdP when AUTH_SSO_MODE=mock.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/ports"
)

// DefaultCallbackPath is where Begin sends the browser back to.
const DefaultCallbackPath = "/api/auth/sso/callback"

// Config controls the dev provider. Subject and Email are required.
type Config struct {
	Subject         string
	Email           string
	FirstName       string
	LastName        string
	Groups          []string
	CallbackPath    string
	SessionDuration time.Duration // default 8h when zero
}

// Provider implements ports.AuthProvider without an IdP round trip.
// Begin redirects straight to our own callback; Exchange ignores the code and
// returns the configured identity.
type Provider struct {
	mu              sync.Mutex
	identity        domainauth.Identity
	callbackPath    string
	sessionDuration time.Duration
	now             func() time.Time
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider constructs a dev provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.Subject) == "" {
		return nil, errors.New("dev auth: Subject is required")
	}
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur <= 0 {
		dur = 8 * time.Hour
	}
	cb := cfg.CallbackPath
	if cb == "" {
		cb = DefaultCallbackPath
	}
	return &Provider{
		identity: domainauth.Identity{
			Subject:   cfg.Subject,
			FirstName: cfg.FirstName,
			LastName:  cfg.LastName,
			Email:     strings.ToLower(cfg.Email),
			Groups:    append([]string(nil), cfg.Groups...),
		},
		callbackPath:    cb,
		sessionDuration: dur,
		now:             time.Now,
	}, nil
}

// Begin returns the local callback URL with a fresh state, plus a nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	q := url.Values{}
	q.Set("code", "dev")
	q.Set("state", state)
	return p.callbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange returns the configured identity with a fresh expiry.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.State == "" || in.Nonce == "" {
		return domainauth.Identity{}, errors.New("dev auth: state and nonce are required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.identity
	id.Groups = append([]string(nil), p.identity.Groups...)
	id.ExpiresAt = p.now().Add(p.sessionDuration)
	return id, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
