package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dernekportal/portal-api/internal/ports"
)

// newIdP serves discovery plus a token endpoint that always rejects the code.
func newIdP(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                srv.URL,
			AuthorizationEndpoint: srv.URL + "/auth",
			TokenEndpoint:         srv.URL + "/token",
			UserinfoEndpoint:      srv.URL + "/userinfo",
			JwksURI:               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func createTestProvider(t *testing.T) (*Provider, *httptest.Server) {
	t.Helper()
	srv := newIdP(t)
	p, err := NewProvider(context.Background(), ProviderConfig{
		ClientID:     "portal",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/api/auth/sso/callback",
		Scope:        "profile email",
		IssuerURL:    srv.URL + "/.well-known/openid-configuration",
	})
	require.NoError(t, err)
	return p, srv
}

func TestNewProvider_Success(t *testing.T) {
	p, srv := createTestProvider(t)
	assert.Equal(t, srv.URL+"/auth", p.config.Endpoint.AuthURL)
	assert.Equal(t, srv.URL+"/token", p.config.Endpoint.TokenURL)
	assert.Equal(t, []string{"openid", "profile", "email"}, p.config.Scopes)
	assert.Equal(t, "groups", p.groupsClaim)
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{"missing client ID", ProviderConfig{ClientSecret: "s", RedirectURL: "http://x/cb", IssuerURL: "http://idp"}, "client ID is required"},
		{"missing client secret", ProviderConfig{ClientID: "c", RedirectURL: "http://x/cb", IssuerURL: "http://idp"}, "client secret is required"},
		{"missing redirect URL", ProviderConfig{ClientID: "c", ClientSecret: "s", IssuerURL: "http://idp"}, "redirect URL is required"},
		{"missing issuer", ProviderConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "http://x/cb"}, "issuer URL is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Begin(t *testing.T) {
	p, srv := createTestProvider(t)

	authURL, state, nonce, err := p.Begin(context.Background(), ports.BeginInput{RedirectURL: "/"})
	require.NoError(t, err)
	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)
	assert.Contains(t, authURL, srv.URL+"/auth")
	assert.Contains(t, authURL, "client_id=portal")
	assert.Contains(t, authURL, "state="+state)
	assert.Contains(t, authURL, "nonce="+nonce)

	_, _, _, err = p.Begin(context.Background(), ports.BeginInput{})
	require.Error(t, err)
}

func TestProvider_Exchange_ValidationErrors(t *testing.T) {
	p, _ := createTestProvider(t)
	tests := []struct {
		name   string
		input  ports.ExchangeInput
		errMsg string
	}{
		{"missing code", ports.ExchangeInput{State: "s", Nonce: "n"}, "authorization code is required"},
		{"missing state", ports.ExchangeInput{Code: "c", Nonce: "n"}, "state is required"},
		{"missing nonce", ports.ExchangeInput{Code: "c", State: "s"}, "nonce is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Exchange(context.Background(), tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Exchange_TokenRejected(t *testing.T) {
	p, _ := createTestProvider(t)
	_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "bad", State: "s", Nonce: "n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange code for token")
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	raw, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", raw)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"x": "y"}))
	require.ErrorContains(t, err, "missing id_token")

	_, err = getIDTokenFromToken(nil)
	require.ErrorContains(t, err, "nil token")
}

func TestMapClaims(t *testing.T) {
	t.Run("standard claims", func(t *testing.T) {
		id := mapClaims(map[string]any{
			"sub":         "sub-1",
			"email":       "Ayse@Example.org",
			"given_name":  "Ayse",
			"family_name": "Yilmaz",
			"groups":      []any{"manager", "", 7},
		}, "groups")
		assert.Equal(t, "sub-1", id.Subject)
		assert.Equal(t, "ayse@example.org", id.Email)
		assert.Equal(t, "Ayse Yilmaz", id.Name())
		assert.Equal(t, []string{"manager"}, id.Groups)
	})

	t.Run("AD shape", func(t *testing.T) {
		id := mapClaims(map[string]any{
			"samaccountname": "ayilmaz",
			"mail":           "ayilmaz@example.org",
			"firstname":      "Ayse",
			"memberof":       "CN=Portal-Admins",
		}, "groups")
		assert.Equal(t, "ayilmaz", id.Subject)
		assert.Equal(t, "ayilmaz@example.org", id.Email)
		assert.Equal(t, []string{"CN=Portal-Admins"}, id.Groups)
	})

	t.Run("custom groups claim", func(t *testing.T) {
		id := mapClaims(map[string]any{"sub": "x", "roles": []any{"admin"}}, "roles")
		assert.Equal(t, []string{"admin"}, id.Groups)
	})
}

func TestFillMissing(t *testing.T) {
	id := mapClaims(map[string]any{"sub": "keep", "email": "keep@example.org"}, "groups")
	fillMissing(&id, mapClaims(map[string]any{
		"sub": "other", "email": "other@example.org", "given_name": "Filled", "groups": []any{"viewer"},
	}, "groups"))
	assert.Equal(t, "keep", id.Subject)
	assert.Equal(t, "keep@example.org", id.Email)
	assert.Equal(t, "Filled", id.FirstName)
	assert.Equal(t, []string{"viewer"}, id.Groups)
}

func TestGenerateRandomString(t *testing.T) {
	a, err := generateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, a, 16)
	b, err := generateRandomString(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
