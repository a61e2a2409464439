package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// CSRFTokenBytes is the number of random bytes in a minted CSRF token.
const CSRFTokenBytes = 32

// NewCSRFToken mints a random double-submit token. It fails rather than fall back to a
// predictable value.
func NewCSRFToken() (string, error) {
	b := make([]byte, CSRFTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidCSRFPair reports whether the header token echoes the cookie token exactly.
// Both must be present.
func ValidCSRFPair(headerToken, cookieToken string) bool {
	if headerToken == "" || cookieToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) == 1
}
