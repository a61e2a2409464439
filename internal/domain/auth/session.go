package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Session is the record carried by the session cookie.
// Expire is the RFC 3339 expiry issued by the account store; empty means non-expiring.
type Session struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Secret    string `json:"secret,omitempty"`
	Expire    string `json:"expire,omitempty"`
}

// EncodeSession serializes s into a cookie-safe value (base64url of the JSON record).
// The payload is not encrypted; confidentiality relies on the cookie flags.
func EncodeSession(s Session) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeSession parses a cookie value. It never fails loudly: empty, garbled, or incomplete
// values yield nil. Raw and URL-escaped JSON values written by older deployments are accepted.
func DecodeSession(value string) *Session {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	var payload []byte
	switch {
	case strings.HasPrefix(value, "{"):
		payload = []byte(value)
	case strings.HasPrefix(value, "%7B"), strings.HasPrefix(value, "%7b"):
		unescaped, err := url.QueryUnescape(value)
		if err != nil {
			return nil
		}
		payload = []byte(unescaped)
	default:
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
		if err != nil {
			return nil
		}
		payload = decoded
	}

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil
	}
	if s.SessionID == "" || s.UserID == "" {
		return nil
	}
	return &s
}

// ExpiresAt parses Expire. ok is false when Expire is empty or unparseable.
func (s Session) ExpiresAt() (time.Time, bool) {
	if s.Expire == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s.Expire)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsExpired reports whether the session is past its expiry at now.
// A missing expiry never expires; an unparseable one is treated as expired.
func (s Session) IsExpired(now time.Time) bool {
	if s.Expire == "" {
		return false
	}
	t, ok := s.ExpiresAt()
	if !ok {
		return true
	}
	return !t.After(now)
}
