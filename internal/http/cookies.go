package httpx

import (
	"net/http"
	"time"
)

// Cookie names.
const (
	DefaultSessionCookieName = "auth-session"
	LegacySessionCookieName  = "appwrite-session"
	DefaultCSRFCookieName    = "csrf-token"
	DefaultCSRFHeaderName    = "X-Csrf-Token"
)

// CookieConfig controls the attributes of the auth cookies.
type CookieConfig struct {
	Domain string
	// Secure forces the Secure flag; otherwise it follows the request scheme.
	Secure        bool
	SessionName   string
	LegacyName    string
	CSRFName      string
	CSRFMaxAge    time.Duration
	DisableLegacy bool
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.SessionName == "" {
		c.SessionName = DefaultSessionCookieName
	}
	if c.LegacyName == "" && !c.DisableLegacy {
		c.LegacyName = LegacySessionCookieName
	}
	if c.CSRFName == "" {
		c.CSRFName = DefaultCSRFCookieName
	}
	if c.CSRFMaxAge <= 0 {
		c.CSRFMaxAge = 24 * time.Hour
	}
	return c
}

func (c CookieConfig) secure(r *http.Request) bool {
	return c.Secure || r.TLS != nil || isForwardedHTTPS(r)
}

// sessionValue returns the raw session cookie, falling back to the legacy name.
func (c CookieConfig) sessionValue(r *http.Request) string {
	if ck, err := r.Cookie(c.SessionName); err == nil && ck.Value != "" {
		return ck.Value
	}
	if c.LegacyName != "" {
		if ck, err := r.Cookie(c.LegacyName); err == nil {
			return ck.Value
		}
	}
	return ""
}

func (c CookieConfig) csrfValue(r *http.Request) string {
	if ck, err := r.Cookie(c.CSRFName); err == nil {
		return ck.Value
	}
	return ""
}

func (c CookieConfig) setSession(w http.ResponseWriter, r *http.Request, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.SessionName,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// setCSRF writes the double-submit token. It stays readable by scripts so they can echo it.
func (c CookieConfig) setCSRF(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.CSRFName,
		Value:    token,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: false,
		Secure:   c.secure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(c.CSRFMaxAge.Seconds()),
	})
}

// clear expires a cookie, mirroring the attributes used when it was set.
func (c CookieConfig) clear(w http.ResponseWriter, r *http.Request, name string, httpOnly bool, sameSite http.SameSite) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: httpOnly,
		Secure:   c.secure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: sameSite,
	})
}

func (c CookieConfig) clearSession(w http.ResponseWriter, r *http.Request) {
	c.clear(w, r, c.SessionName, true, http.SameSiteStrictMode)
}

func (c CookieConfig) clearAll(w http.ResponseWriter, r *http.Request) {
	c.clearSession(w, r)
	if c.LegacyName != "" {
		c.clear(w, r, c.LegacyName, true, http.SameSiteLaxMode)
	}
	c.clear(w, r, c.CSRFName, false, http.SameSiteStrictMode)
}

// setShortLived stores SSO state cookies for ten minutes.
func (c CookieConfig) setShortLived(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
}
