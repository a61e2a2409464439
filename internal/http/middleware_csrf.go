package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
)

// CSRFConfig holds configuration for CSRF protection middleware.
type CSRFConfig struct {
	Cookies CookieConfig
	// HeaderName is the header echoing the cookie (default: "X-Csrf-Token").
	HeaderName string
	Logger     *slog.Logger
}

// CSRFProtection returns a middleware that enforces the double-submit cookie pattern.
// The token is minted at login; state-changing requests must echo the csrf cookie in the
// header. GET, HEAD, OPTIONS, and TRACE requests are exempt. Every failure gets the same
// 403 so the response does not reveal which half was missing.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	cookies := cfg.Cookies.withDefaults()
	header := cfg.HeaderName
	if header == "" {
		header = DefaultCSRFHeaderName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiresCSRFValidation(r.Method) &&
				!domainauth.ValidCSRFPair(r.Header.Get(header), cookies.csrfValue(r)) {
				logger.WarnContext(r.Context(), "csrf check failed",
					"method", r.Method, "path", r.URL.Path,
					"header_present", r.Header.Get(header) != "",
					"cookie_present", cookies.csrfValue(r) != "")
				WriteAuthError(w, domainauth.InvalidCSRF())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requiresCSRFValidation returns true if the HTTP method requires CSRF validation.
// Safe methods (GET, HEAD, OPTIONS, TRACE) are exempt.
func requiresCSRFValidation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}
