package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	domain "github.com/dernekportal/portal-api/internal/domain/ratelimit"
	"github.com/dernekportal/portal-api/internal/service/ratelimit"
)

var errTooManyRequests = errors.New("too many requests")

// RateLimitOptions configures the RateLimit middleware.
type RateLimitOptions struct {
	Limiter *ratelimit.Limiter // Required
	Monitor *ratelimit.Monitor // Optional; denials are not recorded without it
	Logger  *slog.Logger
	// Cookies locates the session cookie. The user id it carries is recorded on
	// violations as claimed; the limiter runs before the guard verifies it.
	Cookies CookieConfig
	// TrustProxy keys clients by X-Forwarded-For instead of the peer address.
	TrustProxy bool
}

// RateLimit returns a middleware that classifies each request once and charges the
// client's bucket for that classification. Denied requests get a 429 envelope with
// Retry-After and are recorded in the monitor.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.Limiter == nil {
		panic("httpx: RateLimit requires a Limiter")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rate_limit")
	cookies := opts.Cookies.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := domain.Classify(r.Method, r.URL.Path)
			ip := clientIP(r, opts.TrustProxy)

			d := opts.Limiter.Allow(class, ip)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := d.RetryAfterSeconds()
			if opts.Monitor != nil {
				var userID string
				if s := domainauth.DecodeSession(cookies.sessionValue(r)); s != nil {
					userID = s.UserID
				}
				opts.Monitor.RecordViolation(ratelimit.ViolationInput{
					ClientKey:      ip,
					Classification: class,
					Endpoint:       r.URL.Path,
					Method:         r.Method,
					UserAgent:      r.UserAgent(),
					UserID:         userID,
					Outcome:        domain.OutcomeBlocked,
					RetryAfter:     retry,
				})
			} else {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					"client", ip, "classification", class, "budget", d.Budget)
			}

			w.Header().Set("Retry-After", strconv.Itoa(retry))
			WriteError(w, ErrorParams{Code: http.StatusTooManyRequests, ErrCode: CodeRateLimited, Err: errTooManyRequests})
		})
	}
}
