package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/observability/metrics"
	"github.com/dernekportal/portal-api/internal/service"
	"github.com/dernekportal/portal-api/internal/service/ratelimit"
)

var errNotFound = errors.New("not found")

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth  AuthServiceInterface // Required
	Guard Authorizer           // Required
	// Optional: user administration routes are registered only when set.
	Users UserServiceInterface
	// Optional: the monitoring endpoint is registered only when set.
	Monitor       *ratelimit.Monitor
	MonitorTokens MonitorTokenVerifier
	// Optional: requests are not rate limited when nil.
	Limiter *ratelimit.Limiter
	Metrics *metrics.Registry
	// ReadinessChecks back GET /readyz.
	ReadinessChecks []HealthCheck

	Cookies    CookieConfig
	CSRFHeader string
	// MonitoringRequireSession guards the monitoring GET endpoint with settings:view.
	MonitoringRequireSession bool
	TrustProxy               bool
	MaxBodyBytes             int64
	Logger                   *slog.Logger
}

type router struct {
	mux      *http.ServeMux
	services RouterServices
	csrf     func(http.Handler) http.Handler
	limit    func(http.Handler) http.Handler
}

// NewRouter creates and configures the API router.
func NewRouter(services RouterServices) http.Handler {
	if services.Auth == nil || services.Guard == nil {
		panic("httpx: NewRouter requires Auth and Guard") //nolint:forbidigo // Fail fast during server setup.
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	services.Logger = logger
	services.Cookies = services.Cookies.withDefaults()

	rt := &router{
		mux:      http.NewServeMux(),
		services: services,
		csrf: CSRFProtection(CSRFConfig{
			Cookies:    services.Cookies,
			HeaderName: services.CSRFHeader,
			Logger:     logger,
		}),
	}
	if services.Limiter != nil {
		rt.limit = RateLimit(RateLimitOptions{
			Limiter:    services.Limiter,
			Monitor:    services.Monitor,
			Logger:     logger,
			Cookies:    services.Cookies,
			TrustProxy: services.TrustProxy,
		})
	}

	rt.registerAuthRoutes(&AuthHandlers{Svc: services.Auth, Cookies: services.Cookies, Logger: logger})
	if services.Users != nil {
		rt.registerUserRoutes(&UserHandlers{Svc: services.Users, Logger: logger})
	}
	if services.Monitor != nil {
		rt.registerMonitoringRoutes(&MonitoringHandlers{
			Monitor: services.Monitor,
			Tokens:  services.MonitorTokens,
			Logger:  logger,
		})
	}
	rt.mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	rt.mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	rt.mux.Handle("GET /readyz", readinessHandler(services.ReadinessChecks, 0))
	if services.Metrics != nil {
		rt.mux.Handle("GET /metrics", services.Metrics.Handler())
	}
	rt.mux.Handle("/", http.HandlerFunc(notFoundHandler))

	mws := []func(http.Handler) http.Handler{RequestID, Recover(logger), Logging(logger, services.TrustProxy), SecurityHeaders}
	if services.MaxBodyBytes > 0 {
		mws = append(mws, MaxBodyBytes(services.MaxBodyBytes))
	}
	return chain(rt.mux, mws...)
}

// routeOptions selects the per-route middleware.
type routeOptions struct {
	// Guard requires an authorized session when set.
	Guard *service.Requirements
	// CSRF enforces the double-submit check before the guard.
	CSRF bool
}

// handle registers h under pattern as: metrics, rate limit, CSRF, guard, handler.
func (rt *router) handle(pattern string, h http.HandlerFunc, opts routeOptions) {
	var mws []func(http.Handler) http.Handler
	if rt.limit != nil {
		mws = append(mws, rt.limit)
	}
	if opts.CSRF {
		mws = append(mws, rt.csrf)
	}
	if opts.Guard != nil {
		mws = append(mws, RequirePermission(rt.services.Guard, rt.services.Cookies, *opts.Guard))
	}
	rt.mux.Handle(pattern, rt.services.Metrics.Instrument(pattern, chain(h, mws...)))
}

func requires(perm domainauth.Permission) *service.Requirements {
	return &service.Requirements{Permission: perm}
}

func (rt *router) registerAuthRoutes(h *AuthHandlers) {
	rt.handle("POST /api/auth/login", h.Login, routeOptions{})
	rt.handle("POST /api/auth/logout", h.Logout, routeOptions{})
	rt.handle("GET /api/auth/session", h.Session, routeOptions{})
	rt.handle("GET /api/auth/me", h.Me, routeOptions{Guard: &service.Requirements{}})
	rt.handle("GET /api/auth/sso/login", h.SSOLogin, routeOptions{})
	rt.handle("GET /api/auth/sso/callback", h.SSOCallback, routeOptions{})
}

func (rt *router) registerUserRoutes(h *UserHandlers) {
	rt.handle("GET /api/users", h.List, routeOptions{Guard: requires(domainauth.PermUsersView)})
	rt.handle("GET /api/users/{id}", h.Get, routeOptions{Guard: requires(domainauth.PermUsersView)})
	rt.handle("POST /api/users", h.Create, routeOptions{Guard: requires(domainauth.PermUsersCreate), CSRF: true})
	rt.handle("PATCH /api/users/{id}", h.Update, routeOptions{Guard: requires(domainauth.PermUsersEdit), CSRF: true})
}

func (rt *router) registerMonitoringRoutes(h *MonitoringHandlers) {
	get := routeOptions{}
	if rt.services.MonitoringRequireSession {
		get.Guard = requires(domainauth.PermSettingsView)
	}
	rt.handle("GET /api/monitoring/rate-limit", h.Get, get)
	rt.handle("POST /api/monitoring/rate-limit", h.Post, routeOptions{Guard: requires(domainauth.PermSettingsView), CSRF: true})
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: CodeNotFound, Err: errNotFound})
}
