package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dernekportal/portal-api/config"
	httpx "github.com/dernekportal/portal-api/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// BuildHTTPHandler assembles the router from the service container.
func BuildHTTPHandler(cfg *HTTPServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Auth:            cfg.Services.Auth,
		Guard:           cfg.Services.Guard,
		Users:           cfg.Services.Users,
		Monitor:         cfg.Services.Monitor,
		MonitorTokens:   cfg.Services.MonitorTokens,
		Limiter:         cfg.Services.Limiter,
		ReadinessChecks: cfg.Services.Readiness,
		Cookies: httpx.CookieConfig{
			Domain:        appCfg.HTTP.CookieDomain,
			Secure:        appCfg.HTTP.SecureCookies,
			DisableLegacy: !appCfg.HTTP.LegacyCookie,
		},
		CSRFHeader:               appCfg.HTTP.CSRFHeader,
		MonitoringRequireSession: appCfg.Monitoring.RequireSession,
		TrustProxy:               appCfg.HTTP.TrustProxy,
		MaxBodyBytes:             appCfg.HTTP.MaxBodyBytes,
		Logger:                   logger,
	}
	if cfg.Services.Observability.MetricsConfig.Prometheus {
		services.Metrics = cfg.Services.Observability.Metrics
	}

	return httpx.NewRouter(services)
}

// NewHTTPServer builds the server without starting it.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	addr := ""
	if cfg.Config != nil {
		addr = cfg.Config.HTTP.Addr
	}
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           BuildHTTPHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	if err := cfg.Server.Shutdown(ctx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
