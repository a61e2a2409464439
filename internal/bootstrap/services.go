package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dernekportal/portal-api/config"
	redisadapter "github.com/dernekportal/portal-api/internal/adapters/redis"
	"github.com/dernekportal/portal-api/internal/data"
	"github.com/dernekportal/portal-api/internal/devseed"
	domain "github.com/dernekportal/portal-api/internal/domain/ratelimit"
	httpx "github.com/dernekportal/portal-api/internal/http"
	"github.com/dernekportal/portal-api/internal/observability/metrics"
	"github.com/dernekportal/portal-api/internal/observability/notify/pagerduty"
	"github.com/dernekportal/portal-api/internal/observability/notify/slack"
	"github.com/dernekportal/portal-api/internal/observability/statsd"
	"github.com/dernekportal/portal-api/internal/ports"
	"github.com/dernekportal/portal-api/internal/service"
	"github.com/dernekportal/portal-api/internal/service/abusealert"
	"github.com/dernekportal/portal-api/internal/service/ratelimit"
)

const shutdownWaitTimeout = 10 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	UserRepo      *data.UserRepo
	Sessions      *redisadapter.SessionStore
	Accounts      *service.AccountService
	Resolver      ports.UserResolver
	Auth          *service.AuthService
	Guard         *service.Guard
	Users         *service.UserService
	Monitor       *ratelimit.Monitor
	Limiter       *ratelimit.Limiter // nil when rate limiting is disabled
	MonitorTokens *service.MonitorTokens
	Readiness     []httpx.HealthCheck
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	Metrics       *metrics.Registry
	MetricsConfig config.ObservabilityMetricsConfig
	AbuseAlerts   *abusealert.Service
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var (
		metricsSink *statsd.Client
		sink        statsd.Sink
	)
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Address:       cfg.Metrics.StatsdAddress,
			Prefix:        cfg.Metrics.StatsdPrefix,
			GlobalTags:    cfg.Metrics.StatsdTags,
			FlushInterval: cfg.Metrics.StatsdFlushInterval,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
			sink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		Metrics:       metrics.NewRegistry(sink),
		MetricsConfig: cfg.Metrics,
		AbuseAlerts:   buildAbuseAlerts(logger, cfg.Notifications),
	}
}

func buildAbuseAlerts(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *abusealert.Service {
	opts := abusealert.Options{
		Logger:    logger,
		Threshold: cfg.AbuseThreshold,
		Window:    cfg.AbuseWindow,
		Cooldown:  cfg.AbuseCooldown,
		Timeout:   cfg.Timeout * time.Duration(cfg.RetryLimit+1),
	}
	if !cfg.Enabled {
		return abusealert.NewService(opts)
	}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			MonitorURL: cfg.Slack.MonitorURL,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, abusealert.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, abusealert.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return abusealert.NewService(opts)
}

// limiterBudgets translates configured allowances into limiter budgets.
func limiterBudgets(cfg config.RateLimitConfig) map[domain.Classification]ratelimit.Budget {
	pick := func(b config.BudgetConfig) ratelimit.Budget {
		return ratelimit.Budget{Requests: b.Requests, Window: b.Window}
	}
	return map[domain.Classification]ratelimit.Budget{
		domain.ClassAuth:      pick(cfg.Auth),
		domain.ClassUpload:    pick(cfg.Upload),
		domain.ClassSearch:    pick(cfg.Search),
		domain.ClassDashboard: pick(cfg.Dashboard),
		domain.ClassModify:    pick(cfg.Modify),
		domain.ClassRead:      pick(cfg.Read),
	}
}

// NewServices wires repositories, stores and services. It performs no I/O beyond
// optional SSO discovery.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps require a config")
	}
	if deps.DB == nil || deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("service deps require a database and a redis client")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability)

	users := data.NewUserRepo(deps.DB)
	sessions := redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, cfg.Auth.SessionKeyPrefix)

	accounts := service.NewAccountService(service.AccountServiceOptions{
		Users:    users,
		Sessions: sessions,
		Config: service.AccountConfig{
			DefaultTTL:      cfg.Auth.SessionTTL,
			FailedLogins:    cfg.Auth.FailedLogins,
			FailedLoginSpan: cfg.Auth.FailedLoginSpan,
			Logger:          logger,
		},
	})

	resolver := BuildResolver(cfg, accounts, logger)

	c := ServiceContainer{
		UserRepo: users,
		Sessions: sessions,
		Accounts: accounts,
		Resolver: resolver,
		Auth: BuildAuthService(ctx, AuthConfig{
			Auth:     cfg.Auth,
			Accounts: accounts,
			Resolver: resolver,
			Users:    users,
			Logger:   logger,
		}),
		Guard: service.NewGuard(service.GuardOptions{
			Resolver: resolver,
			Logger:   logger,
			Metrics:  obs.Metrics,
		}),
		Users: service.NewUserService(service.UserServiceOptions{
			Users:   users,
			Revoker: sessions,
			Logger:  logger,
		}),
		Monitor: ratelimit.NewMonitor(ratelimit.MonitorOptions{
			Capacity:  cfg.Monitoring.Capacity,
			Metrics:   obs.Metrics,
			Listeners: []ratelimit.ViolationListener{obs.AbuseAlerts},
			Logger:    logger,
		}),
		MonitorTokens: service.NewMonitorTokens(cfg.Monitoring.TokenSecret),
		Readiness:     readinessChecks(deps.DB, deps.RedisClient),
		Observability: obs,
	}

	if cfg.RateLimit.Enabled {
		c.Limiter = ratelimit.NewLimiter(ratelimit.LimiterOptions{
			Budgets:       limiterBudgets(cfg.RateLimit),
			IdleTTL:       cfg.RateLimit.IdleTTL,
			SweepInterval: cfg.RateLimit.SweepInterval,
			Logger:        logger,
		})
	} else {
		logger.Warn("rate limiting disabled")
	}
	if !c.MonitorTokens.Enabled() {
		logger.Info("monitoring reset disabled: MONITORING_TOKEN_SECRET not set")
	}

	return c, nil
}

func readinessChecks(db *sql.DB, rdb redis.UniversalClient) []httpx.HealthCheck {
	return []httpx.HealthCheck{
		{Name: "postgres", Check: db.PingContext},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}
}

// SeedDevUsers creates the test accounts when DEV_SEED_USERS is on in dev mode.
func SeedDevUsers(ctx context.Context, cfg *config.AppConfig, users devseed.UserCreator, logger *slog.Logger) error {
	if cfg == nil || !cfg.IsDev || !cfg.Auth.SeedTestUsers {
		return nil
	}
	if err := devseed.Run(ctx, users, logger); err != nil {
		return fmt.Errorf("seed dev users: %w", err)
	}
	return nil
}

// ServiceOrchestrationConfig groups dependencies for running the service.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown runs the HTTP server and the limiter sweeper until a
// shutdown signal arrives or one of them fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runServices(ctx, cfg)
}

func runServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := NewHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownWaitTimeout)
		defer cancel()
		return ShutdownHTTPServer(ShutdownConfig{Context: shutdownCtx, Server: server, Logger: logger})
	})

	if limiter := cfg.Services.Limiter; limiter != nil {
		g.Go(func() error {
			return limiter.Run(gctx)
		})
	}

	err := g.Wait()

	if alerts := cfg.Services.Observability.AbuseAlerts; alerts != nil {
		alerts.Wait()
	}
	if sink := cfg.Services.Observability.MetricsSink; sink != nil {
		if cerr := sink.Close(); cerr != nil {
			logger.Warn("close statsd client", "error", cerr)
		}
	}
	return err
}
