package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dernekportal/portal-api/config"
	"github.com/dernekportal/portal-api/internal/adapters/authroles"
	"github.com/dernekportal/portal-api/internal/adapters/devauth"
	"github.com/dernekportal/portal-api/internal/adapters/devfixture"
	"github.com/dernekportal/portal-api/internal/adapters/oidc"
	"github.com/dernekportal/portal-api/internal/ports"
	"github.com/dernekportal/portal-api/internal/service"
)

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth     config.AuthConfig
	Accounts ports.AccountService
	Resolver ports.UserResolver
	Users    service.UserProvisioner
	Logger   *slog.Logger
}

// BuildAuthService creates the auth service. SSO is attached only when enabled and
// its provider can be built; otherwise password login keeps working alone.
func BuildAuthService(ctx context.Context, cfg AuthConfig) *service.AuthService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return service.NewAuthService(service.AuthServiceOptions{
		Accounts: cfg.Accounts,
		Resolver: cfg.Resolver,
		SSO:      buildSSO(ctx, cfg, logger),
		Config: service.AuthConfig{
			SessionTTL:  cfg.Auth.SessionTTL,
			RememberTTL: cfg.Auth.RememberTTL,
			Logger:      logger,
		},
	})
}

func buildSSO(ctx context.Context, cfg AuthConfig, logger *slog.Logger) *service.SSOOptions {
	sso := cfg.Auth.SSO
	if !sso.Enabled {
		return nil
	}
	if cfg.Users == nil {
		logger.Warn("sso disabled: no user provisioner configured")
		return nil
	}

	var provider ports.AuthProvider
	switch sso.Mode {
	case config.SSOModeMock:
		first, last, _ := strings.Cut(sso.Dev.Name, " ")
		prov, err := devauth.NewProvider(devauth.Config{
			Subject:   sso.Dev.Subject,
			Email:     sso.Dev.Email,
			FirstName: first,
			LastName:  last,
			Groups:    sso.Dev.Groups,
		})
		if err != nil {
			logger.Warn("failed to create dev sso provider, sso disabled", "error", err)
			return nil
		}
		logger.Warn("mock sso provider enabled; every sso login resolves to the configured identity",
			"email", sso.Dev.Email)
		provider = prov

	default:
		prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:     sso.OIDC.ClientID,
			ClientSecret: sso.OIDC.ClientSecret,
			RedirectURL:  sso.OIDC.RedirectURL,
			Scope:        sso.OIDC.Scope,
			IssuerURL:    sso.OIDC.IssuerURL,
			GroupsClaim:  sso.OIDC.GroupsClaim,
		})
		if err != nil {
			logger.Warn("failed to create OIDC provider, sso disabled", "error", err)
			return nil
		}
		provider = prov
	}

	return &service.SSOOptions{
		Provider:  provider,
		Users:     cfg.Users,
		Roles:     authroles.LabelRoleMapper{},
		SyncRoles: sso.SyncRoles,
	}
}

// BuildResolver returns the session-checking resolver, wrapped with the fixture table when
// dev fixtures are on. Sanitize already forces fixtures off outside dev mode.
func BuildResolver(cfg *config.AppConfig, accounts ports.AccountService, logger *slog.Logger) ports.UserResolver {
	if logger == nil {
		logger = slog.Default()
	}
	var resolver ports.UserResolver = service.NewStoreResolver(service.StoreResolverOptions{
		Accounts: accounts,
		Logger:   logger,
	})
	if cfg != nil && cfg.IsDev && cfg.Auth.DevFixtures {
		logger.Warn("dev fixture resolver enabled; mock- sessions resolve to built-in users")
		resolver = devfixture.NewResolver(resolver)
	}
	return resolver
}
