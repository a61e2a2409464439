package service

import (
	"context"
	"log/slog"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/observability/metrics"
	"github.com/dernekportal/portal-api/internal/ports"
)

// Requirements lists what a route demands of the caller. Zero value means "any
// authenticated user".
type Requirements struct {
	Permission    domainauth.Permission
	AnyPermission []domainauth.Permission
	Role          domainauth.Role
}

// DecisionRecorder receives guard outcomes for metrics.
type DecisionRecorder interface {
	AuthDecision(result, kind string, err error)
}

// GuardOptions groups dependencies for Guard.
type GuardOptions struct {
	Resolver ports.UserResolver // Required
	Logger   *slog.Logger
	Metrics  DecisionRecorder
}

// Guard authorizes requests from their decoded session cookie.
type Guard struct {
	resolver ports.UserResolver
	logger   *slog.Logger
	metrics  DecisionRecorder
}

// NewGuard constructs a Guard.
func NewGuard(opts GuardOptions) *Guard {
	if opts.Resolver == nil {
		panic("service: Guard requires a UserResolver")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{resolver: opts.Resolver, logger: logger.With("component", "auth_guard"), metrics: opts.Metrics}
}

// Authorize checks, in order: session present, user resolvable, role, permission,
// any-permission. SUPER_ADMIN passes every rule.
func (g *Guard) Authorize(ctx context.Context, session *domainauth.Session, req Requirements) (*domainauth.Subject, error) {
	if session == nil {
		return nil, g.deny(domainauth.Unauthorized(domainauth.MsgNoSession), nil)
	}

	user, err := g.resolver.Resolve(ctx, session)
	if err != nil {
		g.logger.WarnContext(ctx, "denying request after user store failure",
			"kind", domainauth.KindInfrastructureFailure, "session_id", session.SessionID, "error", err)
		return nil, g.deny(domainauth.Unauthorized(domainauth.MsgInvalidSession), err)
	}
	if user == nil {
		return nil, g.deny(domainauth.Unauthorized(domainauth.MsgInvalidSession), nil)
	}

	if denial := checkRequirements(user, req); denial != nil {
		return nil, g.deny(denial, nil)
	}

	if g.metrics != nil {
		g.metrics.AuthDecision(metrics.ResultAllow, "", nil)
	}
	return &domainauth.Subject{Session: session, User: user}, nil
}

func checkRequirements(user *domainauth.SessionUser, req Requirements) *domainauth.AuthError {
	if user.Role == domainauth.RoleSuperAdmin {
		return nil
	}
	if req.Role != "" && user.Role != req.Role {
		return domainauth.Forbidden(domainauth.MsgAccessDenied)
	}
	if req.Permission != "" && !user.HasPermission(req.Permission) {
		return domainauth.Forbidden(domainauth.MsgPermissionDenied)
	}
	if len(req.AnyPermission) > 0 {
		for _, p := range req.AnyPermission {
			if user.HasPermission(p) {
				return nil
			}
		}
		return domainauth.Forbidden(domainauth.MsgPermissionDenied)
	}
	return nil
}

func (g *Guard) deny(ae *domainauth.AuthError, cause error) error {
	if g.metrics != nil {
		kind := string(ae.Kind)
		if cause != nil {
			kind = string(domainauth.KindInfrastructureFailure)
		}
		g.metrics.AuthDecision(metrics.ResultDeny, kind, cause)
	}
	return ae
}
