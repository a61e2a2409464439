// Package devfixture provides a development-only user resolver that answers reserved
// "mock-" user ids from a built-in table. It is wired only when dev mode and
// AUTH_DEV_FIXTURES are both enabled.
package devfixture

import (
	"context"
	"strings"
	"time"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/ports"
)

// Prefix marks user ids served by the fixture table.
const Prefix = "mock-"

// Fixture is one development identity.
type Fixture struct {
	ID    string
	Email string
	Name  string
	Role  domainauth.Role
}

// DefaultFixtures is the built-in table.
func DefaultFixtures() []Fixture {
	return []Fixture{
		{ID: "mock-admin-1", Email: "admin@test.com", Name: "Admin User", Role: domainauth.RoleAdmin},
		{ID: "mock-admin-2", Email: "admin@portal.com", Name: "Portal Admin", Role: domainauth.RoleAdmin},
		{ID: "mock-manager-1", Email: "manager@test.com", Name: "Manager User", Role: domainauth.RoleManager},
		{ID: "mock-member-1", Email: "member@test.com", Name: "Member User", Role: domainauth.RoleMember},
		{ID: "mock-viewer-1", Email: "viewer@test.com", Name: "Viewer User", Role: domainauth.RoleViewer},
	}
}

// Resolver serves Prefix ids from fixtures and delegates everything else to Next.
type Resolver struct {
	Next     ports.UserResolver
	fixtures map[string]Fixture
	now      func() time.Time
}

var _ ports.UserResolver = (*Resolver)(nil)

// NewResolver wraps next. With no fixtures given, DefaultFixtures is used.
func NewResolver(next ports.UserResolver, fixtures ...Fixture) *Resolver {
	if len(fixtures) == 0 {
		fixtures = DefaultFixtures()
	}
	m := make(map[string]Fixture, len(fixtures))
	for _, f := range fixtures {
		m[f.ID] = f
	}
	return &Resolver{Next: next, fixtures: m, now: time.Now}
}

// Resolve answers fixture ids without touching any store.
func (r *Resolver) Resolve(ctx context.Context, session *domainauth.Session) (*domainauth.SessionUser, error) {
	if session == nil || session.IsExpired(r.now()) {
		return nil, nil
	}
	if !strings.HasPrefix(session.UserID, Prefix) {
		if r.Next == nil {
			return nil, nil
		}
		return r.Next.Resolve(ctx, session)
	}

	f, ok := r.fixtures[session.UserID]
	if !ok {
		return nil, nil
	}
	return &domainauth.SessionUser{
		ID:          f.ID,
		Email:       f.Email,
		Name:        f.Name,
		Role:        f.Role,
		Permissions: domainauth.PermissionsFor(f.Role),
		IsActive:    true,
		Labels:      []string{strings.ToLower(string(f.Role))},
	}, nil
}
