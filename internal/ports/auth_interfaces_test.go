package ports_test

import (
	"testing"

	"github.com/dernekportal/portal-api/internal/adapters/authroles"
	"github.com/dernekportal/portal-api/internal/adapters/redis"
	"github.com/dernekportal/portal-api/internal/data"
	"github.com/dernekportal/portal-api/internal/mocks"
	memory "github.com/dernekportal/portal-api/internal/mocks/auth"
	"github.com/dernekportal/portal-api/internal/ports"
)

// Compile-time checks that production adapters and test doubles satisfy the ports.
func TestAdaptersImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.CredentialStore = (*data.UserRepo)(nil)
	var _ ports.UserDirectory = (*data.UserRepo)(nil)
	var _ ports.SessionStore = (*redis.SessionStore)(nil)
	var _ ports.SessionRevoker = (*redis.SessionStore)(nil)
	var _ ports.RoleMapper = authroles.LabelRoleMapper{}
}

func TestDoublesImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthProvider = (*memory.MockAuthProvider)(nil)
	var _ ports.SessionStore = (*memory.MemorySessionStore)(nil)
	var _ ports.CredentialStore = (*memory.MemoryUserStore)(nil)
	var _ ports.RoleMapper = (*memory.StaticRoleMapper)(nil)

	var _ ports.AccountService = (*mocks.MockAccountService)(nil)
	var _ ports.UserResolver = (*mocks.MockUserResolver)(nil)
	var _ ports.UserStore = (*mocks.MockUserStore)(nil)
	var _ ports.UserDirectory = (*mocks.MockUserDirectory)(nil)
	var _ ports.SessionRevoker = (*mocks.MockSessionRevoker)(nil)
}
