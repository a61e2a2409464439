package authroles

import (
	"strings"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
)

// defaultPriority lists label names from most to least privileged.
var defaultPriority = []struct {
	label string
	role  domainauth.Role
}{
	{"superadmin", domainauth.RoleSuperAdmin},
	{"admin", domainauth.RoleAdmin},
	{"manager", domainauth.RoleManager},
	{"member", domainauth.RoleMember},
	{"viewer", domainauth.RoleViewer},
	{"volunteer", domainauth.RoleVolunteer},
}

// LabelRoleMapper maps account labels or IdP groups to a role, picking the most privileged
// match. Groups lists extra group names (e.g. LDAP DNs) per role and is checked alongside
// the built-in label names.
type LabelRoleMapper struct {
	Groups  map[domainauth.Role][]string
	Default domainauth.Role
}

// Map returns the highest-priority role any label maps to, or the default (MEMBER).
func (m LabelRoleMapper) Map(labels []string) domainauth.Role {
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		seen[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}

	for _, p := range defaultPriority {
		if _, ok := seen[p.label]; ok {
			return p.role
		}
		for _, g := range m.Groups[p.role] {
			if _, ok := seen[strings.ToLower(strings.TrimSpace(g))]; ok && g != "" {
				return p.role
			}
		}
	}

	if m.Default != "" {
		return m.Default
	}
	return domainauth.DefaultRole
}
