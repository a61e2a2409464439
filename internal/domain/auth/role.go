package auth

import "strings"

// Role is a coarse-grained identity classification driving default permissions.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleMember     Role = "MEMBER"
	RoleViewer     Role = "VIEWER"
	RoleVolunteer  Role = "VOLUNTEER"
)

// DefaultRole is assigned to records that carry no role.
const DefaultRole = RoleMember

var allRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleManager, RoleMember, RoleViewer, RoleVolunteer}

// AllRoles returns every role from most to least privileged.
func AllRoles() []Role {
	return append([]Role(nil), allRoles...)
}

// ParseRole parses a role name case-insensitively. Dashes and spaces are accepted in place
// of underscores ("super-admin", "super admin").
func ParseRole(s string) (Role, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	for _, r := range allRoles {
		if string(r) == v {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
