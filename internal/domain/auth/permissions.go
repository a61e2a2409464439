package auth

import "sort"

// Permission is a fine-grained capability tag of the form <resource>:<action>.
type Permission string

const (
	PermDonationsView    Permission = "donations:view"
	PermDonationsCreate  Permission = "donations:create"
	PermDonationsEdit    Permission = "donations:edit"
	PermDonationsDelete  Permission = "donations:delete"
	PermDonationsApprove Permission = "donations:approve"
	PermDonationsExport  Permission = "donations:export"
	PermDonationsReports Permission = "donations:reports"

	PermBeneficiariesView   Permission = "beneficiaries:view"
	PermBeneficiariesCreate Permission = "beneficiaries:create"
	PermBeneficiariesEdit   Permission = "beneficiaries:edit"
	PermBeneficiariesDelete Permission = "beneficiaries:delete"
	PermBeneficiariesExport Permission = "beneficiaries:export"

	PermAidView       Permission = "aid:view"
	PermAidCreate     Permission = "aid:create"
	PermAidApprove    Permission = "aid:approve"
	PermAidDistribute Permission = "aid:distribute"

	PermScholarshipsView    Permission = "scholarships:view"
	PermScholarshipsCreate  Permission = "scholarships:create"
	PermScholarshipsEdit    Permission = "scholarships:edit"
	PermScholarshipsApprove Permission = "scholarships:approve"

	PermFinanceView    Permission = "finance:view"
	PermFinanceCreate  Permission = "finance:create"
	PermFinanceEdit    Permission = "finance:edit"
	PermFinanceReports Permission = "finance:reports"
	PermFinanceApprove Permission = "finance:approve"

	PermUsersView   Permission = "users:view"
	PermUsersCreate Permission = "users:create"
	PermUsersEdit   Permission = "users:edit"
	PermUsersDelete Permission = "users:delete"

	PermSettingsView Permission = "settings:view"
	PermSettingsEdit Permission = "settings:edit"

	PermTasksView   Permission = "tasks:view"
	PermTasksCreate Permission = "tasks:create"
	PermTasksEdit   Permission = "tasks:edit"

	PermMeetingsView   Permission = "meetings:view"
	PermMeetingsCreate Permission = "meetings:create"

	PermMessagesView Permission = "messages:view"
	PermMessagesSend Permission = "messages:send"
	PermMessagesBulk Permission = "messages:bulk"
)

var allPermissions = []Permission{
	PermDonationsView, PermDonationsCreate, PermDonationsEdit, PermDonationsDelete,
	PermDonationsApprove, PermDonationsExport, PermDonationsReports,
	PermBeneficiariesView, PermBeneficiariesCreate, PermBeneficiariesEdit,
	PermBeneficiariesDelete, PermBeneficiariesExport,
	PermAidView, PermAidCreate, PermAidApprove, PermAidDistribute,
	PermScholarshipsView, PermScholarshipsCreate, PermScholarshipsEdit, PermScholarshipsApprove,
	PermFinanceView, PermFinanceCreate, PermFinanceEdit, PermFinanceReports, PermFinanceApprove,
	PermUsersView, PermUsersCreate, PermUsersEdit, PermUsersDelete,
	PermSettingsView, PermSettingsEdit,
	PermTasksView, PermTasksCreate, PermTasksEdit,
	PermMeetingsView, PermMeetingsCreate,
	PermMessagesView, PermMessagesSend, PermMessagesBulk,
}

// AllPermissions returns every declared permission.
func AllPermissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

// ParsePermission returns the declared permission named s.
func ParsePermission(s string) (Permission, bool) {
	for _, p := range allPermissions {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// adminExcluded lists what ADMIN cannot do; everything else is granted.
var adminExcluded = map[Permission]struct{}{
	PermDonationsDelete:     {},
	PermBeneficiariesDelete: {},
	PermFinanceApprove:      {},
	PermUsersDelete:         {},
	PermSettingsEdit:        {},
}

// rolePermissions is immutable after init. SUPER_ADMIN is filled in as the union of
// every declared permission so the table itself encodes its supremacy.
var rolePermissions = map[Role]map[Permission]struct{}{
	RoleManager: setOf(
		PermDonationsView, PermDonationsCreate, PermDonationsEdit, PermDonationsExport,
		PermBeneficiariesView, PermBeneficiariesCreate, PermBeneficiariesEdit,
		PermAidView, PermAidCreate,
		PermScholarshipsView, PermScholarshipsCreate, PermScholarshipsEdit,
		PermFinanceView, PermFinanceReports,
		PermUsersView,
		PermTasksView, PermTasksCreate, PermTasksEdit,
		PermMeetingsView, PermMeetingsCreate,
		PermMessagesView, PermMessagesSend,
	),
	RoleMember: setOf(
		PermDonationsView, PermDonationsCreate,
		PermBeneficiariesView,
		PermAidView,
		PermScholarshipsView,
		PermFinanceView,
		PermTasksView, PermTasksCreate,
		PermMeetingsView,
		PermMessagesView, PermMessagesSend,
	),
	RoleViewer: setOf(
		PermDonationsView,
		PermBeneficiariesView,
		PermAidView,
		PermScholarshipsView,
		PermTasksView,
		PermMeetingsView,
		PermMessagesView,
	),
	RoleVolunteer: setOf(
		PermBeneficiariesView,
		PermAidView,
		PermTasksView,
		PermMessagesView,
	),
}

func init() {
	admin := make(map[Permission]struct{}, len(allPermissions))
	for _, p := range allPermissions {
		if _, excluded := adminExcluded[p]; !excluded {
			admin[p] = struct{}{}
		}
	}
	rolePermissions[RoleAdmin] = admin

	super := make(map[Permission]struct{}, len(allPermissions))
	for _, p := range allPermissions {
		super[p] = struct{}{}
	}
	for _, set := range rolePermissions {
		for p := range set {
			super[p] = struct{}{}
		}
	}
	rolePermissions[RoleSuperAdmin] = super
}

func setOf(perms ...Permission) map[Permission]struct{} {
	out := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		out[p] = struct{}{}
	}
	return out
}

// PermissionsFor returns the permission set granted to role, sorted for determinism.
// Unknown roles yield an empty, non-nil slice.
func PermissionsFor(role Role) []Permission {
	set := rolePermissions[role]
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RoleHasPermission reports whether role is granted perm by the table.
func RoleHasPermission(role Role, perm Permission) bool {
	_, ok := rolePermissions[role][perm]
	return ok
}
