// Package permissions is the static role to permission table used to admit
// control-plane requests. It holds no state beyond the table and never blocks.
package permissions

import (
	"sort"

	"github.com/tillpoint/controlplane/internal/models"
)

const (
	TenantsRead   = "tenants:read"
	TenantsCreate = "tenants:create"
	TenantsUpdate = "tenants:update"
	TenantsDelete = "tenants:delete"

	LicensesRead   = "licenses:read"
	LicensesCreate = "licenses:create"
	LicensesUpdate = "licenses:update"
	LicensesDelete = "licenses:delete"

	UsersRead   = "users:read"
	UsersCreate = "users:create"
	UsersUpdate = "users:update"
	UsersDelete = "users:delete"

	AuditRead    = "audit:read"
	SecurityRead = "security:read"

	AlertsRead   = "alerts:read"
	AlertsCreate = "alerts:create"
	AlertsUpdate = "alerts:update"
	AlertsDelete = "alerts:delete"

	ReportsGenerate = "reports:generate"
	DataExport      = "data:export"
	SettingsUpdate  = "settings:update"
)

var all = []string{
	TenantsRead, TenantsCreate, TenantsUpdate, TenantsDelete,
	LicensesRead, LicensesCreate, LicensesUpdate, LicensesDelete,
	UsersRead, UsersCreate, UsersUpdate, UsersDelete,
	AuditRead, SecurityRead,
	AlertsRead, AlertsCreate, AlertsUpdate, AlertsDelete,
	ReportsGenerate, DataExport, SettingsUpdate,
}

// fallbackRole receives any role outside the defined set.
const fallbackRole = models.RoleSupport

var table = map[models.Role]map[string]struct{}{
	models.RoleSuperAdmin: setOf(all...),
	models.RoleOperations: setOf(
		TenantsRead, TenantsCreate, TenantsUpdate, TenantsDelete,
		LicensesRead, LicensesCreate, LicensesUpdate, LicensesDelete,
		UsersRead, AuditRead, SecurityRead,
		AlertsRead, AlertsCreate, AlertsUpdate, AlertsDelete,
		ReportsGenerate, DataExport,
	),
	models.RoleSupport: setOf(TenantsRead, LicensesRead, UsersRead, AlertsRead),
}

func setOf(perms ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func resolve(role models.Role) map[string]struct{} {
	if set, ok := table[role]; ok {
		return set
	}
	return table[fallbackRole]
}

// All returns every defined permission in declaration order.
func All() []string {
	out := make([]string, len(all))
	copy(out, all)
	return out
}

// Permissions returns the sorted permission set of role. Unknown roles get the
// least-privileged set.
func Permissions(role models.Role) []string {
	set := resolve(role)
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasPermission reports whether role grants permission.
func HasPermission(role models.Role, permission string) bool {
	_, ok := resolve(role)[permission]
	return ok
}

// HasAll reports whether role grants every permission listed.
func HasAll(role models.Role, perms ...string) bool {
	set := resolve(role)
	for _, p := range perms {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}
