package auth

import "slices"

// Admin roles. Viewers read reports and purchases; admins also run raffles
// and reconcile bank transfers and cash; superadmins also manage operators.
const (
	RoleViewer     = "viewer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

var (
	adminRoles = []string{RoleViewer, RoleAdmin, RoleSuperAdmin}
	writeRoles = []string{RoleAdmin, RoleSuperAdmin}
)

// AllAdminRoles returns every role allowed into /api/admin.
func AllAdminRoles() []string { return slices.Clone(adminRoles) }

// WriteRoles returns the roles that may change raffles, purchases and accounts.
func WriteRoles() []string { return slices.Clone(writeRoles) }

// IsAdminRole reports whether role is one of AllAdminRoles.
func IsAdminRole(role string) bool {
	return slices.Contains(adminRoles, role)
}
