package auth

import "slices"

// Role represents an authorisation tier.
type Role string

// Roles, least to most privileged.
const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// ValidRoles is the set of valid roles.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermTerminalRead    Permission = "terminal:read"
	PermTerminalOperate Permission = "terminal:operate"
	PermTerminalAdmin   Permission = "terminal:admin"
	PermAuditRead       Permission = "audit:read"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermTerminalRead,
	},
	RoleOperator: {
		PermTerminalRead,
		PermTerminalOperate,
	},
	RoleAdmin: {
		PermTerminalRead,
		PermTerminalOperate,
		PermTerminalAdmin,
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}
