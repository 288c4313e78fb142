package auth

import "errors"

// Role represents an authorisation tier on the control surface.
type Role string

const (
	// RoleViewer can read component state, schedules and the status feed.
	RoleViewer Role = "viewer"

	// RoleOperator can additionally queue commands, dispatch scenes,
	// trigger schedule reloads and record maintenance notes. This is the
	// day-to-day gallery staff role.
	RoleOperator Role = "operator"

	// RoleAdmin has full control: component registration and removal,
	// schedule editing, token issuance. Installer and technician role.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if the role is recognised.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Permission represents a named capability on the control surface.
type Permission string

// Permission constants.
const (
	PermFleetRead      Permission = "fleet:read"
	PermFleetOperate   Permission = "fleet:operate"
	PermFleetManage    Permission = "fleet:manage"
	PermScheduleRead   Permission = "schedule:read"
	PermScheduleManage Permission = "schedule:manage"
	PermSystemAdmin    Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermFleetRead,
		PermScheduleRead,
	},
	RoleOperator: {
		PermFleetRead,
		PermFleetOperate,
		PermScheduleRead,
	},
	RoleAdmin: {
		PermFleetRead,
		PermFleetOperate,
		PermFleetManage,
		PermScheduleRead,
		PermScheduleManage,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrForbidden    = errors.New("insufficient permissions")
)
