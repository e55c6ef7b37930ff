package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionUsersRead allows viewing the user roster.
	PermissionUsersRead Permission = "users:read"

	// PermissionUsersWrite allows creating and deleting users.
	PermissionUsersWrite Permission = "users:write"

	// PermissionQuestionsRead allows viewing the question bank.
	PermissionQuestionsRead Permission = "questions:read"

	// PermissionQuestionsWrite allows adding and deleting questions.
	PermissionQuestionsWrite Permission = "questions:write"

	// PermissionSettingsRead allows viewing per-category exam settings.
	PermissionSettingsRead Permission = "settings:read"

	// PermissionSettingsWrite allows editing per-category exam settings.
	PermissionSettingsWrite Permission = "settings:write"

	// PermissionResultsRead allows viewing attempt results and statistics.
	PermissionResultsRead Permission = "results:read"

	// PermissionMonitorRead allows attaching to the live exam monitor.
	PermissionMonitorRead Permission = "monitor:read"

	// PermissionDashboardRead allows viewing the admin dashboard.
	PermissionDashboardRead Permission = "dashboard:read"

	// PermissionAuditRead allows viewing the admin action log.
	PermissionAuditRead Permission = "audit:read"

	// PermissionSystemRead allows streaming host and queue metrics.
	PermissionSystemRead Permission = "system:read"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionUsersRead,
	PermissionUsersWrite,
	PermissionQuestionsRead,
	PermissionQuestionsWrite,
	PermissionSettingsRead,
	PermissionSettingsWrite,
	PermissionResultsRead,
	PermissionMonitorRead,
	PermissionDashboardRead,
	PermissionAuditRead,
	PermissionSystemRead,
}

// RolePermissions maps each staff role to its fixed permission set.
// Students carry no permissions.
var RolePermissions = map[Role][]Permission{
	RoleAdmin: AllPermissions,
	RoleLeader: {
		PermissionQuestionsRead,
		PermissionSettingsRead,
		PermissionResultsRead,
		PermissionMonitorRead,
		PermissionDashboardRead,
	},
}

// PermissionCodes returns the permission strings granted to role.
func PermissionCodes(role Role) []string {
	perms := RolePermissions[role]
	codes := make([]string, len(perms))
	for i, p := range perms {
		codes[i] = string(p)
	}
	return codes
}
