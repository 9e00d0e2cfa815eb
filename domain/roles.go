package domain

// UserRole is the account-level role assigned to a local user.
type UserRole string

// Standard Roles
const (
	RoleAdministrator UserRole = "ADMINISTRATOR"
	RoleUser          UserRole = "USER"
)

// WorkspaceRole is the role of a member inside a workspace.
type WorkspaceRole string

const (
	WorkspaceRoleManager WorkspaceRole = "PROJECT_MANAGER"
	WorkspaceRoleMember  WorkspaceRole = "MEMBER"
)
