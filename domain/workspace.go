package domain

import (
	"strings"
	"time"
)

type WorkspaceType string

const (
	WorkspaceTypePersonal WorkspaceType = "PERSONAL"
	WorkspaceTypeInternal WorkspaceType = "INTERNAL"
)

const personalWorkspaceSuffix = "_personal"

type WorkspaceMember struct {
	Login string        `bson:"login" json:"login"`
	Role  WorkspaceRole `bson:"role"  json:"role"`
}

// Workspace is a project space a user works in. Names are unique.
type Workspace struct {
	Name      string            `bson:"_id"        json:"name"`
	Type      WorkspaceType     `bson:"type"       json:"type"`
	Owner     string            `bson:"owner"      json:"owner"`
	Members   []WorkspaceMember `bson:"members"    json:"members"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
}

// PersonalWorkspaceName derives the personal workspace name of a login.
// The same login always maps to the same name.
func PersonalWorkspaceName(login string) string {
	return strings.ReplaceAll(NormalizeLogin(login), ".", "_") + personalWorkspaceSuffix
}

// NewPersonalWorkspace builds the personal workspace of login, owned and
// managed by that user.
func NewPersonalWorkspace(login string, now time.Time) *Workspace {
	return &Workspace{
		Name:      PersonalWorkspaceName(login),
		Type:      WorkspaceTypePersonal,
		Owner:     login,
		Members:   []WorkspaceMember{{Login: login, Role: WorkspaceRoleManager}},
		CreatedAt: now,
	}
}
