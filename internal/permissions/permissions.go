// Package permissions implements the role matrix as a pure function over the
// request's workspace context. It performs no I/O; callers pass the entity
// being touched when ownership matters.
package permissions

import (
	"github.com/meetingintel/server/internal/workspace"
)

// Operation names a class of access being requested.
type Operation string

const (
	OpRead            Operation = "read"
	OpCreate          Operation = "create"
	OpUpdate          Operation = "update"
	OpDelete          Operation = "delete"
	OpManageMembers   Operation = "manage_members"
	OpManageWorkspace Operation = "manage_workspace"
)

// Entity carries the fields permission rules inspect on an existing record.
type Entity struct {
	CreatedBy string
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Check evaluates the rules in order and returns the first decisive outcome.
//
// Archival is checked first and is absolute: no mutation reaches an archived
// workspace, org admins included. The org-admin flag grants only workspace and
// member administration; data operations always follow the principal's role in
// the active workspace.
func Check(wctx *workspace.Context, op Operation, entity *Entity) Decision {
	if wctx == nil {
		return deny("no workspace context")
	}

	if wctx.Active.IsArchived && op != OpRead {
		return deny("workspace is archived")
	}

	if op == OpManageWorkspace || op == OpManageMembers {
		if wctx.IsOrgAdmin {
			return allow()
		}
		switch op {
		case OpManageMembers:
			if wctx.Active.Role == workspace.RoleChair {
				return allow()
			}
			return deny("managing members requires the chair role")
		default:
			return deny("managing the workspace requires org admin")
		}
	}

	role := wctx.Active.Role
	switch op {
	case OpRead:
		return allow()
	case OpCreate:
		if role == workspace.RoleViewer {
			return deny("viewers cannot create records")
		}
		return allow()
	case OpUpdate:
		switch role {
		case workspace.RoleChair:
			return allow()
		case workspace.RoleMember:
			if entity != nil && entity.CreatedBy == wctx.Email {
				return allow()
			}
			return deny("members may only update records they created")
		default:
			return deny("viewers cannot update records")
		}
	case OpDelete:
		if role == workspace.RoleChair {
			return allow()
		}
		return deny("deleting records requires the chair role")
	}

	return deny("unknown operation")
}
