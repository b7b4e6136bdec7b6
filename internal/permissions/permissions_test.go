package permissions_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meetingintel/server/internal/permissions"
	"github.com/meetingintel/server/internal/workspace"
)

func ctxWithRole(role workspace.Role, orgAdmin, archived bool) *workspace.Context {
	active := workspace.Membership{
		WorkspaceID: 1,
		Slug:        "alpha",
		TenantDB:    "tenant_alpha",
		Role:        role,
		IsArchived:  archived,
	}
	return &workspace.Context{
		Email:       "user@example.com",
		IsOrgAdmin:  orgAdmin,
		Memberships: []workspace.Membership{active},
		Active:      active,
	}
}

func TestRoleMatrix(t *testing.T) {
	cases := []struct {
		name    string
		role    workspace.Role
		op      permissions.Operation
		entity  *permissions.Entity
		allowed bool
	}{
		{"viewer reads", workspace.RoleViewer, permissions.OpRead, nil, true},
		{"viewer cannot create", workspace.RoleViewer, permissions.OpCreate, nil, false},
		{"viewer cannot update", workspace.RoleViewer, permissions.OpUpdate, nil, false},
		{"member creates", workspace.RoleMember, permissions.OpCreate, nil, true},
		{"member updates own", workspace.RoleMember, permissions.OpUpdate, &permissions.Entity{CreatedBy: "user@example.com"}, true},
		{"member cannot update others", workspace.RoleMember, permissions.OpUpdate, &permissions.Entity{CreatedBy: "other@example.com"}, false},
		{"member cannot delete", workspace.RoleMember, permissions.OpDelete, nil, false},
		{"chair updates any", workspace.RoleChair, permissions.OpUpdate, &permissions.Entity{CreatedBy: "other@example.com"}, true},
		{"chair deletes", workspace.RoleChair, permissions.OpDelete, nil, true},
		{"chair manages members", workspace.RoleChair, permissions.OpManageMembers, nil, true},
		{"chair cannot manage workspace", workspace.RoleChair, permissions.OpManageWorkspace, nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := permissions.Check(ctxWithRole(tc.role, false, false), tc.op, tc.entity)
			require.Equal(t, tc.allowed, decision.Allowed, decision.Reason)
		})
	}
}

func TestOrgAdminScope(t *testing.T) {
	// Org admin with only a viewer role: administration is granted, data
	// operations still follow the viewer role.
	wctx := ctxWithRole(workspace.RoleViewer, true, false)

	require.True(t, permissions.Check(wctx, permissions.OpManageWorkspace, nil).Allowed)
	require.True(t, permissions.Check(wctx, permissions.OpManageMembers, nil).Allowed)

	require.False(t, permissions.Check(wctx, permissions.OpCreate, nil).Allowed)
	require.False(t, permissions.Check(wctx, permissions.OpUpdate, nil).Allowed)
	require.False(t, permissions.Check(wctx, permissions.OpDelete, nil).Allowed)
	require.True(t, permissions.Check(wctx, permissions.OpRead, nil).Allowed)
}

func TestArchivedWorkspaceDeniesMutation(t *testing.T) {
	for _, role := range []workspace.Role{workspace.RoleViewer, workspace.RoleMember, workspace.RoleChair} {
		wctx := ctxWithRole(role, false, true)
		require.True(t, permissions.Check(wctx, permissions.OpRead, nil).Allowed)
		for _, op := range []permissions.Operation{permissions.OpCreate, permissions.OpUpdate, permissions.OpDelete} {
			require.False(t, permissions.Check(wctx, op, nil).Allowed, "role %s op %s", role, op)
		}
	}

	// Archival applies to org admins too.
	admin := ctxWithRole(workspace.RoleChair, true, true)
	require.False(t, permissions.Check(admin, permissions.OpDelete, nil).Allowed)
	require.False(t, permissions.Check(admin, permissions.OpManageWorkspace, nil).Allowed)
}

func TestNilContextDenied(t *testing.T) {
	require.False(t, permissions.Check(nil, permissions.OpRead, nil).Allowed)
}
