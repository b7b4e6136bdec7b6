package workspace

import "context"

// Role is a principal's role inside one workspace.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
	RoleChair  Role = "chair"
)

// Membership is one (principal, workspace) row from the control store.
type Membership struct {
	WorkspaceID int64
	Slug        string
	Name        string
	TenantDB    string
	Role        Role
	IsDefault   bool
	IsArchived  bool
}

// Context is the immutable, request-scoped tenancy snapshot. It is built
// exactly once per request by the Resolver; every downstream permission and
// routing decision reads the same snapshot.
type Context struct {
	Email       string
	IsOrgAdmin  bool
	Memberships []Membership
	Active      Membership
}

type ctxKey struct{}

// WithContext stores the resolved workspace context for downstream handlers.
func WithContext(ctx context.Context, wctx *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, wctx)
}

// FromContext returns the workspace context attached to the request, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	wctx, ok := ctx.Value(ctxKey{}).(*Context)
	return wctx, ok && wctx != nil
}
