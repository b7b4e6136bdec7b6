package domain

// Principal is an authenticated identity, independent of the workspace it is
// currently acting in. Rows are owned by the control store; this service only
// reads them.
type Principal struct {
	ID                 int64
	Email              string
	IsOrgAdmin         bool
	DefaultWorkspaceID *int64
}
