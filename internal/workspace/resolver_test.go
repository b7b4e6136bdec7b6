package workspace_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/workspace"
)

type stubMembershipStore struct {
	memberships []workspace.Membership
	err         error
}

var _ workspace.MembershipStore = (*stubMembershipStore)(nil)

func (s *stubMembershipStore) ListMemberships(_ context.Context, _ int64) ([]workspace.Membership, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.memberships, nil
}

func testMemberships() []workspace.Membership {
	return []workspace.Membership{
		{WorkspaceID: 1, Slug: "product", Name: "Product", TenantDB: "tenant_product", Role: workspace.RoleMember},
		{WorkspaceID: 2, Slug: "ops", Name: "Ops", TenantDB: "tenant_ops", Role: workspace.RoleChair, IsDefault: true},
		{WorkspaceID: 3, Slug: "legacy", Name: "Legacy", TenantDB: "tenant_legacy", Role: workspace.RoleViewer, IsArchived: true},
	}
}

func newResolver(store workspace.MembershipStore) *workspace.Resolver {
	return workspace.NewResolver(store, zap.NewNop())
}

func principal() domain.Principal {
	return domain.Principal{ID: 7, Email: "alice@example.com"}
}

func TestResolveExplicitSlug(t *testing.T) {
	r := newResolver(&stubMembershipStore{memberships: testMemberships()})

	wctx, err := r.Resolve(context.Background(), principal(), "Product")
	require.NoError(t, err)
	require.Equal(t, int64(1), wctx.Active.WorkspaceID)
	require.Equal(t, "tenant_product", wctx.Active.TenantDB)
}

func TestResolveExplicitNumericID(t *testing.T) {
	r := newResolver(&stubMembershipStore{memberships: testMemberships()})

	wctx, err := r.Resolve(context.Background(), principal(), "2")
	require.NoError(t, err)
	require.Equal(t, "ops", wctx.Active.Slug)
}

func TestResolveNonMemberIsForbidden(t *testing.T) {
	r := newResolver(&stubMembershipStore{memberships: testMemberships()})

	// The request names a workspace the principal does not belong to; no
	// other workspace is substituted.
	_, err := r.Resolve(context.Background(), principal(), "finance")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestResolveStoredDefaultWins(t *testing.T) {
	r := newResolver(&stubMembershipStore{memberships: testMemberships()})
	p := principal()
	id := int64(1)
	p.DefaultWorkspaceID = &id

	wctx, err := r.Resolve(context.Background(), p, "")
	require.NoError(t, err)
	require.Equal(t, "product", wctx.Active.Slug)
}

func TestResolveFallsBackToOrgDefault(t *testing.T) {
	r := newResolver(&stubMembershipStore{memberships: testMemberships()})

	wctx, err := r.Resolve(context.Background(), principal(), "")
	require.NoError(t, err)
	require.Equal(t, "ops", wctx.Active.Slug)
}

func TestResolveSkipsArchivedImplicitly(t *testing.T) {
	memberships := []workspace.Membership{
		{WorkspaceID: 3, Slug: "legacy", TenantDB: "tenant_legacy", Role: workspace.RoleChair, IsDefault: true, IsArchived: true},
		{WorkspaceID: 4, Slug: "live", TenantDB: "tenant_live", Role: workspace.RoleMember},
	}
	r := newResolver(&stubMembershipStore{memberships: memberships})

	wctx, err := r.Resolve(context.Background(), principal(), "")
	require.NoError(t, err)
	require.Equal(t, "live", wctx.Active.Slug)

	// Explicit request still reaches the archived workspace.
	wctx, err = r.Resolve(context.Background(), principal(), "legacy")
	require.NoError(t, err)
	require.True(t, wctx.Active.IsArchived)
}

func TestResolveNoMembershipsIsForbidden(t *testing.T) {
	r := newResolver(&stubMembershipStore{})

	_, err := r.Resolve(context.Background(), principal(), "")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestResolveStoreFailureIsUnavailable(t *testing.T) {
	r := newResolver(&stubMembershipStore{err: errors.New("connection refused")})

	_, err := r.Resolve(context.Background(), principal(), "")
	require.ErrorIs(t, err, domain.ErrUnavailable)
	require.NotErrorIs(t, err, domain.ErrForbidden)
}
