package tools_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/retry"
	"github.com/meetingintel/server/internal/tenantdb"
	"github.com/meetingintel/server/internal/tools"
	"github.com/meetingintel/server/internal/workspace"
)

func newService(open tenantdb.OpenFunc) *tools.Service {
	registry := tenantdb.NewRegistry(open, zap.NewNop())
	executor := retry.NewExecutor(1, time.Millisecond, time.Millisecond, zap.NewNop())
	return tools.NewService(registry, executor, zap.NewNop())
}

func brokenOpener(_ context.Context, _ string) (*pgxpool.Pool, error) {
	return nil, errors.New("store unreachable")
}

func ctxWithRole(role workspace.Role, archived bool) *workspace.Context {
	m := workspace.Membership{
		WorkspaceID: 1,
		Slug:        "ops",
		TenantDB:    "tenant_ops",
		Role:        role,
		IsArchived:  archived,
	}
	return &workspace.Context{
		Email:       "alice@example.com",
		Memberships: []workspace.Membership{m},
		Active:      m,
	}
}

func TestViewerCannotCreate(t *testing.T) {
	s := newService(brokenOpener)
	wctx := ctxWithRole(workspace.RoleViewer, false)

	_, err := s.CreateMeeting(context.Background(), wctx, tools.CreateMeetingInput{Title: "Standup"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = s.CreateAction(context.Background(), wctx, tools.CreateActionInput{Description: "Follow up"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = s.CreateDecision(context.Background(), wctx, tools.CreateDecisionInput{Description: "Ship it"})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDeleteRequiresChair(t *testing.T) {
	s := newService(brokenOpener)

	for _, role := range []workspace.Role{workspace.RoleViewer, workspace.RoleMember} {
		wctx := ctxWithRole(role, false)
		require.ErrorIs(t, s.DeleteMeeting(context.Background(), wctx, 1), domain.ErrForbidden)
		require.ErrorIs(t, s.DeleteAction(context.Background(), wctx, 1), domain.ErrForbidden)
		require.ErrorIs(t, s.DeleteDecision(context.Background(), wctx, 1), domain.ErrForbidden)
	}
}

func TestArchivedWorkspaceRejectsMutations(t *testing.T) {
	s := newService(brokenOpener)
	wctx := ctxWithRole(workspace.RoleChair, true)

	_, err := s.CreateMeeting(context.Background(), wctx, tools.CreateMeetingInput{Title: "Standup"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	err = s.DeleteDecision(context.Background(), wctx, 1)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateMeetingValidation(t *testing.T) {
	s := newService(brokenOpener)
	wctx := ctxWithRole(workspace.RoleMember, false)

	_, err := s.CreateMeeting(context.Background(), wctx, tools.CreateMeetingInput{Title: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.CreateMeeting(context.Background(), wctx, tools.CreateMeetingInput{
		Title:       "Standup",
		MeetingDate: "03/04/2026",
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateActionValidation(t *testing.T) {
	s := newService(brokenOpener)
	wctx := ctxWithRole(workspace.RoleMember, false)

	_, err := s.CreateAction(context.Background(), wctx, tools.CreateActionInput{Description: ""})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.CreateAction(context.Background(), wctx, tools.CreateActionInput{
		Description: "Follow up",
		DueDate:     "next tuesday",
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearchQueryTooShort(t *testing.T) {
	s := newService(brokenOpener)
	wctx := ctxWithRole(workspace.RoleViewer, false)

	_, err := s.SearchMeetings(context.Background(), wctx, tools.SearchMeetingsInput{Query: "a"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListActionsRejectsUnknownStatus(t *testing.T) {
	s := newService(brokenOpener)
	wctx := ctxWithRole(workspace.RoleViewer, false)

	_, err := s.ListActions(context.Background(), wctx, tools.ListActionsInput{Status: "Done"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUnreachableTenantPoolIsUnavailable(t *testing.T) {
	s := newService(brokenOpener)
	wctx := ctxWithRole(workspace.RoleMember, false)

	_, err := s.CreateMeeting(context.Background(), wctx, tools.CreateMeetingInput{Title: "Standup"})
	require.ErrorIs(t, err, domain.ErrUnavailable)
}
