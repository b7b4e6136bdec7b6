package workspace

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/domain"
)

// MembershipStore loads tenancy rows from the control store.
type MembershipStore interface {
	// ListMemberships returns every membership the principal holds, archived
	// workspaces included. The resolver filters archived rows for implicit
	// selection so it can distinguish "archived" from "not a member".
	ListMemberships(ctx context.Context, principalID int64) ([]Membership, error)
}

// Resolver picks the single active workspace for a request.
type Resolver struct {
	store  MembershipStore
	logger *zap.Logger
}

// NewResolver creates a workspace resolver.
func NewResolver(store MembershipStore, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve loads the principal's memberships and selects the active one.
//
// Selection priority: an explicitly requested workspace (slug or numeric id),
// the principal's stored default workspace, the membership flagged as the
// organization default, then the first membership. A requested workspace the
// principal is not a member of is Forbidden; another workspace is never
// substituted in its place. Any control-store failure resolves to Unavailable,
// never to a degraded-trust context.
func (r *Resolver) Resolve(ctx context.Context, principal domain.Principal, requested string) (*Context, error) {
	memberships, err := r.store.ListMemberships(ctx, principal.ID)
	if err != nil {
		r.log().Error("membership lookup failed",
			zap.String("email", principal.Email),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: list memberships: %v", domain.ErrUnavailable, err)
	}
	if len(memberships) == 0 {
		return nil, fmt.Errorf("%w: no workspace memberships", domain.ErrForbidden)
	}

	active, err := selectActive(memberships, principal, strings.TrimSpace(requested))
	if err != nil {
		return nil, err
	}

	return &Context{
		Email:       principal.Email,
		IsOrgAdmin:  principal.IsOrgAdmin,
		Memberships: memberships,
		Active:      active,
	}, nil
}

func selectActive(memberships []Membership, principal domain.Principal, requested string) (Membership, error) {
	if requested != "" {
		for _, m := range memberships {
			if matchesRequest(m, requested) {
				return m, nil
			}
		}
		return Membership{}, fmt.Errorf("%w: not a member of workspace %q", domain.ErrForbidden, requested)
	}

	// Archived workspaces stay reachable by explicit request (reads are still
	// allowed there) but are never picked implicitly.
	live := memberships[:0:0]
	for _, m := range memberships {
		if !m.IsArchived {
			live = append(live, m)
		}
	}
	if len(live) == 0 {
		return Membership{}, fmt.Errorf("%w: no active workspace memberships", domain.ErrForbidden)
	}

	if principal.DefaultWorkspaceID != nil {
		for _, m := range live {
			if m.WorkspaceID == *principal.DefaultWorkspaceID {
				return m, nil
			}
		}
	}

	for _, m := range live {
		if m.IsDefault {
			return m, nil
		}
	}

	return live[0], nil
}

func matchesRequest(m Membership, requested string) bool {
	if strings.EqualFold(m.Slug, requested) {
		return true
	}
	if id, err := strconv.ParseInt(requested, 10, 64); err == nil {
		return m.WorkspaceID == id
	}
	return false
}

func (r *Resolver) log() *zap.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return zap.L()
}
