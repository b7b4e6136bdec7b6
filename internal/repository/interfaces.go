package repository

import (
	"context"
	"time"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/workspace"
)

// TokenRepository handles opaque client-token persistence.
type TokenRepository interface {
	// GetTokenByHash returns the token row and its owning principal, or
	// pgx.ErrNoRows when the hash is unknown.
	GetTokenByHash(ctx context.Context, hash string) (domain.ClientToken, domain.Principal, error)
	TouchTokenLastUsed(ctx context.Context, hash string) error
	CreateToken(ctx context.Context, token domain.ClientToken, principalID int64) error
}

// PrincipalRepository exposes identity and membership reads.
type PrincipalRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.Principal, error)
	Create(ctx context.Context, principal domain.Principal) (domain.Principal, error)
	ListMemberships(ctx context.Context, principalID int64) ([]workspace.Membership, error)
}

// OAuthClientRepository persists dynamically registered clients.
type OAuthClientRepository interface {
	GetByClientID(ctx context.Context, clientID string) (domain.OAuthClient, error)
	Create(ctx context.Context, client domain.OAuthClient) error
}

// RefreshLedger records every redeemed refresh-token hash so a second
// presentation of the same secret is detectable as replay, and tracks
// families revoked in response.
type RefreshLedger interface {
	// Consume records the hash. It returns false when the hash was already
	// present, which is the replay signal.
	Consume(ctx context.Context, tokenHash, familyID string) (bool, error)
	IsFamilyRevoked(ctx context.Context, familyID string) (bool, error)
	RevokeFamily(ctx context.Context, familyID string) error
	// Prune ages out ledger rows older than maxAge.
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}
