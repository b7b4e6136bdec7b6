package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/workspace"
)

// Compile-time interface assertions.
var (
	_ TokenRepository       = (*PostgresTokenRepo)(nil)
	_ PrincipalRepository   = (*PostgresPrincipalRepo)(nil)
	_ OAuthClientRepository = (*PostgresOAuthClientRepo)(nil)
	_ RefreshLedger         = (*PostgresRefreshLedger)(nil)

	_ workspace.MembershipStore = (*PostgresPrincipalRepo)(nil)
)

// PostgresTokenRepo implements TokenRepository against the control store.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: pool}
}

const getTokenByHashSQL = `
SELECT t.id, t.token_hash, t.name, t.is_active, t.expires_at, t.last_used_at, t.created_at,
       p.id, p.email, p.is_org_admin, p.default_workspace_id
FROM client_tokens t
JOIN principals p ON p.id = t.principal_id
WHERE t.token_hash = $1`

func (r *PostgresTokenRepo) GetTokenByHash(ctx context.Context, hash string) (domain.ClientToken, domain.Principal, error) {
	var token domain.ClientToken
	var principal domain.Principal

	if err := r.db.QueryRow(ctx, getTokenByHashSQL, hash).Scan(
		&token.ID,
		&token.TokenHash,
		&token.Name,
		&token.IsActive,
		&token.ExpiresAt,
		&token.LastUsedAt,
		&token.CreatedAt,
		&principal.ID,
		&principal.Email,
		&principal.IsOrgAdmin,
		&principal.DefaultWorkspaceID,
	); err != nil {
		return domain.ClientToken{}, domain.Principal{}, err
	}
	token.Email = principal.Email

	return token, principal, nil
}

const touchTokenSQL = `UPDATE client_tokens SET last_used_at = now() WHERE token_hash = $1`

func (r *PostgresTokenRepo) TouchTokenLastUsed(ctx context.Context, hash string) error {
	if _, err := r.db.Exec(ctx, touchTokenSQL, hash); err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	return nil
}

const insertTokenSQL = `
INSERT INTO client_tokens (id, token_hash, principal_id, name, is_active, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (r *PostgresTokenRepo) CreateToken(ctx context.Context, token domain.ClientToken, principalID int64) error {
	if _, err := r.db.Exec(ctx, insertTokenSQL,
		token.ID,
		token.TokenHash,
		principalID,
		token.Name,
		token.IsActive,
		token.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// PostgresPrincipalRepo implements PrincipalRepository and the resolver's
// membership store.
type PostgresPrincipalRepo struct {
	db *pgxpool.Pool
}

func NewPostgresPrincipalRepo(pool *pgxpool.Pool) *PostgresPrincipalRepo {
	return &PostgresPrincipalRepo{db: pool}
}

const getPrincipalByEmailSQL = `
SELECT id, email, is_org_admin, default_workspace_id
FROM principals
WHERE lower(email) = lower($1)`

func (r *PostgresPrincipalRepo) GetByEmail(ctx context.Context, email string) (domain.Principal, error) {
	var principal domain.Principal
	if err := r.db.QueryRow(ctx, getPrincipalByEmailSQL, email).Scan(
		&principal.ID,
		&principal.Email,
		&principal.IsOrgAdmin,
		&principal.DefaultWorkspaceID,
	); err != nil {
		return domain.Principal{}, err
	}
	return principal, nil
}

const insertPrincipalSQL = `
INSERT INTO principals (id, email, is_org_admin)
VALUES ($1, $2, $3)
RETURNING id, email, is_org_admin, default_workspace_id`

func (r *PostgresPrincipalRepo) Create(ctx context.Context, principal domain.Principal) (domain.Principal, error) {
	var created domain.Principal
	if err := r.db.QueryRow(ctx, insertPrincipalSQL,
		principal.ID,
		principal.Email,
		principal.IsOrgAdmin,
	).Scan(
		&created.ID,
		&created.Email,
		&created.IsOrgAdmin,
		&created.DefaultWorkspaceID,
	); err != nil {
		return domain.Principal{}, fmt.Errorf("create principal: %w", err)
	}
	return created, nil
}

const listMembershipsSQL = `
SELECT w.id, w.slug, w.name, w.tenant_db, w.is_default, w.is_archived, m.role
FROM workspace_members m
JOIN workspaces w ON w.id = m.workspace_id
WHERE m.principal_id = $1
ORDER BY w.is_default DESC, w.slug ASC`

func (r *PostgresPrincipalRepo) ListMemberships(ctx context.Context, principalID int64) ([]workspace.Membership, error) {
	rows, err := r.db.Query(ctx, listMembershipsSQL, principalID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []workspace.Membership
	for rows.Next() {
		var m workspace.Membership
		var role string
		if err := rows.Scan(&m.WorkspaceID, &m.Slug, &m.Name, &m.TenantDB, &m.IsDefault, &m.IsArchived, &role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Role = workspace.Role(role)
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return memberships, nil
}

// PostgresOAuthClientRepo implements OAuthClientRepository.
type PostgresOAuthClientRepo struct {
	db *pgxpool.Pool
}

func NewPostgresOAuthClientRepo(pool *pgxpool.Pool) *PostgresOAuthClientRepo {
	return &PostgresOAuthClientRepo{db: pool}
}

const getOAuthClientSQL = `
SELECT client_id, secret_hash, name, redirect_uris, scope, grant_types, created_at
FROM oauth_clients
WHERE client_id = $1`

func (r *PostgresOAuthClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.OAuthClient, error) {
	var client domain.OAuthClient
	if err := r.db.QueryRow(ctx, getOAuthClientSQL, clientID).Scan(
		&client.ClientID,
		&client.SecretHash,
		&client.Name,
		&client.RedirectURIs,
		&client.Scope,
		&client.GrantTypes,
		&client.CreatedAt,
	); err != nil {
		return domain.OAuthClient{}, err
	}
	return client, nil
}

const insertOAuthClientSQL = `
INSERT INTO oauth_clients (client_id, secret_hash, name, redirect_uris, scope, grant_types)
VALUES ($1, $2, $3, $4, $5, $6)`

func (r *PostgresOAuthClientRepo) Create(ctx context.Context, client domain.OAuthClient) error {
	if _, err := r.db.Exec(ctx, insertOAuthClientSQL,
		client.ClientID,
		client.SecretHash,
		client.Name,
		client.RedirectURIs,
		client.Scope,
		client.GrantTypes,
	); err != nil {
		return fmt.Errorf("insert oauth client: %w", err)
	}
	return nil
}

// PostgresRefreshLedger implements RefreshLedger.
type PostgresRefreshLedger struct {
	db *pgxpool.Pool
}

func NewPostgresRefreshLedger(pool *pgxpool.Pool) *PostgresRefreshLedger {
	return &PostgresRefreshLedger{db: pool}
}

const consumeRefreshSQL = `
INSERT INTO oauth_refresh_ledger (token_hash, family_id, consumed_at)
VALUES ($1, $2, now())
ON CONFLICT (token_hash) DO NOTHING`

func (l *PostgresRefreshLedger) Consume(ctx context.Context, tokenHash, familyID string) (bool, error) {
	tag, err := l.db.Exec(ctx, consumeRefreshSQL, tokenHash, familyID)
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const familyRevokedSQL = `SELECT EXISTS (SELECT 1 FROM oauth_revoked_families WHERE family_id = $1)`

func (l *PostgresRefreshLedger) IsFamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	var revoked bool
	if err := l.db.QueryRow(ctx, familyRevokedSQL, familyID).Scan(&revoked); err != nil {
		return false, fmt.Errorf("family revoked lookup: %w", err)
	}
	return revoked, nil
}

const revokeFamilySQL = `
INSERT INTO oauth_revoked_families (family_id, revoked_at)
VALUES ($1, now())
ON CONFLICT (family_id) DO NOTHING`

func (l *PostgresRefreshLedger) RevokeFamily(ctx context.Context, familyID string) error {
	if _, err := l.db.Exec(ctx, revokeFamilySQL, familyID); err != nil {
		return fmt.Errorf("revoke family: %w", err)
	}
	return nil
}

const pruneLedgerSQL = `DELETE FROM oauth_refresh_ledger WHERE consumed_at < now() - $1::interval`

func (l *PostgresRefreshLedger) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := l.db.Exec(ctx, pruneLedgerSQL, maxAge.String())
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}
