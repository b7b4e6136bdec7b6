// Package bootstrap seeds the control store with an operator identity for
// dev and e2e environments.
package bootstrap

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/auth"
	"github.com/meetingintel/server/internal/config"
	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/repository"
)

// EnsureOperatorToken creates the bootstrap principal and its client token on
// startup when both are configured. Only the token's hash is stored.
func EnsureOperatorToken(
	lc fx.Lifecycle,
	cfg config.Config,
	principals repository.PrincipalRepository,
	tokens repository.TokenRepository,
	node *snowflake.Node,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureOperatorToken(ctx, cfg, principals, tokens, node, logger)
		},
	})
}

func ensureOperatorToken(
	ctx context.Context,
	cfg config.Config,
	principals repository.PrincipalRepository,
	tokens repository.TokenRepository,
	node *snowflake.Node,
	logger *zap.Logger,
) error {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminToken == "" {
		return nil
	}

	principal, err := principals.GetByEmail(ctx, cfg.BootstrapAdminEmail)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		principal, err = principals.Create(ctx, domain.Principal{
			ID:         node.Generate().Int64(),
			Email:      cfg.BootstrapAdminEmail,
			IsOrgAdmin: true,
		})
		if err != nil {
			return err
		}
	}

	hash := auth.HashToken(cfg.BootstrapAdminToken)
	if _, _, err := tokens.GetTokenByHash(ctx, hash); err == nil {
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	if err := tokens.CreateToken(ctx, domain.ClientToken{
		ID:        node.Generate().Int64(),
		TokenHash: hash,
		Name:      "bootstrap operator",
		IsActive:  true,
	}, principal.ID); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("bootstrap operator token created",
			zap.String("email", principal.Email),
			zap.Int64("principal_id", principal.ID),
		)
	}
	return nil
}
