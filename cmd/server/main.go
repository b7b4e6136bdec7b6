package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/auth"
	"github.com/meetingintel/server/internal/bootstrap"
	"github.com/meetingintel/server/internal/config"
	httptransport "github.com/meetingintel/server/internal/http"
	"github.com/meetingintel/server/internal/http/handler"
	httpmiddleware "github.com/meetingintel/server/internal/http/middleware"
	"github.com/meetingintel/server/internal/jwt"
	mcpserver "github.com/meetingintel/server/internal/mcp"
	apimiddleware "github.com/meetingintel/server/internal/middleware"
	"github.com/meetingintel/server/internal/oauth"
	"github.com/meetingintel/server/internal/repository"
	"github.com/meetingintel/server/internal/retry"
	"github.com/meetingintel/server/internal/server"
	"github.com/meetingintel/server/internal/telemetry"
	"github.com/meetingintel/server/internal/tenantdb"
	"github.com/meetingintel/server/internal/tools"
	"github.com/meetingintel/server/internal/workspace"
)

const version = "1.0.0"

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newControlPool,
			newTokenRepo,
			newPrincipalRepo,
			newTokenRepository,
			newPrincipalRepository,
			newOAuthClientRepository,
			newRefreshLedger,
			newTokenValidator,
			newWorkspaceResolver,
			newSigner,
			newOAuthServer,
			newTenantRegistry,
			newRetryExecutor,
			newToolsService,
			newMCPServer,
			newRateLimiter,
			newOAuthHandler,
			newAPIHandler,
			newHealthHandler,
			newAuthMiddleware,
			newWorkspaceMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureOperatorToken, startOAuthMaintenance, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newControlPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.ControlDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect control store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping control store: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newTokenRepo(pool *pgxpool.Pool) *repository.PostgresTokenRepo {
	return repository.NewPostgresTokenRepo(pool)
}

func newPrincipalRepo(pool *pgxpool.Pool) *repository.PostgresPrincipalRepo {
	return repository.NewPostgresPrincipalRepo(pool)
}

func newTokenRepository(repo *repository.PostgresTokenRepo) repository.TokenRepository {
	return repo
}

func newPrincipalRepository(repo *repository.PostgresPrincipalRepo) repository.PrincipalRepository {
	return repo
}

func newOAuthClientRepository(pool *pgxpool.Pool) repository.OAuthClientRepository {
	return repository.NewPostgresOAuthClientRepo(pool)
}

func newRefreshLedger(pool *pgxpool.Pool) repository.RefreshLedger {
	return repository.NewPostgresRefreshLedger(pool)
}

func newTokenValidator(repo *repository.PostgresTokenRepo, cfg config.Config, logger *zap.Logger) *auth.Validator {
	return auth.NewValidator(repo, cfg.TokenCacheTTL, cfg.TokenCacheEntries, logger)
}

func newWorkspaceResolver(repo *repository.PostgresPrincipalRepo, logger *zap.Logger) *workspace.Resolver {
	return workspace.NewResolver(repo, logger)
}

func newSigner(cfg config.Config) *jwt.Signer {
	return jwt.NewSigner(cfg.JWTSecret, cfg.JWTPreviousSecret, cfg.PublicBaseURL, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func newOAuthServer(
	clients repository.OAuthClientRepository,
	ledger repository.RefreshLedger,
	validator *auth.Validator,
	signer *jwt.Signer,
	cfg config.Config,
	logger *zap.Logger,
) *oauth.Server {
	return oauth.NewServer(clients, ledger, validator, signer, cfg, logger)
}

func newTenantRegistry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *tenantdb.Registry {
	registry := tenantdb.NewRegistry(tenantdb.DefaultOpener(cfg), logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			registry.CloseAll()
			return nil
		},
	})
	return registry
}

func newRetryExecutor(cfg config.Config, logger *zap.Logger) *retry.Executor {
	return retry.NewExecutor(cfg.RetryAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay, logger)
}

func newToolsService(registry *tenantdb.Registry, executor *retry.Executor, logger *zap.Logger) *tools.Service {
	return tools.NewService(registry, executor, logger)
}

func newMCPServer(service *tools.Service, resolver *workspace.Resolver, logger *zap.Logger) *mcpserver.Server {
	return mcpserver.NewServer(service, resolver, version, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg)
}

func newOAuthHandler(srv *oauth.Server, cfg config.Config) *handler.OAuthHandler {
	return handler.NewOAuthHandler(srv, cfg)
}

func newAPIHandler(service *tools.Service) *handler.APIHandler {
	return handler.NewAPIHandler(service)
}

func newHealthHandler(pool *pgxpool.Pool, registry *tenantdb.Registry, cfg config.Config) *handler.HealthHandler {
	return handler.NewHealthHandler(pool, registry, cfg.ServiceName)
}

func newAuthMiddleware(
	validator *auth.Validator,
	oauthServer *oauth.Server,
	principals repository.PrincipalRepository,
	logger *zap.Logger,
) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{
		Validator:  validator,
		OAuth:      oauthServer,
		Principals: principals,
		Logger:     logger,
	}
}

func newWorkspaceMiddleware(resolver *workspace.Resolver) *httpmiddleware.Workspace {
	return &httpmiddleware.Workspace{Resolver: resolver}
}

func startOAuthMaintenance(lc fx.Lifecycle, srv *oauth.Server) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			go srv.RunMaintenance(runCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
