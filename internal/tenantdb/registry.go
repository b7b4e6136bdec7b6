// Package tenantdb owns one pgx pool per tenant database for the lifetime of
// the process.
package tenantdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/config"
)

// OpenFunc creates the pool for one tenant database name. Injected so tests
// can observe creation without a live server.
type OpenFunc func(ctx context.Context, dbName string) (*pgxpool.Pool, error)

// Registry lazily creates and caches one pool per tenant database name.
type Registry struct {
	open   OpenFunc
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[string]*pgxpool.Pool
}

// NewRegistry builds a registry around the provided opener.
func NewRegistry(open OpenFunc, logger *zap.Logger) *Registry {
	return &Registry{
		open:   open,
		logger: logger,
		pools:  make(map[string]*pgxpool.Pool),
	}
}

// DefaultOpener builds tenant pools from the configured DSN pattern. Pools are
// sized conservatively against the shared server's connection ceiling, recycle
// idle connections, and health-check before reuse so they survive store-side
// suspend/resume. Connections are established lazily; the opener itself does
// no network I/O.
func DefaultOpener(cfg config.Config) OpenFunc {
	return func(ctx context.Context, dbName string) (*pgxpool.Pool, error) {
		poolCfg, err := pgxpool.ParseConfig(fmt.Sprintf(cfg.TenantDSNPattern, dbName))
		if err != nil {
			return nil, fmt.Errorf("parse tenant dsn for %q: %w", dbName, err)
		}
		poolCfg.MaxConns = cfg.PoolMaxConns
		poolCfg.MinConns = cfg.PoolMinConns
		poolCfg.MaxConnIdleTime = cfg.PoolMaxConnIdleTime
		poolCfg.MaxConnLifetime = cfg.PoolMaxConnLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("create tenant pool for %q: %w", dbName, err)
		}
		return pool, nil
	}
}

// Get returns the pool for the tenant database, creating it on first use.
// Creation is double-checked: the fast path takes only a read lock, and the
// write lock re-checks before creating so N concurrent callers still produce
// exactly one pool per name.
func (r *Registry) Get(ctx context.Context, dbName string) (*pgxpool.Pool, error) {
	if dbName == "" {
		return nil, fmt.Errorf("tenant database name is empty")
	}

	r.mu.RLock()
	pool, ok := r.pools[dbName]
	r.mu.RUnlock()
	if ok {
		return pool, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.pools[dbName]; ok {
		return pool, nil
	}

	pool, err := r.open(ctx, dbName)
	if err != nil {
		return nil, err
	}
	r.pools[dbName] = pool

	r.log().Info("tenant pool created", zap.String("database", dbName))
	return pool, nil
}

// CloseAll releases every pool. Called once at process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, pool := range r.pools {
		pool.Close()
		delete(r.pools, name)
	}
	r.log().Info("tenant pools disposed")
}

// Len reports how many pools exist.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

func (r *Registry) log() *zap.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return zap.L()
}
