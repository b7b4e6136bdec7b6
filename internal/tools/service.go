// Package tools implements the meeting, action and decision operations
// exposed over both the tool surface and the REST API. Every operation runs
// against the caller's active workspace database, behind the permission
// matrix and the transient-failure retry policy.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/permissions"
	"github.com/meetingintel/server/internal/retry"
	"github.com/meetingintel/server/internal/tenantdb"
	"github.com/meetingintel/server/internal/workspace"
)

// Action status values.
const (
	StatusOpen     = "Open"
	StatusComplete = "Complete"
	StatusParked   = "Parked"
)

// List limits are clamped, not rejected.
const (
	maxMeetingLimit  = 100
	maxSearchLimit   = 50
	maxActionLimit   = 200
	maxDecisionLimit = 200

	defaultListLimit = 20
)

// Service executes workspace-scoped data operations.
type Service struct {
	registry *tenantdb.Registry
	retry    *retry.Executor
	logger   *zap.Logger
}

// NewService wires the data service.
func NewService(registry *tenantdb.Registry, executor *retry.Executor, logger *zap.Logger) *Service {
	return &Service{registry: registry, retry: executor, logger: logger}
}

// pool resolves the active workspace's database pool.
func (s *Service) pool(ctx context.Context, wctx *workspace.Context) (*pgxpool.Pool, error) {
	pool, err := s.registry.Get(ctx, wctx.Active.TenantDB)
	if err != nil {
		return nil, fmt.Errorf("%w: tenant pool: %v", domain.ErrUnavailable, err)
	}
	return pool, nil
}

func (s *Service) authorize(wctx *workspace.Context, op permissions.Operation, entity *permissions.Entity) error {
	decision := permissions.Check(wctx, op, entity)
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", domain.ErrForbidden, decision.Reason)
	}
	return nil
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > max {
		return max
	}
	return limit
}

func parseDate(value string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", domain.ErrInvalidInput, value)
	}
	return parsed, nil
}

func validStatus(status string) bool {
	switch status {
	case StatusOpen, StatusComplete, StatusParked:
		return true
	}
	return false
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
