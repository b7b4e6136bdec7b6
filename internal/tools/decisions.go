package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/permissions"
	"github.com/meetingintel/server/internal/workspace"
)

// ListDecisionsInput filters the decision listing.
type ListDecisionsInput struct {
	MeetingID *int64
	Limit     int
}

// CreateDecisionInput creates a decision. Description is required.
type CreateDecisionInput struct {
	Description string
	DecidedBy   string
	MeetingID   *int64
}

const decisionColumns = `id, meeting_id, description, decided_by, created_by, created_at`

func scanDecision(row pgx.Row) (Decision, error) {
	var d Decision
	err := row.Scan(&d.ID, &d.MeetingID, &d.Description, &d.DecidedBy, &d.CreatedBy, &d.CreatedAt)
	return d, err
}

// ListDecisions returns decisions, most recent first.
func (s *Service) ListDecisions(ctx context.Context, wctx *workspace.Context, in ListDecisionsInput) ([]Decision, error) {
	if err := s.authorize(wctx, permissions.OpRead, nil); err != nil {
		return nil, err
	}
	limit := clampLimit(in.Limit, maxDecisionLimit)

	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + decisionColumns + ` FROM decisions`
	args := []any{limit}
	if in.MeetingID != nil {
		query += ` WHERE meeting_id = $2`
		args = append(args, *in.MeetingID)
	}
	query += ` ORDER BY id DESC LIMIT $1`

	var decisions []Decision
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		rows, err := pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		decisions = decisions[:0]
		for rows.Next() {
			d, err := scanDecision(rows)
			if err != nil {
				return err
			}
			decisions = append(decisions, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, s.dataError("list decisions", err)
	}
	return decisions, nil
}

// CreateDecision inserts a decision attributed to the caller.
func (s *Service) CreateDecision(ctx context.Context, wctx *workspace.Context, in CreateDecisionInput) (*Decision, error) {
	if err := s.authorize(wctx, permissions.OpCreate, nil); err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", domain.ErrInvalidInput)
	}

	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	var decision Decision
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		d, err := scanDecision(pool.QueryRow(ctx,
			`INSERT INTO decisions (meeting_id, description, decided_by, created_by)
			 VALUES ($1, $2, $3, $4)
			 RETURNING `+decisionColumns,
			in.MeetingID, description, in.DecidedBy, wctx.Email))
		if err != nil {
			return err
		}
		decision = d
		return nil
	})
	if err != nil {
		return nil, s.dataError("create decision", err)
	}
	return &decision, nil
}

// DeleteDecision removes a decision.
func (s *Service) DeleteDecision(ctx context.Context, wctx *workspace.Context, id int64) error {
	if err := s.authorize(wctx, permissions.OpDelete, nil); err != nil {
		return err
	}
	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return err
	}

	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		tag, err := pool.Exec(ctx, `DELETE FROM decisions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: decision %d", domain.ErrNotFound, id)
		}
		return s.dataError("delete decision", err)
	}
	return nil
}
