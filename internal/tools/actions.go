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

// ListActionsInput filters the action listing.
type ListActionsInput struct {
	Status    string
	Owner     string
	MeetingID *int64
	Limit     int
}

// CreateActionInput creates an action. Description is required; DueDate is an
// optional YYYY-MM-DD string.
type CreateActionInput struct {
	Description string
	Owner       string
	DueDate     string
	MeetingID   *int64
}

// UpdateActionInput applies a partial update. Nil fields are untouched.
type UpdateActionInput struct {
	Description *string
	Owner       *string
	Status      *string
	DueDate     *string
}

const actionColumns = `id, meeting_id, description, owner, status, due_date, created_by, created_at, updated_at`

func scanAction(row pgx.Row) (Action, error) {
	var a Action
	err := row.Scan(&a.ID, &a.MeetingID, &a.Description, &a.Owner, &a.Status, &a.DueDate, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// ListActions returns actions matching the filters, most recent first.
func (s *Service) ListActions(ctx context.Context, wctx *workspace.Context, in ListActionsInput) ([]Action, error) {
	if err := s.authorize(wctx, permissions.OpRead, nil); err != nil {
		return nil, err
	}
	if in.Status != "" && !validStatus(in.Status) {
		return nil, fmt.Errorf("%w: status must be one of Open, Complete, Parked", domain.ErrInvalidInput)
	}
	limit := clampLimit(in.Limit, maxActionLimit)

	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	var clauses []string
	args := []any{limit}
	addClause := func(expr string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}
	if in.Status != "" {
		addClause("status = $%d", in.Status)
	}
	if in.Owner != "" {
		addClause("owner ILIKE $%d", in.Owner)
	}
	if in.MeetingID != nil {
		addClause("meeting_id = $%d", *in.MeetingID)
	}

	query := `SELECT ` + actionColumns + ` FROM actions`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT $1`

	var actions []Action
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		rows, err := pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		actions = actions[:0]
		for rows.Next() {
			a, err := scanAction(rows)
			if err != nil {
				return err
			}
			actions = append(actions, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, s.dataError("list actions", err)
	}
	return actions, nil
}

// GetAction returns one action by id.
func (s *Service) GetAction(ctx context.Context, wctx *workspace.Context, id int64) (*Action, error) {
	if err := s.authorize(wctx, permissions.OpRead, nil); err != nil {
		return nil, err
	}
	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	var action Action
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		a, err := scanAction(pool.QueryRow(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = $1`, id))
		if err != nil {
			return err
		}
		action = a
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: action %d", domain.ErrNotFound, id)
		}
		return nil, s.dataError("get action", err)
	}
	return &action, nil
}

// CreateAction inserts an open action attributed to the caller.
func (s *Service) CreateAction(ctx context.Context, wctx *workspace.Context, in CreateActionInput) (*Action, error) {
	if err := s.authorize(wctx, permissions.OpCreate, nil); err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", domain.ErrInvalidInput)
	}

	var dueDate any
	if strings.TrimSpace(in.DueDate) != "" {
		parsed, err := parseDate(in.DueDate)
		if err != nil {
			return nil, err
		}
		dueDate = parsed
	}

	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	var action Action
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		a, err := scanAction(pool.QueryRow(ctx,
			`INSERT INTO actions (meeting_id, description, owner, status, due_date, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+actionColumns,
			in.MeetingID, description, in.Owner, StatusOpen, dueDate, wctx.Email))
		if err != nil {
			return err
		}
		action = a
		return nil
	})
	if err != nil {
		return nil, s.dataError("create action", err)
	}
	return &action, nil
}

// UpdateAction applies the provided fields to an existing action.
func (s *Service) UpdateAction(ctx context.Context, wctx *workspace.Context, id int64, in UpdateActionInput) (*Action, error) {
	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	createdBy, err := s.recordOwner(ctx, pool, "actions", id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(wctx, permissions.OpUpdate, &permissions.Entity{CreatedBy: createdBy}); err != nil {
		return nil, err
	}

	sets := []string{"updated_at = now()"}
	args := []any{id}
	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		if description == "" {
			return nil, fmt.Errorf("%w: description cannot be empty", domain.ErrInvalidInput)
		}
		addSet("description", description)
	}
	if in.Owner != nil {
		addSet("owner", *in.Owner)
	}
	if in.Status != nil {
		if !validStatus(*in.Status) {
			return nil, fmt.Errorf("%w: status must be one of Open, Complete, Parked", domain.ErrInvalidInput)
		}
		addSet("status", *in.Status)
	}
	if in.DueDate != nil {
		parsed, err := parseDate(*in.DueDate)
		if err != nil {
			return nil, err
		}
		addSet("due_date", parsed)
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}

	query := `UPDATE actions SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + actionColumns

	var action Action
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		a, err := scanAction(pool.QueryRow(ctx, query, args...))
		if err != nil {
			return err
		}
		action = a
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: action %d", domain.ErrNotFound, id)
		}
		return nil, s.dataError("update action", err)
	}
	return &action, nil
}

// CompleteAction marks the action Complete.
func (s *Service) CompleteAction(ctx context.Context, wctx *workspace.Context, id int64) (*Action, error) {
	return s.setActionStatus(ctx, wctx, id, StatusComplete)
}

// ParkAction marks the action Parked.
func (s *Service) ParkAction(ctx context.Context, wctx *workspace.Context, id int64) (*Action, error) {
	return s.setActionStatus(ctx, wctx, id, StatusParked)
}

func (s *Service) setActionStatus(ctx context.Context, wctx *workspace.Context, id int64, status string) (*Action, error) {
	return s.UpdateAction(ctx, wctx, id, UpdateActionInput{Status: &status})
}

// DeleteAction removes an action.
func (s *Service) DeleteAction(ctx context.Context, wctx *workspace.Context, id int64) error {
	if err := s.authorize(wctx, permissions.OpDelete, nil); err != nil {
		return err
	}
	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return err
	}

	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		tag, err := pool.Exec(ctx, `DELETE FROM actions WHERE id = $1`, id)
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
			return fmt.Errorf("%w: action %d", domain.ErrNotFound, id)
		}
		return s.dataError("delete action", err)
	}
	return nil
}
