package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/permissions"
	"github.com/meetingintel/server/internal/workspace"
)

// ListMeetingsInput filters the meeting listing.
type ListMeetingsInput struct {
	Limit    int
	DaysBack int
}

// SearchMeetingsInput is a text search over titles and notes.
type SearchMeetingsInput struct {
	Query string
	Limit int
}

// CreateMeetingInput creates a meeting. Title is required; MeetingDate is an
// optional YYYY-MM-DD string.
type CreateMeetingInput struct {
	Title       string
	MeetingDate string
	Attendees   []string
	Notes       string
}

// UpdateMeetingInput applies a partial update. Nil fields are untouched.
type UpdateMeetingInput struct {
	Title       *string
	MeetingDate *string
	Attendees   []string
	Notes       *string
}

const meetingColumns = `id, title, meeting_date, attendees, notes, created_by, created_at, updated_at`

func scanMeeting(row pgx.Row) (Meeting, error) {
	var m Meeting
	err := row.Scan(&m.ID, &m.Title, &m.MeetingDate, &m.Attendees, &m.Notes, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// ListMeetings returns the most recent meetings, newest first.
func (s *Service) ListMeetings(ctx context.Context, wctx *workspace.Context, in ListMeetingsInput) ([]Meeting, error) {
	if err := s.authorize(wctx, permissions.OpRead, nil); err != nil {
		return nil, err
	}
	limit := clampLimit(in.Limit, maxMeetingLimit)

	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + meetingColumns + ` FROM meetings`
	args := []any{limit}
	if in.DaysBack > 0 {
		query += ` WHERE meeting_date >= CURRENT_DATE - $2::int`
		args = append(args, in.DaysBack)
	}
	query += ` ORDER BY meeting_date DESC NULLS LAST, id DESC LIMIT $1`

	var meetings []Meeting
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		rows, err := pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		meetings = meetings[:0]
		for rows.Next() {
			m, err := scanMeeting(rows)
			if err != nil {
				return err
			}
			meetings = append(meetings, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, s.dataError("list meetings", err)
	}
	return meetings, nil
}

// GetMeeting returns a meeting with its linked decisions and actions.
func (s *Service) GetMeeting(ctx context.Context, wctx *workspace.Context, id int64) (*MeetingDetail, error) {
	if err := s.authorize(wctx, permissions.OpRead, nil); err != nil {
		return nil, err
	}
	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	var detail MeetingDetail
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		m, err := scanMeeting(pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
		if err != nil {
			return err
		}
		detail = MeetingDetail{Meeting: m, Decisions: []Decision{}, Actions: []Action{}}

		rows, err := pool.Query(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE meeting_id = $1 ORDER BY id`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDecision(rows)
			if err != nil {
				return err
			}
			detail.Decisions = append(detail.Decisions, d)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		actionRows, err := pool.Query(ctx, `SELECT `+actionColumns+` FROM actions WHERE meeting_id = $1 ORDER BY id`, id)
		if err != nil {
			return err
		}
		defer actionRows.Close()
		for actionRows.Next() {
			a, err := scanAction(actionRows)
			if err != nil {
				return err
			}
			detail.Actions = append(detail.Actions, a)
		}
		return actionRows.Err()
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: meeting %d", domain.ErrNotFound, id)
		}
		return nil, s.dataError("get meeting", err)
	}
	return &detail, nil
}

// SearchMeetings matches the query against titles and notes.
func (s *Service) SearchMeetings(ctx context.Context, wctx *workspace.Context, in SearchMeetingsInput) ([]Meeting, error) {
	if err := s.authorize(wctx, permissions.OpRead, nil); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(in.Query)
	if len(query) < 2 {
		return nil, fmt.Errorf("%w: search query must be at least 2 characters", domain.ErrInvalidInput)
	}
	limit := clampLimit(in.Limit, maxSearchLimit)

	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	pattern := "%" + query + "%"
	var meetings []Meeting
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		rows, err := pool.Query(ctx,
			`SELECT `+meetingColumns+` FROM meetings
			 WHERE title ILIKE $1 OR notes ILIKE $1
			 ORDER BY meeting_date DESC NULLS LAST, id DESC LIMIT $2`,
			pattern, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		meetings = meetings[:0]
		for rows.Next() {
			m, err := scanMeeting(rows)
			if err != nil {
				return err
			}
			meetings = append(meetings, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, s.dataError("search meetings", err)
	}
	return meetings, nil
}

// CreateMeeting inserts a meeting attributed to the caller.
func (s *Service) CreateMeeting(ctx context.Context, wctx *workspace.Context, in CreateMeetingInput) (*Meeting, error) {
	if err := s.authorize(wctx, permissions.OpCreate, nil); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}

	var meetingDate any
	if strings.TrimSpace(in.MeetingDate) != "" {
		parsed, err := parseDate(in.MeetingDate)
		if err != nil {
			return nil, err
		}
		meetingDate = parsed
	}

	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	var meeting Meeting
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		m, err := scanMeeting(pool.QueryRow(ctx,
			`INSERT INTO meetings (title, meeting_date, attendees, notes, created_by)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+meetingColumns,
			title, meetingDate, in.Attendees, in.Notes, wctx.Email))
		if err != nil {
			return err
		}
		meeting = m
		return nil
	})
	if err != nil {
		return nil, s.dataError("create meeting", err)
	}
	return &meeting, nil
}

// UpdateMeeting applies the provided fields to an existing meeting.
func (s *Service) UpdateMeeting(ctx context.Context, wctx *workspace.Context, id int64, in UpdateMeetingInput) (*Meeting, error) {
	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return nil, err
	}

	createdBy, err := s.recordOwner(ctx, pool, "meetings", id)
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
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", domain.ErrInvalidInput)
		}
		addSet("title", title)
	}
	if in.MeetingDate != nil {
		parsed, err := parseDate(*in.MeetingDate)
		if err != nil {
			return nil, err
		}
		addSet("meeting_date", parsed)
	}
	if in.Attendees != nil {
		addSet("attendees", in.Attendees)
	}
	if in.Notes != nil {
		addSet("notes", *in.Notes)
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}

	query := `UPDATE meetings SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + meetingColumns

	var meeting Meeting
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		m, err := scanMeeting(pool.QueryRow(ctx, query, args...))
		if err != nil {
			return err
		}
		meeting = m
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: meeting %d", domain.ErrNotFound, id)
		}
		return nil, s.dataError("update meeting", err)
	}
	return &meeting, nil
}

// DeleteMeeting removes a meeting. Linked decisions and actions keep their
// rows with the meeting reference cleared.
func (s *Service) DeleteMeeting(ctx context.Context, wctx *workspace.Context, id int64) error {
	if err := s.authorize(wctx, permissions.OpDelete, nil); err != nil {
		return err
	}
	pool, err := s.pool(ctx, wctx)
	if err != nil {
		return err
	}

	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		if _, err := pool.Exec(ctx, `UPDATE decisions SET meeting_id = NULL WHERE meeting_id = $1`, id); err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, `UPDATE actions SET meeting_id = NULL WHERE meeting_id = $1`, id); err != nil {
			return err
		}
		tag, err := pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, id)
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
			return fmt.Errorf("%w: meeting %d", domain.ErrNotFound, id)
		}
		return s.dataError("delete meeting", err)
	}
	return nil
}

// recordOwner fetches created_by for ownership-sensitive permission checks.
func (s *Service) recordOwner(ctx context.Context, pool queryRower, table string, id int64) (string, error) {
	var createdBy string
	err := s.retry.Execute(ctx, func(ctx context.Context) error {
		return pool.QueryRow(ctx, `SELECT created_by FROM `+table+` WHERE id = $1`, id).Scan(&createdBy)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s record %d", domain.ErrNotFound, strings.TrimSuffix(table, "s"), id)
		}
		return "", s.dataError("load record owner", err)
	}
	return createdBy, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Service) dataError(op string, err error) error {
	if errors.Is(err, domain.ErrUnavailable) {
		return err
	}
	s.log().Error("data operation failed", zap.String("operation", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}
