package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/retry"
)

func newFastExecutor(attempts int) *retry.Executor {
	return retry.NewExecutor(attempts, time.Millisecond, 5*time.Millisecond, nil)
}

func TestExecuteSucceedsAfterTransientFault(t *testing.T) {
	exec := newFastExecutor(3)
	calls := 0

	err := exec.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestExecuteDoesNotRetryNonTransient(t *testing.T) {
	exec := newFastExecutor(3)
	calls := 0
	boom := errors.New("constraint violation")

	err := exec.Execute(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestExecuteExhaustionReturnsUnavailable(t *testing.T) {
	exec := newFastExecutor(3)
	calls := 0

	err := exec.Execute(context.Background(), func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "53300"}
	})

	require.ErrorIs(t, err, domain.ErrUnavailable)
	require.Equal(t, 3, calls)
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	exec := retry.NewExecutor(3, time.Minute, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := exec.Execute(ctx, func(context.Context) error {
		return &pgconn.PgError{Code: "08006"}
	})

	require.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"connection exception", &pgconn.PgError{Code: "08001"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"deadlock victim", &pgconn.PgError{Code: "40P01"}, true},
		{"cannot connect now", &pgconn.PgError{Code: "57P03"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"closed pool", errors.New("closed pool"), true},
		{"plain error", errors.New("nope"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.transient, retry.IsTransient(tc.err))
		})
	}
}
