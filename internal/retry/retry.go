// Package retry classifies backing-store faults and retries the transient
// ones with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/domain"
)

// Executor runs operations against a tenant store, retrying transient faults.
type Executor struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *zap.Logger
}

// NewExecutor builds an executor. Zero or negative values fall back to the
// defaults of 3 attempts, 500ms base delay, and a 10s cap.
func NewExecutor(attempts int, baseDelay, maxDelay time.Duration, logger *zap.Logger) *Executor {
	if attempts <= 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	return &Executor{attempts: attempts, baseDelay: baseDelay, maxDelay: maxDelay, logger: logger}
}

// Execute runs op, retrying on transient faults with exponential backoff.
// op must acquire its own connection from the pool on every call so each
// retry gets a fresh handle. Non-transient errors propagate immediately.
// After the attempts are exhausted the caller sees ErrUnavailable, never an
// unclassified failure.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == e.attempts {
			break
		}

		delay := e.backoff(attempt)
		e.log().Warn("transient store fault, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, ctx.Err())
		case <-timer.C:
		}
	}

	e.log().Error("retries exhausted", zap.Int("attempts", e.attempts), zap.Error(lastErr))
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, lastErr)
}

func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.baseDelay << (attempt - 1)
	if delay > e.maxDelay || delay <= 0 {
		return e.maxDelay
	}
	return delay
}

func (e *Executor) log() *zap.Logger {
	if e != nil && e.logger != nil {
		return e.logger
	}
	return zap.L()
}

// IsTransient reports whether the error matches a known transient fault
// signature: communication failures, resource exhaustion, deadlock victims,
// connection resets, and a store that is shutting down or resuming.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		case strings.HasPrefix(pgErr.Code, "53"): // insufficient resources
			return true
		case pgErr.Code == "40001" || pgErr.Code == "40P01": // serialization failure, deadlock
			return true
		case pgErr.Code == "57P01" || pgErr.Code == "57P03": // admin shutdown, cannot connect now
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "unexpected EOF"),
		strings.Contains(msg, "closed pool"):
		return true
	}

	return false
}
