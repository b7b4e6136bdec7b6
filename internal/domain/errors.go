package domain

import "errors"

// Sentinel errors shared across the identity and tenancy layer. Handlers map
// these to HTTP statuses; callers wrap them with %w so errors.Is keeps working
// through the stack.
var (
	// ErrUnauthenticated covers missing, invalid, or expired credentials.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden covers role, ownership, membership, and archived-workspace
	// violations.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput covers malformed request parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers unknown entities, clients, codes, and workspaces.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable covers infrastructure failures after retries are
	// exhausted, and a configured-but-unreachable control store. It is the
	// fail-closed outcome: it must never be downgraded to a permissive
	// default identity or tenant.
	ErrUnavailable = errors.New("temporarily unavailable")
)
