package domain

import "time"

// ClientToken is a persisted opaque bearer token. Only the SHA-256 hex digest
// of the plaintext is ever stored.
type ClientToken struct {
	ID         int64
	TokenHash  string
	Email      string
	Name       string
	IsActive   bool
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// Expired reports whether the token carries an expiry in the past.
func (t ClientToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
