// Package auth maps opaque bearer tokens to principals via one-way hash
// lookup against the control store.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/domain"
)

// HashToken returns the SHA-256 hex digest under which a token is stored.
// This is the single hashing scheme; tokens are never persisted in plaintext.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokenStore is the control-store lookup the validator depends on.
type TokenStore interface {
	// GetTokenByHash returns the token row and its owning principal, or
	// pgx.ErrNoRows when the hash is unknown.
	GetTokenByHash(ctx context.Context, hash string) (domain.ClientToken, domain.Principal, error)
	// TouchTokenLastUsed refreshes the last-used timestamp.
	TouchTokenLastUsed(ctx context.Context, hash string) error
}

type cacheEntry struct {
	principal domain.Principal
	expiresAt time.Time
}

// Validator validates opaque tokens with a bounded, TTL-based cache in front
// of the control store.
type Validator struct {
	store      TokenStore
	ttl        time.Duration
	maxEntries int
	logger     *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	order []string

	now func() time.Time
}

// NewValidator builds a validator. ttl should be minutes-scale; maxEntries
// bounds cache memory with oldest-inserted-first eviction.
func NewValidator(store TokenStore, ttl time.Duration, maxEntries int, logger *zap.Logger) *Validator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Validator{
		store:      store,
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger,
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}
}

// Validate maps a raw token to its principal.
//
// An unknown, inactive, or expired token is ErrUnauthenticated. A reachable
// control store is required: any store failure is ErrUnavailable, never a
// fallback identity.
func (v *Validator) Validate(ctx context.Context, raw string) (domain.Principal, error) {
	if raw == "" {
		return domain.Principal{}, fmt.Errorf("%w: empty token", domain.ErrUnauthenticated)
	}
	hash := HashToken(raw)

	if principal, ok := v.cached(hash); ok {
		return principal, nil
	}

	token, principal, err := v.store.GetTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			v.purge(hash)
			return domain.Principal{}, fmt.Errorf("%w: unknown token", domain.ErrUnauthenticated)
		}
		v.log().Error("token lookup failed", zap.Error(err))
		return domain.Principal{}, fmt.Errorf("%w: token lookup: %v", domain.ErrUnavailable, err)
	}

	if !token.IsActive || token.Expired(v.now()) {
		v.purge(hash)
		return domain.Principal{}, fmt.Errorf("%w: token inactive or expired", domain.ErrUnauthenticated)
	}

	v.put(hash, principal)
	go v.touch(hash)

	return principal, nil
}

// Invalidate drops any cache entry for the raw token. Used when a token is
// revoked through the management surface.
func (v *Validator) Invalidate(raw string) {
	v.purge(HashToken(raw))
}

func (v *Validator) cached(hash string) (domain.Principal, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.cache[hash]
	if !ok {
		return domain.Principal{}, false
	}
	if v.now().After(entry.expiresAt) {
		delete(v.cache, hash)
		return domain.Principal{}, false
	}
	return entry.principal, true
}

func (v *Validator) put(hash string, principal domain.Principal) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.cache[hash]; !exists {
		v.order = append(v.order, hash)
	}
	v.cache[hash] = cacheEntry{principal: principal, expiresAt: v.now().Add(v.ttl)}

	for len(v.cache) > v.maxEntries && len(v.order) > 0 {
		oldest := v.order[0]
		v.order = v.order[1:]
		delete(v.cache, oldest)
	}
}

func (v *Validator) purge(hash string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.cache, hash)
}

func (v *Validator) touch(hash string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.store.TouchTokenLastUsed(ctx, hash); err != nil {
		v.log().Warn("touch last-used failed", zap.Error(err))
	}
}

func (v *Validator) log() *zap.Logger {
	if v != nil && v.logger != nil {
		return v.logger
	}
	return zap.L()
}
