package auth

import (
	"context"

	"github.com/meetingintel/server/internal/domain"
)

type principalKey struct{}

// WithPrincipal stores the authenticated principal on the request context.
func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(domain.Principal)
	return principal, ok
}
