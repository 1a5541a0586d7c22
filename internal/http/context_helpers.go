package httpx

import (
	"context"

	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
)

// identityKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type identityKey struct{}

// SetIdentityInContext returns a child context that carries the authenticated identity.
func SetIdentityInContext(ctx context.Context, ident domainauth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// IdentityFromContext returns the identity stored by RequireAuth and a boolean indicating presence.
func IdentityFromContext(ctx context.Context) (domainauth.Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(domainauth.Identity)
	if !ok || ident.UserID == "" {
		return domainauth.Identity{}, false
	}
	return ident, true
}
