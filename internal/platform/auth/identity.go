package auth

import (
	"context"
)

// Identity is the authenticated caller as seen by the vault handlers.
// Roles drive the method-based authorization check.
type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

type ctxKeyIdentity struct{}

// ContextWithIdentity stores the caller identity for downstream handlers.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

// IdentityFromContext returns the identity set by the auth middleware.
// ok is false on requests that never passed through it.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}
