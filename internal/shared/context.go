package shared

import "context"

// Principal is the authenticated actor attached to a request.
type Principal interface {
	GetID() int64
	GetUsername() string
	GetRole() string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the authenticated principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p != nil
}
