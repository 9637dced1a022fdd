// ABOUTME: Request-context plumbing for the authenticated principal
// ABOUTME: WithPrincipal/PrincipalFromContext pair used by middleware and handlers

package auth

import "context"

type contextKey struct{}

// WithPrincipal returns a context carrying the authenticated principal id.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, contextKey{}, principalID)
}

// PrincipalFromContext extracts the authenticated principal id, if any.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok
}
