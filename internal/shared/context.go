package shared

import "context"

// Scope identifies the tenant context attached to every core operation.
// It arrives already authenticated and authorized upstream.
type Scope struct {
	OrgID    int64
	BranchID int64
	ActorID  int64
}

type scopeContextKey struct{}

// ContextWithScope stores the tenant scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the tenant scope from context.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}
