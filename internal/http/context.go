package http

import (
	"context"

	"github.com/example/digital-lending/internal/application"
)

type contextKey string

const principalContextKey contextKey = "principal"

// ContextWithPrincipal stores the acting principal on the context.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext retrieves the acting principal, if any.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}
