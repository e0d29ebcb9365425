package server

import (
	"context"

	"github.com/fleetgrid/fleetgrid/internal/registry"
)

type scopeContextKey struct{}
type roleContextKey struct{}

func withRequestScope(ctx context.Context, scope registry.Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

func requestScope(ctx context.Context) (registry.Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(registry.Scope)
	return scope, ok
}

func withRequestRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleContextKey{}, role)
}

func requestRole(ctx context.Context) string {
	role, _ := ctx.Value(roleContextKey{}).(string)
	return role
}
