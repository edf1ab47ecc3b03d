package auth

import (
	"context"

	"github.com/alecgard/taskara/internal/membership"
)

type contextKey int

const (
	userContextKey contextKey = iota
	projectContextKey
)

// ProjectAccess is the project resolved by RequireProjectRole and the role
// the caller holds in it.
type ProjectAccess struct {
	ProjectID string
	Role      membership.Role
}

// ContextWithUser returns a new context carrying the given user.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the user from the context, or nil if not present.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// ContextWithProject returns a new context carrying the resolved project.
func ContextWithProject(ctx context.Context, access ProjectAccess) context.Context {
	return context.WithValue(ctx, projectContextKey, access)
}

// ProjectFromContext returns the project resolved by RequireProjectRole.
func ProjectFromContext(ctx context.Context) (ProjectAccess, bool) {
	access, ok := ctx.Value(projectContextKey).(ProjectAccess)
	return access, ok
}
