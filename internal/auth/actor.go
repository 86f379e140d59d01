// Package auth validates bearer tokens and resolves the acting identity.
package auth

import "context"

// Role is the caller's role within the tenant.
type Role string

const (
	// RoleMember is a regular tenant user.
	RoleMember Role = "member"
	// RoleAdmin is a platform administrator.
	RoleAdmin Role = "admin"
	// RoleImpersonator is an operator acting on behalf of a tenant user.
	RoleImpersonator Role = "impersonator"
)

// ParseRole maps a claim value onto a known role, defaulting to member.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleImpersonator:
		return RoleImpersonator
	default:
		return RoleMember
	}
}

// Actor is the authenticated identity a request acts as. The role is
// resolved once here at the boundary; business logic branches on the
// explicit IsTestRun flag instead of re-inspecting roles.
type Actor struct {
	TenantID string
	UserID   string
	Role     Role
}

// IsTestRun reports whether runs started by this actor are test runs:
// admin and impersonator sessions never act as paying tenant traffic.
func (a Actor) IsTestRun() bool {
	return a.Role == RoleAdmin || a.Role == RoleImpersonator
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const actorContextKey contextKey = "auth_actor"

// ActorFromContext retrieves the authenticated actor from the context.
// The second return value is false if no actor is present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(Actor)
	return actor, ok
}

// ContextWithActor returns a new context with the actor attached.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}
