package auth

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	ID    uuid.UUID
	Name  string
	Roles []string
}

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool { return a.HasRole(RoleAdmin) }

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext retrieves the actor placed in context by the auth
// middleware. The zero Actor is returned for unauthenticated contexts.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey).(Actor)
	return a
}
