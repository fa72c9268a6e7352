// Package actor identifies who is performing an action. The HTTP layer
// attaches an Actor after verifying the bearer token; background jobs use
// SystemActor.
package actor

import (
	"context"
	"fmt"
)

// SystemID is the id recorded for scheduler and consumer work.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the principal id, taken from the token subject.
	ID string `json:"id"`

	// Username, when known, for log lines.
	Username string `json:"username,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil || a.IsSystem() {
		return "system"
	}
	if a.Username == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.Username, a.ID)
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == SystemID
}

// IDPtr returns the id for nullable columns, nil for the system.
func (a *Actor) IDPtr() *string {
	if a.IsSystem() {
		return nil
	}
	id := a.ID
	return &id
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the system itself.
func SystemActor() *Actor {
	return &Actor{
		ID:       SystemID,
		Username: "system",
	}
}
