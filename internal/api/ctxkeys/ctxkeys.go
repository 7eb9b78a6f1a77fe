// Package ctxkeys holds the shared context keys for the API layer. A leaf
// package so middleware and handlers agree on key type and value without an
// import cycle.
package ctxkeys

import "context"

// Key is the unexported named type for all API context keys. A named type
// cannot collide with string keys from other packages (context.Value compares
// both type and value).
type Key string

// Actor is the context key for the authenticated admin identity, injected by
// the auth middleware from JWT claims.
const Actor Key = "actor"

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// ActorFrom extracts the actor from the context, empty when unauthenticated.
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(Actor).(string)
	return actor
}
