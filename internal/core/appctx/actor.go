// Package appctx provides request-scoped values extraction.
package appctx

import (
	"context"
)

// Actor identifies who is driving a status change or ledger mutation.
// Identification only: policy evaluation lives outside this service.
type Actor struct {
	UserID  string
	Email   string
	Subject string // raw token subject when UserID claim is absent
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context, or nil.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetActorID returns the acting user id from context or "system".
// Ledger mutations are always attributed to someone; internal callers
// that never went through HTTP fall back to the system actor.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.UserID != "" {
		return a.UserID
	}
	return "system"
}
