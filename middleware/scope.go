package middleware

import (
	"context"

	"github.com/xraph/fieldops/scope"
	"github.com/xraph/fieldops/transition"
)

// Scope returns middleware that restores the request's actor identity
// into the context so downstream hooks and collaborators see the same
// scope as the original caller.
func Scope() Middleware {
	return func(ctx context.Context, req transition.Request, next Handler) (*transition.Result, error) {
		ctx = scope.WithActor(ctx, req.ActorID)
		return next(ctx)
	}
}
