// Package middleware provides composable middleware for transition
// application. Middleware wraps the state machine's Apply call
// synchronously and can modify execution (recover from panics, inject
// scope, log, add tracing, etc.).
package middleware

import (
	"context"

	"github.com/xraph/fieldops/transition"
)

// Handler is the terminal function that applies a transition request.
type Handler func(ctx context.Context) (*transition.Result, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the request being applied, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, req transition.Request, next Handler) (*transition.Result, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, scope) executes as:
//
//	logging → recover → scope → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, req transition.Request, next Handler) (*transition.Result, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (*transition.Result, error) {
				return mw(ctx, req, prev)
			}
		}
		return h(ctx)
	}
}
