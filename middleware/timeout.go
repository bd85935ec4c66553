package middleware

import (
	"context"
	"time"

	"github.com/xraph/fieldops/transition"
)

// Timeout returns middleware that enforces a deadline on a single
// transition application, including its atomic commit. A zero limit
// disables the deadline and the middleware becomes a pass-through.
func Timeout(limit time.Duration) Middleware {
	return func(ctx context.Context, _ transition.Request, next Handler) (*transition.Result, error) {
		if limit > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
		return next(ctx)
	}
}
