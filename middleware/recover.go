package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/fieldops/transition"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req transition.Request, next Handler) (res *transition.Result, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("transition handler panicked",
					slog.String("job_id", req.JobID.String()),
					slog.String("target", string(req.Target)),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				res = nil
				retErr = fmt.Errorf("panic applying transition for job %s: %v", req.JobID, r)
			}
		}()
		return next(ctx)
	}
}
