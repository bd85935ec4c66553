package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/fieldops/transition"
)

// Logging returns middleware that logs transition application and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req transition.Request, next Handler) (*transition.Result, error) {
		logger.Debug("transition submitted",
			slog.String("job_id", req.JobID.String()),
			slog.String("target", string(req.Target)),
			slog.String("source", string(req.Source)),
		)

		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			logger.Error("transition failed",
				slog.String("job_id", req.JobID.String()),
				slog.String("target", string(req.Target)),
				slog.String("source", string(req.Source)),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		case res.NoOp:
			logger.Debug("transition no-op",
				slog.String("job_id", req.JobID.String()),
				slog.String("target", string(req.Target)),
			)
		default:
			logger.Info("transition committed",
				slog.String("job_id", req.JobID.String()),
				slog.String("target", string(req.Target)),
				slog.String("source", string(req.Source)),
				slog.Duration("elapsed", elapsed),
			)
		}

		return res, err
	}
}
