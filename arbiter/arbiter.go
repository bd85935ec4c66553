// Package arbiter is the single entry point for job transitions. Every
// request — manual, geofence, or system — goes through [Arbiter.Submit],
// which serializes requests per job, runs the middleware chain around
// the state machine, emits lifecycle hooks, and dispatches side-effect
// intents off the critical path.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/admission"
	"github.com/xraph/fieldops/backoff"
	"github.com/xraph/fieldops/ext"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/middleware"
	"github.com/xraph/fieldops/scope"
	"github.com/xraph/fieldops/sideeffect"
	"github.com/xraph/fieldops/transition"
)

// Compile-time interface checks.
var _ sideeffect.Dispatcher = (*Arbiter)(nil)

// DefaultCommitAttempts is how many times a transition is retried on
// transient persistence failures.
const DefaultCommitAttempts = 3

// DefaultDispatchAttempts is how many times a side-effect dispatch is
// retried before dead-lettering.
const DefaultDispatchAttempts = 3

// DefaultDispatchTimeout bounds one side-effect dispatch attempt.
const DefaultDispatchTimeout = 15 * time.Second

// Notifier sends customer-facing messages. Dispatch is fire and forget:
// a notification failure never affects the transition that produced it.
type Notifier interface {
	NotifyCustomer(ctx context.Context, j *job.Job, reason string) error
}

// MetricsComputer derives travel metrics for a completed job.
type MetricsComputer interface {
	ComputeTravelMetrics(ctx context.Context, j *job.Job) error
}

// Arbiter serializes and applies transition requests.
type Arbiter struct {
	machine *transition.Machine
	exts    *ext.Registry
	logger  *slog.Logger

	locks *keyedMutex
	chain middleware.Middleware

	notifier   Notifier
	metrics    MetricsComputer
	deadLetter *sideeffect.Service
	admission  *admission.Controller

	commitAttempts   int
	dispatchAttempts int
	dispatchTimeout  time.Duration
	strategy         backoff.Strategy

	wg sync.WaitGroup
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithMiddleware sets the middleware chain wrapped around each apply.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(a *Arbiter) { a.chain = middleware.Chain(mws...) }
}

// WithNotifier sets the customer notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(a *Arbiter) { a.notifier = n }
}

// WithMetricsComputer sets the travel metrics collaborator.
func WithMetricsComputer(m MetricsComputer) Option {
	return func(a *Arbiter) { a.metrics = m }
}

// WithDeadLetter sets the sink for dispatches that exhaust their retries.
func WithDeadLetter(s *sideeffect.Service) Option {
	return func(a *Arbiter) { a.deadLetter = s }
}

// WithAdmission sets the controller consulted before each apply.
// Rejected submissions fail with [fieldops.ErrThrottled].
func WithAdmission(c *admission.Controller) Option {
	return func(a *Arbiter) { a.admission = c }
}

// WithCommitAttempts sets the retry budget for transient persistence
// failures during apply.
func WithCommitAttempts(n int) Option {
	return func(a *Arbiter) { a.commitAttempts = n }
}

// WithDispatchAttempts sets the retry budget for side-effect dispatches.
func WithDispatchAttempts(n int) Option {
	return func(a *Arbiter) { a.dispatchAttempts = n }
}

// WithDispatchTimeout bounds each side-effect dispatch attempt.
func WithDispatchTimeout(d time.Duration) Option {
	return func(a *Arbiter) { a.dispatchTimeout = d }
}

// WithBackoff sets the delay strategy between retries.
func WithBackoff(s backoff.Strategy) Option {
	return func(a *Arbiter) { a.strategy = s }
}

// New creates an arbiter around the given machine and hook registry.
func New(machine *transition.Machine, exts *ext.Registry, logger *slog.Logger, opts ...Option) *Arbiter {
	a := &Arbiter{
		machine:          machine,
		exts:             exts,
		logger:           logger,
		locks:            newKeyedMutex(),
		commitAttempts:   DefaultCommitAttempts,
		dispatchAttempts: DefaultDispatchAttempts,
		dispatchTimeout:  DefaultDispatchTimeout,
		strategy:         backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Submit applies one transition request. Requests for the same job run
// strictly one at a time, in arrival order at the lock; requests for
// different jobs run concurrently.
//
// On success Submit returns after the commit — side effects and hooks
// do not delay the caller's answer beyond the synchronous hook fan-out.
func (a *Arbiter) Submit(ctx context.Context, req transition.Request) (*transition.Result, error) {
	if a.admission != nil {
		company, _ := scope.Capture(ctx)
		if !a.admission.Acquire(string(req.Source), company) {
			return nil, fmt.Errorf("%s request for %s: %w", req.Source, req.JobID, fieldops.ErrThrottled)
		}
		defer a.admission.Release(string(req.Source), company)
	}

	unlock := a.locks.lock(req.JobID.String())
	defer unlock()

	res, err := a.apply(ctx, req)
	if err != nil {
		if a.exts != nil && isRejection(err) {
			a.exts.EmitTransitionRejected(ctx, req, err)
		}
		return nil, err
	}

	if res.NoOp {
		return res, nil
	}

	if a.exts != nil {
		a.exts.EmitTransitionApplied(ctx, res.Job, res.From, req)
		if edge, edgeErr := job.EdgeFor(res.From, res.Job.Status); edgeErr == nil {
			if edge.Claims && !res.Job.AssignedTechnicianID.IsNil() {
				a.exts.EmitTechnicianClaimed(ctx, res.Job.ID, res.Job.AssignedTechnicianID)
			}
			if edge.Releases && !res.Job.AssignedTechnicianID.IsNil() {
				a.exts.EmitTechnicianReleased(ctx, res.Job.ID, res.Job.AssignedTechnicianID)
			}
		}
	}

	for _, effect := range res.Effects {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.dispatchWithRetry(res.Job, effect)
		}()
	}

	return res, nil
}

// apply runs the middleware chain around the machine, retrying the
// whole apply on transient persistence failures. The machine re-reads
// the job on every attempt, so a retry sees the latest committed state.
func (a *Arbiter) apply(ctx context.Context, req transition.Request) (*transition.Result, error) {
	var res *transition.Result

	run := func() error {
		var err error
		if a.chain != nil {
			res, err = a.chain(ctx, req, func(ctx context.Context) (*transition.Result, error) {
				return a.machine.Apply(ctx, req)
			})
		} else {
			res, err = a.machine.Apply(ctx, req)
		}
		return err
	}

	err := backoff.Retry(ctx, a.commitAttempts, a.strategy, func(err error) bool {
		return errors.Is(err, fieldops.ErrPersistence)
	}, run)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Dispatch runs one effect synchronously, without retries. It is the
// replay path for dead-lettered effects.
func (a *Arbiter) Dispatch(ctx context.Context, j *job.Job, e job.Effect) error {
	switch e.Kind {
	case job.EffectNotifyCustomer:
		if a.notifier == nil {
			return fmt.Errorf("arbiter: no notifier configured")
		}
		return a.notifier.NotifyCustomer(ctx, j, e.Reason)
	case job.EffectComputeTravelMetrics:
		if a.metrics == nil {
			return fmt.Errorf("arbiter: no metrics computer configured")
		}
		return a.metrics.ComputeTravelMetrics(ctx, j)
	default:
		return fmt.Errorf("arbiter: unknown effect kind %q", e.Kind)
	}
}

// dispatchWithRetry runs one effect with its own deadline, detached
// from the submitting request's context. Exhausted retries dead-letter
// the effect; without a dead letter sink the failure is only logged.
func (a *Arbiter) dispatchWithRetry(j *job.Job, e job.Effect) {
	ctx, cancel := context.WithTimeout(context.Background(), a.dispatchTimeout)
	defer cancel()

	err := backoff.Retry(ctx, a.dispatchAttempts, a.strategy, nil, func() error {
		return a.Dispatch(ctx, j, e)
	})
	if err == nil {
		return
	}

	a.logger.Error("side effect dispatch failed",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", string(e.Kind)),
		slog.String("error", err.Error()),
	)

	if a.deadLetter == nil {
		return
	}
	dlCtx, dlCancel := context.WithTimeout(context.Background(), a.dispatchTimeout)
	defer dlCancel()
	if pushErr := a.deadLetter.Push(dlCtx, j, e, a.dispatchAttempts, err); pushErr != nil {
		a.logger.Error("dead letter push failed",
			slog.String("job_id", j.ID.String()),
			slog.String("kind", string(e.Kind)),
			slog.String("error", pushErr.Error()),
		)
	}
}

// InFlight returns the number of jobs with a request currently held or
// queued at the per-job lock.
func (a *Arbiter) InFlight() int {
	return a.locks.size()
}

// Drain waits for all in-flight side-effect dispatches to settle.
func (a *Arbiter) Drain() {
	a.wg.Wait()
}

// isRejection reports whether err is a semantic rejection worth
// surfacing to hooks, as opposed to an infrastructure failure.
func isRejection(err error) bool {
	return errors.Is(err, fieldops.ErrInvalidTransition) ||
		errors.Is(err, fieldops.ErrBreakOpen) ||
		errors.Is(err, fieldops.ErrTechnicianConflict) ||
		errors.Is(err, fieldops.ErrTechnicianMissing)
}
