// Package engine wires all FieldOps subsystems together: the transition
// machine, arbiter, geofence engine, location broker, contract
// generator, audit log, and wire gateway.
//
// This package exists to break the import cycle: the root fieldops
// package defines Entity (imported by job, technician, contract, etc.)
// and so cannot import those packages back. The engine package sits
// above all subsystem packages and below the application layer.
package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/admission"
	"github.com/xraph/fieldops/arbiter"
	"github.com/xraph/fieldops/audit"
	"github.com/xraph/fieldops/availability"
	"github.com/xraph/fieldops/cluster"
	"github.com/xraph/fieldops/contract"
	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/ext"
	"github.com/xraph/fieldops/gateway"
	"github.com/xraph/fieldops/geofence"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	mw "github.com/xraph/fieldops/middleware"
	"github.com/xraph/fieldops/observability"
	"github.com/xraph/fieldops/scope"
	"github.com/xraph/fieldops/sideeffect"
	"github.com/xraph/fieldops/stream"
	"github.com/xraph/fieldops/technician"
	"github.com/xraph/fieldops/transition"
)

// Engine wraps a Coordinator with typed subsystem access.
// Use Build() to create one from a Coordinator.
type Engine struct {
	c          *fieldops.Coordinator
	extensions *ext.Registry
	logger     *slog.Logger

	// Stores, split out of the composite store by interface.
	jobs        job.Store
	technicians technician.Store
	contracts   contract.Store
	cluster     cluster.Store

	// Transition path.
	avail   *availability.Coordinator
	machine *transition.Machine
	arb     *arbiter.Arbiter
	mws     []mw.Middleware

	// Location path.
	broker   *stream.Broker
	geofence *geofence.Engine

	// Timeline and dead letters.
	eventLog    *event.Log
	deadLetters *sideeffect.Service

	// Contract subsystem.
	generator *contract.Generator
	node      *cluster.Node

	// Wire gateway. Nil unless a listen address was configured.
	gateway    *gateway.Server
	listenAddr string
	auth       gateway.Authenticator

	// Side-effect collaborators.
	notifier arbiter.Notifier
	metrics  arbiter.MetricsComputer

	// Submission throttling. Nil means no limits.
	admission *admission.Controller

	trackingSecret []byte

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the arbiter's apply chain, after
// the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithNotifier sets the customer notification collaborator used for
// notify_customer side effects.
func WithNotifier(n arbiter.Notifier) Option {
	return func(eng *Engine) {
		eng.notifier = n
	}
}

// WithMetricsComputer sets the travel metrics collaborator used for
// compute_travel_metrics side effects.
func WithMetricsComputer(m arbiter.MetricsComputer) Option {
	return func(eng *Engine) {
		eng.metrics = m
	}
}

// WithAdmission sets the controller that throttles transition
// submissions per source class and company.
func WithAdmission(c *admission.Controller) Option {
	return func(eng *Engine) {
		eng.admission = c
	}
}

// WithTrackingSecret sets the HMAC secret for customer tracking tokens.
// All instances serving the same deployment must share it. If not set,
// a random per-process secret is generated and tokens stop verifying
// across restarts.
func WithTrackingSecret(secret []byte) Option {
	return func(eng *Engine) {
		eng.trackingSecret = secret
	}
}

// WithGateway enables the FWP wire gateway on the given listen address.
func WithGateway(addr string, auth gateway.Authenticator) Option {
	return func(eng *Engine) {
		eng.listenAddr = addr
		eng.auth = auth
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Coordinator.
// The Coordinator's store must implement every subsystem store
// interface; store.Store does.
func Build(c *fieldops.Coordinator, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	st := c.Store()

	if st == nil {
		return nil, fieldops.ErrNoStore
	}

	js, ok := st.(job.Store)
	if !ok {
		return nil, fmt.Errorf("fieldops: store does not implement job.Store")
	}
	ts, ok := st.(technician.Store)
	if !ok {
		return nil, fmt.Errorf("fieldops: store does not implement technician.Store")
	}
	as, ok := st.(availability.Store)
	if !ok {
		return nil, fmt.Errorf("fieldops: store does not implement availability.Store")
	}
	es, ok := st.(event.Store)
	if !ok {
		return nil, fmt.Errorf("fieldops: store does not implement event.Store")
	}
	ss, ok := st.(sideeffect.Store)
	if !ok {
		return nil, fmt.Errorf("fieldops: store does not implement sideeffect.Store")
	}
	cs, ok := st.(contract.Store)
	if !ok {
		return nil, fmt.Errorf("fieldops: store does not implement contract.Store")
	}
	cls, ok := st.(cluster.Store)
	if !ok {
		return nil, fmt.Errorf("fieldops: store does not implement cluster.Store")
	}

	eng := &Engine{
		c:           c,
		extensions:  ext.NewRegistry(logger),
		logger:      logger,
		jobs:        js,
		technicians: ts,
		contracts:   cs,
		cluster:     cls,
	}

	for _, opt := range opts {
		opt(eng)
	}

	cfg := c.Config()

	if len(eng.trackingSecret) == 0 {
		eng.trackingSecret = make([]byte, 32)
		if _, err := rand.Read(eng.trackingSecret); err != nil {
			return nil, fmt.Errorf("generate tracking secret: %w", err)
		}
		logger.Warn("no tracking secret configured, using a random per-process secret")
	}

	// Transition path: availability commit → machine → arbiter.
	eng.avail = availability.NewCoordinator(as, logger)
	eng.machine = transition.NewMachine(js, eng.avail, logger,
		transition.WithTrackingToken(eng.trackingSecret, cfg.TrackingTokenTTL),
	)

	eng.deadLetters = sideeffect.NewService(ss, js)
	eng.eventLog = event.NewLog(es)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/xraph/fieldops")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/fieldops")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/fieldops/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Default apply chain: recover → tracing → metrics → logging → scope → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Scope(),
		mw.Timeout(cfg.ApplyTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	arbOpts := []arbiter.Option{
		arbiter.WithMiddleware(allMws...),
		arbiter.WithDeadLetter(eng.deadLetters),
		arbiter.WithCommitAttempts(cfg.CommitAttempts),
		arbiter.WithDispatchTimeout(cfg.DispatchTimeout),
	}
	if eng.notifier != nil {
		arbOpts = append(arbOpts, arbiter.WithNotifier(eng.notifier))
	}
	if eng.metrics != nil {
		arbOpts = append(arbOpts, arbiter.WithMetricsComputer(eng.metrics))
	}
	if eng.admission != nil {
		arbOpts = append(arbOpts, arbiter.WithAdmission(eng.admission))
	}
	eng.arb = arbiter.New(eng.machine, eng.extensions, logger, arbOpts...)

	// Location path: broker → geofence sink → arbiter.
	eng.broker = stream.NewBroker(logger,
		stream.WithTechnicianStore(ts),
		stream.WithAccuracyLimit(cfg.AccuracyLimitMeters),
		stream.WithSampleRate(cfg.SamplesPerSecond, cfg.SampleBurst),
	)
	eng.geofence = geofence.NewEngine(eng.arb, logger,
		geofence.WithThresholds(cfg.ArrivalProximityMeters, cfg.ArrivalConfirmMeters),
		geofence.WithEmitter(eng.extensions),
	)
	eng.broker.AddSink(eng.geofence)
	eng.extensions.Register(eng.geofence)
	eng.extensions.Register(eng.broker)
	eng.extensions.Register(audit.New(eng.eventLog, audit.WithLogger(logger)))

	// Cluster membership and the contract generator.
	eng.node = cluster.NewNode()
	eng.generator = contract.NewGenerator(cs, js, cls, eng.extensions, eng.node.ID, logger)

	// Runner registration order is stop order reversed: the gateway
	// stops first, the arbiter drains last, just before the store closes.
	c.AddRunner(&drainRunner{arb: eng.arb})
	c.AddRunner(&membershipRunner{store: cls, node: eng.node, logger: logger})
	c.AddRunner(eng.generator)

	if eng.listenAddr != "" {
		handler := gateway.NewHandler(gateway.HandlerConfig{
			Submitter:      eng.arb,
			Jobs:           js,
			Technicians:    ts,
			Events:         es,
			DeadLetters:    eng.deadLetters,
			Dispatcher:     eng.arb,
			Broker:         eng.broker,
			TrackingSecret: eng.trackingSecret,
			Logger:         logger,
		})
		gwOpts := []gateway.Option{gateway.WithLogger(logger)}
		if eng.auth != nil {
			gwOpts = append(gwOpts, gateway.WithAuth(eng.auth))
		}
		eng.gateway = gateway.NewServer(eng.broker, handler, gwOpts...)
		c.AddRunner(&httpRunner{addr: eng.listenAddr, handler: eng.gateway, logger: logger})
	}

	c.SetExtensions(eng.extensions)

	return eng, nil
}

// Start launches all subsystems. It first rebuilds geofence watches for
// jobs that were assigned or en_route when the previous process exited
// (crash recovery), then starts the coordinator's runners.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.resumeWatches(ctx); err != nil {
		eng.logger.Warn("failed to resume geofence watches",
			slog.String("error", err.Error()),
		)
	}

	return eng.c.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.c.Stop(ctx)
}

// resumeWatches re-arms geofence watches from persisted job state.
func (eng *Engine) resumeWatches(ctx context.Context) error {
	var errs []error
	for _, status := range []job.Status{job.StatusAssigned, job.StatusEnRoute} {
		jobs, err := eng.jobs.ListJobsByStatus(ctx, status, job.ListOpts{})
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s jobs: %w", status, err))
			continue
		}
		for _, j := range jobs {
			req := transition.Request{
				JobID:  j.ID,
				Target: j.Status,
				Source: transition.SourceSystem,
			}
			if err := eng.geofence.OnTransitionApplied(ctx, j, j.Status, req); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// CreateJob persists a new job in the given status (draft or pending).
// Company scope is captured from the context.
func (eng *Engine) CreateJob(ctx context.Context, j *job.Job) (*job.Job, error) {
	if j.Status == "" {
		j.Status = job.StatusDraft
	}
	if j.Status != job.StatusDraft && j.Status != job.StatusPending {
		return nil, fmt.Errorf("fieldops: jobs are created as draft or pending, not %s: %w",
			j.Status, fieldops.ErrInvalidTransition)
	}
	if j.ID.IsNil() {
		j.ID = id.NewJobID()
	}
	j.Entity = fieldops.NewEntity()
	if j.CompanyID == "" {
		j.CompanyID, _ = scope.Capture(ctx)
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now().UTC()
	}

	if err := eng.jobs.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// RegisterContract validates a contract's schedule, computes the initial
// NextRunAt, and persists it. Re-registration of the same name is
// idempotent.
func (eng *Engine) RegisterContract(ctx context.Context, ct *contract.Contract) error {
	sched, err := contract.ParseSchedule(ct.Schedule)
	if err != nil {
		return fmt.Errorf("invalid contract schedule %q: %w", ct.Schedule, err)
	}

	if ct.ID.IsNil() {
		ct.ID = id.NewContractID()
	}
	ct.Entity = fieldops.NewEntity()
	if ct.CompanyID == "" {
		ct.CompanyID, _ = scope.Capture(ctx)
	}
	next := sched.Next(time.Now().UTC())
	ct.NextRunAt = &next
	ct.Enabled = true

	if err := eng.contracts.RegisterContract(ctx, ct); err != nil {
		// Idempotent: ignore duplicate contracts.
		if errors.Is(err, fieldops.ErrDuplicateContract) {
			return nil
		}
		return fmt.Errorf("register contract %q: %w", ct.Name, err)
	}

	eng.logger.Info("contract registered",
		slog.String("name", ct.Name),
		slog.String("schedule", ct.Schedule),
		slog.Time("next_run_at", next),
	)

	return nil
}

// Submit applies one transition request through the arbiter.
func (eng *Engine) Submit(ctx context.Context, req transition.Request) (*transition.Result, error) {
	return eng.arb.Submit(ctx, req)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Coordinator returns the underlying Coordinator.
func (eng *Engine) Coordinator() *fieldops.Coordinator { return eng.c }

// Arbiter returns the transition arbiter.
func (eng *Engine) Arbiter() *arbiter.Arbiter { return eng.arb }

// Broker returns the location stream broker.
func (eng *Engine) Broker() *stream.Broker { return eng.broker }

// Geofence returns the geofence engine.
func (eng *Engine) Geofence() *geofence.Engine { return eng.geofence }

// EventLog returns the job timeline log.
func (eng *Engine) EventLog() *event.Log { return eng.eventLog }

// DeadLetters returns the side-effect dead letter service for replay
// and inspection.
func (eng *Engine) DeadLetters() *sideeffect.Service { return eng.deadLetters }

// Generator returns the contract job generator.
func (eng *Engine) Generator() *contract.Generator { return eng.generator }

// Gateway returns the FWP server, or nil if no listen address was
// configured.
func (eng *Engine) Gateway() *gateway.Server { return eng.gateway }

// Node returns this instance's cluster node record.
func (eng *Engine) Node() *cluster.Node { return eng.node }
