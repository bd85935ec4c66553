// Package geofence derives automatic job transitions from technician
// location samples. The engine watches every assigned and en_route job:
// when the technician comes within the departure radius of the site the
// job moves to en_route, and within the arrival radius it moves to
// in_progress.
//
// Watches start and stop off the transition hook stream, never off the
// sample stream, so manual transitions (including cancellation) retire a
// watch the same way automatic ones do.
package geofence

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/fieldops/ext"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/stream"
	"github.com/xraph/fieldops/transition"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Engine)(nil)
	_ ext.TransitionApplied = (*Engine)(nil)
	_ ext.Shutdown          = (*Engine)(nil)
	_ stream.SampleSink     = (*Engine)(nil)
)

// DefaultProximityMeters is the departure radius: an assigned
// technician this close to the site is considered en route arrived.
const DefaultProximityMeters = 500.0

// DefaultConfirmMeters is the arrival radius: an en_route technician
// this close to the site is considered on site.
const DefaultConfirmMeters = 50.0

// DefaultSubmitTimeout bounds one automatic transition submission.
const DefaultSubmitTimeout = 10 * time.Second

// Submitter accepts transition requests. The arbiter implements it;
// the engine never applies transitions itself.
type Submitter interface {
	Submit(ctx context.Context, req transition.Request) (*transition.Result, error)
}

// Emitter is the hook surface the engine notifies on triggers.
// *ext.Registry implements it.
type Emitter interface {
	EmitGeofenceTriggered(ctx context.Context, req transition.Request, distanceMeters float64)
}

// Engine evaluates location samples against active watches and submits
// automatic transition requests when a threshold is crossed.
type Engine struct {
	submitter Submitter
	emitter   Emitter
	logger    *slog.Logger

	mu     sync.Mutex
	byJob  map[string]*watch // jobID → watch
	byTech map[string]*watch // technicianID → watch

	triggers     atomic.Int64
	staleDropped atomic.Int64

	proximityMeters float64
	confirmMeters   float64
	submitTimeout   time.Duration

	wg sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds overrides the departure and arrival radii in meters.
func WithThresholds(proximity, confirm float64) Option {
	return func(e *Engine) {
		e.proximityMeters = proximity
		e.confirmMeters = confirm
	}
}

// WithSubmitTimeout bounds each automatic submission.
func WithSubmitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.submitTimeout = d }
}

// WithEmitter sets the hook emitter notified on each trigger.
func WithEmitter(em Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// NewEngine creates a geofence engine that submits requests through the
// given submitter.
func NewEngine(submitter Submitter, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		submitter:       submitter,
		logger:          logger,
		byJob:           make(map[string]*watch),
		byTech:          make(map[string]*watch),
		proximityMeters: DefaultProximityMeters,
		confirmMeters:   DefaultConfirmMeters,
		submitTimeout:   DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Engine) Name() string { return "geofence-engine" }

// ConsumeSample implements stream.SampleSink. Threshold evaluation is
// synchronous; the resulting submission runs on its own goroutine so the
// ingest path never blocks on storage.
func (e *Engine) ConsumeSample(ctx context.Context, s stream.Sample) {
	e.mu.Lock()
	w, ok := e.byTech[s.TechnicianID.String()]
	if !ok {
		e.mu.Unlock()
		return
	}

	if s.RecordedAt.Before(w.startedAt) {
		e.mu.Unlock()
		e.staleDropped.Add(1)
		return
	}

	dist := geo.HaversineMeters(s.Location, w.site)
	w.lastDistance = dist
	w.lastSampleAt = s.RecordedAt

	if w.suppressed {
		e.mu.Unlock()
		return
	}

	var target job.Status
	switch w.status {
	case job.StatusAssigned:
		if dist <= e.proximityMeters {
			target = job.StatusEnRoute
		}
	case job.StatusEnRoute:
		if dist <= e.confirmMeters {
			target = job.StatusInProgress
		}
	}
	if target == "" {
		e.mu.Unlock()
		return
	}

	w.suppressed = true
	req := transition.Request{
		JobID:     w.jobID,
		Target:    target,
		Source:    transition.SourceGeofence,
		Timestamp: s.RecordedAt,
	}
	e.mu.Unlock()

	e.triggers.Add(1)
	e.logger.Info("geofence trigger",
		slog.String("job_id", req.JobID.String()),
		slog.String("target", string(target)),
		slog.Float64("distance_m", dist),
	)

	if e.emitter != nil {
		e.emitter.EmitGeofenceTriggered(ctx, req, dist)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.submit(req)
	}()
}

// submit sends one automatic request. A failed submission clears the
// suppression so a later sample can retry; the applied hook clears it
// on success.
func (e *Engine) submit(req transition.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), e.submitTimeout)
	defer cancel()

	if _, err := e.submitter.Submit(ctx, req); err != nil {
		e.logger.Warn("geofence submission failed",
			slog.String("job_id", req.JobID.String()),
			slog.String("target", string(req.Target)),
			slog.String("error", err.Error()),
		)
		e.mu.Lock()
		if w, ok := e.byJob[req.JobID.String()]; ok {
			w.suppressed = false
		}
		e.mu.Unlock()
	}
}

// OnTransitionApplied implements ext.TransitionApplied: it is the single
// place watches start, advance, and retire.
func (e *Engine) OnTransitionApplied(_ context.Context, j *job.Job, _ job.Status, req transition.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !j.Status.Watchable() {
		e.removeLocked(j.ID)
		return nil
	}

	if j.AssignedTechnicianID.IsNil() || j.Location.IsZero() {
		// Nothing to measure against; drop any stale watch.
		e.removeLocked(j.ID)
		return nil
	}

	now := req.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if w, ok := e.byJob[j.ID.String()]; ok && w.techID.String() == j.AssignedTechnicianID.String() {
		// Same job, same technician: advance the watch to the new status
		// and re-arm it.
		w.status = j.Status
		w.suppressed = false
		return nil
	}

	// A technician carries at most one watch; a new assignment
	// supersedes whatever they were watched for before.
	e.removeLocked(j.ID)
	if prev, ok := e.byTech[j.AssignedTechnicianID.String()]; ok {
		e.removeLocked(prev.jobID)
	}

	w := &watch{
		id:        id.NewWatchID(),
		jobID:     j.ID,
		techID:    j.AssignedTechnicianID,
		site:      j.Location,
		status:    j.Status,
		startedAt: now,
	}
	e.byJob[j.ID.String()] = w
	e.byTech[w.techID.String()] = w

	e.logger.Debug("watch started",
		slog.String("watch_id", w.id.String()),
		slog.String("job_id", j.ID.String()),
		slog.String("technician_id", w.techID.String()),
	)
	return nil
}

// OnShutdown implements ext.Shutdown: it waits for in-flight
// submissions and drops all watches.
func (e *Engine) OnShutdown(_ context.Context) error {
	e.wg.Wait()
	e.mu.Lock()
	e.byJob = make(map[string]*watch)
	e.byTech = make(map[string]*watch)
	e.mu.Unlock()
	e.logger.Info("geofence engine shut down")
	return nil
}

func (e *Engine) removeLocked(jobID id.JobID) {
	w, ok := e.byJob[jobID.String()]
	if !ok {
		return
	}
	delete(e.byJob, jobID.String())
	delete(e.byTech, w.techID.String())
}

// Watch returns a snapshot of the active watch for a job, if any.
func (e *Engine) Watch(jobID id.JobID) (WatchInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.byJob[jobID.String()]
	if !ok {
		return WatchInfo{}, false
	}
	return w.info(), true
}

// Watches returns snapshots of all active watches.
func (e *Engine) Watches() []WatchInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]WatchInfo, 0, len(e.byJob))
	for _, w := range e.byJob {
		out = append(out, w.info())
	}
	return out
}

// Stats returns engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	active := len(e.byJob)
	e.mu.Unlock()
	return Stats{
		ActiveWatches: active,
		Triggers:      e.triggers.Load(),
		StaleDropped:  e.staleDropped.Load(),
	}
}

// Stats contains geofence engine counters.
type Stats struct {
	ActiveWatches int   `json:"active_watches"`
	Triggers      int64 `json:"triggers"`
	StaleDropped  int64 `json:"stale_dropped"`
}
