package transition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/availability"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
)

// Store is the read side the machine needs; the write side goes through
// the availability coordinator's atomic commit.
type Store interface {
	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)
}

// Machine applies a single transition request against a job: idempotent
// no-op detection, graph and guard checks, timestamp stamping, and the
// atomic commit of the status write with any technician claim or release.
//
// The machine holds no per-job locking; the arbiter serializes requests
// per job before calling Apply.
type Machine struct {
	store  Store
	avail  *availability.Coordinator
	logger *slog.Logger

	trackingSecret []byte
	trackingTTL    time.Duration
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithTrackingToken enables customer tracking token generation on
// assignment, signed with secret and valid for ttl.
func WithTrackingToken(secret []byte, ttl time.Duration) MachineOption {
	return func(m *Machine) {
		m.trackingSecret = secret
		m.trackingTTL = ttl
	}
}

// NewMachine creates a transition machine.
func NewMachine(store Store, avail *availability.Coordinator, logger *slog.Logger, opts ...MachineOption) *Machine {
	m := &Machine{store: store, avail: avail, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply executes one transition request. On success it returns the
// committed job and the side-effect intents for the taken edge.
//
// A request whose target equals the job's current status succeeds as a
// no-op with no effects — this is what makes duplicate geofence samples
// and racing manual/automatic requests for the same target safe.
func (m *Machine) Apply(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	j, err := m.store.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}

	if j.Status == req.Target {
		return &Result{Job: j, From: j.Status, NoOp: true}, nil
	}

	edge, err := job.EdgeFor(j.Status, req.Target)
	if err != nil {
		return nil, err
	}
	if err := job.CheckGuard(j, edge); err != nil {
		return nil, err
	}

	now := req.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	commit := availability.Commit{Job: j}

	if edge.Claims {
		if req.TechnicianID.IsNil() {
			return nil, fmt.Errorf("%w: target %s", fieldops.ErrTechnicianMissing, req.Target)
		}
		j.AssignedTechnicianID = req.TechnicianID
		commit.Claim = req.TechnicianID

		if len(m.trackingSecret) > 0 {
			expires := now.Add(m.trackingTTL)
			j.TrackingToken = job.NewTrackingToken(m.trackingSecret, j.ID, expires)
			j.TrackingExpiresAt = &expires
		}
	}

	if edge.Releases && !j.AssignedTechnicianID.IsNil() {
		commit.Release = j.AssignedTechnicianID
	}

	j.Status = req.Target
	j.StampStatus(req.Target, now)
	j.Touch()

	if err := m.avail.CommitTransition(ctx, commit); err != nil {
		return nil, err
	}

	m.logger.Info("transition applied",
		slog.String("job_id", j.ID.String()),
		slog.String("from", string(edge.From)),
		slog.String("to", string(edge.To)),
		slog.String("source", string(req.Source)),
	)

	return &Result{Job: j, From: edge.From, Effects: edge.Effects}, nil
}
