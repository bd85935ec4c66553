package contract

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/cluster"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
)

// Emitter emits contract lifecycle events.
// ext.Registry satisfies this interface via EmitContractFired.
type Emitter interface {
	EmitContractFired(ctx context.Context, contractName string, jobID id.JobID)
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTickInterval sets how often the generator checks for due contracts.
func WithTickInterval(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.tickInterval = d }
}

// WithLockTTL sets the TTL for per-contract distributed locks.
func WithLockTTL(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.lockTTL = d }
}

// WithLeaderTTL sets the TTL for leader election.
func WithLeaderTTL(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.leaderTTL = d }
}

// cronParser supports standard 5-field cron and descriptors like "@monthly".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
// Exported for use when registering contracts.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Generator creates jobs from due contracts on a tick loop. Only the
// cluster leader executes ticks to prevent double-firing.
type Generator struct {
	contracts    Store
	jobs         job.Store
	clusterStore cluster.Store
	emitter      Emitter
	nodeID       id.NodeID
	logger       *slog.Logger

	tickInterval time.Duration
	lockTTL      time.Duration
	leaderTTL    time.Duration

	// parsed caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewGenerator creates a Generator.
func NewGenerator(
	contracts Store,
	jobs job.Store,
	clusterStore cluster.Store,
	emitter Emitter,
	nodeID id.NodeID,
	logger *slog.Logger,
	opts ...GeneratorOption,
) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{
		contracts:    contracts,
		jobs:         jobs,
		clusterStore: clusterStore,
		emitter:      emitter,
		nodeID:       nodeID,
		logger:       logger,
		tickInterval: 1 * time.Second,
		lockTTL:      30 * time.Second,
		leaderTTL:    15 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start launches the leader election and contract tick goroutines.
func (g *Generator) Start(_ context.Context) error {
	g.wg.Add(2)
	go g.leaderLoop()
	go g.tickLoop()
	g.logger.Info("contract generator started",
		slog.String("node_id", g.nodeID.String()),
		slog.Duration("tick_interval", g.tickInterval),
	)
	return nil
}

// Stop signals the generator to stop and waits for goroutines to finish.
func (g *Generator) Stop(_ context.Context) error {
	close(g.stopCh)
	g.wg.Wait()
	g.logger.Info("contract generator stopped")
	return nil
}

// leaderLoop continuously attempts to acquire or renew leadership.
func (g *Generator) leaderLoop() {
	defer g.wg.Done()

	renewInterval := g.leaderTTL / 2
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	// Try once immediately at start.
	g.tryLeadership()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.tryLeadership()
		}
	}
}

func (g *Generator) tryLeadership() {
	ctx := context.Background()

	// Try to renew first (cheap if already leader).
	renewed, err := g.clusterStore.RenewLeadership(ctx, g.nodeID, g.leaderTTL)
	if err != nil {
		g.logger.Warn("leadership renew error", slog.String("error", err.Error()))
		return
	}
	if renewed {
		return
	}

	// Not leader yet; try to acquire.
	acquired, err := g.clusterStore.AcquireLeadership(ctx, g.nodeID, g.leaderTTL)
	if err != nil {
		g.logger.Warn("leadership acquire error", slog.String("error", err.Error()))
		return
	}
	if acquired {
		g.logger.Info("acquired contract leadership", slog.String("node_id", g.nodeID.String()))
	}
}

// tickLoop fires on each tick interval and processes due contracts.
func (g *Generator) tickLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

func (g *Generator) tick() {
	ctx := context.Background()

	leader, err := g.clusterStore.GetLeader(ctx)
	if err != nil {
		g.logger.Warn("get leader error", slog.String("error", err.Error()))
		return
	}
	if leader == nil || leader.ID.String() != g.nodeID.String() {
		return // Not the leader; skip.
	}

	if err := g.sweep(ctx); err != nil {
		g.logger.Error("contract sweep error", slog.String("error", err.Error()))
	}
}

// TickNow runs one contract sweep immediately instead of waiting for
// the next tick. It fails with [fieldops.ErrNotLeader] when this node
// does not hold leadership.
func (g *Generator) TickNow(ctx context.Context) error {
	leader, err := g.clusterStore.GetLeader(ctx)
	if err != nil {
		return err
	}
	if leader == nil || leader.ID.String() != g.nodeID.String() {
		return fieldops.ErrNotLeader
	}
	return g.sweep(ctx)
}

// sweep fires every enabled contract that is due. Leadership is
// re-verified after the listing so a node that lost the lease while
// reading stops before firing anything.
func (g *Generator) sweep(ctx context.Context) error {
	entries, err := g.contracts.ListContracts(ctx)
	if err != nil {
		return err
	}

	leader, err := g.clusterStore.GetLeader(ctx)
	if err != nil {
		return err
	}
	if leader == nil || leader.ID.String() != g.nodeID.String() {
		return fieldops.ErrLeadershipLost
	}

	now := time.Now().UTC()
	for _, c := range entries {
		if !c.Enabled {
			continue
		}
		if c.NextRunAt == nil || c.NextRunAt.After(now) {
			continue
		}
		g.fire(ctx, c, now)
	}
	return nil
}

// fire creates one pending job from a due contract under its
// distributed lock.
func (g *Generator) fire(ctx context.Context, c *Contract, now time.Time) {
	acquired, err := g.contracts.AcquireContractLock(ctx, c.ID, g.nodeID, g.lockTTL)
	if err != nil {
		g.logger.Error("acquire contract lock error",
			slog.String("contract_id", c.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another node got it.
	}

	j := g.buildJob(c, now)
	if createErr := g.jobs.CreateJob(ctx, j); createErr != nil {
		g.logger.Error("contract job create error",
			slog.String("contract_name", c.Name),
			slog.String("error", createErr.Error()),
		)
		if relErr := g.contracts.ReleaseContractLock(ctx, c.ID, g.nodeID); relErr != nil {
			g.logger.Error("release contract lock error",
				slog.String("contract_id", c.ID.String()),
				slog.String("error", relErr.Error()),
			)
		}
		return
	}

	if updateErr := g.contracts.UpdateContractLastRun(ctx, c.ID, now); updateErr != nil {
		g.logger.Error("update contract last run error",
			slog.String("contract_id", c.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}

	// Compute and persist NextRunAt.
	sched, parseErr := g.getOrParseSchedule(c.Schedule)
	if parseErr != nil {
		g.logger.Error("parse contract schedule error",
			slog.String("contract_name", c.Name),
			slog.String("schedule", c.Schedule),
			slog.String("error", parseErr.Error()),
		)
	} else {
		next := sched.Next(now)
		c.NextRunAt = &next
		if updateErr := g.contracts.UpdateContract(ctx, c); updateErr != nil {
			g.logger.Error("update contract next run error",
				slog.String("contract_id", c.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
	}

	if relErr := g.contracts.ReleaseContractLock(ctx, c.ID, g.nodeID); relErr != nil {
		g.logger.Error("release contract lock error",
			slog.String("contract_id", c.ID.String()),
			slog.String("error", relErr.Error()),
		)
	}

	if g.emitter != nil {
		g.emitter.EmitContractFired(ctx, c.Name, j.ID)
	}

	g.logger.Info("contract fired",
		slog.String("contract_name", c.Name),
		slog.String("job_id", j.ID.String()),
	)
}

// buildJob instantiates the contract's job template as a pending job
// scheduled for the firing time.
func (g *Generator) buildJob(c *Contract, now time.Time) *job.Job {
	return &job.Job{
		Entity:      fieldops.NewEntity(),
		ID:          id.NewJobID(),
		CompanyID:   c.CompanyID,
		Title:       c.Title,
		Description: c.Description,
		Status:      job.StatusPending,
		Priority:    c.Priority,
		Location:    c.Location,
		Address:     c.Address,
		ScheduledAt: now,
		ContractID:  c.ID,
	}
}

// getOrParseSchedule caches parsed cron expressions.
func (g *Generator) getOrParseSchedule(expr string) (cronlib.Schedule, error) {
	g.parsedMu.RLock()
	sched, ok := g.parsed[expr]
	g.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	g.parsedMu.Lock()
	g.parsed[expr] = sched
	g.parsedMu.Unlock()
	return sched, nil
}
