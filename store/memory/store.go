package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/availability"
	"github.com/xraph/fieldops/cluster"
	"github.com/xraph/fieldops/contract"
	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/sideeffect"
	"github.com/xraph/fieldops/technician"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store          = (*Store)(nil)
	_ technician.Store   = (*Store)(nil)
	_ availability.Store = (*Store)(nil)
	_ event.Store        = (*Store)(nil)
	_ sideeffect.Store   = (*Store)(nil)
	_ contract.Store     = (*Store)(nil)
	_ cluster.Store      = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu     sync.RWMutex
	closed bool

	jobs        map[string]*job.Job
	technicians map[string]*technician.Technician
	events      map[string]*event.Event
	deadLetters map[string]*sideeffect.Entry
	contracts   map[string]*contract.Contract
	nodes       map[string]*cluster.Node

	// leader tracks the current cluster leader node ID string.
	leader      string
	leaderUntil time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:        make(map[string]*job.Job),
		technicians: make(map[string]*technician.Technician),
		events:      make(map[string]*event.Event),
		deadLetters: make(map[string]*sideeffect.Entry),
		contracts:   make(map[string]*contract.Contract),
		nodes:       make(map[string]*cluster.Node),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping succeeds until the store is closed.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fieldops.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Data is retained so late readers in
// tests do not lose state, but Ping fails from then on.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return fieldops.ErrJobAlreadyExists
	}
	cp := copyJob(j)
	m.jobs[key] = cp
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, fieldops.ErrJobNotFound
	}
	return copyJob(j), nil
}

// UpdateJob persists changes to an existing job's descriptive fields.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return fieldops.ErrJobNotFound
	}
	cp := copyJob(j)
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = cp
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return fieldops.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobsByStatus returns jobs matching the given status, ordered by
// ScheduledAt ascending.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status != status {
			continue
		}
		if opts.CompanyID != "" && j.CompanyID != opts.CompanyID {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ScheduledAt.Before(result[k].ScheduledAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ListJobsForTechnician returns jobs currently bound to a technician.
func (m *Store) ListJobsForTechnician(_ context.Context, techID id.TechnicianID) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*job.Job
	for _, j := range m.jobs {
		if j.AssignedTechnicianID.String() != techID.String() {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ScheduledAt.Before(result[k].ScheduledAt)
	})

	return result, nil
}

// StartBreak appends an open break to an in_progress job.
func (m *Store) StartBreak(_ context.Context, jobID id.JobID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return fieldops.ErrJobNotFound
	}
	if j.Status != job.StatusInProgress {
		return fieldops.ErrInvalidTransition
	}
	if j.HasOpenBreak() {
		return fieldops.ErrBreakOpen
	}
	j.Breaks = append(j.Breaks, job.Break{Start: at})
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// EndBreak closes the job's open break. A job without an open break is
// left unchanged.
func (m *Store) EndBreak(_ context.Context, jobID id.JobID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return fieldops.ErrJobNotFound
	}
	for i := range j.Breaks {
		if j.Breaks[i].Open() {
			end := at
			j.Breaks[i].End = &end
			j.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.CompanyID != "" && j.CompanyID != opts.CompanyID {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Technician Store
// ──────────────────────────────────────────────────

// CreateTechnician persists a new technician.
func (m *Store) CreateTechnician(_ context.Context, t *technician.Technician) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, exists := m.technicians[key]; exists {
		return fieldops.ErrTechnicianAlreadyExists
	}
	cp := copyTechnician(t)
	m.technicians[key] = cp
	return nil
}

// GetTechnician retrieves a technician by ID.
func (m *Store) GetTechnician(_ context.Context, techID id.TechnicianID) (*technician.Technician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.technicians[techID.String()]
	if !ok {
		return nil, fieldops.ErrTechnicianNotFound
	}
	return copyTechnician(t), nil
}

// UpdateTechnician persists changes to a technician's descriptive fields.
// IsAvailable and CurrentJobID are preserved as stored.
func (m *Store) UpdateTechnician(_ context.Context, t *technician.Technician) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	existing, ok := m.technicians[key]
	if !ok {
		return fieldops.ErrTechnicianNotFound
	}
	cp := copyTechnician(t)
	cp.IsAvailable = existing.IsAvailable
	cp.CurrentJobID = existing.CurrentJobID
	cp.UpdatedAt = time.Now().UTC()
	m.technicians[key] = cp
	return nil
}

// DeleteTechnician removes a technician by ID.
func (m *Store) DeleteTechnician(_ context.Context, techID id.TechnicianID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := techID.String()
	if _, ok := m.technicians[key]; !ok {
		return fieldops.ErrTechnicianNotFound
	}
	delete(m.technicians, key)
	return nil
}

// UpdateTechnicianLocation writes only the position fields. This is the
// highest-frequency write in the system, so it touches nothing else.
func (m *Store) UpdateTechnicianLocation(_ context.Context, techID id.TechnicianID, loc geo.Point, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.technicians[techID.String()]
	if !ok {
		return fieldops.ErrTechnicianNotFound
	}
	t.Location = loc
	located := at
	t.LocatedAt = &located
	return nil
}

// ListAvailableTechnicians returns technicians with IsAvailable true.
func (m *Store) ListAvailableTechnicians(_ context.Context, opts technician.ListOpts) ([]*technician.Technician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*technician.Technician, 0, len(m.technicians))
	for _, t := range m.technicians {
		if !t.IsAvailable {
			continue
		}
		if opts.CompanyID != "" && t.CompanyID != opts.CompanyID {
			continue
		}
		result = append(result, copyTechnician(t))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ──────────────────────────────────────────────────
// Availability Store
// ──────────────────────────────────────────────────

// Commit atomically applies the job write and technician claim/release.
// The whole commit applies under one lock; the conditional claim check
// fails it before any field is touched.
func (m *Store) Commit(_ context.Context, c availability.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var claimTech, releaseTech *technician.Technician

	// Validate everything before mutating anything.
	if c.Job != nil {
		if _, ok := m.jobs[c.Job.ID.String()]; !ok {
			return fieldops.ErrJobNotFound
		}
	}
	if !c.Claim.IsNil() {
		t, ok := m.technicians[c.Claim.String()]
		if !ok {
			return fieldops.ErrTechnicianNotFound
		}
		if !t.CurrentJobID.IsNil() && (c.Job == nil || t.CurrentJobID.String() != c.Job.ID.String()) {
			return fieldops.ErrTechnicianConflict
		}
		claimTech = t
	}
	if !c.Release.IsNil() {
		t, ok := m.technicians[c.Release.String()]
		if !ok {
			return fieldops.ErrTechnicianNotFound
		}
		// Only free a technician still bound to the committing job. One
		// already re-claimed by another job keeps that claim; the release
		// is then a no-op, not an error.
		if c.Job != nil && !t.CurrentJobID.IsNil() && t.CurrentJobID.String() != c.Job.ID.String() {
			t = nil
		}
		releaseTech = t
	}

	now := time.Now().UTC()

	if c.Job != nil {
		cp := copyJob(c.Job)
		cp.UpdatedAt = now
		m.jobs[c.Job.ID.String()] = cp
	}
	if claimTech != nil {
		claimTech.IsAvailable = false
		claimTech.CurrentJobID = c.Job.ID
		claimTech.UpdatedAt = now
	}
	if releaseTech != nil {
		releaseTech.IsAvailable = true
		releaseTech.CurrentJobID = id.Nil
		releaseTech.UpdatedAt = now
	}

	return nil
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// AppendEvent persists a transition event.
func (m *Store) AppendEvent(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[evt.ID.String()] = evt
	return nil
}

// ListEventsForJob returns a job's events ordered oldest first.
func (m *Store) ListEventsForJob(_ context.Context, jobID id.JobID, limit int) ([]*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*event.Event
	for _, evt := range m.events {
		if evt.JobID.String() != jobID.String() {
			continue
		}
		result = append(result, evt)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// GetEvent retrieves an event by ID.
func (m *Store) GetEvent(_ context.Context, eventID id.EventID) (*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	evt, ok := m.events[eventID.String()]
	if !ok {
		return nil, fieldops.ErrEventNotFound
	}
	return evt, nil
}

// ──────────────────────────────────────────────────
// Side-Effect Dead Letter Store
// ──────────────────────────────────────────────────

// PushDeadLetter adds a failed dispatch entry to the queue.
func (m *Store) PushDeadLetter(_ context.Context, entry *sideeffect.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deadLetters[entry.ID.String()] = entry
	return nil
}

// ListDeadLetters returns dead letter entries matching the given options.
func (m *Store) ListDeadLetters(_ context.Context, opts sideeffect.ListOpts) ([]*sideeffect.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*sideeffect.Entry, 0, len(m.deadLetters))
	for _, e := range m.deadLetters {
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.Before(result[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// GetDeadLetter retrieves a dead letter entry by ID.
func (m *Store) GetDeadLetter(_ context.Context, entryID id.DeadLetterID) (*sideeffect.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.deadLetters[entryID.String()]
	if !ok {
		return nil, fieldops.ErrDeadLetterNotFound
	}
	return e, nil
}

// ReplayDeadLetter marks a dead letter entry as replayed.
func (m *Store) ReplayDeadLetter(_ context.Context, entryID id.DeadLetterID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.deadLetters[entryID.String()]
	if !ok {
		return fieldops.ErrDeadLetterNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDeadLetters removes entries with FailedAt before the given time.
func (m *Store) PurgeDeadLetters(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.deadLetters {
		if e.FailedAt.Before(before) {
			delete(m.deadLetters, key)
			count++
		}
	}
	return count, nil
}

// CountDeadLetters returns the total number of entries in the queue.
func (m *Store) CountDeadLetters(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.deadLetters)), nil
}

// ──────────────────────────────────────────────────
// Contract Store
// ──────────────────────────────────────────────────

// RegisterContract persists a new contract. Returns an error if the
// name already exists.
func (m *Store) RegisterContract(_ context.Context, c *contract.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.contracts {
		if existing.Name == c.Name {
			return fieldops.ErrDuplicateContract
		}
	}

	m.contracts[c.ID.String()] = c
	return nil
}

// GetContract retrieves a contract by ID.
func (m *Store) GetContract(_ context.Context, contractID id.ContractID) (*contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[contractID.String()]
	if !ok {
		return nil, fieldops.ErrContractNotFound
	}
	return c, nil
}

// ListContracts returns all contracts.
func (m *Store) ListContracts(_ context.Context) ([]*contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*contract.Contract, 0, len(m.contracts))
	for _, c := range m.contracts {
		result = append(result, c)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// AcquireContractLock attempts to acquire a distributed lock for a
// contract.
func (m *Store) AcquireContractLock(_ context.Context, contractID id.ContractID, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[contractID.String()]
	if !ok {
		return false, fieldops.ErrContractNotFound
	}

	now := time.Now().UTC()

	// If already locked by someone else and the lock hasn't expired, fail.
	if !c.LockedBy.IsNil() && c.LockedUntil != nil && c.LockedUntil.After(now) {
		if c.LockedBy.String() != nodeID.String() {
			return false, nil
		}
	}

	c.LockedBy = nodeID
	until := now.Add(ttl)
	c.LockedUntil = &until
	return true, nil
}

// ReleaseContractLock releases the distributed lock for a contract.
func (m *Store) ReleaseContractLock(_ context.Context, contractID id.ContractID, nodeID id.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[contractID.String()]
	if !ok {
		return fieldops.ErrContractNotFound
	}

	if c.LockedBy.String() != nodeID.String() {
		return nil // not holding the lock; no-op
	}

	c.LockedBy = id.Nil
	c.LockedUntil = nil
	return nil
}

// UpdateContractLastRun records when a contract last fired.
func (m *Store) UpdateContractLastRun(_ context.Context, contractID id.ContractID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[contractID.String()]
	if !ok {
		return fieldops.ErrContractNotFound
	}
	c.LastRunAt = &at
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateContract updates a contract (Enabled, NextRunAt, template fields).
func (m *Store) UpdateContract(_ context.Context, c *contract.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := c.ID.String()
	if _, ok := m.contracts[key]; !ok {
		return fieldops.ErrContractNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	m.contracts[key] = c
	return nil
}

// DeleteContract removes a contract by ID.
func (m *Store) DeleteContract(_ context.Context, contractID id.ContractID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := contractID.String()
	if _, ok := m.contracts[key]; !ok {
		return fieldops.ErrContractNotFound
	}
	delete(m.contracts, key)
	return nil
}

// ──────────────────────────────────────────────────
// Cluster Store
// ──────────────────────────────────────────────────

// RegisterNode adds a new node to the cluster registry.
func (m *Store) RegisterNode(_ context.Context, n *cluster.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes[n.ID.String()] = n
	return nil
}

// DeregisterNode removes a node from the cluster registry.
func (m *Store) DeregisterNode(_ context.Context, nodeID id.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nodeID.String()
	if _, ok := m.nodes[key]; !ok {
		return fieldops.ErrNodeNotFound
	}
	delete(m.nodes, key)
	return nil
}

// HeartbeatNode updates the last-seen timestamp for a node.
func (m *Store) HeartbeatNode(_ context.Context, nodeID id.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[nodeID.String()]
	if !ok {
		return fieldops.ErrNodeNotFound
	}
	n.LastSeen = time.Now().UTC()
	return nil
}

// ListNodes returns all registered nodes.
func (m *Store) ListNodes(_ context.Context) ([]*cluster.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		result = append(result, n)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// ReapDeadNodes removes nodes whose last-seen timestamp is older than
// the given threshold and returns the removed nodes.
func (m *Store) ReapDeadNodes(_ context.Context, threshold time.Duration) ([]*cluster.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var dead []*cluster.Node
	for key, n := range m.nodes {
		if n.LastSeen.Before(cutoff) {
			dead = append(dead, n)
			delete(m.nodes, key)
		}
	}
	return dead, nil
}

// AcquireLeadership attempts to become the cluster leader.
func (m *Store) AcquireLeadership(_ context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := nodeID.String()

	// If there's already a leader whose TTL hasn't expired and it's not
	// us, fail.
	if m.leader != "" && m.leaderUntil.After(now) && m.leader != key {
		return false, nil
	}

	m.leader = key
	m.leaderUntil = now.Add(ttl)

	if n, ok := m.nodes[key]; ok {
		n.IsLeader = true
		until := m.leaderUntil
		n.LeaderUntil = &until
	}

	return true, nil
}

// RenewLeadership extends the leader's hold.
func (m *Store) RenewLeadership(_ context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nodeID.String()
	if m.leader != key {
		return false, nil
	}

	m.leaderUntil = time.Now().UTC().Add(ttl)

	if n, ok := m.nodes[key]; ok {
		until := m.leaderUntil
		n.LeaderUntil = &until
	}

	return true, nil
}

// GetLeader returns the current cluster leader, or nil if there is no
// leader.
func (m *Store) GetLeader(_ context.Context) (*cluster.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.leader == "" || m.leaderUntil.Before(time.Now().UTC()) {
		return nil, nil
	}

	n, ok := m.nodes[m.leader]
	if !ok {
		return nil, nil
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Copy helpers
// ──────────────────────────────────────────────────

// copyJob deep-copies a job so callers can mutate without racing with
// the store.
func copyJob(j *job.Job) *job.Job {
	cp := *j
	if len(j.Breaks) > 0 {
		cp.Breaks = make([]job.Break, len(j.Breaks))
		copy(cp.Breaks, j.Breaks)
	}
	return &cp
}

func copyTechnician(t *technician.Technician) *technician.Technician {
	cp := *t
	if len(t.Skills) > 0 {
		cp.Skills = make([]string, len(t.Skills))
		copy(cp.Skills, t.Skills)
	}
	return &cp
}
