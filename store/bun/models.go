package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/cluster"
	"github.com/xraph/fieldops/contract"
	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/sideeffect"
	"github.com/xraph/fieldops/technician"
	"github.com/xraph/fieldops/transition"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:fieldops_jobs"`

	ID                   string     `bun:"id,pk"`
	CompanyID            string     `bun:"company_id"`
	Title                string     `bun:"title,notnull"`
	Description          string     `bun:"description"`
	Status               string     `bun:"status,notnull,default:'draft'"`
	Priority             int        `bun:"priority,notnull,default:0"`
	AssignedTechnicianID string     `bun:"assigned_technician_id"`
	Lat                  float64    `bun:"lat,notnull,default:0"`
	Lon                  float64    `bun:"lon,notnull,default:0"`
	Address              string     `bun:"address"`
	ScheduledAt          time.Time  `bun:"scheduled_at,notnull,default:current_timestamp"`
	AssignedAt           *time.Time `bun:"assigned_at"`
	EnRouteAt            *time.Time `bun:"en_route_at"`
	InProgressAt         *time.Time `bun:"in_progress_at"`
	CompletedAt          *time.Time `bun:"completed_at"`
	FinishedAt           *time.Time `bun:"finished_at"`
	CancelledAt          *time.Time `bun:"cancelled_at"`
	Breaks               []byte     `bun:"breaks,type:jsonb"`
	TrackingToken        string     `bun:"tracking_token"`
	TrackingExpiresAt    *time.Time `bun:"tracking_expires_at"`
	ContractID           string     `bun:"contract_id"`
	CreatedAt            time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt            time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toJobModel(j *job.Job) (*jobModel, error) {
	breaks, err := json.Marshal(j.Breaks)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: marshal breaks: %w", err)
	}
	return &jobModel{
		ID:                   j.ID.String(),
		CompanyID:            j.CompanyID,
		Title:                j.Title,
		Description:          j.Description,
		Status:               string(j.Status),
		Priority:             j.Priority,
		AssignedTechnicianID: idString(j.AssignedTechnicianID),
		Lat:                  j.Location.Lat,
		Lon:                  j.Location.Lon,
		Address:              j.Address,
		ScheduledAt:          j.ScheduledAt,
		AssignedAt:           j.AssignedAt,
		EnRouteAt:            j.EnRouteAt,
		InProgressAt:         j.InProgressAt,
		CompletedAt:          j.CompletedAt,
		FinishedAt:           j.FinishedAt,
		CancelledAt:          j.CancelledAt,
		Breaks:               breaks,
		TrackingToken:        j.TrackingToken,
		TrackingExpiresAt:    j.TrackingExpiresAt,
		ContractID:           idString(j.ContractID),
		CreatedAt:            j.CreatedAt,
		UpdatedAt:            j.UpdatedAt,
	}, nil
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: fieldops.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                parsedID,
		CompanyID:         m.CompanyID,
		Title:             m.Title,
		Description:       m.Description,
		Status:            job.Status(m.Status),
		Priority:          m.Priority,
		Location:          geo.Point{Lat: m.Lat, Lon: m.Lon},
		Address:           m.Address,
		ScheduledAt:       m.ScheduledAt,
		AssignedAt:        m.AssignedAt,
		EnRouteAt:         m.EnRouteAt,
		InProgressAt:      m.InProgressAt,
		CompletedAt:       m.CompletedAt,
		FinishedAt:        m.FinishedAt,
		CancelledAt:       m.CancelledAt,
		TrackingToken:     m.TrackingToken,
		TrackingExpiresAt: m.TrackingExpiresAt,
	}

	if len(m.Breaks) > 0 {
		if err := json.Unmarshal(m.Breaks, &j.Breaks); err != nil {
			return nil, fmt.Errorf("fieldops/bun: unmarshal breaks: %w", err)
		}
	}
	if m.AssignedTechnicianID != "" {
		if techID, tErr := id.ParseTechnicianID(m.AssignedTechnicianID); tErr == nil {
			j.AssignedTechnicianID = techID
		}
	}
	if m.ContractID != "" {
		if ctID, cErr := id.ParseContractID(m.ContractID); cErr == nil {
			j.ContractID = ctID
		}
	}

	return j, nil
}

// ── Technician model ──────────────────────────────────────────────

type technicianModel struct {
	bun.BaseModel `bun:"table:fieldops_technicians"`

	ID           string     `bun:"id,pk"`
	CompanyID    string     `bun:"company_id"`
	Name         string     `bun:"name,notnull"`
	Skills       []string   `bun:"skills,array"`
	IsAvailable  bool       `bun:"is_available,notnull,default:true"`
	CurrentJobID string     `bun:"current_job_id"`
	Lat          float64    `bun:"lat,notnull,default:0"`
	Lon          float64    `bun:"lon,notnull,default:0"`
	LocatedAt    *time.Time `bun:"located_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toTechnicianModel(t *technician.Technician) *technicianModel {
	return &technicianModel{
		ID:           t.ID.String(),
		CompanyID:    t.CompanyID,
		Name:         t.Name,
		Skills:       t.Skills,
		IsAvailable:  t.IsAvailable,
		CurrentJobID: idString(t.CurrentJobID),
		Lat:          t.Location.Lat,
		Lon:          t.Location.Lon,
		LocatedAt:    t.LocatedAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fromTechnicianModel(m *technicianModel) (*technician.Technician, error) {
	parsedID, err := id.ParseTechnicianID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: parse technician id %q: %w", m.ID, err)
	}

	t := &technician.Technician{
		Entity: fieldops.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		CompanyID:   m.CompanyID,
		Name:        m.Name,
		Skills:      m.Skills,
		IsAvailable: m.IsAvailable,
		Location:    geo.Point{Lat: m.Lat, Lon: m.Lon},
		LocatedAt:   m.LocatedAt,
	}

	if m.CurrentJobID != "" {
		if jobID, jErr := id.ParseJobID(m.CurrentJobID); jErr == nil {
			t.CurrentJobID = jobID
		}
	}

	return t, nil
}

// ── Event model ───────────────────────────────────────────────────

type eventModel struct {
	bun.BaseModel `bun:"table:fieldops_events"`

	ID           string    `bun:"id,pk"`
	JobID        string    `bun:"job_id,notnull"`
	FromStatus   string    `bun:"from_status,notnull"`
	ToStatus     string    `bun:"to_status,notnull"`
	Source       string    `bun:"source,notnull"`
	ActorID      string    `bun:"actor_id"`
	TechnicianID string    `bun:"technician_id"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toEventModel(evt *event.Event) *eventModel {
	return &eventModel{
		ID:           evt.ID.String(),
		JobID:        evt.JobID.String(),
		FromStatus:   string(evt.From),
		ToStatus:     string(evt.To),
		Source:       string(evt.Source),
		ActorID:      evt.ActorID,
		TechnicianID: idString(evt.TechnicianID),
		CreatedAt:    evt.CreatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	parsedID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: parse event id %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: parse event job id %q: %w", m.JobID, err)
	}

	evt := &event.Event{
		ID:        parsedID,
		JobID:     jobID,
		From:      job.Status(m.FromStatus),
		To:        job.Status(m.ToStatus),
		Source:    transition.Source(m.Source),
		ActorID:   m.ActorID,
		CreatedAt: m.CreatedAt,
	}

	if m.TechnicianID != "" {
		if techID, tErr := id.ParseTechnicianID(m.TechnicianID); tErr == nil {
			evt.TechnicianID = techID
		}
	}

	return evt, nil
}

// ── Dead letter model ─────────────────────────────────────────────

type deadLetterModel struct {
	bun.BaseModel `bun:"table:fieldops_dead_letters"`

	ID         string     `bun:"id,pk"`
	JobID      string     `bun:"job_id,notnull"`
	Kind       string     `bun:"kind,notnull"`
	Reason     string     `bun:"reason"`
	Error      string     `bun:"error"`
	Attempts   int        `bun:"attempts,notnull,default:0"`
	FailedAt   time.Time  `bun:"failed_at,notnull"`
	ReplayedAt *time.Time `bun:"replayed_at"`
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func toDeadLetterModel(e *sideeffect.Entry) *deadLetterModel {
	return &deadLetterModel{
		ID:         e.ID.String(),
		JobID:      e.JobID.String(),
		Kind:       string(e.Kind),
		Reason:     e.Reason,
		Error:      e.Error,
		Attempts:   e.Attempts,
		FailedAt:   e.FailedAt,
		ReplayedAt: e.ReplayedAt,
		CreatedAt:  e.CreatedAt,
	}
}

func fromDeadLetterModel(m *deadLetterModel) (*sideeffect.Entry, error) {
	parsedID, err := id.ParseDeadLetterID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: parse dead letter id %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: parse dead letter job id %q: %w", m.JobID, err)
	}

	return &sideeffect.Entry{
		ID:         parsedID,
		JobID:      jobID,
		Kind:       job.EffectKind(m.Kind),
		Reason:     m.Reason,
		Error:      m.Error,
		Attempts:   m.Attempts,
		FailedAt:   m.FailedAt,
		ReplayedAt: m.ReplayedAt,
		CreatedAt:  m.CreatedAt,
	}, nil
}

// ── Contract model ────────────────────────────────────────────────

type contractModel struct {
	bun.BaseModel `bun:"table:fieldops_contracts"`

	ID          string     `bun:"id,pk"`
	Name        string     `bun:"name,notnull"`
	CompanyID   string     `bun:"company_id"`
	Schedule    string     `bun:"schedule,notnull"`
	Title       string     `bun:"title"`
	Description string     `bun:"description"`
	Priority    int        `bun:"priority,notnull,default:0"`
	Lat         float64    `bun:"lat,notnull,default:0"`
	Lon         float64    `bun:"lon,notnull,default:0"`
	Address     string     `bun:"address"`
	LastRunAt   *time.Time `bun:"last_run_at"`
	NextRunAt   *time.Time `bun:"next_run_at"`
	LockedBy    string     `bun:"locked_by"`
	LockedUntil *time.Time `bun:"locked_until"`
	Enabled     bool       `bun:"enabled,notnull,default:true"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toContractModel(c *contract.Contract) *contractModel {
	return &contractModel{
		ID:          c.ID.String(),
		Name:        c.Name,
		CompanyID:   c.CompanyID,
		Schedule:    c.Schedule,
		Title:       c.Title,
		Description: c.Description,
		Priority:    c.Priority,
		Lat:         c.Location.Lat,
		Lon:         c.Location.Lon,
		Address:     c.Address,
		LastRunAt:   c.LastRunAt,
		NextRunAt:   c.NextRunAt,
		LockedBy:    idString(c.LockedBy),
		LockedUntil: c.LockedUntil,
		Enabled:     c.Enabled,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func fromContractModel(m *contractModel) (*contract.Contract, error) {
	parsedID, err := id.ParseContractID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: parse contract id %q: %w", m.ID, err)
	}

	c := &contract.Contract{
		Entity: fieldops.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Name:        m.Name,
		CompanyID:   m.CompanyID,
		Schedule:    m.Schedule,
		Title:       m.Title,
		Description: m.Description,
		Priority:    m.Priority,
		Location:    geo.Point{Lat: m.Lat, Lon: m.Lon},
		Address:     m.Address,
		LastRunAt:   m.LastRunAt,
		NextRunAt:   m.NextRunAt,
		LockedUntil: m.LockedUntil,
		Enabled:     m.Enabled,
	}

	if m.LockedBy != "" {
		if nodeID, nErr := id.ParseNodeID(m.LockedBy); nErr == nil {
			c.LockedBy = nodeID
		}
	}

	return c, nil
}

// ── Node model ────────────────────────────────────────────────────

type nodeModel struct {
	bun.BaseModel `bun:"table:fieldops_nodes"`

	ID          string     `bun:"id,pk"`
	Hostname    string     `bun:"hostname"`
	State       string     `bun:"state,notnull,default:'active'"`
	IsLeader    bool       `bun:"is_leader,notnull,default:false"`
	LeaderUntil *time.Time `bun:"leader_until"`
	LastSeen    time.Time  `bun:"last_seen,notnull,default:current_timestamp"`
	Metadata    []byte     `bun:"metadata,type:jsonb"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func toNodeModel(n *cluster.Node) (*nodeModel, error) {
	meta := n.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: marshal node metadata: %w", err)
	}
	return &nodeModel{
		ID:          n.ID.String(),
		Hostname:    n.Hostname,
		State:       string(n.State),
		IsLeader:    n.IsLeader,
		LeaderUntil: n.LeaderUntil,
		LastSeen:    n.LastSeen,
		Metadata:    metaJSON,
		CreatedAt:   n.CreatedAt,
	}, nil
}

func fromNodeModel(m *nodeModel) (*cluster.Node, error) {
	parsedID, err := id.ParseNodeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: parse node id %q: %w", m.ID, err)
	}

	n := &cluster.Node{
		ID:          parsedID,
		Hostname:    m.Hostname,
		State:       cluster.NodeState(m.State),
		IsLeader:    m.IsLeader,
		LeaderUntil: m.LeaderUntil,
		LastSeen:    m.LastSeen,
		CreatedAt:   m.CreatedAt,
	}

	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("fieldops/bun: unmarshal node metadata: %w", err)
		}
	}

	return n, nil
}

// idString renders a possibly-nil ID as a string, empty when nil.
func idString(v id.ID) string {
	if v.IsNil() {
		return ""
	}
	return v.String()
}
