package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
)

// CreateJob stores the job as a Hash and tracks its ID.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return fieldops.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job. Status, assignment and
// breaks fields are left untouched: they change only through the
// availability commit and the break operations.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	key := jobKey(j.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return fieldops.ErrJobNotFound
	}

	fields := jobToMap(j)
	delete(fields, "status")
	delete(fields, "assigned_technician_id")
	delete(fields, "breaks")
	delete(fields, "created_at")
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.client.HSet(ctx, key, fields).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: delete job exists: %w", err)
	}
	if exists == 0 {
		return fieldops.ErrJobNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.Del(ctx, jobEventsKey(jID))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: delete job: %w", err)
	}
	return nil
}

// ListJobsByStatus returns jobs matching the given status, soonest
// scheduled first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.Status != status {
			continue
		}
		if opts.CompanyID != "" && j.CompanyID != opts.CompanyID {
			continue
		}
		jobs = append(jobs, j)
	}

	sortJobsBySchedule(jobs)

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(jobs) {
		jobs = jobs[opts.Offset:]
	} else if opts.Offset >= len(jobs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// ListJobsForTechnician returns the jobs currently assigned to the
// given technician.
func (s *Store) ListJobsForTechnician(ctx context.Context, techID id.TechnicianID) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: list jobs smembers: %w", err)
	}

	want := techID.String()
	var jobs []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.AssignedTechnicianID.String() != want {
			continue
		}
		jobs = append(jobs, j)
	}

	sortJobsBySchedule(jobs)
	return jobs, nil
}

// StartBreak opens a break on an in-progress job.
func (s *Store) StartBreak(ctx context.Context, jobID id.JobID, at time.Time) error {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != job.StatusInProgress {
		return fmt.Errorf("%w: break on %s job", fieldops.ErrInvalidTransition, j.Status)
	}
	if j.HasOpenBreak() {
		return fieldops.ErrBreakOpen
	}

	breaks := append(j.Breaks, job.Break{Start: at})
	return s.writeBreaks(ctx, jobID, breaks)
}

// EndBreak closes the open break on a job. Ending with no open break is
// a no-op.
func (s *Store) EndBreak(ctx context.Context, jobID id.JobID, at time.Time) error {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	for i, b := range j.Breaks {
		if b.Open() {
			end := at
			j.Breaks[i].End = &end
			return s.writeBreaks(ctx, jobID, j.Breaks)
		}
	}
	return nil
}

func (s *Store) writeBreaks(ctx context.Context, jobID id.JobID, breaks []job.Break) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.client.HSet(ctx, jobKey(jobID.String()),
		"breaks", marshalJSON(breaks),
		"updated_at", now,
	).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: write breaks: %w", err)
	}
	return nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("fieldops/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.CompanyID != "" && j.CompanyID != opts.CompanyID {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

func sortJobsBySchedule(jobs []*job.Job) {
	for i := 1; i < len(jobs); i++ {
		for k := i; k > 0 && jobs[k].ScheduledAt.Before(jobs[k-1].ScheduledAt); k-- {
			jobs[k], jobs[k-1] = jobs[k-1], jobs[k]
		}
	}
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":                     j.ID.String(),
		"company_id":             j.CompanyID,
		"title":                  j.Title,
		"description":            j.Description,
		"status":                 string(j.Status),
		"priority":               strconv.Itoa(j.Priority),
		"assigned_technician_id": j.AssignedTechnicianID.String(),
		"lat":                    strconv.FormatFloat(j.Location.Lat, 'f', -1, 64),
		"lon":                    strconv.FormatFloat(j.Location.Lon, 'f', -1, 64),
		"address":                j.Address,
		"scheduled_at":           j.ScheduledAt.Format(time.RFC3339Nano),
		"breaks":                 marshalJSON(j.Breaks),
		"tracking_token":         j.TrackingToken,
		"contract_id":            j.ContractID.String(),
		"created_at":             j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":             j.UpdatedAt.Format(time.RFC3339Nano),
	}
	for field, ts := range map[string]*time.Time{
		"assigned_at":         j.AssignedAt,
		"en_route_at":         j.EnRouteAt,
		"in_progress_at":      j.InProgressAt,
		"completed_at":        j.CompletedAt,
		"finished_at":         j.FinishedAt,
		"cancelled_at":        j.CancelledAt,
		"tracking_expires_at": j.TrackingExpiresAt,
	} {
		if ts != nil {
			m[field] = ts.Format(time.RFC3339Nano)
		}
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, fieldops.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	lat, _ := strconv.ParseFloat(m["lat"], 64)           //nolint:errcheck // best-effort parse from trusted Redis data
	lon, _ := strconv.ParseFloat(m["lon"], 64)           //nolint:errcheck // best-effort parse from trusted Redis data
	scheduledAt, _ := time.Parse(time.RFC3339Nano, m["scheduled_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])     //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])     //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: fieldops.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:            jID,
		CompanyID:     m["company_id"],
		Title:         m["title"],
		Description:   m["description"],
		Status:        job.Status(m["status"]),
		Priority:      priority,
		Address:       m["address"],
		ScheduledAt:   scheduledAt,
		TrackingToken: m["tracking_token"],
	}
	j.Location.Lat = lat
	j.Location.Lon = lon

	if tid := m["assigned_technician_id"]; tid != "" {
		j.AssignedTechnicianID, _ = id.ParseTechnicianID(tid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if cid := m["contract_id"]; cid != "" {
		j.ContractID, _ = id.ParseContractID(cid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if raw := m["breaks"]; raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &j.Breaks) //nolint:errcheck // best-effort parse from trusted Redis data
	}

	for field, dst := range map[string]**time.Time{
		"assigned_at":         &j.AssignedAt,
		"en_route_at":         &j.EnRouteAt,
		"in_progress_at":      &j.InProgressAt,
		"completed_at":        &j.CompletedAt,
		"finished_at":         &j.FinishedAt,
		"cancelled_at":        &j.CancelledAt,
		"tracking_expires_at": &j.TrackingExpiresAt,
	} {
		if v := m[field]; v != "" {
			t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
			*dst = &t
		}
	}

	return j, nil
}

// marshalJSON is a helper to marshal to JSON string.
func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}

// unmarshalStrings parses a JSON array of strings.
func unmarshalStrings(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}

// unmarshalMap parses a JSON map.
func unmarshalMap(s string) map[string]string {
	if s == "" || s == "null" {
		return nil
	}
	out := make(map[string]string)
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}
