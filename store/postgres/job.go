package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
)

const jobColumns = `
	id, company_id, title, description, status, priority,
	assigned_technician_id, lat, lon, address, scheduled_at,
	assigned_at, en_route_at, in_progress_at, completed_at,
	finished_at, cancelled_at, breaks, tracking_token,
	tracking_expires_at, contract_id, created_at, updated_at`

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	breaks, err := json.Marshal(j.Breaks)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: marshal breaks: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO fieldops_jobs (
			id, company_id, title, description, status, priority,
			assigned_technician_id, lat, lon, address, scheduled_at,
			assigned_at, en_route_at, in_progress_at, completed_at,
			finished_at, cancelled_at, breaks, tracking_token,
			tracking_expires_at, contract_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22, $23
		)`,
		j.ID.String(), j.CompanyID, j.Title, j.Description, string(j.Status), j.Priority,
		idString(j.AssignedTechnicianID), j.Location.Lat, j.Location.Lon, j.Address, j.ScheduledAt,
		j.AssignedAt, j.EnRouteAt, j.InProgressAt, j.CompletedAt,
		j.FinishedAt, j.CancelledAt, breaks, j.TrackingToken,
		j.TrackingExpiresAt, idString(j.ContractID), j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fieldops.ErrJobAlreadyExists
		}
		return fmt.Errorf("fieldops/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM fieldops_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrJobNotFound
		}
		return nil, fmt.Errorf("fieldops/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job. Status, assignment and
// breaks are deliberately not written here: status and assignment change
// only through the availability commit, breaks only through StartBreak
// and EndBreak.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fieldops_jobs SET
			company_id = $2, title = $3, description = $4, priority = $5,
			lat = $6, lon = $7, address = $8, scheduled_at = $9,
			assigned_at = $10, en_route_at = $11, in_progress_at = $12,
			completed_at = $13, finished_at = $14, cancelled_at = $15,
			tracking_token = $16, tracking_expires_at = $17, contract_id = $18,
			updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), j.CompanyID, j.Title, j.Description, j.Priority,
		j.Location.Lat, j.Location.Lon, j.Address, j.ScheduledAt,
		j.AssignedAt, j.EnRouteAt, j.InProgressAt,
		j.CompletedAt, j.FinishedAt, j.CancelledAt,
		j.TrackingToken, j.TrackingExpiresAt, idString(j.ContractID),
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fieldops_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("fieldops/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrJobNotFound
	}
	return nil
}

// ListJobsByStatus returns jobs matching the given status, soonest
// scheduled first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM fieldops_jobs WHERE status = $1`
	args := []interface{}{string(status)}
	argIdx := 2

	if opts.CompanyID != "" {
		query += fmt.Sprintf(" AND company_id = $%d", argIdx)
		args = append(args, opts.CompanyID)
		argIdx++
	}

	query += " ORDER BY scheduled_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fieldops/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobsForTechnician returns the jobs currently assigned to the
// given technician.
func (s *Store) ListJobsForTechnician(ctx context.Context, techID id.TechnicianID) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM fieldops_jobs
		 WHERE assigned_technician_id = $1
		 ORDER BY scheduled_at ASC`,
		techID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("fieldops/postgres: list jobs for technician: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// StartBreak opens a break on an in-progress job. The row lock keeps a
// concurrent transition or second break from interleaving.
func (s *Store) StartBreak(ctx context.Context, jobID id.JobID, at time.Time) error {
	return s.withBreaks(ctx, jobID, func(status job.Status, breaks []job.Break) ([]job.Break, error) {
		if status != job.StatusInProgress {
			return nil, fmt.Errorf("%w: break on %s job", fieldops.ErrInvalidTransition, status)
		}
		for _, b := range breaks {
			if b.Open() {
				return nil, fieldops.ErrBreakOpen
			}
		}
		return append(breaks, job.Break{Start: at}), nil
	})
}

// EndBreak closes the open break on a job. Ending with no open break is
// a no-op.
func (s *Store) EndBreak(ctx context.Context, jobID id.JobID, at time.Time) error {
	return s.withBreaks(ctx, jobID, func(_ job.Status, breaks []job.Break) ([]job.Break, error) {
		for i, b := range breaks {
			if b.Open() {
				end := at
				breaks[i].End = &end
				return breaks, nil
			}
		}
		return breaks, nil
	})
}

// withBreaks applies fn to a job's break list under a row lock and
// writes the result back in the same transaction.
func (s *Store) withBreaks(ctx context.Context, jobID id.JobID, fn func(job.Status, []job.Break) ([]job.Break, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var (
		statusStr string
		raw       []byte
	)
	err = tx.QueryRow(ctx,
		`SELECT status, breaks FROM fieldops_jobs WHERE id = $1 FOR UPDATE`,
		jobID.String(),
	).Scan(&statusStr, &raw)
	if err != nil {
		if isNoRows(err) {
			return fieldops.ErrJobNotFound
		}
		return fmt.Errorf("fieldops/postgres: lock job: %w", err)
	}

	var breaks []job.Break
	if len(raw) > 0 {
		if unmarshalErr := json.Unmarshal(raw, &breaks); unmarshalErr != nil {
			return fmt.Errorf("fieldops/postgres: unmarshal breaks: %w", unmarshalErr)
		}
	}

	updated, err := fn(job.Status(statusStr), breaks)
	if err != nil {
		return err
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: marshal breaks: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE fieldops_jobs SET breaks = $2, updated_at = NOW() WHERE id = $1`,
		jobID.String(), data,
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: write breaks: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("fieldops/postgres: commit breaks: %w", err)
	}
	return nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM fieldops_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.CompanyID != "" {
		query += fmt.Sprintf(" AND company_id = $%d", argIdx)
		args = append(args, opts.CompanyID)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("fieldops/postgres: count jobs: %w", err)
	}
	return count, nil
}

// idString renders an optional ID as its TEXT column value.
func idString(v id.ID) string {
	if v.IsNil() {
		return ""
	}
	return v.String()
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		statusStr string
		techStr   string
		breaksRaw []byte
		ctStr     string
	)
	err := row.Scan(
		&idStr, &j.CompanyID, &j.Title, &j.Description, &statusStr, &j.Priority,
		&techStr, &j.Location.Lat, &j.Location.Lon, &j.Address, &j.ScheduledAt,
		&j.AssignedAt, &j.EnRouteAt, &j.InProgressAt, &j.CompletedAt,
		&j.FinishedAt, &j.CancelledAt, &breaksRaw, &j.TrackingToken,
		&j.TrackingExpiresAt, &ctStr, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = job.Status(statusStr)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("fieldops/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if techStr != "" {
		if parsedTech, techErr := id.ParseTechnicianID(techStr); techErr == nil {
			j.AssignedTechnicianID = parsedTech
		}
	}
	if ctStr != "" {
		if parsedCt, ctErr := id.ParseContractID(ctStr); ctErr == nil {
			j.ContractID = parsedCt
		}
	}

	if len(breaksRaw) > 0 {
		if unmarshalErr := json.Unmarshal(breaksRaw, &j.Breaks); unmarshalErr != nil {
			return nil, fmt.Errorf("fieldops/postgres: unmarshal breaks: %w", unmarshalErr)
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("fieldops/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fieldops/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
