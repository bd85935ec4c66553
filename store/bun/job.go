package bunstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return fieldops.ErrJobAlreadyExists
		}
		return fmt.Errorf("fieldops/bun: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrJobNotFound
		}
		return nil, fmt.Errorf("fieldops/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJob persists changes to a job's descriptive fields. Status and
// AssignedTechnicianID are written only through Commit, so this update
// deliberately leaves both columns untouched.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).
		ExcludeColumn("status", "assigned_technician_id", "created_at", "breaks").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewDelete().
		TableExpr("fieldops_jobs").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: delete job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrJobNotFound
	}
	return nil
}

// ListJobsByStatus returns jobs matching the given status, ordered by
// scheduled time.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(status))

	if opts.CompanyID != "" {
		q = q.Where("company_id = ?", opts.CompanyID)
	}

	q = q.Order("scheduled_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fieldops/bun: list jobs by status: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("fieldops/bun: list jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ListJobsForTechnician returns jobs currently bound to a technician.
func (s *Store) ListJobsForTechnician(ctx context.Context, techID id.TechnicianID) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.NewSelect().Model(&models).
		Where("assigned_technician_id = ?", techID.String()).
		Order("scheduled_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: list jobs for technician: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("fieldops/bun: list jobs for technician convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// StartBreak appends an open break to an in_progress job. The read,
// check, and write happen in one transaction with the row locked so
// concurrent break starts cannot both slip through.
func (s *Store) StartBreak(ctx context.Context, jobID id.JobID, at time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m := new(jobModel)
		err := tx.NewSelect().Model(m).
			Where("id = ?", jobID.String()).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return fieldops.ErrJobNotFound
			}
			return fmt.Errorf("fieldops/bun: start break read: %w", err)
		}

		if job.Status(m.Status) != job.StatusInProgress {
			return fmt.Errorf("%w: break requires in_progress, job is %s",
				fieldops.ErrInvalidTransition, m.Status)
		}

		var breaks []job.Break
		if len(m.Breaks) > 0 {
			if err := json.Unmarshal(m.Breaks, &breaks); err != nil {
				return fmt.Errorf("fieldops/bun: start break unmarshal: %w", err)
			}
		}
		for _, b := range breaks {
			if b.Open() {
				return fieldops.ErrBreakOpen
			}
		}

		breaks = append(breaks, job.Break{Start: at})
		return writeBreaks(ctx, tx, jobID, breaks)
	})
}

// EndBreak closes the job's open break. A job without an open break is
// left unchanged.
func (s *Store) EndBreak(ctx context.Context, jobID id.JobID, at time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m := new(jobModel)
		err := tx.NewSelect().Model(m).
			Where("id = ?", jobID.String()).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return fieldops.ErrJobNotFound
			}
			return fmt.Errorf("fieldops/bun: end break read: %w", err)
		}

		var breaks []job.Break
		if len(m.Breaks) > 0 {
			if err := json.Unmarshal(m.Breaks, &breaks); err != nil {
				return fmt.Errorf("fieldops/bun: end break unmarshal: %w", err)
			}
		}

		closed := false
		for i := range breaks {
			if breaks[i].Open() {
				end := at
				breaks[i].End = &end
				closed = true
				break
			}
		}
		if !closed {
			return nil
		}

		return writeBreaks(ctx, tx, jobID, breaks)
	})
}

func writeBreaks(ctx context.Context, tx bun.Tx, jobID id.JobID, breaks []job.Break) error {
	data, err := json.Marshal(breaks)
	if err != nil {
		return fmt.Errorf("fieldops/bun: marshal breaks: %w", err)
	}
	_, err = tx.NewUpdate().
		TableExpr("fieldops_jobs").
		Set("breaks = ?", string(data)).
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: write breaks: %w", err)
	}
	return nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("fieldops_jobs")

	if opts.CompanyID != "" {
		q = q.Where("company_id = ?", opts.CompanyID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("fieldops/bun: count jobs: %w", err)
	}
	return int64(count), nil
}
