package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/availability"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/technician"
)

const technicianColumns = `
	id, company_id, name, skills, is_available, current_job_id,
	lat, lon, located_at, created_at, updated_at`

// CreateTechnician persists a new technician. New technicians always
// start available with no current job.
func (s *Store) CreateTechnician(ctx context.Context, tech *technician.Technician) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fieldops_technicians (
			id, company_id, name, skills, is_available, current_job_id,
			lat, lon, located_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, TRUE, '',
			$5, $6, $7, $8, $9
		)`,
		tech.ID.String(), tech.CompanyID, tech.Name, tech.Skills,
		tech.Location.Lat, tech.Location.Lon, tech.LocatedAt,
		tech.CreatedAt, tech.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fieldops.ErrTechnicianAlreadyExists
		}
		return fmt.Errorf("fieldops/postgres: create technician: %w", err)
	}
	return nil
}

// GetTechnician retrieves a technician by ID.
func (s *Store) GetTechnician(ctx context.Context, techID id.TechnicianID) (*technician.Technician, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+technicianColumns+` FROM fieldops_technicians WHERE id = $1`,
		techID.String(),
	)

	tech, err := scanTechnician(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrTechnicianNotFound
		}
		return nil, fmt.Errorf("fieldops/postgres: get technician: %w", err)
	}
	return tech, nil
}

// UpdateTechnician persists changes to an existing technician.
// Availability and the current job are written only through the
// availability commit.
func (s *Store) UpdateTechnician(ctx context.Context, tech *technician.Technician) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fieldops_technicians SET
			company_id = $2, name = $3, skills = $4,
			lat = $5, lon = $6, located_at = $7,
			updated_at = NOW()
		WHERE id = $1`,
		tech.ID.String(), tech.CompanyID, tech.Name, tech.Skills,
		tech.Location.Lat, tech.Location.Lon, tech.LocatedAt,
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: update technician: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrTechnicianNotFound
	}
	return nil
}

// DeleteTechnician removes a technician by ID.
func (s *Store) DeleteTechnician(ctx context.Context, techID id.TechnicianID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM fieldops_technicians WHERE id = $1`, techID.String())
	if err != nil {
		return fmt.Errorf("fieldops/postgres: delete technician: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrTechnicianNotFound
	}
	return nil
}

// UpdateTechnicianLocation writes only the position columns. This is the
// highest-frequency write in the system, so it deliberately skips the
// full-row update.
func (s *Store) UpdateTechnicianLocation(ctx context.Context, techID id.TechnicianID, pos geo.Point, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fieldops_technicians SET
			lat = $2, lon = $3, located_at = $4, updated_at = NOW()
		WHERE id = $1`,
		techID.String(), pos.Lat, pos.Lon, at,
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: update technician location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrTechnicianNotFound
	}
	return nil
}

// ListAvailableTechnicians returns free technicians ordered by name.
func (s *Store) ListAvailableTechnicians(ctx context.Context, opts technician.ListOpts) ([]*technician.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM fieldops_technicians WHERE is_available = TRUE`
	args := []interface{}{}
	argIdx := 1

	if opts.CompanyID != "" {
		query += fmt.Sprintf(" AND company_id = $%d", argIdx)
		args = append(args, opts.CompanyID)
		argIdx++
	}

	query += " ORDER BY name ASC"

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
		return nil, fmt.Errorf("fieldops/postgres: list available technicians: %w", err)
	}
	defer rows.Close()

	var techs []*technician.Technician
	for rows.Next() {
		tech, scanErr := scanTechnician(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("fieldops/postgres: scan technician row: %w", scanErr)
		}
		techs = append(techs, tech)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("fieldops/postgres: iterate technician rows: %w", err)
	}
	return techs, nil
}

// Commit applies a job write and the paired technician claim/release as
// one transaction. Domain rejections pass through; anything else is a
// transient persistence failure the arbiter may retry.
func (s *Store) Commit(ctx context.Context, c availability.Commit) error {
	err := s.commitTx(ctx, c)
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", fieldops.ErrPersistence, err)
}

func (s *Store) commitTx(ctx context.Context, c availability.Commit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if c.Job != nil {
		breaks, marshalErr := json.Marshal(c.Job.Breaks)
		if marshalErr != nil {
			return fmt.Errorf("marshal breaks: %w", marshalErr)
		}
		tag, execErr := tx.Exec(ctx, `
			UPDATE fieldops_jobs SET
				company_id = $2, title = $3, description = $4, status = $5,
				priority = $6, assigned_technician_id = $7, lat = $8, lon = $9,
				address = $10, scheduled_at = $11, assigned_at = $12,
				en_route_at = $13, in_progress_at = $14, completed_at = $15,
				finished_at = $16, cancelled_at = $17, breaks = $18,
				tracking_token = $19, tracking_expires_at = $20, contract_id = $21,
				updated_at = NOW()
			WHERE id = $1`,
			c.Job.ID.String(), c.Job.CompanyID, c.Job.Title, c.Job.Description, string(c.Job.Status),
			c.Job.Priority, idString(c.Job.AssignedTechnicianID), c.Job.Location.Lat, c.Job.Location.Lon,
			c.Job.Address, c.Job.ScheduledAt, c.Job.AssignedAt,
			c.Job.EnRouteAt, c.Job.InProgressAt, c.Job.CompletedAt,
			c.Job.FinishedAt, c.Job.CancelledAt, breaks,
			c.Job.TrackingToken, c.Job.TrackingExpiresAt, idString(c.Job.ContractID),
		)
		if execErr != nil {
			return fmt.Errorf("commit job: %w", execErr)
		}
		if tag.RowsAffected() == 0 {
			return fieldops.ErrJobNotFound
		}
	}

	if !c.Claim.IsNil() {
		var currentJob string
		scanErr := tx.QueryRow(ctx,
			`SELECT current_job_id FROM fieldops_technicians WHERE id = $1 FOR UPDATE`,
			c.Claim.String(),
		).Scan(&currentJob)
		if scanErr != nil {
			if isNoRows(scanErr) {
				return fieldops.ErrTechnicianNotFound
			}
			return fmt.Errorf("lock technician: %w", scanErr)
		}

		// Re-check the claim inside the transaction: a technician held
		// by a different job fails the whole commit.
		if currentJob != "" && (c.Job == nil || currentJob != c.Job.ID.String()) {
			return fieldops.ErrTechnicianConflict
		}

		jobID := ""
		if c.Job != nil {
			jobID = c.Job.ID.String()
		}
		_, execErr := tx.Exec(ctx, `
			UPDATE fieldops_technicians SET
				is_available = FALSE, current_job_id = $2, updated_at = NOW()
			WHERE id = $1`,
			c.Claim.String(), jobID,
		)
		if execErr != nil {
			return fmt.Errorf("claim technician: %w", execErr)
		}
	}

	if !c.Release.IsNil() {
		// Only free a technician still bound to the committing job. A
		// technician already re-claimed by another job keeps that claim;
		// the release is then a no-op, not an error.
		jobID := ""
		if c.Job != nil {
			jobID = c.Job.ID.String()
		}
		tag, execErr := tx.Exec(ctx, `
			UPDATE fieldops_technicians SET
				is_available = TRUE, current_job_id = '', updated_at = NOW()
			WHERE id = $1 AND ($2 = '' OR current_job_id = '' OR current_job_id = $2)`,
			c.Release.String(), jobID,
		)
		if execErr != nil {
			return fmt.Errorf("release technician: %w", execErr)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			scanErr := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM fieldops_technicians WHERE id = $1)`,
				c.Release.String(),
			).Scan(&exists)
			if scanErr != nil {
				return fmt.Errorf("release technician exists: %w", scanErr)
			}
			if !exists {
				return fieldops.ErrTechnicianNotFound
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// scanTechnician scans a single technician row.
func scanTechnician(row pgx.Row) (*technician.Technician, error) {
	var (
		tech   technician.Technician
		idStr  string
		jobStr string
	)
	err := row.Scan(
		&idStr, &tech.CompanyID, &tech.Name, &tech.Skills,
		&tech.IsAvailable, &jobStr,
		&tech.Location.Lat, &tech.Location.Lon, &tech.LocatedAt,
		&tech.CreatedAt, &tech.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseTechnicianID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("fieldops/postgres: parse technician id %q: %w", idStr, parseErr)
	}
	tech.ID = parsedID

	if jobStr != "" {
		if parsedJob, jobErr := id.ParseJobID(jobStr); jobErr == nil {
			tech.CurrentJobID = parsedJob
		}
	}

	return &tech, nil
}
