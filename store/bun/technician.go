package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/availability"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/technician"
)

// CreateTechnician persists a new technician, available and unclaimed.
func (s *Store) CreateTechnician(ctx context.Context, t *technician.Technician) error {
	m := toTechnicianModel(t)
	m.IsAvailable = true
	m.CurrentJobID = ""
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return fieldops.ErrTechnicianAlreadyExists
		}
		return fmt.Errorf("fieldops/bun: create technician: %w", err)
	}
	return nil
}

// GetTechnician retrieves a technician by ID.
func (s *Store) GetTechnician(ctx context.Context, techID id.TechnicianID) (*technician.Technician, error) {
	m := new(technicianModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", techID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrTechnicianNotFound
		}
		return nil, fmt.Errorf("fieldops/bun: get technician: %w", err)
	}
	return fromTechnicianModel(m)
}

// UpdateTechnician persists changes to descriptive fields. Availability
// fields are written only through Commit, so this update deliberately
// leaves is_available and current_job_id untouched.
func (s *Store) UpdateTechnician(ctx context.Context, t *technician.Technician) error {
	m := toTechnicianModel(t)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).
		ExcludeColumn("is_available", "current_job_id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: update technician: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrTechnicianNotFound
	}
	return nil
}

// DeleteTechnician removes a technician by ID.
func (s *Store) DeleteTechnician(ctx context.Context, techID id.TechnicianID) error {
	res, err := s.db.NewDelete().
		TableExpr("fieldops_technicians").
		Where("id = ?", techID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: delete technician: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrTechnicianNotFound
	}
	return nil
}

// UpdateTechnicianLocation records the latest position sample as a
// single-row update on the hot path.
func (s *Store) UpdateTechnicianLocation(ctx context.Context, techID id.TechnicianID, loc geo.Point, at time.Time) error {
	res, err := s.db.NewUpdate().
		TableExpr("fieldops_technicians").
		Set("lat = ?", loc.Lat).
		Set("lon = ?", loc.Lon).
		Set("located_at = ?", at).
		Where("id = ?", techID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: update technician location: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrTechnicianNotFound
	}
	return nil
}

// ListAvailableTechnicians returns free technicians, ordered by name.
func (s *Store) ListAvailableTechnicians(ctx context.Context, opts technician.ListOpts) ([]*technician.Technician, error) {
	var models []technicianModel
	q := s.db.NewSelect().Model(&models).
		Where("is_available = TRUE")

	if opts.CompanyID != "" {
		q = q.Where("company_id = ?", opts.CompanyID)
	}

	q = q.Order("name ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fieldops/bun: list available technicians: %w", err)
	}

	technicians := make([]*technician.Technician, 0, len(models))
	for i := range models {
		t, convErr := fromTechnicianModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("fieldops/bun: list technicians convert: %w", convErr)
		}
		technicians = append(technicians, t)
	}
	return technicians, nil
}

// Commit atomically applies a job write and a technician claim or
// release in one database transaction. The claim re-checks, with the
// technician row locked, that no different job holds them.
func (s *Store) Commit(ctx context.Context, c availability.Commit) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if c.Job != nil {
			m, convErr := toJobModel(c.Job)
			if convErr != nil {
				return convErr
			}
			m.UpdatedAt = time.Now().UTC()
			res, updErr := tx.NewUpdate().Model(m).
				ExcludeColumn("created_at", "breaks").
				WherePK().
				Exec(ctx)
			if updErr != nil {
				return fmt.Errorf("commit job write: %w", updErr)
			}
			rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
			if rows == 0 {
				return fieldops.ErrJobNotFound
			}
		}

		if !c.Claim.IsNil() {
			tm := new(technicianModel)
			selErr := tx.NewSelect().Model(tm).
				Where("id = ?", c.Claim.String()).
				For("UPDATE").
				Scan(ctx)
			if selErr != nil {
				if isNoRows(selErr) {
					return fieldops.ErrTechnicianNotFound
				}
				return fmt.Errorf("commit claim read: %w", selErr)
			}
			if tm.CurrentJobID != "" && (c.Job == nil || tm.CurrentJobID != c.Job.ID.String()) {
				return fmt.Errorf("%w: technician %s on job %s",
					fieldops.ErrTechnicianConflict, c.Claim, tm.CurrentJobID)
			}
			jobRef := ""
			if c.Job != nil {
				jobRef = c.Job.ID.String()
			}
			if _, updErr := tx.NewUpdate().
				TableExpr("fieldops_technicians").
				Set("is_available = FALSE").
				Set("current_job_id = ?", jobRef).
				Set("updated_at = NOW()").
				Where("id = ?", c.Claim.String()).
				Exec(ctx); updErr != nil {
				return fmt.Errorf("commit claim write: %w", updErr)
			}
		}

		if !c.Release.IsNil() {
			// Only free a technician still bound to the committing job.
			// One already re-claimed by another job keeps that claim and
			// the release becomes a no-op.
			jobRef := ""
			if c.Job != nil {
				jobRef = c.Job.ID.String()
			}
			res, updErr := tx.NewUpdate().
				TableExpr("fieldops_technicians").
				Set("is_available = TRUE").
				Set("current_job_id = ''").
				Set("updated_at = NOW()").
				Where("id = ?", c.Release.String()).
				Where("? = '' OR current_job_id = '' OR current_job_id = ?", jobRef, jobRef).
				Exec(ctx)
			if updErr != nil {
				return fmt.Errorf("commit release write: %w", updErr)
			}
			rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
			if rows == 0 {
				exists, selErr := tx.NewSelect().
					TableExpr("fieldops_technicians").
					Where("id = ?", c.Release.String()).
					Exists(ctx)
				if selErr != nil {
					return fmt.Errorf("commit release read: %w", selErr)
				}
				if !exists {
					return fieldops.ErrTechnicianNotFound
				}
			}
		}

		return nil
	})
	if err == nil {
		return nil
	}
	// Domain rejections pass through; anything else is a transient
	// persistence failure the arbiter may retry.
	if isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", fieldops.ErrPersistence, err)
}
