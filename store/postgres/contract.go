package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/contract"
	"github.com/xraph/fieldops/id"
)

const contractColumns = `
	id, name, company_id, schedule, title, description, priority,
	lat, lon, address, last_run_at, next_run_at, locked_by, locked_until,
	enabled, created_at, updated_at`

// RegisterContract persists a new recurring contract. Contract names
// are unique.
func (s *Store) RegisterContract(ctx context.Context, c *contract.Contract) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fieldops_contracts (
			id, name, company_id, schedule, title, description, priority,
			lat, lon, address, last_run_at, next_run_at, locked_by, locked_until,
			enabled, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17
		)`,
		c.ID.String(), c.Name, c.CompanyID, c.Schedule, c.Title, c.Description, c.Priority,
		c.Location.Lat, c.Location.Lon, c.Address, c.LastRunAt, c.NextRunAt,
		idString(c.LockedBy), c.LockedUntil,
		c.Enabled, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fieldops.ErrDuplicateContract
		}
		return fmt.Errorf("fieldops/postgres: register contract: %w", err)
	}
	return nil
}

// GetContract retrieves a contract by ID.
func (s *Store) GetContract(ctx context.Context, contractID id.ContractID) (*contract.Contract, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM fieldops_contracts WHERE id = $1`,
		contractID.String(),
	)

	c, err := scanContract(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrContractNotFound
		}
		return nil, fmt.Errorf("fieldops/postgres: get contract: %w", err)
	}
	return c, nil
}

// ListContracts returns all contracts ordered by name.
func (s *Store) ListContracts(ctx context.Context) ([]*contract.Contract, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contractColumns+` FROM fieldops_contracts ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("fieldops/postgres: list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*contract.Contract
	for rows.Next() {
		c, scanErr := scanContract(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("fieldops/postgres: scan contract row: %w", scanErr)
		}
		contracts = append(contracts, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("fieldops/postgres: iterate contract rows: %w", err)
	}
	return contracts, nil
}

// AcquireContractLock takes the firing lock for one contract. A single
// conditional UPDATE claims the lock only when it is free, expired, or
// already held by this node.
func (s *Store) AcquireContractLock(ctx context.Context, contractID id.ContractID, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fieldops_contracts SET locked_by = $2, locked_until = $3
		WHERE id = $1
		  AND (locked_by = '' OR locked_until IS NULL OR locked_until < NOW() OR locked_by = $2)`,
		contractID.String(), nodeID.String(), time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return false, fmt.Errorf("fieldops/postgres: acquire contract lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseContractLock frees the firing lock if this node holds it.
// Releasing a lock held by another node is a no-op.
func (s *Store) ReleaseContractLock(ctx context.Context, contractID id.ContractID, nodeID id.NodeID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE fieldops_contracts SET locked_by = '', locked_until = NULL
		WHERE id = $1 AND locked_by = $2`,
		contractID.String(), nodeID.String(),
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: release contract lock: %w", err)
	}
	return nil
}

// UpdateContractLastRun records the last firing time.
func (s *Store) UpdateContractLastRun(ctx context.Context, contractID id.ContractID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fieldops_contracts SET last_run_at = $2, updated_at = NOW()
		WHERE id = $1`,
		contractID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: update contract last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrContractNotFound
	}
	return nil
}

// UpdateContract persists changes to an existing contract. The firing
// lock columns are written only through the lock operations.
func (s *Store) UpdateContract(ctx context.Context, c *contract.Contract) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fieldops_contracts SET
			name = $2, company_id = $3, schedule = $4, title = $5,
			description = $6, priority = $7, lat = $8, lon = $9,
			address = $10, last_run_at = $11, next_run_at = $12,
			enabled = $13, updated_at = NOW()
		WHERE id = $1`,
		c.ID.String(), c.Name, c.CompanyID, c.Schedule, c.Title,
		c.Description, c.Priority, c.Location.Lat, c.Location.Lon,
		c.Address, c.LastRunAt, c.NextRunAt, c.Enabled,
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: update contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrContractNotFound
	}
	return nil
}

// DeleteContract removes a contract by ID.
func (s *Store) DeleteContract(ctx context.Context, contractID id.ContractID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM fieldops_contracts WHERE id = $1`, contractID.String())
	if err != nil {
		return fmt.Errorf("fieldops/postgres: delete contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrContractNotFound
	}
	return nil
}

// scanContract scans a single contract row.
func scanContract(row pgx.Row) (*contract.Contract, error) {
	var (
		c         contract.Contract
		idStr     string
		lockedStr string
	)
	err := row.Scan(
		&idStr, &c.Name, &c.CompanyID, &c.Schedule, &c.Title,
		&c.Description, &c.Priority, &c.Location.Lat, &c.Location.Lon,
		&c.Address, &c.LastRunAt, &c.NextRunAt, &lockedStr, &c.LockedUntil,
		&c.Enabled, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseContractID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("fieldops/postgres: parse contract id %q: %w", idStr, parseErr)
	}
	c.ID = parsedID

	if lockedStr != "" {
		if parsedNode, nodeErr := id.ParseNodeID(lockedStr); nodeErr == nil {
			c.LockedBy = parsedNode
		}
	}

	return &c, nil
}
