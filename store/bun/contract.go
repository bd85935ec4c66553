package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/contract"
	"github.com/xraph/fieldops/id"
)

// RegisterContract persists a new recurring contract. Contract names
// are unique.
func (s *Store) RegisterContract(ctx context.Context, c *contract.Contract) error {
	m := toContractModel(c)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return fieldops.ErrDuplicateContract
		}
		return fmt.Errorf("fieldops/bun: register contract: %w", err)
	}
	return nil
}

// GetContract retrieves a contract by ID.
func (s *Store) GetContract(ctx context.Context, contractID id.ContractID) (*contract.Contract, error) {
	m := new(contractModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", contractID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrContractNotFound
		}
		return nil, fmt.Errorf("fieldops/bun: get contract: %w", err)
	}
	return fromContractModel(m)
}

// ListContracts returns all contracts ordered by name.
func (s *Store) ListContracts(ctx context.Context) ([]*contract.Contract, error) {
	var models []contractModel
	err := s.db.NewSelect().Model(&models).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: list contracts: %w", err)
	}

	contracts := make([]*contract.Contract, 0, len(models))
	for i := range models {
		c, convErr := fromContractModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("fieldops/bun: list contracts convert: %w", convErr)
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

// AcquireContractLock takes the firing lock for one contract. A single
// conditional UPDATE claims the lock only when it is free, expired, or
// already held by this node.
func (s *Store) AcquireContractLock(ctx context.Context, contractID id.ContractID, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	until := time.Now().UTC().Add(ttl)
	res, err := s.db.NewUpdate().
		TableExpr("fieldops_contracts").
		Set("locked_by = ?", nodeID.String()).
		Set("locked_until = ?", until).
		Where("id = ?", contractID.String()).
		Where("(locked_by = '' OR locked_until IS NULL OR locked_until < NOW() OR locked_by = ?)", nodeID.String()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("fieldops/bun: acquire contract lock: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows > 0, nil
}

// ReleaseContractLock frees the firing lock if this node holds it.
// Releasing a lock held by another node is a no-op.
func (s *Store) ReleaseContractLock(ctx context.Context, contractID id.ContractID, nodeID id.NodeID) error {
	_, err := s.db.NewUpdate().
		TableExpr("fieldops_contracts").
		Set("locked_by = ''").
		Set("locked_until = NULL").
		Where("id = ?", contractID.String()).
		Where("locked_by = ?", nodeID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: release contract lock: %w", err)
	}
	return nil
}

// UpdateContractLastRun records the last firing time.
func (s *Store) UpdateContractLastRun(ctx context.Context, contractID id.ContractID, at time.Time) error {
	res, err := s.db.NewUpdate().
		TableExpr("fieldops_contracts").
		Set("last_run_at = ?", at).
		Set("updated_at = NOW()").
		Where("id = ?", contractID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: update contract last run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrContractNotFound
	}
	return nil
}

// UpdateContract persists changes to an existing contract.
func (s *Store) UpdateContract(ctx context.Context, c *contract.Contract) error {
	m := toContractModel(c)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).
		ExcludeColumn("created_at", "locked_by", "locked_until").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: update contract: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrContractNotFound
	}
	return nil
}

// DeleteContract removes a contract by ID.
func (s *Store) DeleteContract(ctx context.Context, contractID id.ContractID) error {
	res, err := s.db.NewDelete().
		TableExpr("fieldops_contracts").
		Where("id = ?", contractID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: delete contract: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrContractNotFound
	}
	return nil
}
