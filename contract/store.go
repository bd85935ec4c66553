package contract

import (
	"context"
	"time"

	"github.com/xraph/fieldops/id"
)

// Store defines the persistence contract for recurring contracts.
type Store interface {
	// RegisterContract persists a new contract. Returns an error if the
	// name already exists.
	RegisterContract(ctx context.Context, c *Contract) error

	// GetContract retrieves a contract by ID.
	GetContract(ctx context.Context, contractID id.ContractID) (*Contract, error)

	// ListContracts returns all contracts.
	ListContracts(ctx context.Context) ([]*Contract, error)

	// AcquireContractLock attempts to acquire a distributed lock for a
	// contract. Returns true if the lock was acquired. The lock expires
	// after ttl.
	AcquireContractLock(ctx context.Context, contractID id.ContractID, nodeID id.NodeID, ttl time.Duration) (bool, error)

	// ReleaseContractLock releases the distributed lock for a contract.
	ReleaseContractLock(ctx context.Context, contractID id.ContractID, nodeID id.NodeID) error

	// UpdateContractLastRun records when a contract last fired.
	UpdateContractLastRun(ctx context.Context, contractID id.ContractID, at time.Time) error

	// UpdateContract updates a contract (Enabled, NextRunAt, etc.).
	UpdateContract(ctx context.Context, c *Contract) error

	// DeleteContract removes a contract by ID.
	DeleteContract(ctx context.Context, contractID id.ContractID) error
}
