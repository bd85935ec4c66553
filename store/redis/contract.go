package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/contract"
	"github.com/xraph/fieldops/id"
)

// RegisterContract persists a new recurring contract. The name index
// enforces uniqueness: HSetNX on the names hash either claims the name
// or reports the duplicate.
func (s *Store) RegisterContract(ctx context.Context, c *contract.Contract) error {
	cID := c.ID.String()

	claimed, err := s.client.HSetNX(ctx, contractNamesKey, c.Name, cID).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: register contract name: %w", err)
	}
	if !claimed {
		return fieldops.ErrDuplicateContract
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, contractKey(cID), contractToMap(c))
	pipe.SAdd(ctx, contractIDsKey, cID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: register contract: %w", err)
	}
	return nil
}

// GetContract retrieves a contract by ID.
func (s *Store) GetContract(ctx context.Context, contractID id.ContractID) (*contract.Contract, error) {
	vals, err := s.client.HGetAll(ctx, contractKey(contractID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: get contract: %w", err)
	}
	if len(vals) == 0 {
		return nil, fieldops.ErrContractNotFound
	}
	return mapToContract(vals)
}

// ListContracts returns all contracts ordered by name.
func (s *Store) ListContracts(ctx context.Context) ([]*contract.Contract, error) {
	ids, err := s.client.SMembers(ctx, contractIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: list contracts: %w", err)
	}

	contracts := make([]*contract.Contract, 0, len(ids))
	for _, cID := range ids {
		vals, getErr := s.client.HGetAll(ctx, contractKey(cID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		c, convErr := mapToContract(vals)
		if convErr != nil {
			continue
		}
		contracts = append(contracts, c)
	}

	for i := 1; i < len(contracts); i++ {
		for k := i; k > 0 && contracts[k].Name < contracts[k-1].Name; k-- {
			contracts[k], contracts[k-1] = contracts[k-1], contracts[k]
		}
	}
	return contracts, nil
}

// AcquireContractLock takes the firing lock for one contract using
// SET NX with a TTL. A holder re-acquire extends the TTL.
func (s *Store) AcquireContractLock(ctx context.Context, contractID id.ContractID, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	key := contractLockKey(contractID.String())
	nID := nodeID.String()

	ok, err := s.client.SetNX(ctx, key, nID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("fieldops/redis: acquire contract lock: %w", err)
	}
	if ok {
		return true, nil
	}

	// Check if we already hold it.
	current, err := s.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("fieldops/redis: acquire contract lock get: %w", err)
	}
	if current == nID {
		if eErr := s.client.Expire(ctx, key, ttl).Err(); eErr != nil {
			s.logger.Warn("failed to extend contract lock", "error", eErr)
		}
		return true, nil
	}
	return false, nil
}

// ReleaseContractLock frees the firing lock if this node holds it.
// Releasing a lock held by another node is a no-op.
func (s *Store) ReleaseContractLock(ctx context.Context, contractID id.ContractID, nodeID id.NodeID) error {
	key := contractLockKey(contractID.String())

	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return fmt.Errorf("fieldops/redis: release contract lock get: %w", err)
	}
	if current != nodeID.String() {
		return nil
	}

	if err = s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("fieldops/redis: release contract lock: %w", err)
	}
	return nil
}

// UpdateContractLastRun records the last firing time.
func (s *Store) UpdateContractLastRun(ctx context.Context, contractID id.ContractID, at time.Time) error {
	key := contractKey(contractID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: last run exists: %w", err)
	}
	if exists == 0 {
		return fieldops.ErrContractNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"last_run_at", at.Format(time.RFC3339Nano),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: update contract last run: %w", err)
	}
	return nil
}

// UpdateContract persists changes to an existing contract.
func (s *Store) UpdateContract(ctx context.Context, c *contract.Contract) error {
	key := contractKey(c.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: update contract exists: %w", err)
	}
	if exists == 0 {
		return fieldops.ErrContractNotFound
	}

	fields := contractToMap(c)
	delete(fields, "created_at")
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.client.HSet(ctx, key, fields).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: update contract: %w", err)
	}
	return nil
}

// DeleteContract removes a contract by ID.
func (s *Store) DeleteContract(ctx context.Context, contractID id.ContractID) error {
	cID := contractID.String()
	key := contractKey(cID)

	name, err := s.client.HGet(ctx, key, "name").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return fieldops.ErrContractNotFound
		}
		return fmt.Errorf("fieldops/redis: delete contract get name: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, contractIDsKey, cID)
	pipe.HDel(ctx, contractNamesKey, name)
	pipe.Del(ctx, contractLockKey(cID))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: delete contract: %w", err)
	}
	return nil
}

// ── helpers ──

func contractToMap(c *contract.Contract) map[string]interface{} {
	m := map[string]interface{}{
		"id":          c.ID.String(),
		"name":        c.Name,
		"company_id":  c.CompanyID,
		"schedule":    c.Schedule,
		"title":       c.Title,
		"description": c.Description,
		"priority":    strconv.Itoa(c.Priority),
		"lat":         strconv.FormatFloat(c.Location.Lat, 'f', -1, 64),
		"lon":         strconv.FormatFloat(c.Location.Lon, 'f', -1, 64),
		"address":     c.Address,
		"enabled":     boolField(c.Enabled),
		"created_at":  c.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  c.UpdatedAt.Format(time.RFC3339Nano),
	}
	if c.LastRunAt != nil {
		m["last_run_at"] = c.LastRunAt.Format(time.RFC3339Nano)
	}
	if c.NextRunAt != nil {
		m["next_run_at"] = c.NextRunAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToContract(m map[string]string) (*contract.Contract, error) {
	cID, err := id.ParseContractID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: parse contract id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"]) //nolint:errcheck // best-effort parse from trusted Redis data
	lat, _ := strconv.ParseFloat(m["lat"], 64) //nolint:errcheck // best-effort parse from trusted Redis data
	lon, _ := strconv.ParseFloat(m["lon"], 64) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	c := &contract.Contract{
		Entity: fieldops.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          cID,
		Name:        m["name"],
		CompanyID:   m["company_id"],
		Schedule:    m["schedule"],
		Title:       m["title"],
		Description: m["description"],
		Priority:    priority,
		Address:     m["address"],
		Enabled:     m["enabled"] == "1",
	}
	c.Location.Lat = lat
	c.Location.Lon = lon

	if v := m["last_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		c.LastRunAt = &t
	}
	if v := m["next_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		c.NextRunAt = &t
	}
	return c, nil
}
