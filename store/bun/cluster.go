package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/cluster"
	"github.com/xraph/fieldops/id"
)

// RegisterNode inserts or refreshes this instance's node record.
func (s *Store) RegisterNode(ctx context.Context, n *cluster.Node) error {
	m, err := toNodeModel(n)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("hostname = EXCLUDED.hostname").
		Set("state = EXCLUDED.state").
		Set("last_seen = EXCLUDED.last_seen").
		Set("metadata = EXCLUDED.metadata").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: register node: %w", err)
	}
	return nil
}

// DeregisterNode removes a node record on graceful shutdown.
func (s *Store) DeregisterNode(ctx context.Context, nodeID id.NodeID) error {
	_, err := s.db.NewDelete().
		TableExpr("fieldops_nodes").
		Where("id = ?", nodeID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: deregister node: %w", err)
	}
	return nil
}

// HeartbeatNode refreshes a node's last-seen timestamp.
func (s *Store) HeartbeatNode(ctx context.Context, nodeID id.NodeID) error {
	res, err := s.db.NewUpdate().
		TableExpr("fieldops_nodes").
		Set("last_seen = NOW()").
		Set("state = 'active'").
		Where("id = ?", nodeID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: heartbeat node: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrNodeNotFound
	}
	return nil
}

// ListNodes returns all registered nodes, oldest first.
func (s *Store) ListNodes(ctx context.Context) ([]*cluster.Node, error) {
	var models []nodeModel
	err := s.db.NewSelect().Model(&models).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: list nodes: %w", err)
	}

	nodes := make([]*cluster.Node, 0, len(models))
	for i := range models {
		n, convErr := fromNodeModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("fieldops/bun: list nodes convert: %w", convErr)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// ReapDeadNodes removes nodes whose last heartbeat is older than the
// threshold and returns the reaped records.
func (s *Store) ReapDeadNodes(ctx context.Context, threshold time.Duration) ([]*cluster.Node, error) {
	var models []nodeModel
	_, err := s.db.NewDelete().
		Model((*nodeModel)(nil)).
		Where("last_seen < NOW() - ?::interval", threshold.String()).
		Returning("*").
		Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("fieldops/bun: reap dead nodes: %w", err)
	}

	nodes := make([]*cluster.Node, 0, len(models))
	for i := range models {
		n, convErr := fromNodeModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("fieldops/bun: reap nodes convert: %w", convErr)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// AcquireLeadership attempts to become the generator leader. A single
// node holds leadership at a time; the TTL bounds how stale a dead
// leader can be.
func (s *Store) AcquireLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	nID := nodeID.String()
	until := time.Now().UTC().Add(ttl)

	// Clear any expired leader.
	_, err := s.db.ExecContext(ctx, `
		UPDATE fieldops_nodes
		SET is_leader = FALSE, leader_until = NULL
		WHERE is_leader = TRUE AND leader_until < NOW()`,
	)
	if err != nil {
		return false, fmt.Errorf("fieldops/bun: clear expired leader: %w", err)
	}

	// Check for an active leader that isn't us.
	var activeLeaderID *string
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM fieldops_nodes
		WHERE is_leader = TRUE AND leader_until >= NOW()
		LIMIT 1`,
	).Scan(&activeLeaderID)
	if err != nil && !isNoRows(err) {
		return false, fmt.Errorf("fieldops/bun: check leader: %w", err)
	}
	if activeLeaderID != nil && *activeLeaderID != nID {
		return false, nil
	}

	// Claim or re-claim leadership.
	res, err := s.db.NewUpdate().
		TableExpr("fieldops_nodes").
		Set("is_leader = TRUE").
		Set("leader_until = ?", until).
		Where("id = ?", nID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("fieldops/bun: claim leadership: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows > 0, nil
}

// RenewLeadership extends the TTL if this node is still the leader.
func (s *Store) RenewLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	until := time.Now().UTC().Add(ttl)
	res, err := s.db.NewUpdate().
		TableExpr("fieldops_nodes").
		Set("leader_until = ?", until).
		Where("id = ?", nodeID.String()).
		Where("is_leader = TRUE").
		Where("leader_until >= NOW()").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("fieldops/bun: renew leadership: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows > 0, nil
}

// GetLeader returns the current leader, or nil when no valid leader
// exists.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Node, error) {
	m := new(nodeModel)
	err := s.db.NewSelect().Model(m).
		Where("is_leader = TRUE").
		Where("leader_until >= NOW()").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fieldops/bun: get leader: %w", err)
	}
	return fromNodeModel(m)
}
