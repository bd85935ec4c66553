package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/cluster"
	"github.com/xraph/fieldops/id"
)

const nodeColumns = `
	id, hostname, state, is_leader, leader_until, last_seen, metadata, created_at`

// RegisterNode inserts or refreshes this instance's node record.
func (s *Store) RegisterNode(ctx context.Context, n *cluster.Node) error {
	meta := n.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: marshal node metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO fieldops_nodes (
			id, hostname, state, is_leader, leader_until, last_seen, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			state = EXCLUDED.state,
			last_seen = EXCLUDED.last_seen,
			metadata = EXCLUDED.metadata`,
		n.ID.String(), n.Hostname, string(n.State), n.IsLeader,
		n.LeaderUntil, n.LastSeen, metaJSON, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: register node: %w", err)
	}
	return nil
}

// DeregisterNode removes a node record on graceful shutdown.
func (s *Store) DeregisterNode(ctx context.Context, nodeID id.NodeID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM fieldops_nodes WHERE id = $1`, nodeID.String())
	if err != nil {
		return fmt.Errorf("fieldops/postgres: deregister node: %w", err)
	}
	return nil
}

// HeartbeatNode refreshes a node's last-seen timestamp.
func (s *Store) HeartbeatNode(ctx context.Context, nodeID id.NodeID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fieldops_nodes SET last_seen = NOW(), state = 'active' WHERE id = $1`,
		nodeID.String(),
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: heartbeat node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrNodeNotFound
	}
	return nil
}

// ListNodes returns all registered nodes, oldest first.
func (s *Store) ListNodes(ctx context.Context) ([]*cluster.Node, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM fieldops_nodes ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("fieldops/postgres: list nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// ReapDeadNodes removes nodes whose last heartbeat is older than the
// threshold and returns the reaped records.
func (s *Store) ReapDeadNodes(ctx context.Context, threshold time.Duration) ([]*cluster.Node, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM fieldops_nodes
		WHERE last_seen < NOW() - $1::interval
		RETURNING `+nodeColumns,
		threshold.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("fieldops/postgres: reap dead nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// AcquireLeadership attempts to become the generator leader. A single
// node holds leadership at a time; the TTL bounds how stale a dead
// leader can be.
func (s *Store) AcquireLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	nID := nodeID.String()

	// Clear any expired leader.
	_, err := s.pool.Exec(ctx, `
		UPDATE fieldops_nodes
		SET is_leader = FALSE, leader_until = NULL
		WHERE is_leader = TRUE AND leader_until < NOW()`)
	if err != nil {
		return false, fmt.Errorf("fieldops/postgres: clear expired leader: %w", err)
	}

	// Check for an active leader that isn't us.
	var activeLeaderID string
	err = s.pool.QueryRow(ctx, `
		SELECT id FROM fieldops_nodes
		WHERE is_leader = TRUE AND leader_until >= NOW()
		LIMIT 1`,
	).Scan(&activeLeaderID)
	if err != nil && !isNoRows(err) {
		return false, fmt.Errorf("fieldops/postgres: check leader: %w", err)
	}
	if activeLeaderID != "" && activeLeaderID != nID {
		return false, nil
	}

	// Claim or re-claim leadership.
	tag, err := s.pool.Exec(ctx, `
		UPDATE fieldops_nodes SET is_leader = TRUE, leader_until = $2
		WHERE id = $1`,
		nID, time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return false, fmt.Errorf("fieldops/postgres: claim leadership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RenewLeadership extends the TTL if this node is still the leader.
func (s *Store) RenewLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fieldops_nodes SET leader_until = $2
		WHERE id = $1 AND is_leader = TRUE AND leader_until >= NOW()`,
		nodeID.String(), time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return false, fmt.Errorf("fieldops/postgres: renew leadership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetLeader returns the current leader, or nil when no valid leader
// exists.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Node, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+nodeColumns+` FROM fieldops_nodes
		WHERE is_leader = TRUE AND leader_until >= NOW()
		LIMIT 1`)

	n, err := scanNode(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fieldops/postgres: get leader: %w", err)
	}
	return n, nil
}

// scanNode scans a single node row.
func scanNode(row pgx.Row) (*cluster.Node, error) {
	var (
		n        cluster.Node
		idStr    string
		stateStr string
		metaRaw  []byte
	)
	err := row.Scan(
		&idStr, &n.Hostname, &stateStr, &n.IsLeader,
		&n.LeaderUntil, &n.LastSeen, &metaRaw, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseNodeID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("fieldops/postgres: parse node id %q: %w", idStr, parseErr)
	}
	n.ID = parsedID
	n.State = cluster.NodeState(stateStr)

	if len(metaRaw) > 0 {
		if unmarshalErr := json.Unmarshal(metaRaw, &n.Metadata); unmarshalErr != nil {
			return nil, fmt.Errorf("fieldops/postgres: unmarshal node metadata: %w", unmarshalErr)
		}
	}

	return &n, nil
}

// collectNodes collects all nodes from query rows.
func collectNodes(rows pgx.Rows) ([]*cluster.Node, error) {
	var nodes []*cluster.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("fieldops/postgres: scan node row: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fieldops/postgres: iterate node rows: %w", err)
	}
	return nodes, nil
}
