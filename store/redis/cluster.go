package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/cluster"
	"github.com/xraph/fieldops/id"
)

// RegisterNode adds or refreshes a node in the cluster registry.
func (s *Store) RegisterNode(ctx context.Context, n *cluster.Node) error {
	nID := n.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, nodeKey(nID), nodeToMap(n))
	pipe.SAdd(ctx, nodeIDsKey, nID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: register node: %w", err)
	}
	return nil
}

// DeregisterNode removes a node from the cluster registry.
func (s *Store) DeregisterNode(ctx context.Context, nodeID id.NodeID) error {
	nID := nodeID.String()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, nodeKey(nID))
	pipe.SRem(ctx, nodeIDsKey, nID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: deregister node: %w", err)
	}
	return nil
}

// HeartbeatNode refreshes a node's last-seen timestamp.
func (s *Store) HeartbeatNode(ctx context.Context, nodeID id.NodeID) error {
	key := nodeKey(nodeID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return fieldops.ErrNodeNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"last_seen", time.Now().UTC().Format(time.RFC3339Nano),
		"state", string(cluster.NodeActive),
	).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: heartbeat node: %w", err)
	}
	return nil
}

// ListNodes returns all registered nodes.
func (s *Store) ListNodes(ctx context.Context) ([]*cluster.Node, error) {
	ids, err := s.client.SMembers(ctx, nodeIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: list nodes: %w", err)
	}

	nodes := make([]*cluster.Node, 0, len(ids))
	for _, nID := range ids {
		vals, getErr := s.client.HGetAll(ctx, nodeKey(nID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		n, convErr := mapToNode(vals)
		if convErr != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// ReapDeadNodes removes nodes whose last-seen timestamp is older than
// the threshold and returns the reaped records.
func (s *Store) ReapDeadNodes(ctx context.Context, threshold time.Duration) ([]*cluster.Node, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	ids, err := s.client.SMembers(ctx, nodeIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: reap smembers: %w", err)
	}

	var dead []*cluster.Node
	for _, nID := range ids {
		vals, getErr := s.client.HGetAll(ctx, nodeKey(nID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		n, convErr := mapToNode(vals)
		if convErr != nil {
			continue
		}
		if n.LastSeen.Before(cutoff) {
			dead = append(dead, n)
		}
	}

	if len(dead) > 0 {
		pipe := s.client.TxPipeline()
		for _, n := range dead {
			nID := n.ID.String()
			pipe.Del(ctx, nodeKey(nID))
			pipe.SRem(ctx, nodeIDsKey, nID)
		}
		if _, err = pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("fieldops/redis: reap dead nodes: %w", err)
		}
	}
	return dead, nil
}

// AcquireLeadership attempts to become the generator leader using
// SET NX with a TTL.
func (s *Store) AcquireLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	nID := nodeID.String()
	nKey := nodeKey(nID)

	// Check node exists.
	exists, err := s.client.Exists(ctx, nKey).Result()
	if err != nil {
		return false, fmt.Errorf("fieldops/redis: acquire leadership exists: %w", err)
	}
	if exists == 0 {
		return false, fieldops.ErrNodeNotFound
	}

	// Try SET NX with TTL (atomic acquire).
	ok, err := s.client.SetNX(ctx, leaderKey, nID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("fieldops/redis: acquire leadership setnx: %w", err)
	}
	if ok {
		s.markLeader(ctx, nKey, ttl)
		return true, nil
	}

	// Check if we already hold it.
	current, err := s.client.Get(ctx, leaderKey).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("fieldops/redis: acquire leadership get: %w", err)
	}
	if current == nID {
		// Re-acquire: extend TTL.
		if eErr := s.client.Expire(ctx, leaderKey, ttl).Err(); eErr != nil {
			s.logger.Warn("failed to extend leader key", "error", eErr)
		}
		s.markLeader(ctx, nKey, ttl)
		return true, nil
	}

	return false, nil
}

// RenewLeadership extends the leader's hold.
func (s *Store) RenewLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	nID := nodeID.String()

	current, err := s.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil // no leader
		}
		return false, fmt.Errorf("fieldops/redis: renew leadership get: %w", err)
	}
	if current != nID {
		return false, nil // not the leader
	}

	if eErr := s.client.Expire(ctx, leaderKey, ttl).Err(); eErr != nil {
		s.logger.Warn("failed to extend leader key", "error", eErr)
	}
	s.markLeader(ctx, nodeKey(nID), ttl)
	return true, nil
}

// GetLeader returns the current leader, or nil if there is no leader.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Node, error) {
	nID, err := s.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil // no leader
		}
		return nil, fmt.Errorf("fieldops/redis: get leader: %w", err)
	}

	vals, err := s.client.HGetAll(ctx, nodeKey(nID)).Result()
	if err != nil || len(vals) == 0 {
		return nil, nil // leader key exists but node gone
	}
	return mapToNode(vals)
}

// markLeader best-effort mirrors leadership onto the node hash.
func (s *Store) markLeader(ctx context.Context, nKey string, ttl time.Duration) {
	until := time.Now().UTC().Add(ttl)
	if _, err := s.client.HSet(ctx, nKey,
		"is_leader", "1",
		"leader_until", until.Format(time.RFC3339Nano),
	).Result(); err != nil {
		s.logger.Warn("failed to update leader fields", "error", err)
	}
}

// ── helpers ──

func nodeToMap(n *cluster.Node) map[string]interface{} {
	m := map[string]interface{}{
		"id":         n.ID.String(),
		"hostname":   n.Hostname,
		"state":      string(n.State),
		"is_leader":  boolField(n.IsLeader),
		"last_seen":  n.LastSeen.Format(time.RFC3339Nano),
		"metadata":   marshalJSON(n.Metadata),
		"created_at": n.CreatedAt.Format(time.RFC3339Nano),
	}
	if n.LeaderUntil != nil {
		m["leader_until"] = n.LeaderUntil.Format(time.RFC3339Nano)
	}
	return m
}

func mapToNode(m map[string]string) (*cluster.Node, error) {
	nID, err := id.ParseNodeID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: parse node id: %w", err)
	}

	lastSeen, _ := time.Parse(time.RFC3339Nano, m["last_seen"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	n := &cluster.Node{
		ID:        nID,
		Hostname:  m["hostname"],
		State:     cluster.NodeState(m["state"]),
		IsLeader:  m["is_leader"] == "1",
		LastSeen:  lastSeen,
		Metadata:  unmarshalMap(m["metadata"]),
		CreatedAt: createdAt,
	}

	if v := m["leader_until"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		n.LeaderUntil = &t
	}
	return n, nil
}
