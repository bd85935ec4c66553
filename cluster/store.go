package cluster

import (
	"context"
	"time"

	"github.com/xraph/fieldops/id"
)

// Store defines the persistence contract for cluster node management.
type Store interface {
	// RegisterNode adds a new node to the cluster registry.
	RegisterNode(ctx context.Context, n *Node) error

	// DeregisterNode removes a node from the cluster registry.
	DeregisterNode(ctx context.Context, nodeID id.NodeID) error

	// HeartbeatNode updates the last-seen timestamp for a node,
	// indicating it is still alive.
	HeartbeatNode(ctx context.Context, nodeID id.NodeID) error

	// ListNodes returns all registered nodes.
	ListNodes(ctx context.Context) ([]*Node, error)

	// ReapDeadNodes removes nodes whose last-seen timestamp is older
	// than the given threshold and returns the removed nodes. A reaped
	// node no longer appears in ListNodes and is not reaped again.
	ReapDeadNodes(ctx context.Context, threshold time.Duration) ([]*Node, error)

	// AcquireLeadership attempts to become the cluster leader.
	// Returns true if this node is now leader. The leadership expires
	// after ttl if not renewed.
	AcquireLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error)

	// RenewLeadership extends the leader's hold. Must be called before
	// the TTL expires.
	RenewLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error)

	// GetLeader returns the current cluster leader, or nil if there is
	// no leader.
	GetLeader(ctx context.Context) (*Node, error)
}
