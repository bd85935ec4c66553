package cluster

import (
	"os"
	"time"

	"github.com/xraph/fieldops/id"
)

// NodeState represents the lifecycle state of a node.
type NodeState string

const (
	// NodeActive means the node is healthy and serving.
	NodeActive NodeState = "active"
	// NodeDraining means the node is finishing in-flight work but not
	// accepting new connections (graceful shutdown).
	NodeDraining NodeState = "draining"
	// NodeDead means the node has stopped heartbeating.
	NodeDead NodeState = "dead"
)

// Node represents one FieldOps instance in a multi-instance deployment.
type Node struct {
	ID          id.NodeID         `json:"id"`
	Hostname    string            `json:"hostname"`
	State       NodeState         `json:"state"`
	IsLeader    bool              `json:"is_leader"`
	LeaderUntil *time.Time        `json:"leader_until,omitempty"`
	LastSeen    time.Time         `json:"last_seen"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewNode creates an active node record for this process.
func NewNode() *Node {
	hostname, _ := os.Hostname()
	now := time.Now().UTC()
	return &Node{
		ID:        id.NewNodeID(),
		Hostname:  hostname,
		State:     NodeActive,
		LastSeen:  now,
		CreatedAt: now,
	}
}
