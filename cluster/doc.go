// Package cluster provides node registration, heartbeats, and
// leader election for multi-instance deployments.
//
// When several FieldOps instances run against one store, the cluster
// package coordinates which instance is the leader. The leader runs the
// singleton duties — firing contract schedules and reaping expired
// tracking tokens — so they happen exactly once across the fleet.
//
// # Node Entity
//
// Each running instance registers itself as a [Node] with a unique
// [id.NodeID], its hostname, and a state: [NodeActive], [NodeDraining],
// or [NodeDead]. Nodes send periodic heartbeats; a node whose heartbeat
// is older than the configured threshold is considered dead.
//
// # Leader Election
//
// One node at a time holds leadership, managed by
// [Store.AcquireLeadership] using optimistic locking with a TTL. If
// leadership is lost mid-operation, [fieldops.ErrLeadershipLost] is
// returned by the affected duty.
package cluster
