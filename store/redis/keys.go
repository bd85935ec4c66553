package redis

// Redis key naming conventions for fieldops data.
// All keys are prefixed with "fieldops:" to avoid collisions.

const keyPrefix = "fieldops:"

// ── Job keys ──

// jobKey returns the key for a job entity: fieldops:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Technician keys ──

// technicianKey returns the key for a technician entity: fieldops:technician:{id}
func technicianKey(id string) string { return keyPrefix + "technician:" + id }

// technicianIDsKey is the Set tracking all technician IDs for enumeration.
const technicianIDsKey = keyPrefix + "technician_ids"

// ── Event keys ──

// eventKey returns the key for an event entity: fieldops:event:{id}
func eventKey(id string) string { return keyPrefix + "event:" + id }

// jobEventsKey returns the List key holding a job's event IDs in append
// order: fieldops:job_events:{jobID}
func jobEventsKey(jobID string) string { return keyPrefix + "job_events:" + jobID }

// ── Dead letter keys ──

// deadLetterKey returns the key for a dead letter entity: fieldops:deadletter:{id}
func deadLetterKey(id string) string { return keyPrefix + "deadletter:" + id }

// deadLetterIndexKey is the Sorted Set of entry IDs scored by failed_at,
// which gives ordered listing and purge-by-age for free.
const deadLetterIndexKey = keyPrefix + "deadletter_idx"

// ── Contract keys ──

// contractKey returns the key for a contract entity: fieldops:contract:{id}
func contractKey(id string) string { return keyPrefix + "contract:" + id }

// contractIDsKey is the Set tracking all contract IDs for enumeration.
const contractIDsKey = keyPrefix + "contract_ids"

// contractNamesKey maps contract names to IDs for duplicate detection.
const contractNamesKey = keyPrefix + "contract_names"

// contractLockKey returns the firing-lock key for a contract:
// fieldops:contract_lock:{id}
func contractLockKey(id string) string { return keyPrefix + "contract_lock:" + id }

// ── Cluster keys ──

// nodeKey returns the key for a node entity: fieldops:node:{id}
func nodeKey(id string) string { return keyPrefix + "node:" + id }

// nodeIDsKey is the Set tracking all node IDs for enumeration.
const nodeIDsKey = keyPrefix + "node_ids"

// leaderKey stores the current leader node ID.
const leaderKey = keyPrefix + "leader"
