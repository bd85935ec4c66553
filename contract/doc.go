// Package contract provides recurring service contracts with
// distributed scheduling and leader election.
//
// Contracts are stored in the database and fired only by the cluster
// leader. This guarantees at-most-once job creation even when multiple
// FieldOps instances are running.
//
// # Contract
//
// A [Contract] represents a recurring service agreement:
//   - Schedule: standard cron expression (e.g., "0 9 1 * *" for the
//     first of every month) or a descriptor like "@monthly"
//   - Title / Description / Priority: the template for generated jobs
//   - Location / Address: the service site
//   - Enabled: whether the contract fires
//   - LockedBy / LockedUntil: distributed lock fields (managed internally)
//
// # Generator
//
// The [Generator] evaluates due contracts on every tick, acquires a
// distributed lock on each, creates a pending job from the contract
// template, and updates LastRunAt and NextRunAt. The
// [ext.ContractFired] extension hook fires after each created job.
package contract
