// Package sideeffect provides the dead letter queue for side-effect
// dispatches that exhausted their retry budget. Transitions never fail
// because a customer notification or a metrics computation failed; the
// failed intent lands here instead, preserved for inspection and replay.
//
// # Entry
//
// An [Entry] captures:
//   - JobID: the job whose transition produced the effect
//   - Kind / Reason: the effect intent as the transition graph emitted it
//   - Error: the final dispatch error message
//   - Attempts: how many dispatch attempts were made
//   - FailedAt: when the terminal failure occurred
//   - ReplayedAt: set when the entry is replayed (nil if not yet replayed)
//
// # Service
//
// [Service] wraps the dead letter store with high-level operations:
//
//	svc := sideeffect.NewService(store, jobStore)
//
//	// Push is called by the arbiter when dispatch retries are exhausted.
//	svc.Push(ctx, j, effect, attempts, err)
//
//	// Replay re-dispatches one entry through the given dispatcher.
//	svc.Replay(ctx, entryID, dispatcher)
//
// Replay loads the job fresh, so a notification replayed hours later
// reflects the job's current state, and sets ReplayedAt on the entry.
package sideeffect
