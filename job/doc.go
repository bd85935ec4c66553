// Package job defines the field-service job entity, its status graph, and
// the job store interface.
//
// # Job Entity
//
// A [Job] represents a customer visit worked by a single technician. It
// embeds [fieldops.Entity] for timestamps and progresses through a closed
// status graph:
//
//	draft → pending → assigned → en_route → in_progress → completed → pending_invoice → finished
//	pending | assigned | en_route | in_progress → cancelled
//
// cancelled and finished are terminal; no edge leaves them.
//
// Fields of note:
//   - AssignedTechnicianID: exactly one non-nil technician while the job
//     is in an active status (assigned, en_route, in_progress)
//   - AssignedAt .. FinishedAt: stamped once, on the transition that
//     enters the corresponding status
//   - Breaks: a break without an End pins the job in in_progress
//   - TrackingToken: HMAC-signed, expiring customer-facing token
//
// # Status Graph
//
// [Graph] is the single source of truth for allowed edges, guards, and
// the side-effect intents each edge produces. It computes intents; the
// arbiter executes them. No code outside the availability commit may
// write Status or AssignedTechnicianID.
package job
