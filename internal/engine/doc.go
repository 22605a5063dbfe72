// Package engine implements the deterministic execution core of nowhere.
//
// Every actor invocation becomes one sealed capsule in the ledger. The engine
// decides when a capsule may be sealed, when its effects may be applied, and
// how a recorded capsule is re-executed and checked.
//
// ARCHITECTURE:
//
// Actors and Steps:
// Each actor owns a mailbox and runs its steps one at a time. A step is the
// pipeline in Runtime.Step:
// 1. Canonicalize the request (pure, never spends a clock value)
// 2. Scheduler.IssueTicket allocates the logical clock
// 3. The collaborator performs the external call (rate limited, retried)
// 4. The canonical payload envelope is committed to the blob store
// 5. The payload is projected to a digest and effects are derived
// 6. Assemble seals the capsule and consumes the ticket
// 7. The ledger appends it; the Dispatcher applies and commits its effects
//
// Different actors run concurrently. Their only ordering is the scheduler's
// clock and the parents each capsule names.
//
// Effect Journal:
// Effects are proposed during a step, frozen into the capsule, and applied
// only after the capsule is in the ledger. A crash between append and commit
// leaves the capsule pending; Dispatcher.Recover finishes it.
//
// Replay:
// Verifier loads a capsule, re-projects its blob through the same registry,
// recomputes every hash and re-derives effects. The outcome is Verified,
// Diverged (hash_mismatch or effect_mismatch, and the capsule is flagged) or
// Failed (blob_missing).
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Capsules are ordered by the scheduler's clock, never by wall time. The
// injected Now feeds telemetry only.
//
// Cancellation:
// Scheduler.Cancel is the single shutdown signal. It is observed before
// ticket issuance and at every step checkpoint; a cancelled step never seals.
package engine
