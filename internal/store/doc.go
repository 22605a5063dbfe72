// Package store provides SQLite-backed durable storage for the capsule
// ledger, the effect journal and the evidence sink.
//
// # Tables
//
//   - capsules: sealed capsules, canonical JSON body plus indexed columns
//   - capsule_parents: causal edges (capsule → parent)
//   - effect_commits: capsules whose effects were fully applied
//   - capsule_flags: capsules replay found divergent
//   - evidence: sink state, upserted by (kind, key)
//
// # Ordering
//
// All ordering uses the logical clock column, never timestamps. Queries that
// return lists order by clock ASC, hash ASC COLLATE BINARY so results are
// identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: an acknowledged append survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// PRAGMA user_version holds the capsule format the ledger was written with.
//
// Appends run in a single transaction on a single connection, so seal
// verification, parent checks and insertion are atomic.
package store
