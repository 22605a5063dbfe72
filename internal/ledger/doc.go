// Package ledger defines the append-only capsule ledger contract and an
// in-memory implementation.
//
// A ledger holds sealed capsules by hash, with reverse indices by actor and
// invocation. Every Append re-verifies the seal and the causal constraints
// (parents recorded, clock strictly greater than every parent's clock); a
// duplicate append of an identical capsule is an idempotent success reported
// as AlreadyRecorded.
//
// The journal half of the contract tracks which capsules have had their
// effects committed and which were flagged as divergent by replay.
package ledger
