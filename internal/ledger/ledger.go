package ledger

import (
	"context"
	"iter"

	"github.com/roach88/nowhere/internal/ir"
)

// AppendResult reports what an Append did.
type AppendResult int

const (
	// Appended means the capsule was newly recorded.
	Appended AppendResult = iota + 1

	// AlreadyRecorded means an identical capsule was already present.
	AlreadyRecorded
)

func (r AppendResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case AlreadyRecorded:
		return "already_recorded"
	default:
		return "unknown"
	}
}

// CapsuleStore is the capsule half of the ledger.
//
// ListByActor yields capsules in ascending clock order. The sequence is
// finite, and every range over it queries the store afresh.
type CapsuleStore interface {
	Append(ctx context.Context, c ir.Capsule) (AppendResult, error)
	Get(ctx context.Context, ref ir.CapsuleRef) (ir.Capsule, bool, error)
	GetByInvocation(ctx context.Context, invocationID string) (ir.Capsule, bool, error)
	ListByActor(ctx context.Context, actorID string) iter.Seq2[ir.Capsule, error]
	MaxClock(ctx context.Context) (int64, error)
}

// Journal tracks effect commitment and divergence flags per capsule.
type Journal interface {
	MarkEffectsCommitted(ctx context.Context, ref ir.CapsuleRef) error
	EffectsCommitted(ctx context.Context, ref ir.CapsuleRef) (bool, error)

	// PendingEffects lists recorded, unflagged capsules whose effects were
	// never marked committed, in ascending clock order.
	PendingEffects(ctx context.Context) ([]ir.CapsuleRef, error)

	Flag(ctx context.Context, ref ir.CapsuleRef, reason string) error
	Flagged(ctx context.Context, ref ir.CapsuleRef) (reason string, flagged bool, err error)
}

// Ledger is the full contract consumed by the engine.
type Ledger interface {
	CapsuleStore
	Journal
}
