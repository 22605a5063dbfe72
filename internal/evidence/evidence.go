// Package evidence defines the effect sink contract and an in-memory sink.
//
// A sink applies effects upsert-by-(Kind, Key): applying the same effect any
// number of times leaves the same state as applying it once.
package evidence

import (
	"context"

	"github.com/roach88/nowhere/internal/ir"
)

// Sink applies effects to the evidence store.
type Sink interface {
	Apply(ctx context.Context, e ir.Effect) error
}

// StateReader reads current evidence state without changing it. Dry-run
// replay compares expected post-states against it.
type StateReader interface {
	Lookup(ctx context.Context, kind, key string) (ir.IRObject, bool, error)
}

// Store is a sink whose state can be read back.
type Store interface {
	Sink
	StateReader
}
