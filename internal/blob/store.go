package blob

import (
	"context"

	"github.com/roach88/nowhere/internal/ir"
)

// Store is the blob store contract.
//
// Implementations must be safe for concurrent use. Commit of identical bytes
// returns the identical ref and stores them once.
type Store interface {
	Commit(ctx context.Context, data []byte) (ir.BlobRef, error)
	Read(ctx context.Context, ref ir.BlobRef) ([]byte, error)
	Exists(ctx context.Context, ref ir.BlobRef) (bool, error)
}

// verify checks data against ref before it leaves the store.
func verify(ref ir.BlobRef, data []byte) error {
	if actual := ir.ContentHash(data); actual != ref {
		return &IntegrityError{Ref: ref, Actual: actual}
	}
	return nil
}
