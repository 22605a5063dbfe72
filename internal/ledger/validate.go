package ledger

import (
	"fmt"
	"slices"

	"github.com/roach88/nowhere/internal/ir"
)

// VerifySeal recomputes every hash a capsule carries and reports the first
// that disagrees.
func VerifySeal(c ir.Capsule) error {
	reqHash, err := ir.RequestHash(c.Request)
	if err != nil {
		return fmt.Errorf("ledger: verify seal: %w", err)
	}
	if reqHash != c.RequestHash {
		return &HashMismatchError{Field: "request_hash", Recorded: c.RequestHash, Computed: reqHash}
	}

	respHash, err := ir.ResponseHash(c.Digest)
	if err != nil {
		return fmt.Errorf("ledger: verify seal: %w", err)
	}
	if respHash != c.ResponseHash {
		return &HashMismatchError{Field: "response_hash", Recorded: c.ResponseHash, Computed: respHash}
	}

	invID, err := ir.InvocationID(c.ActorID, c.RequestHash, c.Clock)
	if err != nil {
		return fmt.Errorf("ledger: verify seal: %w", err)
	}
	if invID != c.InvocationID {
		return &HashMismatchError{Field: "invocation_id", Recorded: c.InvocationID, Computed: invID}
	}

	if !slices.Equal(c.Parents, ir.NormalizeParents(c.Parents)) {
		return ErrUnsortedParents
	}

	capHash, err := ir.CapsuleHash(c)
	if err != nil {
		return fmt.Errorf("ledger: verify seal: %w", err)
	}
	if capHash != c.Hash {
		return &HashMismatchError{Field: "hash", Recorded: string(c.Hash), Computed: string(capHash)}
	}
	return nil
}

// CheckCausality enforces clock > 0 and clock > every parent's clock.
// lookup returns the clock of a recorded capsule.
func CheckCausality(c ir.Capsule, lookup func(ir.CapsuleRef) (int64, bool, error)) error {
	if c.Clock < 1 {
		return &ClockOrderError{Clock: c.Clock}
	}
	for _, p := range c.Parents {
		clock, ok, err := lookup(p)
		if err != nil {
			return err
		}
		if !ok {
			return &UnknownParentError{Parent: p}
		}
		if clock >= c.Clock {
			return &ClockOrderError{Clock: c.Clock, Parent: p, ParentClock: clock}
		}
	}
	return nil
}
