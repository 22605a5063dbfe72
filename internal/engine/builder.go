package engine

import (
	"github.com/roach88/nowhere/internal/ir"
)

// Assemble seals the capsule for one step and consumes the ticket.
//
// The result is either a fully sealed capsule or an error; a ticket is spent
// either way. Cancellation observed here aborts the step before anything
// reaches the ledger.
func Assemble(
	t *Ticket,
	req ir.CanonicalRequest,
	digest ir.ResponseDigest,
	effects []ir.Effect,
	blobRef ir.BlobRef,
	tel ir.Telemetry,
) (ir.Capsule, error) {
	if t == nil {
		return ir.Capsule{}, NewIncompleteCapsuleError(req.ActorID, "no ticket", nil)
	}
	if err := t.consume(); err != nil {
		return ir.Capsule{}, err
	}
	if t.Cancelled() {
		return ir.Capsule{}, ErrCancelled
	}
	if req.ActorID != t.ActorID {
		return ir.Capsule{}, NewIncompleteCapsuleError(t.ActorID, "request actor "+req.ActorID+" does not match ticket", nil)
	}

	reqHash, err := ir.RequestHash(req)
	if err != nil {
		return ir.Capsule{}, NewIncompleteCapsuleError(t.ActorID, "request hash", err)
	}
	if digest.Items == nil {
		digest.Items = []ir.DigestItem{}
	}
	respHash, err := ir.ResponseHash(digest)
	if err != nil {
		return ir.Capsule{}, NewIncompleteCapsuleError(t.ActorID, "response hash", err)
	}

	frozen := make([]ir.Effect, len(effects))
	for i, e := range effects {
		frozen[i] = e.Clone()
	}

	return Seal(ir.Capsule{
		ActorID:      t.ActorID,
		Parents:      t.Parents,
		Clock:        t.Clock,
		Request:      req,
		RequestHash:  reqHash,
		Digest:       digest,
		ResponseHash: respHash,
		Effects:      frozen,
		BlobRef:      blobRef,
		Telemetry:    tel,
	})
}

// Seal derives InvocationID and Hash for a capsule whose request and
// response hashes are already set.
func Seal(c ir.Capsule) (ir.Capsule, error) {
	if c.RequestHash == "" || c.ResponseHash == "" {
		return ir.Capsule{}, NewIncompleteCapsuleError(c.ActorID, "missing request_hash or response_hash", ir.ErrIncompleteSeal)
	}
	c.Parents = ir.NormalizeParents(c.Parents)
	if c.Effects == nil {
		c.Effects = []ir.Effect{}
	}

	invID, err := ir.InvocationID(c.ActorID, c.RequestHash, c.Clock)
	if err != nil {
		return ir.Capsule{}, NewIncompleteCapsuleError(c.ActorID, "invocation id", err)
	}
	c.InvocationID = invID

	hash, err := ir.CapsuleHash(c)
	if err != nil {
		return ir.Capsule{}, NewIncompleteCapsuleError(c.ActorID, "capsule hash", err)
	}
	c.Hash = hash
	return c, nil
}
