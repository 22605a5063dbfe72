package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/ir"
)

// Seal fills in RequestHash, ResponseHash, InvocationID and Hash from the
// capsule's Request, Digest, ActorID, Clock, Parents and Effects.
func Seal(t testing.TB, c ir.Capsule) ir.Capsule {
	t.Helper()
	var err error

	c.Parents = ir.NormalizeParents(c.Parents)
	if c.Effects == nil {
		c.Effects = []ir.Effect{}
	}
	if c.Digest.Items == nil {
		c.Digest.Items = []ir.DigestItem{}
	}
	c.RequestHash, err = ir.RequestHash(c.Request)
	require.NoError(t, err)
	c.ResponseHash, err = ir.ResponseHash(c.Digest)
	require.NoError(t, err)
	c.InvocationID, err = ir.InvocationID(c.ActorID, c.RequestHash, c.Clock)
	require.NoError(t, err)
	c.Hash, err = ir.CapsuleHash(c)
	require.NoError(t, err)
	return c
}

// Capsule returns a sealed capsule for actorID at clock. The request carries
// the clock as a parameter so capsules at different clocks never collide.
func Capsule(t testing.TB, actorID string, clock int64, parents ...ir.CapsuleRef) ir.Capsule {
	t.Helper()
	return Seal(t, ir.Capsule{
		ActorID: actorID,
		Parents: parents,
		Clock:   clock,
		Request: ir.CanonicalRequest{
			ActorID:        actorID,
			Kind:           "test",
			Params:         ir.IRObject{"n": ir.IRInt(clock)},
			CorrelationKey: "corr",
		},
		Digest: ir.ResponseDigest{Status: 200},
	})
}
