package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/canon"
	"github.com/roach88/nowhere/internal/ir"
)

func TestRegistry_Defaults(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"items", "search"}, r.Kinds())

	spec, err := r.Lookup("  SEARCH ")
	require.NoError(t, err)
	assert.Equal(t, canon.SearchResults(), spec.Projector)
}

func TestRegistry_UnknownKind(t *testing.T) {
	_, err := NewRegistry().Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistry_NilDeriverProducesNoEffects(t *testing.T) {
	r := NewRegistry()
	r.Register("ping", KindSpec{Projector: canon.GenericItems()})

	spec, err := r.Lookup("ping")
	require.NoError(t, err)
	effects, err := spec.Deriver.Derive(ir.CanonicalRequest{}, ir.ResponseDigest{Items: []ir.DigestItem{{IDHash: "x"}}})
	require.NoError(t, err)
	assert.Empty(t, effects)
}

func TestArtifactDeriver(t *testing.T) {
	req := ir.CanonicalRequest{ActorID: "a", Kind: "search", Params: ir.IRObject{}}
	digest := ir.ResponseDigest{Status: 200, Items: []ir.DigestItem{
		{IDHash: "id1", ContentHash: "c1", Rank: 0, Category: "web"},
		{IDHash: "id2", ContentHash: "c2", Rank: 1, Category: "news"},
	}}

	effects, err := ArtifactDeriver{}.Derive(req, digest)
	require.NoError(t, err)
	require.Len(t, effects, 2)

	reqHash, err := ir.RequestHash(req)
	require.NoError(t, err)
	assert.Equal(t, EffectKindArtifact, effects[0].Kind)
	assert.Equal(t, ir.TextHash(reqHash+"\x1fid1"), effects[0].Key)
	assert.Equal(t, ir.IRString("news"), effects[1].Payload["category"])
	assert.Equal(t, ir.IRInt(1), effects[1].Payload["rank"])
	assert.Equal(t, ir.IRInt(200), effects[1].Payload["status"])

	again, err := ArtifactDeriver{}.Derive(req, digest)
	require.NoError(t, err)
	assert.True(t, sameEffects(effects, again), "derivation must be pure")
}
