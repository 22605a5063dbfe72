package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/ir"
)

func TestMemorySink_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink()
	e := ir.Effect{Kind: "artifact.upsert", Key: "k1", Payload: ir.IRObject{"rank": ir.IRInt(0)}}

	require.NoError(t, s.Apply(ctx, e))
	first := s.Snapshot()
	require.NoError(t, s.Apply(ctx, e))

	assert.Equal(t, first, s.Snapshot())
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.Applies())
}

func TestMemorySink_LaterPayloadReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink()
	require.NoError(t, s.Apply(ctx, ir.Effect{Kind: "k", Key: "a", Payload: ir.IRObject{"v": ir.IRInt(1)}}))
	require.NoError(t, s.Apply(ctx, ir.Effect{Kind: "k", Key: "a", Payload: ir.IRObject{"v": ir.IRInt(2)}}))

	got, ok, err := s.Lookup(ctx, "k", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.IRObject{"v": ir.IRInt(2)}, got)

	_, ok, err = s.Lookup(ctx, "k", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySink_LookupReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink()
	require.NoError(t, s.Apply(ctx, ir.Effect{Kind: "k", Key: "a", Payload: ir.IRObject{"v": ir.IRInt(1)}}))

	got, _, _ := s.Lookup(ctx, "k", "a")
	got["v"] = ir.IRInt(99)

	again, _, _ := s.Lookup(ctx, "k", "a")
	assert.Equal(t, ir.IRInt(1), again["v"])
}
