// Package ledgertest is the shared contract suite every ledger.Ledger
// implementation runs.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
	"github.com/roach88/nowhere/internal/testutil"
)

// Run executes the contract suite. open must return an empty ledger.
func Run(t *testing.T, open func(t *testing.T) ledger.Ledger) {
	t.Run("AppendGet", func(t *testing.T) { testAppendGet(t, open(t)) })
	t.Run("AppendIdempotent", func(t *testing.T) { testAppendIdempotent(t, open(t)) })
	t.Run("ConcurrentDuplicateAppend", func(t *testing.T) { testConcurrentDuplicate(t, open(t)) })
	t.Run("RejectsTamperedSeal", func(t *testing.T) { testRejectsTampered(t, open(t)) })
	t.Run("RejectsUnknownParent", func(t *testing.T) { testRejectsUnknownParent(t, open(t)) })
	t.Run("RejectsClockOrder", func(t *testing.T) { testRejectsClockOrder(t, open(t)) })
	t.Run("ListByActorClockOrder", func(t *testing.T) { testListByActor(t, open(t)) })
	t.Run("MaxClock", func(t *testing.T) { testMaxClock(t, open(t)) })
	t.Run("Journal", func(t *testing.T) { testJournal(t, open(t)) })
}

func testAppendGet(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	c := testutil.Capsule(t, "a", 1)
	c.Telemetry = ir.Telemetry{LatencyMillis: 12, Attempts: 1, Mode: "live"}

	res, err := l.Append(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ledger.Appended, res)

	got, ok, err := l.Get(ctx, c.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c, got)

	byInv, ok, err := l.GetByInvocation(ctx, c.InvocationID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.Hash, byInv.Hash)

	_, ok, err = l.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = l.GetByInvocation(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testAppendIdempotent(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	c := testutil.Capsule(t, "a", 1)

	res, err := l.Append(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ledger.Appended, res)

	res, err = l.Append(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlreadyRecorded, res)

	n := 0
	for _, err := range l.ListByActor(ctx, "a") {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n)
}

func testConcurrentDuplicate(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	c := testutil.Capsule(t, "a", 1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		appended int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Append(ctx, c)
			assert.NoError(t, err)
			if res == ledger.Appended {
				mu.Lock()
				appended++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, appended)
}

func testRejectsTampered(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()

	forged := testutil.Capsule(t, "a", 1)
	forged.Hash = "0000"
	_, err := l.Append(ctx, forged)
	assert.True(t, ledger.IsHashMismatch(err), "got %v", err)

	edited := testutil.Capsule(t, "a", 1)
	edited.Request.Params = ir.IRObject{"n": ir.IRInt(99)}
	_, err = l.Append(ctx, edited)
	assert.True(t, ledger.IsHashMismatch(err), "got %v", err)

	unsorted := testutil.Capsule(t, "a", 1)
	unsorted.Parents = []ir.CapsuleRef{"b", "a"}
	_, err = l.Append(ctx, unsorted)
	assert.Error(t, err)

	_, ok, err := l.Get(ctx, forged.Hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testRejectsUnknownParent(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	orphan := testutil.Capsule(t, "a", 2, "deadbeef")

	_, err := l.Append(ctx, orphan)
	require.Error(t, err)
	var upe *ledger.UnknownParentError
	require.True(t, errors.As(err, &upe))
	assert.Equal(t, ir.CapsuleRef("deadbeef"), upe.Parent)
}

func testRejectsClockOrder(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	parent := testutil.Capsule(t, "a", 5)
	_, err := l.Append(ctx, parent)
	require.NoError(t, err)

	for _, clock := range []int64{5, 3} {
		child := testutil.Capsule(t, "b", clock, parent.Hash)
		_, err = l.Append(ctx, child)
		assert.True(t, ledger.IsClockOrder(err), "clock %d: got %v", clock, err)
	}

	zero := testutil.Capsule(t, "b", 0)
	_, err = l.Append(ctx, zero)
	assert.True(t, ledger.IsClockOrder(err))

	ok := testutil.Capsule(t, "b", 6, parent.Hash)
	res, err := l.Append(ctx, ok)
	require.NoError(t, err)
	assert.Equal(t, ledger.Appended, res)
}

func testListByActor(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	// Appends arrive out of clock order, as they do from concurrent actors.
	for _, clock := range []int64{3, 1, 2} {
		_, err := l.Append(ctx, testutil.Capsule(t, "a", clock))
		require.NoError(t, err)
	}
	_, err := l.Append(ctx, testutil.Capsule(t, "other", 4))
	require.NoError(t, err)

	seq := l.ListByActor(ctx, "a")
	for range 2 {
		var clocks []int64
		for c, err := range seq {
			require.NoError(t, err)
			clocks = append(clocks, c.Clock)
		}
		assert.Equal(t, []int64{1, 2, 3}, clocks)
	}

	for c, err := range seq {
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.Clock)
		break
	}

	for _, err := range l.ListByActor(ctx, "nobody") {
		t.Fatalf("unexpected capsule (err=%v)", err)
	}
}

func testMaxClock(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	mc, err := l.MaxClock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), mc)

	for _, clock := range []int64{4, 9, 2} {
		_, err := l.Append(ctx, testutil.Capsule(t, "a", clock))
		require.NoError(t, err)
	}
	mc, err = l.MaxClock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), mc)
}

func testJournal(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	c1 := testutil.Capsule(t, "a", 1)
	c2 := testutil.Capsule(t, "a", 2)
	c3 := testutil.Capsule(t, "b", 3)
	for _, c := range []ir.Capsule{c3, c1, c2} {
		_, err := l.Append(ctx, c)
		require.NoError(t, err)
	}

	pending, err := l.PendingEffects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.CapsuleRef{c1.Hash, c2.Hash, c3.Hash}, pending)

	require.NoError(t, l.MarkEffectsCommitted(ctx, c1.Hash))
	require.NoError(t, l.MarkEffectsCommitted(ctx, c1.Hash))
	done, err := l.EffectsCommitted(ctx, c1.Hash)
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, l.Flag(ctx, c2.Hash, "hash_mismatch"))
	reason, flagged, err := l.Flagged(ctx, c2.Hash)
	require.NoError(t, err)
	assert.True(t, flagged)
	assert.Equal(t, "hash_mismatch", reason)

	_, flagged, err = l.Flagged(ctx, c3.Hash)
	require.NoError(t, err)
	assert.False(t, flagged)

	pending, err = l.PendingEffects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.CapsuleRef{c3.Hash}, pending)

	assert.ErrorIs(t, l.MarkEffectsCommitted(ctx, "missing"), ledger.ErrUnknownCapsule)
	assert.ErrorIs(t, l.Flag(ctx, "missing", "x"), ledger.ErrUnknownCapsule)
}
