package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/testutil"
)

func startSystem(t *testing.T, s *System) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	return func() error {
		cancel()
		return <-errc
	}
}

func TestSystem_AskRunsSteps(t *testing.T) {
	r := newRig(t)
	sys := NewSystem(r.rt)
	_, err := sys.Spawn("search:a", testutil.NewResponder(twoResults()), ActorOptions{})
	require.NoError(t, err)
	_, err = sys.Spawn("search:b", testutil.NewResponder(twoResults()), ActorOptions{MailboxSize: 4})
	require.NoError(t, err)
	stop := startSystem(t, sys)

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make(chan ir.Capsule, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := []string{"search:a", "search:b"}[i%2]
			res, err := sys.Ask(ctx, id, StepRequest{Kind: "search", Params: map[string]any{"n": i}})
			if assert.NoError(t, err) {
				results <- res.Capsule
			}
		}()
	}
	wg.Wait()
	close(results)
	require.NoError(t, stop())

	clocks := map[int64]bool{}
	for c := range results {
		assert.False(t, clocks[c.Clock], "clock %d shared", c.Clock)
		clocks[c.Clock] = true
	}
	assert.Len(t, clocks, 10)
	assert.Equal(t, 10, r.ledger.Len())
}

func TestSystem_ShutdownDrainsWithCancelled(t *testing.T) {
	r := newRig(t)
	sys := NewSystem(r.rt)
	gate := testutil.NewGate(twoResults())
	actor, err := sys.Spawn("a", gate, ActorOptions{})
	require.NoError(t, err)
	stop := startSystem(t, sys)

	ctx := context.Background()
	first := make(chan error, 1)
	go func() {
		_, err := actor.Ask(ctx, StepRequest{Kind: "search"})
		first <- err
	}()
	<-gate.Entered()

	queued := make(chan error, 1)
	go func() {
		_, err := actor.Ask(ctx, StepRequest{Kind: "search", Params: map[string]any{"n": 2}})
		queued <- err
	}()
	require.Eventually(t, func() bool { return actor.Pending() == 1 }, waitFor, tick)

	sys.Shutdown()
	gate.Release()

	assert.ErrorIs(t, <-first, ErrCancelled)
	assert.ErrorIs(t, <-queued, ErrCancelled)
	require.NoError(t, stop())
	assert.Equal(t, 0, r.ledger.Len())

	_, err = actor.Ask(ctx, StepRequest{Kind: "search"})
	assert.ErrorIs(t, err, ErrMailboxClosed)
}

func TestSystem_SpawnValidation(t *testing.T) {
	sys := NewSystem(newRig(t).rt)
	_, err := sys.Spawn("", testutil.NewResponder(), ActorOptions{})
	assert.Error(t, err)
	_, err = sys.Spawn("a", nil, ActorOptions{})
	assert.Error(t, err)

	_, err = sys.Spawn("a", testutil.NewResponder(), ActorOptions{})
	require.NoError(t, err)
	_, err = sys.Spawn("a", testutil.NewResponder(), ActorOptions{})
	assert.Error(t, err)

	stop := startSystem(t, sys)
	require.Eventually(t, func() bool {
		_, err := sys.Spawn("b", testutil.NewResponder(), ActorOptions{})
		return err == ErrSystemRunning
	}, waitFor, tick)
	require.NoError(t, stop())
}

func TestSystem_UnknownActor(t *testing.T) {
	sys := NewSystem(newRig(t).rt)
	_, err := sys.Ask(context.Background(), "ghost", StepRequest{Kind: "search"})
	assert.Error(t, err)
}

func TestSystem_RateLimitedActor(t *testing.T) {
	r := newRig(t)
	sys := NewSystem(r.rt)
	inner := testutil.NewResponder(twoResults())
	_, err := sys.Spawn("a", inner, ActorOptions{RateLimit: RateLimit{QPS: 0.001, Burst: 1, MaxWait: 5 * tick}})
	require.NoError(t, err)
	stop := startSystem(t, sys)

	ctx := context.Background()
	_, err = sys.Ask(ctx, "a", StepRequest{Kind: "search", Params: map[string]any{"n": 1}})
	require.NoError(t, err)
	_, err = sys.Ask(ctx, "a", StepRequest{Kind: "search", Params: map[string]any{"n": 2}})
	assert.True(t, IsRateLimitExhausted(err))
	require.NoError(t, stop())
	assert.Equal(t, 1, inner.Calls())
}
