package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/blob"
	"github.com/roach88/nowhere/internal/evidence"
	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
	"github.com/roach88/nowhere/internal/testutil"
)

// rig wires a Runtime over in-memory collaborators.
type rig struct {
	ledger *ledger.MemoryLedger
	blobs  *blob.MemoryStore
	sink   *evidence.MemorySink
	sched  *Scheduler
	disp   *Dispatcher
	rt     *Runtime
}

func newRig(t *testing.T) *rig {
	t.Helper()
	return newRigOver(t, ledger.NewMemoryLedger(), blob.NewMemoryStore(), evidence.NewMemorySink())
}

func newRigOver(t *testing.T, l *ledger.MemoryLedger, blobs *blob.MemoryStore, sink *evidence.MemorySink) *rig {
	t.Helper()
	ctx := context.Background()

	sched, err := NewScheduler(ctx, l)
	require.NoError(t, err)
	disp := NewDispatcher(l, sink, WithBackoff(time.Millisecond))
	rt, err := NewRuntime(RuntimeConfig{
		Scheduler:   sched,
		Ledger:      l,
		Blobs:       blobs,
		Dispatcher:  disp,
		Keys:        testutil.NewFixedKeyGenerator("corr-fixed"),
		CallBackoff: time.Millisecond,
		Now:         testutil.NewFakeClock(time.Millisecond).Now,
	})
	require.NoError(t, err)
	return &rig{ledger: l, blobs: blobs, sink: sink, sched: sched, disp: disp, rt: rt}
}

// step runs one "search" step and requires it to commit.
func (r *rig) step(t *testing.T, actorID, query string, payload ir.RawPayload, parents ...ir.CapsuleRef) ir.Capsule {
	t.Helper()
	res, err := r.rt.Step(context.Background(), actorID, testutil.NewResponder(payload), StepRequest{
		Kind:    "search",
		Params:  map[string]any{"query": query},
		Parents: parents,
	})
	require.NoError(t, err)
	require.True(t, res.Committed)
	return res.Capsule
}

func twoResults() ir.RawPayload {
	return testutil.SearchPayload(
		testutil.SearchResult{URL: "https://example.com/a", Title: "A", Description: "first"},
		testutil.SearchResult{URL: "https://example.com/b", Title: "B", Description: "second", Type: "news"},
	)
}

// artifactCapsule seals a capsule at clock carrying one artifact effect.
func artifactCapsule(t *testing.T, actorID string, clock int64, key string, parents ...ir.CapsuleRef) ir.Capsule {
	t.Helper()
	c := testutil.Capsule(t, actorID, clock, parents...)
	c.Effects = []ir.Effect{{
		Kind:    EffectKindArtifact,
		Key:     key,
		Payload: ir.IRObject{"clock": ir.IRInt(clock)},
	}}
	return testutil.Seal(t, c)
}

var errSinkDown = errors.New("sink down")

// flakySink fails the first failures applies, then delegates.
type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	next     evidence.Sink
}

func (s *flakySink) Apply(ctx context.Context, e ir.Effect) error {
	s.mu.Lock()
	s.calls++
	fail := s.failures != 0
	if s.failures > 0 {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return errSinkDown
	}
	return s.next.Apply(ctx, e)
}

func (s *flakySink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)
