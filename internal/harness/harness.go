package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/nowhere/internal/blob"
	"github.com/roach88/nowhere/internal/canon"
	"github.com/roach88/nowhere/internal/engine"
	"github.com/roach88/nowhere/internal/evidence"
	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
	"github.com/roach88/nowhere/internal/testutil"
)

// Target is where a scenario records its capsules.
type Target struct {
	Ledger ledger.Ledger
	Blobs  blob.Store
	Sink   evidence.Store

	// Registry resolves request kinds. Nil means engine.DefaultRegistry.
	// Scenario kinds are registered on top of it.
	Registry *engine.Registry

	// Actors sets per-actor mailbox and rate limits. Actors not listed
	// get the defaults.
	Actors map[string]engine.ActorOptions

	// Logger receives runtime logs. Nil discards them.
	Logger *slog.Logger
}

// MemoryTarget returns a fresh in-memory target.
func MemoryTarget() Target {
	return Target{
		Ledger: ledger.NewMemoryLedger(),
		Blobs:  blob.NewMemoryStore(),
		Sink:   evidence.NewMemorySink(),
	}
}

// harness carries one scenario execution.
type harness struct {
	target  Target
	system  *engine.System
	scripts map[string]*script
	refs    map[string]ir.CapsuleRef
	verify  *engine.Verifier
	logger  *slog.Logger
	results *Result
}

// Run executes a scenario against a fresh in-memory target.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return Execute(ctx, scenario, MemoryTarget())
}

// Execute runs the scenario's flow against target, then its assertions.
//
// Steps run sequentially in flow order. A step that misses its expected
// outcome fails the result but does not stop the flow. The returned error
// is reserved for failures of the harness itself.
func Execute(ctx context.Context, scenario *Scenario, target Target) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if target.Ledger == nil || target.Blobs == nil || target.Sink == nil {
		return nil, errors.New("harness: target needs a ledger, a blob store and a sink")
	}

	logger := target.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	registry := target.Registry
	if registry == nil {
		registry = engine.DefaultRegistry()
	}
	for kind, p := range scenario.Kinds {
		registry.Register(kind, engine.KindSpec{Projector: p, Deriver: engine.ArtifactDeriver{}})
	}

	sched, err := engine.NewScheduler(ctx, target.Ledger, engine.WithSchedulerLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	disp := engine.NewDispatcher(target.Ledger, target.Sink,
		engine.WithBackoff(time.Millisecond),
		engine.WithDispatcherLogger(logger),
	)
	rt, err := engine.NewRuntime(engine.RuntimeConfig{
		Scheduler:   sched,
		Ledger:      target.Ledger,
		Blobs:       target.Blobs,
		Dispatcher:  disp,
		Registry:    registry,
		Keys:        testutil.NewFixedKeyGenerator(scenario.CorrelationKey),
		CallBackoff: time.Millisecond,
		Now:         testutil.NewFakeClock(time.Millisecond).Now,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}

	h := &harness{
		target:  target,
		system:  engine.NewSystem(rt),
		scripts: make(map[string]*script),
		refs:    make(map[string]ir.CapsuleRef, len(scenario.Flow)),
		verify:  rt.Verifier(engine.WithStateReader(target.Sink), engine.WithLiveDispatcher(disp)),
		logger:  logger,
		results: NewResult(),
	}

	for _, step := range scenario.Flow {
		if _, ok := h.scripts[step.Actor]; ok {
			continue
		}
		sc := &script{}
		if _, err := h.system.Spawn(step.Actor, sc, target.Actors[step.Actor]); err != nil {
			return nil, fmt.Errorf("failed to spawn actor: %w", err)
		}
		h.scripts[step.Actor] = sc
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan error, 1)
	go func() { done <- h.system.Run(runCtx) }()

	for i, step := range scenario.Flow {
		if err := ctx.Err(); err != nil {
			h.system.Shutdown()
			<-done
			return nil, err
		}
		h.runStep(ctx, int64(i+1), step)
	}
	h.system.Shutdown()
	if err := <-done; err != nil {
		return nil, fmt.Errorf("actor system: %w", err)
	}

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			h.results.AddError(fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return h.results, nil
}

func (h *harness) runStep(ctx context.Context, seq int64, step Step) {
	parents := make([]ir.CapsuleRef, 0, len(step.Parents))
	for _, name := range step.Parents {
		ref, ok := h.refs[name]
		if !ok {
			// The parent step recorded nothing; the scheduler rejects the
			// dangling reference like any other unknown parent.
			ref = ir.CapsuleRef("unrecorded:" + name)
		}
		parents = append(parents, ref)
	}

	h.scripts[step.Actor].load(testutil.NewResponder(step.Response.Payload()).FailFirst(step.FailFirst))
	res, err := h.system.Ask(ctx, step.Actor, engine.StepRequest{
		Kind:    step.Kind,
		Params:  step.Params,
		Seed:    step.Seed,
		Parents: parents,
	})

	event := TraceEvent{
		Seq:     seq,
		Step:    step.Name,
		Actor:   step.Actor,
		Kind:    step.Kind,
		Outcome: classify(res, err),
	}
	if res.Capsule.Hash != "" {
		c := res.Capsule
		h.refs[step.Name] = c.Hash
		event.Capsule = c.Hash
		event.Clock = c.Clock
		event.Items = len(c.Digest.Items)
		event.Effects = len(c.Effects)
		event.Attempts = c.Telemetry.Attempts
		event.Committed = res.Committed
	}
	if err != nil {
		event.Error = err.Error()
	}
	h.results.Trace = append(h.results.Trace, event)

	want := step.Expect
	if want == "" {
		want = OutcomeRecorded
	}
	if event.Outcome != want {
		msg := fmt.Sprintf("flow step %q: expected %s, got %s", step.Name, want, event.Outcome)
		if err != nil {
			msg += ": " + err.Error()
		}
		h.results.AddError(msg)
	}
}

// script is an actor's collaborator. Each step loads its own fixture before
// it is asked; steps run one at a time, so a step's retries all reach the
// fixture it loaded.
type script struct {
	mu      sync.Mutex
	current engine.Collaborator
}

func (s *script) load(c engine.Collaborator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c
}

func (s *script) Invoke(ctx context.Context, req ir.CanonicalRequest) (ir.RawPayload, error) {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c == nil {
		return ir.RawPayload{}, errors.New("harness: no fixture loaded")
	}
	return c.Invoke(ctx, req)
}

// classify maps a step's result to its trace outcome.
func classify(res engine.StepResult, err error) string {
	if res.Capsule.Hash != "" {
		if err != nil {
			return OutcomePending
		}
		if res.Append == ledger.AlreadyRecorded {
			return OutcomeAlreadyRecorded
		}
		return OutcomeRecorded
	}
	switch {
	case err == nil:
		return OutcomeFailed
	case canon.IsMalformed(err):
		return OutcomeMalformed
	case errors.Is(err, engine.ErrUnknownKind):
		return OutcomeUnknownKind
	case ledger.IsUnknownParent(err):
		return OutcomeUnknownParent
	case engine.IsRateLimitExhausted(err):
		return OutcomeRateLimited
	case engine.IsExternalCallFailure(err):
		return OutcomeExternalFailure
	case errors.Is(err, engine.ErrCancelled), errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
