package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/nowhere/internal/canon"
	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
)

// StepRequest is the uncanonicalized input of one actor step.
type StepRequest struct {
	Kind   string
	Params map[string]any

	// CorrelationKey groups related steps. Empty means "generate one".
	CorrelationKey string

	// Seed carries caller-provided randomness into the request hash.
	Seed uint64

	// Parents are the capsules this step causally depends on.
	Parents []ir.CapsuleRef
}

// StepResult is the outcome of a step that reached the ledger.
type StepResult struct {
	Capsule ir.Capsule
	Append  ledger.AppendResult

	// Committed reports whether the effects were applied. A recorded capsule
	// with Committed false is picked up by Recover.
	Committed bool
}

// Step runs one live step for actorID:
//
//	canonicalize → ticket → call → blob → project → derive → seal → append → commit
//
// Nothing reaches the ledger unless the capsule is fully sealed, and effects
// are applied only after the capsule is durably appended. If the effect commit
// fails, the capsule stays recorded with pending effects and the error is
// returned alongside the result.
func (rt *Runtime) Step(ctx context.Context, actorID string, collab Collaborator, in StepRequest) (StepResult, error) {
	start := rt.now()
	outcome := "error"
	defer func() {
		stepDuration.WithLabelValues(outcome).Observe(rt.now().Sub(start).Seconds())
	}()

	key := in.CorrelationKey
	if key == "" {
		key = rt.keys.Generate()
	}
	// Canonicalization is pure, so it runs first: malformed input never
	// spends a clock value.
	req, err := canon.Request(actorID, in.Kind, in.Params, key, in.Seed)
	if err != nil {
		return StepResult{}, err
	}
	spec, err := rt.registry.Lookup(req.Kind)
	if err != nil {
		return StepResult{}, err
	}

	ticket, err := rt.scheduler.IssueTicket(ctx, req.ActorID, in.Parents)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			outcome = "cancelled"
		}
		return StepResult{}, err
	}
	log := rt.logger.With("actor", req.ActorID, "clock", ticket.Clock, "kind", req.Kind)

	if err := checkpoint(ctx, ticket); err != nil {
		outcome = "cancelled"
		return StepResult{}, err
	}

	raw, attempts, err := rt.call(ctx, ticket, collab, req)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			outcome = "cancelled"
		}
		log.Warn("step.call.failed", "attempts", attempts, "error", err)
		return StepResult{}, err
	}

	payload := canon.Payload(raw)
	envelope, err := canon.EncodeEnvelope(payload)
	if err != nil {
		return StepResult{}, NewIncompleteCapsuleError(req.ActorID, "encode payload", err)
	}
	blobRef, err := rt.blobs.Commit(ctx, envelope)
	if err != nil {
		return StepResult{}, NewIncompleteCapsuleError(req.ActorID, "commit blob", err)
	}

	digest, err := spec.Projector.Project(payload)
	if err != nil {
		return StepResult{}, NewIncompleteCapsuleError(req.ActorID, "project response", err)
	}
	derived, err := spec.Deriver.Derive(req, digest)
	if err != nil {
		return StepResult{}, NewIncompleteCapsuleError(req.ActorID, "derive effects", err)
	}
	journal := NewEffectJournal()
	for _, e := range derived {
		if err := journal.Propose(e); err != nil {
			return StepResult{}, err
		}
	}

	if err := checkpoint(ctx, ticket); err != nil {
		outcome = "cancelled"
		return StepResult{}, err
	}

	capsule, err := Assemble(ticket, req, digest, journal.Freeze(), blobRef, ir.Telemetry{
		LatencyMillis: rt.now().Sub(start).Milliseconds(),
		Attempts:      attempts,
		Mode:          "live",
	})
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			outcome = "cancelled"
		}
		return StepResult{}, err
	}

	res, err := rt.ledger.Append(ctx, capsule)
	if err != nil {
		return StepResult{}, fmt.Errorf("step %s: append: %w", capsule.Hash, err)
	}
	capsulesAppended.WithLabelValues(res.String()).Inc()
	result := StepResult{Capsule: capsule, Append: res}

	if err := rt.dispatcher.Commit(ctx, capsule.Hash, capsule.Effects); err != nil {
		outcome = "pending"
		log.Error("step.commit.failed", "capsule", capsule.Hash, "error", err)
		return result, err
	}
	result.Committed = true
	outcome = "ok"
	log.Info("step.done", "capsule", capsule.Hash, "effects", len(capsule.Effects), "attempts", attempts)
	return result, nil
}

// call invokes collab up to rt.callAttempts times, doubling the wait between
// attempts. Rate limit exhaustion and cancellation are not retried.
func (rt *Runtime) call(ctx context.Context, t *Ticket, collab Collaborator, req ir.CanonicalRequest) (ir.RawPayload, int, error) {
	delay := rt.callBackoff
	var lastErr error
	for attempt := 1; attempt <= rt.callAttempts; attempt++ {
		raw, err := collab.Invoke(ctx, req)
		if err == nil {
			return raw, attempt, nil
		}
		if cerr := checkpoint(ctx, t); cerr != nil {
			return ir.RawPayload{}, attempt, cerr
		}
		if IsRateLimitExhausted(err) {
			return ir.RawPayload{}, attempt, err
		}
		lastErr = err
		if attempt == rt.callAttempts {
			break
		}
		rt.logger.Debug("step.call.retry", "actor", req.ActorID, "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ir.RawPayload{}, attempt, ctx.Err()
		case <-t.Done():
			timer.Stop()
			return ir.RawPayload{}, attempt, ErrCancelled
		case <-timer.C:
		}
		delay *= 2
	}
	return ir.RawPayload{}, rt.callAttempts, NewExternalCallError(req.ActorID, rt.callAttempts, lastErr)
}

// checkpoint reports ErrCancelled once the scheduler fired, or the context
// error once ctx is done.
func checkpoint(ctx context.Context, t *Ticket) error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return ctx.Err()
}

