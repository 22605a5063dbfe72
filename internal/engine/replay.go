package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/nowhere/internal/blob"
	"github.com/roach88/nowhere/internal/canon"
	"github.com/roach88/nowhere/internal/evidence"
	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
)

// ReplayMode selects what the effect phase of a replay may touch.
type ReplayMode string

const (
	// ModeDry compares expected post-states with current sink state. Read-only.
	ModeDry ReplayMode = "dry"

	// ModeShadow applies effects twice to a fresh shadow store and checks
	// that they converge.
	ModeShadow ReplayMode = "shadow"

	// ModeLive re-applies effects to the live sink. Opt-in only.
	ModeLive ReplayMode = "live"
)

// ParseReplayMode validates a mode name. The empty string means ModeDry.
func ParseReplayMode(s string) (ReplayMode, error) {
	switch ReplayMode(s) {
	case "", ModeDry:
		return ModeDry, nil
	case ModeShadow, ModeLive:
		return ReplayMode(s), nil
	default:
		return "", fmt.Errorf("unknown replay mode %q (want dry, shadow or live)", s)
	}
}

// ReplayState is the verifier's state machine: Loaded, then exactly one of
// Verified, Diverged or Failed.
type ReplayState string

const (
	StateLoaded   ReplayState = "loaded"
	StateVerified ReplayState = "verified"
	StateDiverged ReplayState = "diverged"
	StateFailed   ReplayState = "failed"
)

// Reason explains a Diverged or Failed outcome.
type Reason string

const (
	ReasonHashMismatch   Reason = "hash_mismatch"
	ReasonEffectMismatch Reason = "effect_mismatch"
	ReasonBlobMissing    Reason = "blob_missing"
)

// ReplayReport is the outcome of verifying one capsule.
type ReplayReport struct {
	Capsule      ir.CapsuleRef `json:"capsule"`
	ActorID      string        `json:"actor_id"`
	InvocationID string        `json:"invocation_id"`
	Clock        int64         `json:"clock"`
	Mode         ReplayMode    `json:"mode"`
	State        ReplayState   `json:"state"`
	Reason       Reason        `json:"reason,omitempty"`
	Fields       []string      `json:"fields,omitempty"`
	Detail       string        `json:"detail,omitempty"`
}

// Verifier re-executes recorded steps from their blobs and checks that every
// recomputed hash and effect matches the capsule.
type Verifier struct {
	ledger     ledger.Ledger
	blobs      blob.Store
	registry   *Registry
	state      evidence.StateReader
	dispatcher *Dispatcher
	newShadow  func() evidence.Store
	logger     *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithStateReader sets the sink state dry mode compares against. Without
// one, dry mode skips the effect phase.
func WithStateReader(s evidence.StateReader) VerifierOption {
	return func(v *Verifier) {
		v.state = s
	}
}

// WithLiveDispatcher enables ModeLive through d.
func WithLiveDispatcher(d *Dispatcher) VerifierOption {
	return func(v *Verifier) {
		v.dispatcher = d
	}
}

// WithShadowFactory overrides the shadow store (default: a fresh
// evidence.MemorySink per replay).
func WithShadowFactory(f func() evidence.Store) VerifierOption {
	return func(v *Verifier) {
		v.newShadow = f
	}
}

// WithVerifierLogger sets the logger (default slog.Default()).
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = l
	}
}

// NewVerifier creates a Verifier.
func NewVerifier(l ledger.Ledger, blobs blob.Store, reg *Registry, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		ledger:    l,
		blobs:     blobs,
		registry:  reg,
		newShadow: func() evidence.Store { return evidence.NewMemorySink() },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyInvocation replays the capsule recorded for (actorID, invocationID).
func (v *Verifier) VerifyInvocation(ctx context.Context, actorID, invocationID string, mode ReplayMode) (ReplayReport, error) {
	c, ok, err := v.ledger.GetByInvocation(ctx, invocationID)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}
	if !ok || c.ActorID != actorID {
		return ReplayReport{}, fmt.Errorf("%w: actor %s invocation %s", ErrCapsuleNotFound, actorID, invocationID)
	}
	return v.verify(ctx, c, mode)
}

// VerifyCapsule replays the capsule with hash ref.
func (v *Verifier) VerifyCapsule(ctx context.Context, ref ir.CapsuleRef, mode ReplayMode) (ReplayReport, error) {
	c, ok, err := v.ledger.Get(ctx, ref)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}
	if !ok {
		return ReplayReport{}, fmt.Errorf("%w: %s", ErrCapsuleNotFound, ref)
	}
	return v.verify(ctx, c, mode)
}

// verify runs the state machine for c. The returned error is reserved for
// infrastructure failures; every verdict about the capsule itself is in the
// report.
func (v *Verifier) verify(ctx context.Context, c ir.Capsule, mode ReplayMode) (ReplayReport, error) {
	if mode == "" {
		mode = ModeDry
	}
	if mode == ModeLive && v.dispatcher == nil {
		return ReplayReport{}, errors.New("replay: live mode requires a dispatcher")
	}
	report := ReplayReport{
		Capsule:      c.Hash,
		ActorID:      c.ActorID,
		InvocationID: c.InvocationID,
		Clock:        c.Clock,
		Mode:         mode,
		State:        StateLoaded,
	}

	spec, err := v.registry.Lookup(c.Request.Kind)
	if err != nil {
		return report, fmt.Errorf("replay %s: %w", c.Hash, err)
	}

	digest := c.Digest
	if c.BlobRef != "" {
		data, err := v.blobs.Read(ctx, c.BlobRef)
		switch {
		case blob.IsMissing(err):
			return v.finish(ctx, report, StateFailed, ReasonBlobMissing, nil, err.Error())
		case blob.IsIntegrity(err):
			return v.finish(ctx, report, StateDiverged, ReasonHashMismatch, []string{"blob_ref"}, err.Error())
		case err != nil:
			return report, fmt.Errorf("replay %s: read blob: %w", c.Hash, err)
		}

		payload, err := canon.DecodeEnvelope(data)
		if err != nil {
			return v.finish(ctx, report, StateDiverged, ReasonHashMismatch, []string{"blob_ref"}, err.Error())
		}
		digest, err = spec.Projector.Project(payload)
		if err != nil {
			return v.finish(ctx, report, StateDiverged, ReasonHashMismatch, []string{"response_hash"}, err.Error())
		}
	}

	fields, err := recomputeFields(c, digest)
	if err != nil {
		return report, fmt.Errorf("replay %s: %w", c.Hash, err)
	}
	if len(fields) > 0 {
		return v.finish(ctx, report, StateDiverged, ReasonHashMismatch, fields, "")
	}

	effects, err := spec.Deriver.Derive(c.Request, digest)
	if err != nil {
		return report, fmt.Errorf("replay %s: derive effects: %w", c.Hash, err)
	}
	if !sameEffects(effects, c.Effects) {
		return v.finish(ctx, report, StateDiverged, ReasonEffectMismatch, []string{"effects"}, "re-derived effects differ from sealed effects")
	}

	fields, detail, err := v.effectPhase(ctx, c, mode)
	if err != nil {
		return report, fmt.Errorf("replay %s: %w", c.Hash, err)
	}
	if len(fields) > 0 {
		return v.finish(ctx, report, StateDiverged, ReasonEffectMismatch, fields, detail)
	}
	return v.finish(ctx, report, StateVerified, "", nil, detail)
}

// recomputeFields rebuilds every hashed field from the recorded request and
// the re-projected digest and lists the ones that disagree.
func recomputeFields(c ir.Capsule, digest ir.ResponseDigest) ([]string, error) {
	var fields []string

	reqHash, err := ir.RequestHash(c.Request)
	if err != nil {
		return nil, err
	}
	if reqHash != c.RequestHash {
		fields = append(fields, "request_hash")
	}

	respHash, err := ir.ResponseHash(digest)
	if err != nil {
		return nil, err
	}
	if respHash != c.ResponseHash {
		fields = append(fields, "response_hash")
	}

	invID, err := ir.InvocationID(c.ActorID, reqHash, c.Clock)
	if err != nil {
		return nil, err
	}
	if invID != c.InvocationID {
		fields = append(fields, "invocation_id")
	}

	rebuilt := c
	rebuilt.RequestHash = reqHash
	rebuilt.ResponseHash = respHash
	rebuilt.InvocationID = invID
	capHash, err := ir.CapsuleHash(rebuilt)
	if err != nil {
		return nil, err
	}
	if capHash != c.Hash {
		fields = append(fields, "hash")
	}
	return fields, nil
}

// effectPhase checks effects according to mode and returns the indices of
// effects that did not match.
func (v *Verifier) effectPhase(ctx context.Context, c ir.Capsule, mode ReplayMode) ([]string, string, error) {
	switch mode {
	case ModeShadow:
		return v.shadow(ctx, c)
	case ModeLive:
		if err := v.dispatcher.Reapply(ctx, c.Hash); err != nil {
			return nil, "", err
		}
		return nil, "effects re-applied to live sink", nil
	default:
		if v.state == nil {
			return nil, "no sink state configured; effect phase skipped", nil
		}
		committed, err := v.ledger.EffectsCommitted(ctx, c.Hash)
		if err != nil {
			return nil, "", err
		}
		if !committed {
			return nil, "effects pending; effect phase skipped", nil
		}
		return v.dry(ctx, c)
	}
}

// dry compares the sink with the sealed effects. A row that a later
// committed capsule of the same actor also writes is superseded, not
// divergent: the sink legitimately holds the newer payload.
func (v *Verifier) dry(ctx context.Context, c ir.Capsule) ([]string, string, error) {
	var mismatched []int
	for i, e := range c.Effects {
		got, ok, err := v.state.Lookup(ctx, e.Kind, e.Key)
		if err != nil {
			return nil, "", err
		}
		if !ok || !samePayload(got, e.Payload) {
			mismatched = append(mismatched, i)
		}
	}
	if len(mismatched) == 0 {
		return nil, "", nil
	}

	owned, err := v.laterEffects(ctx, c)
	if err != nil {
		return nil, "", err
	}
	var fields []string
	superseded := 0
	for _, i := range mismatched {
		e := c.Effects[i]
		if _, ok := owned[effectSlot{e.Kind, e.Key}]; ok {
			superseded++
			continue
		}
		fields = append(fields, fmt.Sprintf("effects[%d]", i))
	}
	if len(fields) > 0 {
		return fields, "sink state differs from sealed effects", nil
	}
	return nil, fmt.Sprintf("%d effect(s) superseded by later capsules", superseded), nil
}

type effectSlot struct {
	kind, key string
}

// laterEffects collects the effect slots written by committed capsules of
// c's actor that were recorded after c.
func (v *Verifier) laterEffects(ctx context.Context, c ir.Capsule) (map[effectSlot]struct{}, error) {
	owned := make(map[effectSlot]struct{})
	for later, err := range v.ledger.ListByActor(ctx, c.ActorID) {
		if err != nil {
			return nil, err
		}
		if later.Clock <= c.Clock {
			continue
		}
		committed, err := v.ledger.EffectsCommitted(ctx, later.Hash)
		if err != nil {
			return nil, err
		}
		if !committed {
			continue
		}
		for _, e := range later.Effects {
			owned[effectSlot{e.Kind, e.Key}] = struct{}{}
		}
	}
	return owned, nil
}

// shadow applies the effects twice to a fresh store; both passes must leave
// every key holding its sealed payload.
func (v *Verifier) shadow(ctx context.Context, c ir.Capsule) ([]string, string, error) {
	store := v.newShadow()
	for pass := 0; pass < 2; pass++ {
		for _, e := range c.Effects {
			if err := store.Apply(ctx, e); err != nil {
				return nil, "", fmt.Errorf("shadow apply: %w", err)
			}
		}
	}

	// Later effects with the same (kind, key) win, as they do in the sink.
	want := make(map[[2]string]ir.IRObject, len(c.Effects))
	for _, e := range c.Effects {
		want[[2]string{e.Kind, e.Key}] = e.Payload
	}
	var fields []string
	for i, e := range c.Effects {
		got, ok, err := store.Lookup(ctx, e.Kind, e.Key)
		if err != nil {
			return nil, "", err
		}
		if !ok || !samePayload(got, want[[2]string{e.Kind, e.Key}]) {
			fields = append(fields, fmt.Sprintf("effects[%d]", i))
		}
	}
	if len(fields) > 0 {
		return fields, "shadow store did not converge", nil
	}
	return nil, "shadow store converged", nil
}

func samePayload(a, b ir.IRObject) bool {
	if a == nil {
		a = ir.IRObject{}
	}
	if b == nil {
		b = ir.IRObject{}
	}
	ab, errA := ir.MarshalCanonical(a)
	bb, errB := ir.MarshalCanonical(b)
	return errA == nil && errB == nil && slices.Equal(ab, bb)
}

// finish records the verdict, flags divergent capsules and logs.
func (v *Verifier) finish(ctx context.Context, r ReplayReport, state ReplayState, reason Reason, fields []string, detail string) (ReplayReport, error) {
	r.State = state
	r.Reason = reason
	r.Fields = fields
	r.Detail = detail
	replays.WithLabelValues(string(state), string(reason)).Inc()

	if state == StateDiverged {
		if err := v.ledger.Flag(ctx, r.Capsule, string(reason)); err != nil {
			return r, fmt.Errorf("replay %s: flag: %w", r.Capsule, err)
		}
		v.logger.Warn("replay.diverged", "capsule", r.Capsule, "reason", reason, "fields", fields)
		return r, nil
	}
	v.logger.Info("replay.done", "capsule", r.Capsule, "state", state, "reason", reason)
	return r, nil
}
