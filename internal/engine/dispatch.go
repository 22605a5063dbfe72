package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/nowhere/internal/evidence"
	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
)

// Dispatcher defaults.
const (
	DefaultEffectAttempts = 3
	DefaultEffectBackoff  = 50 * time.Millisecond
)

// Dispatcher applies sealed capsules' effects to the evidence sink.
//
// Commits for the same capsule are serialized; commits for different
// capsules run concurrently. Effects are applied only to capsules already in
// the ledger and never to flagged ones. The commit mark is written last, so
// a crash between apply and mark leaves the capsule pending and Recover
// re-applies it; sinks upsert, so re-application is harmless.
type Dispatcher struct {
	ledger      ledger.Ledger
	sink        evidence.Sink
	locks       *keyedMutex
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxAttempts sets how many times each effect is tried (minimum 1).
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxAttempts = max(n, 1)
	}
}

// WithBackoff sets the initial retry delay; it doubles per attempt.
func WithBackoff(b time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.backoff = b
	}
}

// WithDispatcherLogger sets the logger (default slog.Default()).
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a Dispatcher over l and sink.
func NewDispatcher(l ledger.Ledger, sink evidence.Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ledger:      l,
		sink:        sink,
		locks:       newKeyedMutex(),
		maxAttempts: DefaultEffectAttempts,
		backoff:     DefaultEffectBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Commit applies effects for the sealed capsule ref and marks them committed.
//
// effects must be exactly the capsule's sealed effects (ErrNotSealed
// otherwise). Committing an already committed capsule is a no-op.
func (d *Dispatcher) Commit(ctx context.Context, ref ir.CapsuleRef, effects []ir.Effect) error {
	unlock := d.locks.lock(ref)
	defer unlock()

	c, err := d.sealed(ctx, ref)
	if err != nil {
		return err
	}
	if !sameEffects(c.Effects, effects) {
		return fmt.Errorf("%w: effects for %s differ from the sealed capsule", ErrNotSealed, ref)
	}

	done, err := d.ledger.EffectsCommitted(ctx, ref)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", ref, err)
	}
	if done {
		return nil
	}
	return d.applyAndMark(ctx, c)
}

// Reapply applies a sealed capsule's effects again even if they were already
// committed. Used by live-mode replay.
func (d *Dispatcher) Reapply(ctx context.Context, ref ir.CapsuleRef) error {
	unlock := d.locks.lock(ref)
	defer unlock()

	c, err := d.sealed(ctx, ref)
	if err != nil {
		return err
	}
	return d.applyAndMark(ctx, c)
}

// sealed loads ref and refuses unknown or flagged capsules.
func (d *Dispatcher) sealed(ctx context.Context, ref ir.CapsuleRef) (ir.Capsule, error) {
	c, ok, err := d.ledger.Get(ctx, ref)
	if err != nil {
		return ir.Capsule{}, fmt.Errorf("dispatch %s: %w", ref, err)
	}
	if !ok {
		return ir.Capsule{}, fmt.Errorf("%w: %s", ErrNotSealed, ref)
	}
	reason, flagged, err := d.ledger.Flagged(ctx, ref)
	if err != nil {
		return ir.Capsule{}, fmt.Errorf("dispatch %s: %w", ref, err)
	}
	if flagged {
		return ir.Capsule{}, fmt.Errorf("%w: %s (%s)", ErrCapsuleFlagged, ref, reason)
	}
	return c, nil
}

func (d *Dispatcher) applyAndMark(ctx context.Context, c ir.Capsule) error {
	for _, e := range c.Effects {
		if err := d.apply(ctx, c.Hash, e); err != nil {
			return err
		}
	}
	if err := d.ledger.MarkEffectsCommitted(ctx, c.Hash); err != nil {
		return fmt.Errorf("dispatch %s: mark committed: %w", c.Hash, err)
	}
	d.logger.Debug("dispatch.committed", "capsule", c.Hash, "effects", len(c.Effects))
	return nil
}

// apply tries one effect up to maxAttempts times with doubling backoff.
func (d *Dispatcher) apply(ctx context.Context, ref ir.CapsuleRef, e ir.Effect) error {
	delay := d.backoff
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		lastErr = d.sink.Apply(ctx, e)
		if lastErr == nil {
			effectsApplied.Inc()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == d.maxAttempts {
			break
		}
		effectApplyRetries.Inc()
		d.logger.Warn("dispatch.retry", "capsule", ref, "kind", e.Kind, "key", e.Key, "attempt", attempt, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return NewEffectApplyError(ref, d.maxAttempts, lastErr)
}

func sameEffects(a, b []ir.Effect) bool {
	return slices.EqualFunc(a, b, func(x, y ir.Effect) bool {
		xb, errX := ir.MarshalCanonical(x.ToIR())
		yb, errY := ir.MarshalCanonical(y.ToIR())
		return errX == nil && errY == nil && string(xb) == string(yb)
	})
}

// keyedMutex hands out one mutex per capsule, dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[ir.CapsuleRef]*refLock
}

type refLock struct {
	mu      sync.Mutex
	waiters int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[ir.CapsuleRef]*refLock)}
}

func (k *keyedMutex) lock(ref ir.CapsuleRef) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[ref]
	if !ok {
		l = &refLock{}
		k.locks[ref] = l
	}
	l.waiters++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(k.locks, ref)
		}
		k.mu.Unlock()
	}
}
