package ledger

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/roach88/nowhere/internal/ir"
)

// MemoryLedger is an in-process Ledger. A single mutex serializes appends,
// so validation and insertion are atomic with respect to each other.
type MemoryLedger struct {
	mu           sync.RWMutex
	byHash       map[ir.CapsuleRef]ir.Capsule
	byInvocation map[string]ir.CapsuleRef
	byActor      map[string][]ir.CapsuleRef // clock ascending
	committed    map[ir.CapsuleRef]bool
	flags        map[ir.CapsuleRef]string
	maxClock     int64
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byHash:       make(map[ir.CapsuleRef]ir.Capsule),
		byInvocation: make(map[string]ir.CapsuleRef),
		byActor:      make(map[string][]ir.CapsuleRef),
		committed:    make(map[ir.CapsuleRef]bool),
		flags:        make(map[ir.CapsuleRef]string),
	}
}

func (l *MemoryLedger) Append(ctx context.Context, c ir.Capsule) (AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := VerifySeal(c); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byHash[c.Hash]; ok {
		return AlreadyRecorded, nil
	}
	if _, ok := l.byInvocation[c.InvocationID]; ok {
		return 0, ErrInvocationConflict
	}
	err := CheckCausality(c, func(ref ir.CapsuleRef) (int64, bool, error) {
		p, ok := l.byHash[ref]
		return p.Clock, ok, nil
	})
	if err != nil {
		return 0, err
	}

	stored := c.Clone()
	l.byHash[c.Hash] = stored
	l.byInvocation[c.InvocationID] = c.Hash

	refs := l.byActor[c.ActorID]
	i, _ := slices.BinarySearchFunc(refs, c.Clock, func(ref ir.CapsuleRef, clock int64) int {
		return cmp.Compare(l.byHash[ref].Clock, clock)
	})
	l.byActor[c.ActorID] = slices.Insert(refs, i, c.Hash)
	l.maxClock = max(l.maxClock, c.Clock)
	return Appended, nil
}

func (l *MemoryLedger) Get(ctx context.Context, ref ir.CapsuleRef) (ir.Capsule, bool, error) {
	if err := ctx.Err(); err != nil {
		return ir.Capsule{}, false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.byHash[ref]
	if !ok {
		return ir.Capsule{}, false, nil
	}
	return c.Clone(), true, nil
}

func (l *MemoryLedger) GetByInvocation(ctx context.Context, invocationID string) (ir.Capsule, bool, error) {
	if err := ctx.Err(); err != nil {
		return ir.Capsule{}, false, err
	}
	l.mu.RLock()
	ref, ok := l.byInvocation[invocationID]
	l.mu.RUnlock()
	if !ok {
		return ir.Capsule{}, false, nil
	}
	return l.Get(ctx, ref)
}

func (l *MemoryLedger) ListByActor(ctx context.Context, actorID string) iter.Seq2[ir.Capsule, error] {
	return func(yield func(ir.Capsule, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(ir.Capsule{}, err)
			return
		}
		l.mu.RLock()
		snapshot := make([]ir.Capsule, 0, len(l.byActor[actorID]))
		for _, ref := range l.byActor[actorID] {
			snapshot = append(snapshot, l.byHash[ref].Clone())
		}
		l.mu.RUnlock()

		for _, c := range snapshot {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (l *MemoryLedger) MaxClock(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxClock, nil
}

func (l *MemoryLedger) MarkEffectsCommitted(ctx context.Context, ref ir.CapsuleRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byHash[ref]; !ok {
		return ErrUnknownCapsule
	}
	l.committed[ref] = true
	return nil
}

func (l *MemoryLedger) EffectsCommitted(ctx context.Context, ref ir.CapsuleRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.committed[ref], nil
}

func (l *MemoryLedger) PendingEffects(ctx context.Context) ([]ir.CapsuleRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var pending []ir.Capsule
	for ref, c := range l.byHash {
		if l.committed[ref] {
			continue
		}
		if _, flagged := l.flags[ref]; flagged {
			continue
		}
		pending = append(pending, c)
	}
	slices.SortFunc(pending, func(a, b ir.Capsule) int {
		if c := cmp.Compare(a.Clock, b.Clock); c != 0 {
			return c
		}
		return cmp.Compare(a.Hash, b.Hash)
	})

	refs := make([]ir.CapsuleRef, len(pending))
	for i, c := range pending {
		refs[i] = c.Hash
	}
	return refs, nil
}

func (l *MemoryLedger) Flag(ctx context.Context, ref ir.CapsuleRef, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byHash[ref]; !ok {
		return ErrUnknownCapsule
	}
	if _, ok := l.flags[ref]; !ok {
		l.flags[ref] = reason
	}
	return nil
}

func (l *MemoryLedger) Flagged(ctx context.Context, ref ir.CapsuleRef) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	reason, ok := l.flags[ref]
	return reason, ok, nil
}

// Len returns the number of recorded capsules.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byHash)
}
