package engine

import (
	"errors"
	"sync"

	"github.com/roach88/nowhere/internal/ir"
)

// ErrJournalFrozen is returned when an effect is proposed after the step's
// capsule was sealed.
var ErrJournalFrozen = errors.New("engine: effect journal frozen")

// EffectJournal buffers the effects one step proposes. Freeze hands the
// buffered effects to the builder; nothing can be added afterwards, so the
// sealed capsule and the committed effects are always the same list.
type EffectJournal struct {
	mu      sync.Mutex
	effects []ir.Effect
	frozen  bool
}

// NewEffectJournal returns an empty journal.
func NewEffectJournal() *EffectJournal {
	return &EffectJournal{effects: []ir.Effect{}}
}

// Propose buffers e.
func (j *EffectJournal) Propose(e ir.Effect) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.frozen {
		return ErrJournalFrozen
	}
	j.effects = append(j.effects, e.Clone())
	return nil
}

// Freeze closes the journal and returns its effects in proposal order.
// Calling Freeze again returns the same effects.
func (j *EffectJournal) Freeze() []ir.Effect {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.frozen = true
	out := make([]ir.Effect, len(j.effects))
	for i, e := range j.effects {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of buffered effects.
func (j *EffectJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.effects)
}
