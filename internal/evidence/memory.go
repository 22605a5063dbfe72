package evidence

import (
	"context"
	"sync"

	"github.com/roach88/nowhere/internal/ir"
)

type entryKey struct {
	kind, key string
}

// MemorySink is an in-process Store. It also serves as the fresh shadow
// store for shadow-mode replay.
type MemorySink struct {
	mu      sync.RWMutex
	state   map[entryKey]ir.IRObject
	applies int
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{state: make(map[entryKey]ir.IRObject)}
}

func (s *MemorySink) Apply(ctx context.Context, e ir.Effect) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[entryKey{e.Kind, e.Key}] = e.Payload.Clone()
	s.applies++
	return nil
}

func (s *MemorySink) Lookup(ctx context.Context, kind, key string) (ir.IRObject, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[entryKey{kind, key}]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

// Len returns the number of distinct (kind, key) entries.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state)
}

// Applies returns how many Apply calls succeeded, duplicates included.
func (s *MemorySink) Applies() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applies
}

// Snapshot returns a copy of the whole state keyed "kind/key".
func (s *MemorySink) Snapshot() map[string]ir.IRObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ir.IRObject, len(s.state))
	for k, v := range s.state {
		out[k.kind+"/"+k.key] = v.Clone()
	}
	return out
}

// Count is Len in the form the SQLite sink reports it.
func (s *MemorySink) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Len(), nil
}
