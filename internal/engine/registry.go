package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/nowhere/internal/canon"
)

// KindSpec is how one request kind turns payloads into digests and digests
// into effects.
type KindSpec struct {
	Projector canon.Projector
	Deriver   EffectDeriver
}

// Registry maps request kinds to their KindSpec. Live steps and replay both
// resolve through it, so a capsule is always re-projected the way it was
// recorded.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]KindSpec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]KindSpec)}
}

// DefaultRegistry registers the built-in kinds: "search" (web search
// results) and "items" (generic item lists), both deriving artifact effects.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("search", KindSpec{Projector: canon.SearchResults(), Deriver: ArtifactDeriver{}})
	r.Register("items", KindSpec{Projector: canon.GenericItems(), Deriver: ArtifactDeriver{}})
	return r
}

// Register binds kind (normalized with canon.Text) to spec. A nil Deriver
// means the kind produces no effects.
func (r *Registry) Register(kind string, spec KindSpec) {
	if spec.Deriver == nil {
		spec.Deriver = DeriverFunc(noEffects)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[canon.Text(kind)] = spec
}

// Lookup resolves kind.
func (r *Registry) Lookup(kind string) (KindSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.kinds[canon.Text(kind)]
	if !ok || spec.Projector == nil {
		return KindSpec{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return spec, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
