package blob

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/nowhere/internal/ir"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[ir.BlobRef][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[ir.BlobRef][]byte)}
}

func (s *MemoryStore) Commit(ctx context.Context, data []byte) (ir.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := ir.ContentHash(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		s.blobs[ref] = slices.Clone(data)
	}
	return ref, nil
}

func (s *MemoryStore) Read(ctx context.Context, ref ir.BlobRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.blobs[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, &BlobMissingError{Ref: ref}
	}
	if err := verify(ref, data); err != nil {
		return nil, err
	}
	return slices.Clone(data), nil
}

func (s *MemoryStore) Exists(ctx context.Context, ref ir.BlobRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[ref]
	return ok, nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Tamper replaces the stored bytes of ref without re-keying them. It exists
// so corruption handling can be exercised.
func (s *MemoryStore) Tamper(ref ir.BlobRef, fn func([]byte) []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[ref]
	if !ok {
		return false
	}
	s.blobs[ref] = fn(slices.Clone(data))
	return true
}

// Delete drops ref, simulating a lost blob.
func (s *MemoryStore) Delete(ref ir.BlobRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
}
