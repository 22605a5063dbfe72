package blob

import (
	"context"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/ir"
)

// storeCase runs the same contract tests against each implementation.
type storeCase struct {
	name   string
	open   func(t *testing.T) Store
	tamper func(t *testing.T, s Store, ref ir.BlobRef)
}

func storeCases() []storeCase {
	return []storeCase{
		{
			name: "memory",
			open: func(t *testing.T) Store { return NewMemoryStore() },
			tamper: func(t *testing.T, s Store, ref ir.BlobRef) {
				ok := s.(*MemoryStore).Tamper(ref, func(b []byte) []byte {
					b[0] ^= 0x01
					return b
				})
				require.True(t, ok)
			},
		},
		{
			name: "badger",
			open: func(t *testing.T) Store {
				s, err := OpenBadger(BadgerConfig{Dir: t.TempDir()})
				require.NoError(t, err)
				t.Cleanup(func() { s.Close() })
				return s
			},
			tamper: func(t *testing.T, s Store, ref ir.BlobRef) {
				db := s.(*BadgerStore).db
				require.NoError(t, db.Update(func(txn *badger.Txn) error {
					return txn.Set(blobKey(ref), []byte("tampered"))
				}))
			},
		},
	}
}

func TestStoreCommitRead(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t)

			ref, err := s.Commit(ctx, []byte("hello"))
			require.NoError(t, err)
			assert.Equal(t, ir.BlobRef("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"), ref)

			got, err := s.Read(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), got)

			ok, err := s.Exists(ctx, ref)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStoreCommitIdempotent(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t)

			var wg sync.WaitGroup
			refs := make([]ir.BlobRef, 8)
			for i := range refs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ref, err := s.Commit(ctx, []byte("same bytes"))
					assert.NoError(t, err)
					refs[i] = ref
				}()
			}
			wg.Wait()
			for _, r := range refs {
				assert.Equal(t, refs[0], r)
			}
		})
	}
}

func TestStoreMissing(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t)
			ref := ir.ContentHash([]byte("never committed"))

			_, err := s.Read(ctx, ref)
			require.Error(t, err)
			assert.True(t, IsMissing(err))

			ok, err := s.Exists(ctx, ref)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreDetectsCorruption(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t)
			ref, err := s.Commit(ctx, []byte("payload"))
			require.NoError(t, err)

			tc.tamper(t, s, ref)

			_, err = s.Read(ctx, ref)
			require.Error(t, err)
			assert.True(t, IsIntegrity(err))
			assert.False(t, IsMissing(err))
		})
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Commit(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenBadger(BadgerConfig{Dir: dir, SyncWrites: true})
	require.NoError(t, err)
	ref, err := s.Commit(ctx, []byte("durable"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenBadger(BadgerConfig{Dir: dir})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Read(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), got)
}

func TestOpenBadgerRequiresDir(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}
