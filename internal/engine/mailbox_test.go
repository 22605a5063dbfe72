package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFO(t *testing.T) {
	m := newMailbox[int](0)
	for i := 1; i <= 3; i++ {
		require.NoError(t, m.Enqueue(i))
	}
	assert.Equal(t, 3, m.Len())

	for want := 1; want <= 3; want++ {
		got, ok := m.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := m.TryDequeue()
	assert.False(t, ok)
}

func TestMailbox_Bounded(t *testing.T) {
	m := newMailbox[string](2)
	require.NoError(t, m.Enqueue("a"))
	require.NoError(t, m.Enqueue("b"))
	assert.ErrorIs(t, m.Enqueue("c"), ErrMailboxFull)

	m.TryDequeue()
	assert.NoError(t, m.Enqueue("c"))
}

func TestMailbox_CloseKeepsQueuedMessages(t *testing.T) {
	m := newMailbox[int](0)
	require.NoError(t, m.Enqueue(1))
	m.Close()
	m.Close() // idempotent

	assert.ErrorIs(t, m.Enqueue(2), ErrMailboxClosed)
	assert.False(t, m.Drained())

	v, ok := m.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, m.Drained())

	// Closed signal never blocks.
	<-m.Wait()
}

func TestMailbox_ConcurrentEnqueue(t *testing.T) {
	m := newMailbox[int](0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Enqueue(i))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}
