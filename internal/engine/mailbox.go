package engine

import (
	"errors"
	"sync"
)

var (
	// ErrMailboxFull is returned when a bounded mailbox is at capacity.
	ErrMailboxFull = errors.New("engine: mailbox full")

	// ErrMailboxClosed is returned when sending to a stopped actor.
	ErrMailboxClosed = errors.New("engine: mailbox closed")
)

// mailbox is a thread-safe bounded FIFO of typed messages.
//
// The mailbox uses a channel for signaling to enable context-aware waiting
// in the actor loop (prevents goroutine hangs on context cancellation).
type mailbox[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool
	signal   chan struct{} // Signals availability (buffered, size 1)
}

// newMailbox creates an empty mailbox holding at most capacity messages.
// capacity <= 0 means unbounded.
func newMailbox[T any](capacity int) *mailbox[T] {
	return &mailbox[T]{
		items:    make([]T, 0, min(max(capacity, 0), 64)),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a message to the back of the mailbox.
// Thread-safe: may be called from any goroutine.
func (m *mailbox[T]) Enqueue(v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMailboxClosed
	}
	if m.capacity > 0 && len(m.items) >= m.capacity {
		return ErrMailboxFull
	}

	m.items = append(m.items, v)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return nil
}

// TryDequeue removes the front message without blocking.
func (m *mailbox[T]) TryDequeue() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.items) == 0 {
		return zero, false
	}

	v := m.items[0]

	// Zero the slot so the backing array does not retain the message.
	m.items[0] = zero
	if len(m.items) == 1 {
		m.items = m.items[:0]
	} else {
		m.items = m.items[1:]
	}
	return v, true
}

// Wait returns a channel that signals when messages may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-m.Wait():
//	    // Try TryDequeue
//	}
func (m *mailbox[T]) Wait() <-chan struct{} {
	return m.signal
}

// Len returns the current number of queued messages.
func (m *mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Drained reports whether the mailbox is closed and empty.
func (m *mailbox[T]) Drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed && len(m.items) == 0
}

// Close stops accepting messages. Already queued messages stay readable.
// Wakes any blocked waiters by closing the signal channel.
func (m *mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.signal)
}
