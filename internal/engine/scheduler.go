package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
)

// Ticket grants one invocation its place in causal order. It is issued by
// the Scheduler, consumed exactly once by Assemble, and never persisted.
type Ticket struct {
	Clock   int64
	Parents []ir.CapsuleRef
	ActorID string

	cancel   <-chan struct{}
	consumed atomic.Bool
}

// Done returns the scheduler's cancellation channel.
func (t *Ticket) Done() <-chan struct{} {
	return t.cancel
}

// Cancelled reports whether the scheduler was cancelled after issuance.
func (t *Ticket) Cancelled() bool {
	select {
	case <-t.cancel:
		return true
	default:
		return false
	}
}

// Consumed reports whether the ticket was already sealed.
func (t *Ticket) Consumed() bool {
	return t.consumed.Load()
}

func (t *Ticket) consume() error {
	if !t.consumed.CompareAndSwap(false, true) {
		return ErrTicketConsumed
	}
	return nil
}

// Scheduler issues tickets. It owns the logical clock.
//
// Parent lookups happen outside the mutex; clock allocation happens inside
// it, so no two tickets ever share a clock and every ticket's clock exceeds
// its parents' clocks.
type Scheduler struct {
	mu     sync.Mutex
	clock  *Clock
	ledger ledger.CapsuleStore
	logger *slog.Logger

	cancelOnce sync.Once
	cancel     chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger (default slog.Default()).
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a scheduler that resumes after the ledger's highest
// recorded clock, so a restarted process never reissues a recorded clock.
func NewScheduler(ctx context.Context, l ledger.CapsuleStore, opts ...SchedulerOption) (*Scheduler, error) {
	start, err := l.MaxClock(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: resume clock: %w", err)
	}
	s := &Scheduler{
		clock:  NewClockAt(start),
		ledger: l,
		logger: slog.Default(),
		cancel: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("scheduler.resume", "clock", start)
	return s, nil
}

// IssueTicket allocates a clock for actorID with the given causal parents.
//
// Parents must already be in the ledger (UnknownParentError otherwise). The
// returned clock is strictly greater than every previously issued clock and
// every parent's clock. After Cancel, IssueTicket returns ErrCancelled
// without consuming a clock value.
func (s *Scheduler) IssueTicket(ctx context.Context, actorID string, parents []ir.CapsuleRef) (*Ticket, error) {
	if s.Cancelled() {
		ticketsRejected.WithLabelValues("cancelled").Inc()
		return nil, ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parents = ir.NormalizeParents(parents)
	var maxParent int64
	for _, p := range parents {
		c, ok, err := s.ledger.Get(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("scheduler: lookup parent %s: %w", p, err)
		}
		if !ok {
			ticketsRejected.WithLabelValues("unknown_parent").Inc()
			return nil, &ledger.UnknownParentError{Parent: p}
		}
		maxParent = max(maxParent, c.Clock)
	}

	s.mu.Lock()
	if s.Cancelled() {
		s.mu.Unlock()
		ticketsRejected.WithLabelValues("cancelled").Inc()
		return nil, ErrCancelled
	}
	s.clock.AdvancePast(maxParent)
	clock := s.clock.Next()
	s.mu.Unlock()

	ticketsIssued.Inc()
	s.logger.Debug("scheduler.ticket", "actor", actorID, "clock", clock, "parents", len(parents))
	return &Ticket{
		Clock:   clock,
		Parents: parents,
		ActorID: actorID,
		cancel:  s.cancel,
	}, nil
}

// Cancel fires the shared cancellation signal. Idempotent.
func (s *Scheduler) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		close(s.cancel)
		s.mu.Unlock()
		s.logger.Info("scheduler.cancelled", "clock", s.clock.Current())
	})
}

// Done returns a channel closed by Cancel.
func (s *Scheduler) Done() <-chan struct{} {
	return s.cancel
}

// Cancelled reports whether Cancel was called.
func (s *Scheduler) Cancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// Current returns the last issued clock.
func (s *Scheduler) Current() int64 {
	return s.clock.Current()
}
