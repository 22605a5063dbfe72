package engine

import (
	"context"
	"log/slog"
)

// DefaultMailboxSize bounds an actor's queue of pending steps.
const DefaultMailboxSize = 64

type stepReply struct {
	result StepResult
	err    error
}

type envelope struct {
	req   StepRequest
	reply chan stepReply
}

// Actor serializes the steps of one actor ID through a mailbox. Steps of
// different actors run concurrently; ordering between them comes only from
// the scheduler's clock and capsule parents.
type Actor struct {
	id     string
	rt     *Runtime
	collab Collaborator
	inbox  *mailbox[envelope]
	logger *slog.Logger
}

func newActor(rt *Runtime, id string, collab Collaborator, mailboxSize int) *Actor {
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	return &Actor{
		id:     id,
		rt:     rt,
		collab: collab,
		inbox:  newMailbox[envelope](mailboxSize),
		logger: rt.logger.With("actor", id),
	}
}

// ID returns the actor's identifier.
func (a *Actor) ID() string { return a.id }

// Pending returns the number of queued steps.
func (a *Actor) Pending() int { return a.inbox.Len() }

// Ask queues a step and waits for its result. It fails fast with
// ErrMailboxFull or ErrMailboxClosed instead of blocking the caller.
func (a *Actor) Ask(ctx context.Context, req StepRequest) (StepResult, error) {
	reply := make(chan stepReply, 1)
	if err := a.inbox.Enqueue(envelope{req: req, reply: reply}); err != nil {
		return StepResult{}, err
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return StepResult{}, ctx.Err()
	}
}

// Run processes queued steps one at a time until ctx is done or the
// scheduler is cancelled. On either signal the mailbox closes and every step
// still queued is answered: after scheduler cancellation they fail with
// ErrCancelled at ticket issuance.
func (a *Actor) Run(ctx context.Context) error {
	a.logger.Debug("actor.start")
	defer a.logger.Debug("actor.stop")

	for {
		if env, ok := a.inbox.TryDequeue(); ok {
			res, err := a.rt.Step(ctx, a.id, a.collab, env.req)
			env.reply <- stepReply{result: res, err: err}
			continue
		}
		if a.inbox.Drained() {
			return nil
		}

		select {
		case <-ctx.Done():
			a.inbox.Close()
		case <-a.rt.scheduler.Done():
			a.inbox.Close()
		case <-a.inbox.Wait():
		}
	}
}
