package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrSystemRunning is returned by Spawn once Run has started.
var ErrSystemRunning = errors.New("engine: system already running")

// ActorOptions configures a spawned actor.
type ActorOptions struct {
	// MailboxSize bounds queued steps (default DefaultMailboxSize).
	MailboxSize int

	// RateLimit throttles the actor's collaborator. A zero QPS disables it.
	RateLimit RateLimit
}

// System supervises a set of actors over one Runtime.
type System struct {
	rt     *Runtime
	logger *slog.Logger

	mu      sync.Mutex
	actors  map[string]*Actor
	order   []string
	running bool
}

// NewSystem creates an empty System.
func NewSystem(rt *Runtime) *System {
	return &System{
		rt:     rt,
		logger: rt.logger,
		actors: make(map[string]*Actor),
	}
}

// Runtime returns the system's runtime.
func (s *System) Runtime() *Runtime { return s.rt }

// Spawn registers an actor. Actors must be spawned before Run.
func (s *System) Spawn(id string, collab Collaborator, opts ActorOptions) (*Actor, error) {
	if id == "" {
		return nil, errors.New("engine: actor id is required")
	}
	if collab == nil {
		return nil, fmt.Errorf("engine: actor %s: collaborator is required", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrSystemRunning
	}
	if _, dup := s.actors[id]; dup {
		return nil, fmt.Errorf("engine: actor %s already spawned", id)
	}

	if opts.RateLimit.QPS > 0 {
		collab = NewRateLimited(id, collab, opts.RateLimit)
	}
	a := newActor(s.rt, id, collab, opts.MailboxSize)
	s.actors[id] = a
	s.order = append(s.order, id)
	return a, nil
}

// Actor returns the actor registered under id.
func (s *System) Actor(id string) (*Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	return a, ok
}

// Ask routes a step to actor id.
func (s *System) Ask(ctx context.Context, id string, req StepRequest) (StepResult, error) {
	a, ok := s.Actor(id)
	if !ok {
		return StepResult{}, fmt.Errorf("engine: unknown actor %s", id)
	}
	return a.Ask(ctx, req)
}

// Run drives every actor until ctx is done or Shutdown is called, then waits
// for all queued steps to be answered.
func (s *System) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSystemRunning
	}
	s.running = true
	actors := make([]*Actor, 0, len(s.order))
	for _, id := range s.order {
		actors = append(actors, s.actors[id])
	}
	s.mu.Unlock()

	s.logger.Info("system.start", "actors", len(actors))
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range actors {
		g.Go(func() error {
			return a.Run(gctx)
		})
	}
	err := g.Wait()
	s.logger.Info("system.stop", "error", err)
	return err
}

// Shutdown fires the scheduler's cancellation signal. In-flight steps abort
// at their next checkpoint without sealing; no new tickets are issued.
func (s *System) Shutdown() {
	s.rt.scheduler.Cancel()
}
