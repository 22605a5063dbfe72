package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/nowhere/internal/blob"
	"github.com/roach88/nowhere/internal/ledger"
)

// DefaultCallAttempts is how many times a step calls its collaborator before
// giving up with EXTERNAL_CALL_FAILURE.
const DefaultCallAttempts = 3

// DefaultCallBackoff is the wait before the second collaborator attempt. It
// doubles after every further failure.
const DefaultCallBackoff = 50 * time.Millisecond

// RuntimeConfig wires the collaborators of a Runtime. Scheduler, Ledger,
// Blobs and Dispatcher are required.
type RuntimeConfig struct {
	Scheduler  *Scheduler
	Ledger     ledger.Ledger
	Blobs      blob.Store
	Dispatcher *Dispatcher

	// Registry resolves request kinds (default DefaultRegistry()).
	Registry *Registry

	// Keys fills in missing correlation keys (default UUIDv7Generator).
	Keys CorrelationKeyGenerator

	// CallAttempts bounds collaborator retries (default DefaultCallAttempts).
	CallAttempts int

	// CallBackoff is the first retry delay (default DefaultCallBackoff).
	CallBackoff time.Duration

	// Now feeds telemetry only (default time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

// Runtime is the explicit context object every step runs against. There is
// no process-wide state: two Runtimes over different ledgers are independent.
type Runtime struct {
	scheduler    *Scheduler
	ledger       ledger.Ledger
	blobs        blob.Store
	dispatcher   *Dispatcher
	registry     *Registry
	keys         CorrelationKeyGenerator
	callAttempts int
	callBackoff  time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewRuntime validates cfg and fills in defaults.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	switch {
	case cfg.Scheduler == nil:
		return nil, errors.New("engine: runtime requires a scheduler")
	case cfg.Ledger == nil:
		return nil, errors.New("engine: runtime requires a ledger")
	case cfg.Blobs == nil:
		return nil, errors.New("engine: runtime requires a blob store")
	case cfg.Dispatcher == nil:
		return nil, errors.New("engine: runtime requires a dispatcher")
	}

	rt := &Runtime{
		scheduler:    cfg.Scheduler,
		ledger:       cfg.Ledger,
		blobs:        cfg.Blobs,
		dispatcher:   cfg.Dispatcher,
		registry:     cfg.Registry,
		keys:         cfg.Keys,
		callAttempts: cfg.CallAttempts,
		callBackoff:  cfg.CallBackoff,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
	if rt.registry == nil {
		rt.registry = DefaultRegistry()
	}
	if rt.keys == nil {
		rt.keys = UUIDv7Generator{}
	}
	if rt.callAttempts <= 0 {
		rt.callAttempts = DefaultCallAttempts
	}
	if rt.callBackoff <= 0 {
		rt.callBackoff = DefaultCallBackoff
	}
	if rt.now == nil {
		rt.now = time.Now
	}
	if rt.logger == nil {
		rt.logger = slog.Default()
	}
	return rt, nil
}

// Scheduler returns the runtime's scheduler.
func (rt *Runtime) Scheduler() *Scheduler { return rt.scheduler }

// Ledger returns the runtime's ledger.
func (rt *Runtime) Ledger() ledger.Ledger { return rt.ledger }

// Blobs returns the runtime's blob store.
func (rt *Runtime) Blobs() blob.Store { return rt.blobs }

// Dispatcher returns the runtime's effect dispatcher.
func (rt *Runtime) Dispatcher() *Dispatcher { return rt.dispatcher }

// Registry returns the runtime's kind registry.
func (rt *Runtime) Registry() *Registry { return rt.registry }

// Verifier returns a replay verifier over the runtime's ledger, blobs and
// registry.
func (rt *Runtime) Verifier(opts ...VerifierOption) *Verifier {
	opts = append([]VerifierOption{WithVerifierLogger(rt.logger)}, opts...)
	return NewVerifier(rt.ledger, rt.blobs, rt.registry, opts...)
}
