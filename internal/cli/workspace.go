package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/nowhere/internal/blob"
	"github.com/roach88/nowhere/internal/config"
	"github.com/roach88/nowhere/internal/engine"
	"github.com/roach88/nowhere/internal/store"
)

// workspace is the durable state a command works against: the config, the
// SQLite ledger and evidence sink, and the Badger blob store.
type workspace struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	blobs    *blob.BadgerStore
	registry *engine.Registry
}

// loadConfig reads the config named by opts and applies the --db and
// --blobs overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Database != "" {
		cfg.Data.Ledger = opts.Database
	}
	if opts.Blobs != "" {
		cfg.Data.Blobs = opts.Blobs
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// openWorkspace loads the config and opens both stores. Logs go to stderr.
// A failure carries its JSON error code.
func openWorkspace(opts *RootOptions, stderr io.Writer) (*workspace, *codedError) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, &codedError{ErrCodeConfig, "failed to load config", err}
	}
	logger, err := config.NewLogger(cfg.Log, stderr)
	if err != nil {
		return nil, &codedError{ErrCodeConfig, "failed to configure logging", err}
	}

	st, err := store.Open(cfg.Data.Ledger)
	if err != nil {
		return nil, &codedError{ErrCodeStore, "failed to open ledger", err}
	}

	bc := blob.DefaultBadgerConfig(cfg.Data.Blobs)
	if opts.Verbose {
		bc.Logger = logger.With("component", "badger")
	}
	blobs, err := blob.OpenBadger(bc)
	if err != nil {
		st.Close()
		return nil, &codedError{ErrCodeStore, "failed to open blob store", err}
	}

	logger.Debug("workspace.opened", "ledger", cfg.Data.Ledger, "blobs", cfg.Data.Blobs)
	return &workspace{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		blobs:    blobs,
		registry: buildRegistry(cfg),
	}, nil
}

// buildRegistry registers every configured actor projector on top of the
// built-in kinds.
func buildRegistry(cfg *config.Config) *engine.Registry {
	reg := engine.DefaultRegistry()
	for _, a := range cfg.Actors {
		if a.Projector == nil || a.Kind == "" {
			continue
		}
		reg.Register(a.Kind, engine.KindSpec{Projector: *a.Projector, Deriver: engine.ArtifactDeriver{}})
	}
	return reg
}

// actorOptions maps enabled actors to their mailbox and rate limits.
func actorOptions(cfg *config.Config) map[string]engine.ActorOptions {
	out := make(map[string]engine.ActorOptions, len(cfg.Actors))
	for _, a := range cfg.Actors {
		if !a.IsEnabled() {
			continue
		}
		out[a.ID] = engine.ActorOptions{
			MailboxSize: a.Mailbox,
			RateLimit: engine.RateLimit{
				QPS:     a.Rate.QPS,
				Burst:   a.Rate.Burst,
				MaxWait: a.Rate.MaxWait.Std(),
			},
		}
	}
	return out
}

func (w *workspace) dispatcher() *engine.Dispatcher {
	return engine.NewDispatcher(w.store, w.store.Evidence(),
		engine.WithMaxAttempts(w.cfg.Effects.MaxAttempts),
		engine.WithBackoff(w.cfg.Effects.Backoff.Std()),
		engine.WithDispatcherLogger(w.logger),
	)
}

func (w *workspace) verifier() *engine.Verifier {
	return engine.NewVerifier(w.store, w.blobs, w.registry,
		engine.WithStateReader(w.store.Evidence()),
		engine.WithLiveDispatcher(w.dispatcher()),
		engine.WithVerifierLogger(w.logger),
	)
}

func (w *workspace) Close() error {
	return errors.Join(w.blobs.Close(), w.store.Close())
}

// codedError pairs a failure with its JSON error code.
type codedError struct {
	code    string
	message string
	err     error
}

func (e *codedError) Error() string {
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

// report prints e through out and converts it to an ExitError.
func (e *codedError) report(out *OutputFormatter) error {
	return out.Fail(ExitCommandError, e.code, e.message, e.err)
}

// newFormatter builds the formatter for cmd's output streams.
func newFormatter(opts *RootOptions, stdout, stderr io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
}
