package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nowhere/internal/canon"
	"github.com/roach88/nowhere/internal/ir"
)

// Defaults.
const (
	DefaultLedgerPath     = "nowhere.db"
	DefaultBlobDir        = "blobs"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultEffectAttempts = 3
	DefaultEffectBackoff  = 50 * time.Millisecond
	DefaultReplayMode     = "dry"
)

// Config is the typed form of nowhere.yaml.
type Config struct {
	Version string        `yaml:"version"`
	Data    DataConfig    `yaml:"data"`
	Log     LogConfig     `yaml:"log"`
	Effects EffectsConfig `yaml:"effects"`
	Replay  ReplayConfig  `yaml:"replay"`
	Actors  []ActorSpec   `yaml:"actors"`
}

// DataConfig locates the durable stores.
type DataConfig struct {
	// Ledger is the SQLite database path.
	Ledger string `yaml:"ledger"`

	// Blobs is the Badger directory.
	Blobs string `yaml:"blobs"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EffectsConfig tunes the effect dispatcher.
type EffectsConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	Backoff     Duration `yaml:"backoff"`
}

// ReplayConfig sets the default replay mode.
type ReplayConfig struct {
	Mode string `yaml:"mode"`
}

// ActorSpec declares one actor.
type ActorSpec struct {
	ID        string                `yaml:"id"`
	Kind      string                `yaml:"kind"`
	Enabled   *bool                 `yaml:"enabled"`
	Mailbox   int                   `yaml:"mailbox"`
	Rate      RateSpec              `yaml:"rate"`
	Projector *canon.ItemsProjector `yaml:"projector"`
}

// IsEnabled reports whether the actor should be spawned. Actors are enabled
// unless explicitly disabled.
func (a ActorSpec) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// RateSpec is a per-actor token bucket.
type RateSpec struct {
	QPS     float64  `yaml:"qps"`
	Burst   int      `yaml:"burst"`
	MaxWait Duration `yaml:"max_wait"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", n.Line, s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Actor returns the spec for id.
func (c *Config) Actor(id string) (ActorSpec, bool) {
	for _, a := range c.Actors {
		if a.ID == id {
			return a, true
		}
	}
	return ActorSpec{}, false
}

func (c *Config) applyDefaults() {
	if c.Data.Ledger == "" {
		c.Data.Ledger = DefaultLedgerPath
	}
	if c.Data.Blobs == "" {
		c.Data.Blobs = DefaultBlobDir
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Effects.MaxAttempts == 0 {
		c.Effects.MaxAttempts = DefaultEffectAttempts
	}
	if c.Effects.Backoff == 0 {
		c.Effects.Backoff = Duration(DefaultEffectBackoff)
	}
	if c.Replay.Mode == "" {
		c.Replay.Mode = DefaultReplayMode
	}
}

func (c *Config) check() error {
	if c.Version != "" && c.Version != ir.FormatVersion {
		return &ValidationError{Path: "version", Message: fmt.Sprintf("unsupported version %q (want %q)", c.Version, ir.FormatVersion)}
	}
	seen := make(map[string]bool, len(c.Actors))
	for _, a := range c.Actors {
		if seen[a.ID] {
			return &ValidationError{Path: "actors", Message: fmt.Sprintf("duplicate actor id %q", a.ID)}
		}
		seen[a.ID] = true
		if a.Rate.Burst == 0 && a.Rate.QPS > 0 {
			return &ValidationError{Path: "actors." + a.ID + ".rate", Message: "burst is required when qps is set"}
		}
	}
	return nil
}
