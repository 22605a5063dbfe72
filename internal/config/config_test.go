package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, env map[string]string, docs ...string) (*Config, error) {
	t.Helper()
	l := NewLoader().WithEnv(env)
	for _, d := range docs {
		l.WithYAML(d)
	}
	return l.Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultLedgerPath, cfg.Data.Ledger)
	assert.Equal(t, DefaultBlobDir, cfg.Data.Blobs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Effects.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Effects.Backoff.Std())
	assert.Equal(t, "dry", cfg.Replay.Mode)
	assert.Empty(t, cfg.Actors)
}

func TestLoad_FullDocument(t *testing.T) {
	cfg, err := load(t, nil, `
version: "1"
data:
  ledger: /var/lib/nowhere/ledger.db
  blobs: /var/lib/nowhere/blobs
log:
  level: debug
  format: json
effects:
  max_attempts: 5
  backoff: 200ms
replay:
  mode: shadow
actors:
  - id: search:brave
    kind: search
    rate:
      qps: 2
      burst: 4
      max_wait: 1s
  - id: feed
    kind: items
    enabled: false
    mailbox: 16
    projector:
      items_path: [data, entries]
      id_fields: [guid]
      content_fields: [title, summary]
      default_category: feed
`)
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, "/var/lib/nowhere/ledger.db", cfg.Data.Ledger)
	assert.Equal(t, 5, cfg.Effects.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Effects.Backoff.Std())
	assert.Equal(t, "shadow", cfg.Replay.Mode)
	require.Len(t, cfg.Actors, 2)

	brave := cfg.Actors[0]
	assert.True(t, brave.IsEnabled())
	assert.Equal(t, 0, brave.Mailbox)
	assert.Equal(t, 2.0, brave.Rate.QPS)
	assert.Equal(t, 4, brave.Rate.Burst)
	assert.Equal(t, time.Second, brave.Rate.MaxWait.Std())
	assert.Nil(t, brave.Projector)

	feed, ok := cfg.Actor("feed")
	require.True(t, ok)
	assert.False(t, feed.IsEnabled())
	assert.Equal(t, 16, feed.Mailbox)
	require.NotNil(t, feed.Projector)
	assert.Equal(t, []string{"data", "entries"}, feed.Projector.ItemsPath)
	assert.Equal(t, "feed", feed.Projector.DefaultCategory)
}

func TestLoad_LaterSourcesWin(t *testing.T) {
	cfg, err := load(t, nil,
		"log:\n  level: warn\n  format: json\n",
		"log:\n  level: error\n",
	)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverlay(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"NOWHERE_LOG__LEVEL":            "debug",
		"NOWHERE_EFFECTS__MAX_ATTEMPTS": "7",
		"NOWHERE_DATA__LEDGER":          "/tmp/x.db",
		"NOWHERE_UNRELATED":             "ignored",
		"OTHER_LOG__LEVEL":              "error",
	}, "log:\n  level: warn\n")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Effects.MaxAttempts)
	assert.Equal(t, "/tmp/x.db", cfg.Data.Ledger)
}

func TestLoad_ExpandsVariables(t *testing.T) {
	env := map[string]string{
		"ROOT":     "/srv",
		"LEDGER":   "${ROOT}/ledger.db",
		"ATTEMPTS": "4",
		"VERSION":  "1",
	}
	cfg, err := load(t, env, `
version: "${VERSION}"
data:
  ledger: ${LEDGER}
  blobs: $ROOT/blobs
effects:
  max_attempts: ${ATTEMPTS}
actors:
  - id: a
    kind: search
    projector:
      items_path: ["${MISSING}"]
`)
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, "/srv/ledger.db", cfg.Data.Ledger)
	assert.Equal(t, "/srv/blobs", cfg.Data.Blobs)
	assert.Equal(t, 4, cfg.Effects.MaxAttempts)
	assert.Equal(t, []string{"${MISSING}"}, cfg.Actors[0].Projector.ItemsPath, "unset variables stay verbatim")
}

func TestExpandString_BoundedDepth(t *testing.T) {
	l := NewLoader().WithEnv(map[string]string{"LOOP": "${LOOP}!"})
	got := l.expandString("${LOOP}")
	assert.Equal(t, "${LOOP}"+strings.Repeat("!", MaxExpansionDepth), got)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "colour: blue\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"bad replay mode", "replay:\n  mode: wet\n"},
		{"zero attempts", "effects:\n  max_attempts: 0\n"},
		{"actor without id", "actors:\n  - kind: search\n"},
		{"unknown actor field", "actors:\n  - id: a\n    kind: search\n    color: red\n"},
		{"duplicate actor", "actors:\n  - id: a\n    kind: search\n  - id: a\n    kind: items\n"},
		{"qps without burst", "actors:\n  - id: a\n    kind: search\n    rate:\n      qps: 1\n"},
		{"bad duration", "effects:\n  backoff: soon\n"},
		{"not a mapping", "- a\n- b\n"},
		{"unsupported version", "version: \"2\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, nil, tt.doc)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "got %T: %v", err, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nowhere.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: json\n"), 0o600))

	cfg, err := NewLoader().WithEnv(nil).WithFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)

	_, err = NewLoader().WithFile(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("replay.diverged", "capsule", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "replay.diverged", entry["msg"])
	assert.Equal(t, "abc", entry["capsule"])

	_, err = NewLogger(LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(LogConfig{Format: "xml"}, &buf)
	assert.Error(t, err)
}
