package cli

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/blob"
	"github.com/roach88/nowhere/internal/engine"
	"github.com/roach88/nowhere/internal/harness"
	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/store"
)

// downSink refuses every effect.
type downSink struct{}

func (downSink) Apply(context.Context, ir.Effect) error {
	return errors.New("evidence store unavailable")
}

func (downSink) Lookup(context.Context, string, string) (ir.IRObject, bool, error) {
	return nil, false, nil
}

// seedPending records one capsule whose effects never reached the evidence
// store.
func (e testEnv) seedPending(t *testing.T) {
	t.Helper()
	st, err := store.Open(e.db)
	require.NoError(t, err)
	defer st.Close()
	blobs, err := blob.OpenBadger(blob.BadgerConfig{Dir: e.blobs, SyncWrites: true})
	require.NoError(t, err)
	defer blobs.Close()

	result, err := harness.Execute(t.Context(), &harness.Scenario{
		Name:        "pending",
		Description: "the sink is down while the step records",
		Flow: []harness.Step{{
			Name:     "only",
			Actor:    "feed:go",
			Kind:     "items",
			Response: harness.Response{Status: 200, Body: `{"items":[{"id":"a"},{"id":"b"}]}`},
			Expect:   harness.OutcomePending,
		}},
	}, harness.Target{Ledger: st, Blobs: blobs, Sink: downSink{}})
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRecover_NothingPending(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := env.exec(t, "recover")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ No pending effects")
}

func TestRecover_CommitsPendingEffects(t *testing.T) {
	env := newTestEnv(t)
	env.seedPending(t)

	out, err := env.exec(t, "--format", "json", "trace", "--actor", "feed:go")
	require.NoError(t, err)
	before := decode[TraceResult](t, out)
	assert.Equal(t, TraceStats{Total: 1, Pending: 1}, before.Data.Stats)

	out, err = env.exec(t, "--format", "json", "recover", "--concurrency", "2")
	require.NoError(t, err)
	resp := decode[engine.RecoveryReport](t, out)
	assert.Equal(t, 1, resp.Data.Pending)
	require.Len(t, resp.Data.Committed, 1)
	assert.Equal(t, before.Data.Timeline[0].Capsule, resp.Data.Committed[0])

	out, err = env.exec(t, "--format", "json", "trace", "--actor", "feed:go")
	require.NoError(t, err)
	after := decode[TraceResult](t, out)
	assert.Equal(t, TraceStats{Total: 1, Committed: 1}, after.Data.Stats)

	// The recovered effects are what dry replay expects to find.
	_, err = env.exec(t, "replay", "--actor", "feed:go")
	require.NoError(t, err)

	out, err = env.exec(t, "recover")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ No pending effects")
}

func TestRecover_StoreError(t *testing.T) {
	env := newTestEnv(t)
	env.db = filepath.Join(env.dir, "no", "such", "nowhere.db")

	out, err := env.exec(t, "recover")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}
