package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/harness"
)

func TestRun_RecordsScenario(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "search.yaml", searchScenario)

	out, err := env.exec(t, "--format", "json", "run", path)
	require.NoError(t, err)

	resp := decode[harness.Result](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass, "errors: %v", resp.Data.Errors)
	require.Len(t, resp.Data.Trace, 3)
	for i, e := range resp.Data.Trace {
		assert.Equal(t, harness.OutcomeRecorded, e.Outcome, e.Step)
		assert.Equal(t, int64(i+1), e.Clock, e.Step)
		assert.True(t, e.Committed, e.Step)
	}
	require.Len(t, resp.Data.Replays, 1)
	assert.Equal(t, "verified", string(resp.Data.Replays[0].Report.State))
}

func TestRun_TextOutput(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "search.yaml", searchScenario)

	out, err := env.exec(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario: cli_search")
	assert.Contains(t, out, "[3] feed  feed:go items  recorded clock 3")
	assert.Contains(t, out, "✓ Scenario passed")
}

func TestRun_ClockContinuesAcrossRuns(t *testing.T) {
	env := newTestEnv(t)
	path := env.seed(t)

	out, err := env.exec(t, "--format", "json", "run", path)
	require.NoError(t, err)

	resp := decode[harness.Result](t, out)
	require.Len(t, resp.Data.Trace, 3)
	assert.Equal(t, int64(4), resp.Data.Trace[0].Clock)
}

func TestRun_FailedScenarioExitsOne(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "down.yaml", `
name: down
description: "the collaborator never answers"
flow:
  - name: only
    actor: search:brave
    kind: search
    fail_first: 3
    response: { status: 200, body: "{}" }
`)

	out, err := env.exec(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "only  search:brave search  external_failure")
	assert.Contains(t, out, "✗ Scenario failed")
	assert.Contains(t, out, "expected recorded, got external_failure")
}

func TestRun_FailedScenarioJSON(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "unknown.yaml", `
name: unknown
description: "kind nobody registered"
flow:
  - name: only
    actor: weather:noaa
    kind: weather
    response: { status: 200, body: "{}" }
`)

	out, err := env.exec(t, "--format", "json", "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode[harness.Result](t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenarioFail, resp.Error.Code)
	require.Len(t, resp.Data.Trace, 1)
	assert.Equal(t, harness.OutcomeUnknownKind, resp.Data.Trace[0].Outcome)
}

func TestRun_ConfiguredActorKind(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.write(t, "nowhere.yaml", `
actors:
  - id: feed:go
    kind: feed
    mailbox: 8
    projector:
      items_path: [data, entries]
      id_fields: [guid]
`)
	path := env.write(t, "feed.yaml", `
name: feed
description: "kind declared in the config"
flow:
  - name: entries
    actor: feed:go
    kind: feed
    response: { status: 200, body: '{"data":{"entries":[{"guid":"1"},{"guid":"2"}]}}' }
assertions:
  - type: replay
    step: entries
    state: verified
`)

	out, err := env.exec(t, "--config", cfg, "--format", "json", "run", path)
	require.NoError(t, err)

	resp := decode[harness.Result](t, out)
	assert.True(t, resp.Data.Pass, "errors: %v", resp.Data.Errors)
	assert.Equal(t, 2, resp.Data.Trace[0].Items)
}

func TestRun_MissingScenario(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.exec(t, "run", filepath.Join(env.dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestRun_InvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.write(t, "nowhere.yaml", "replay:\n  mode: sideways\n")
	path := env.write(t, "search.yaml", searchScenario)

	out, err := env.exec(t, "--config", cfg, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}
