package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace_ListsCapsulesInClockOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := env.exec(t, "--format", "json", "trace", "--actor", "search:brave")
	require.NoError(t, err)

	resp := decode[TraceResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "search:brave", resp.Data.Actor)
	require.Len(t, resp.Data.Timeline, 2)

	first, second := resp.Data.Timeline[0], resp.Data.Timeline[1]
	assert.Equal(t, int64(1), first.Clock)
	assert.Equal(t, int64(2), second.Clock)
	assert.Equal(t, "search", first.Kind)
	assert.Equal(t, 2, first.Items)
	assert.Empty(t, first.Parents)
	assert.Equal(t, first.Capsule, second.Parents[0])
	assert.NotEmpty(t, second.InvocationID)

	assert.Equal(t, TraceStats{Total: 2, Committed: 2}, resp.Data.Stats)
}

func TestTrace_Text(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := env.exec(t, "trace", "--actor", "feed:go")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace: feed:go")
	assert.Contains(t, out, "2 item(s), 2 effect(s)  committed")
	assert.Contains(t, out, "Stats: 1 total, 1 committed, 0 pending, 0 flagged")
}

func TestTrace_UnknownActor(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := env.exec(t, "trace", "--actor", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No capsules recorded for nobody.")
}

func TestTrace_RequiresActor(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.exec(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actor")
}
