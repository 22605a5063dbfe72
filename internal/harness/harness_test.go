package harness

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/blob"
	"github.com/roach88/nowhere/internal/canon"
	"github.com/roach88/nowhere/internal/engine"
	"github.com/roach88/nowhere/internal/store"
)

func loadFixture(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"search_roundtrip", "failures_keep_clock_order"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadFixture(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario := loadFixture(t, "search_roundtrip")

	a, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	b, err := Run(t.Context(), scenario)
	require.NoError(t, err)

	require.Len(t, b.Trace, len(a.Trace))
	for i := range a.Trace {
		assert.Equal(t, a.Trace[i].Capsule, b.Trace[i].Capsule, "step %s", a.Trace[i].Step)
		assert.NotEmpty(t, a.Trace[i].Capsule)
	}
}

func TestRun_CorrelationKeyChangesCapsules(t *testing.T) {
	scenario := minimal()
	a, err := Run(t.Context(), scenario)
	require.NoError(t, err)

	scenario.CorrelationKey = "another-key"
	b, err := Run(t.Context(), scenario)
	require.NoError(t, err)

	assert.NotEqual(t, a.Trace[0].Capsule, b.Trace[0].Capsule)
}

func minimal() *Scenario {
	return &Scenario{
		Name:        "minimal",
		Description: "one search step",
		Flow: []Step{{
			Name:     "only",
			Actor:    "search:brave",
			Kind:     "search",
			Params:   map[string]any{"query": "go"},
			Response: Response{Status: 200, Body: `{"web":{"results":[{"url":"https://go.dev"}]}}`},
		}},
	}
}

func TestRun_ScenarioKinds(t *testing.T) {
	one := 1
	scenario := &Scenario{
		Name:        "custom_kind",
		Description: "kinds declared by the scenario are projected and replayed",
		Kinds: map[string]canon.ItemsProjector{
			"feed": {ItemsPath: []string{"data", "entries"}, IDFields: []string{"guid"}, DefaultCategory: "feed"},
		},
		Flow: []Step{{
			Name:     "entries",
			Actor:    "feed:go",
			Kind:     "feed",
			Response: Response{Status: 200, Body: `{"data":{"entries":[{"guid":"g-1"},{"guid":"g-2"}]}}`},
		}},
		Assertions: []Assertion{
			{Type: AssertReplay, Step: "entries", State: "verified"},
			{Type: AssertCapsuleCount, Actor: "feed:go", Count: &one},
		},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	e, ok := result.Event("entries")
	require.True(t, ok)
	assert.Equal(t, 2, e.Items)
	assert.Equal(t, 2, e.Effects)
}

func TestRun_UnexpectedOutcomeFails(t *testing.T) {
	scenario := minimal()
	scenario.Flow[0].FailFirst = 3

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `flow step "only": expected recorded, got external_failure`)
	assert.False(t, result.Trace[0].Recorded())
}

func TestRun_AssertionFailuresAreReported(t *testing.T) {
	two := 2
	scenario := minimal()
	scenario.Assertions = []Assertion{
		{Type: AssertCapsuleCount, Actor: "search:brave", Count: &two},
		{Type: AssertReplay, Step: "only", Tamper: TamperAppend, State: "verified"},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Expected: 2 capsules for search:brave")
	assert.Contains(t, result.Errors[1], "Actual: diverged hash_mismatch")

	require.Len(t, result.Replays, 1)
	assert.Equal(t, TamperAppend, result.Replays[0].Tamper)
}

func TestRun_FlaggedCapsuleStaysDiverged(t *testing.T) {
	scenario := minimal()
	scenario.Assertions = []Assertion{
		{Type: AssertReplay, Step: "only", Tamper: TamperFlip, State: "diverged", Reason: "hash_mismatch"},
		{Type: AssertReplay, Step: "only", State: "diverged", Reason: "hash_mismatch"},
	}
	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestExecute_DurableTarget(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "nowhere.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs := blob.NewMemoryStore()
	target := Target{Ledger: st, Blobs: blobs, Sink: st.Evidence()}
	scenario := loadFixture(t, "search_roundtrip")

	result, err := Execute(t.Context(), scenario, target)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	n, err := st.Evidence().Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	// The same memory run seals the same capsules.
	mem, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	for i := range mem.Trace {
		assert.Equal(t, mem.Trace[i].Capsule, result.Trace[i].Capsule)
	}
}

func TestExecute_ResumesClockFromTarget(t *testing.T) {
	target := MemoryTarget()

	first, err := Execute(t.Context(), minimal(), target)
	require.NoError(t, err)
	second, err := Execute(t.Context(), minimal(), target)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Trace[0].Clock)
	assert.Equal(t, int64(2), second.Trace[0].Clock)
	assert.NotEqual(t, first.Trace[0].Capsule, second.Trace[0].Capsule)
}

func TestExecute_RejectsIncompleteTarget(t *testing.T) {
	_, err := Execute(t.Context(), minimal(), Target{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target needs")
}

func TestExecute_TamperNeedsMutableBlobs(t *testing.T) {
	target := MemoryTarget()
	target.Blobs = readOnlyBlobs{target.Blobs}

	scenario := minimal()
	scenario.Assertions = []Assertion{{Type: AssertReplay, Step: "only", Tamper: TamperDelete, State: "failed"}}

	result, err := Execute(t.Context(), scenario, target)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "does not support tampering")
}

// readOnlyBlobs hides MemoryStore's tampering methods.
type readOnlyBlobs struct {
	blob.Store
}

func TestExecute_RateLimitedActor(t *testing.T) {
	target := MemoryTarget()
	target.Actors = map[string]engine.ActorOptions{
		"search:brave": {RateLimit: engine.RateLimit{QPS: 0.001, Burst: 1, MaxWait: time.Millisecond}},
	}

	scenario := minimal()
	second := scenario.Flow[0]
	second.Name = "throttled"
	second.Params = map[string]any{"query": "again"}
	second.Expect = OutcomeRateLimited
	other := scenario.Flow[0]
	other.Name = "other"
	other.Actor = "feed:go"
	scenario.Flow = append(scenario.Flow, second, other)

	result, err := Execute(t.Context(), scenario, target)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	throttled, ok := result.Event("throttled")
	require.True(t, ok)
	assert.False(t, throttled.Recorded())

	// The throttled step spent clock 2 before its call was refused.
	e, ok := result.Event("other")
	require.True(t, ok)
	assert.Equal(t, int64(3), e.Clock)
}
