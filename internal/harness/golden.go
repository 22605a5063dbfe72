package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/nowhere/internal/ir"
)

// TraceSnapshot is the golden form of a scenario run.
//
// Hashes are left out; the ir package pins the capsule encoding with its
// own golden file.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Replays      []ReplayEvent
}

// ToIR converts the snapshot to an IR object for canonical serialization.
func (s *TraceSnapshot) ToIR() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, e := range s.Trace {
		obj := ir.IRObject{
			"seq":     ir.IRInt(e.Seq),
			"step":    ir.IRString(e.Step),
			"actor":   ir.IRString(e.Actor),
			"kind":    ir.IRString(e.Kind),
			"outcome": ir.IRString(e.Outcome),
		}
		if e.Recorded() {
			obj["clock"] = ir.IRInt(e.Clock)
			obj["items"] = ir.IRInt(e.Items)
			obj["effects"] = ir.IRInt(e.Effects)
			obj["attempts"] = ir.IRInt(e.Attempts)
			obj["committed"] = ir.IRBool(e.Committed)
		}
		trace[i] = obj
	}

	replays := make(ir.IRArray, len(s.Replays))
	for i, r := range s.Replays {
		fields := make(ir.IRArray, len(r.Report.Fields))
		for j, f := range r.Report.Fields {
			fields[j] = ir.IRString(f)
		}
		obj := ir.IRObject{
			"step":   ir.IRString(r.Step),
			"mode":   ir.IRString(r.Report.Mode),
			"state":  ir.IRString(r.Report.State),
			"clock":  ir.IRInt(r.Report.Clock),
			"fields": fields,
		}
		if r.Tamper != "" {
			obj["tamper"] = ir.IRString(r.Tamper)
		}
		if r.Report.Reason != "" {
			obj["reason"] = ir.IRString(r.Report.Reason)
		}
		replays[i] = obj
	}

	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
		"replays":       replays,
	}
}

// Snapshot builds the golden snapshot of result.
func Snapshot(name string, result *Result) ([]byte, error) {
	s := TraceSnapshot{ScenarioName: name, Trace: result.Trace, Replays: result.Replays}
	return ir.MarshalCanonical(s.ToIR())
}

// AssertGolden compares result against testdata/golden/{name}.golden.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// RunWithGolden runs scenario in memory and compares its trace against the
// golden file named after it.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}
