package harness

import (
	"github.com/roach88/nowhere/internal/engine"
	"github.com/roach88/nowhere/internal/ir"
)

// TraceEvent records what one flow step produced.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Step    string `json:"step"`
	Actor   string `json:"actor"`
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`

	// Set only when the step reached the ledger.
	Capsule   ir.CapsuleRef `json:"capsule,omitempty"`
	Clock     int64         `json:"clock,omitempty"`
	Items     int           `json:"items,omitempty"`
	Effects   int           `json:"effects,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Committed bool          `json:"committed,omitempty"`

	Error string `json:"error,omitempty"`
}

// Recorded reports whether the step left a capsule in the ledger.
func (e TraceEvent) Recorded() bool {
	return e.Capsule != ""
}

// ReplayEvent is the outcome of one replay assertion.
type ReplayEvent struct {
	Step   string              `json:"step"`
	Tamper string              `json:"tamper,omitempty"`
	Report engine.ReplayReport `json:"report"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step reached its expected outcome and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace   []TraceEvent  `json:"trace"`
	Replays []ReplayEvent `json:"replays,omitempty"`

	// Errors lists expectation and assertion failures. Empty if Pass.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Replays: []ReplayEvent{},
		Errors:  []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Event returns the trace event of the named step.
func (r *Result) Event(step string) (TraceEvent, bool) {
	for _, e := range r.Trace {
		if e.Step == step {
			return e, true
		}
	}
	return TraceEvent{}, false
}
