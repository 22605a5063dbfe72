package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nowhere/internal/canon"
	"github.com/roach88/nowhere/internal/ir"
)

// Scenario is a flow of fixture-backed steps plus assertions about the
// recorded result.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// CorrelationKey is used for every step. Empty means
	// "test-corr-default".
	CorrelationKey string `yaml:"correlation_key,omitempty"`

	// Kinds registers extra request kinds on top of the built-in ones.
	Kinds map[string]canon.ItemsProjector `yaml:"kinds,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one actor invocation with a scripted response.
type Step struct {
	Name   string         `yaml:"name"`
	Actor  string         `yaml:"actor"`
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params,omitempty"`
	Seed   uint64         `yaml:"seed,omitempty"`

	// Parents names earlier steps this one causally depends on.
	Parents []string `yaml:"parents,omitempty"`

	Response Response `yaml:"response"`

	// FailFirst makes the fixture fail that many calls before answering.
	FailFirst int `yaml:"fail_first,omitempty"`

	// Expect is the outcome the step must reach. Empty means recorded.
	Expect string `yaml:"expect,omitempty"`
}

// Response is a fixture payload.
type Response struct {
	Status  int               `yaml:"status"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body"`
}

// Payload converts the fixture to the payload a collaborator returns.
func (r Response) Payload() ir.RawPayload {
	headers := make([]ir.Header, 0, len(r.Headers))
	for name, value := range r.Headers {
		headers = append(headers, ir.Header{Name: name, Value: value})
	}
	return ir.RawPayload{Status: r.Status, Headers: headers, Body: []byte(r.Body)}
}

// Assertion checks the recorded result once the flow has run.
type Assertion struct {
	Type string `yaml:"type"`

	Step  string   `yaml:"step,omitempty"`
	Steps []string `yaml:"steps,omitempty"`
	Actor string   `yaml:"actor,omitempty"`
	Count *int     `yaml:"count,omitempty"`

	// Replay assertions.
	Mode   string `yaml:"mode,omitempty"`
	Tamper string `yaml:"tamper,omitempty"`
	State  string `yaml:"state,omitempty"`
	Reason string `yaml:"reason,omitempty"`
}

// Step outcomes.
const (
	OutcomeRecorded        = "recorded"
	OutcomeAlreadyRecorded = "already_recorded"
	OutcomePending         = "pending"
	OutcomeMalformed       = "malformed"
	OutcomeUnknownKind     = "unknown_kind"
	OutcomeUnknownParent   = "unknown_parent"
	OutcomeExternalFailure = "external_failure"
	OutcomeRateLimited     = "rate_limited"
	OutcomeCancelled       = "cancelled"
	OutcomeFailed          = "failed"
)

// Assertion types.
const (
	AssertReplay        = "replay"
	AssertCapsuleCount  = "capsule_count"
	AssertClockOrder    = "clock_order"
	AssertPendingCount  = "pending_count"
	AssertEvidenceCount = "evidence_count"
)

// Tamper operations for replay assertions.
const (
	TamperFlip   = "flip"
	TamperAppend = "append"
	TamperDelete = "delete"
)

var validOutcomes = []string{
	OutcomeRecorded, OutcomeAlreadyRecorded, OutcomePending, OutcomeMalformed, OutcomeUnknownKind,
	OutcomeUnknownParent, OutcomeExternalFailure, OutcomeRateLimited, OutcomeCancelled, OutcomeFailed,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Validate checks that required fields are present and step references
// resolve.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	for kind, p := range s.Kinds {
		if strings.TrimSpace(kind) == "" {
			return fmt.Errorf("kinds: empty kind name")
		}
		if len(p.ItemsPath) == 0 || len(p.IDFields) == 0 {
			return fmt.Errorf("kinds.%s: items_path and id_fields are required", kind)
		}
	}

	seen := make(map[string]bool, len(s.Flow))
	for i, step := range s.Flow {
		if step.Name == "" {
			return fmt.Errorf("flow[%d]: name is required", i)
		}
		if seen[step.Name] {
			return fmt.Errorf("flow[%d]: duplicate step name %q", i, step.Name)
		}
		if step.Actor == "" {
			return fmt.Errorf("flow[%d]: actor is required", i)
		}
		if step.Kind == "" {
			return fmt.Errorf("flow[%d]: kind is required", i)
		}
		if step.FailFirst < 0 {
			return fmt.Errorf("flow[%d]: fail_first must be non-negative", i)
		}
		if step.Expect != "" && !slices.Contains(validOutcomes, step.Expect) {
			return fmt.Errorf("flow[%d]: unknown expected outcome %q", i, step.Expect)
		}
		for _, p := range step.Parents {
			if !seen[p] {
				return fmt.Errorf("flow[%d]: parent %q is not an earlier step", i, p)
			}
		}
		seen[step.Name] = true
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], seen); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, steps map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertReplay:
		if !steps[a.Step] {
			return fmt.Errorf("assertions[%d]: step %q is not in the flow", index, a.Step)
		}
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for replay", index)
		}
		switch a.Tamper {
		case "", TamperFlip, TamperAppend, TamperDelete:
		default:
			return fmt.Errorf("assertions[%d]: unknown tamper %q", index, a.Tamper)
		}
	case AssertCapsuleCount:
		if a.Actor == "" {
			return fmt.Errorf("assertions[%d]: actor is required for capsule_count", index)
		}
		if err := requireCount(index, a); err != nil {
			return err
		}
	case AssertClockOrder:
		if len(a.Steps) < 2 {
			return fmt.Errorf("assertions[%d]: clock_order needs at least two steps", index)
		}
		for _, name := range a.Steps {
			if !steps[name] {
				return fmt.Errorf("assertions[%d]: step %q is not in the flow", index, name)
			}
		}
	case AssertPendingCount, AssertEvidenceCount:
		if err := requireCount(index, a); err != nil {
			return err
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func requireCount(index int, a *Assertion) error {
	if a.Count == nil {
		return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
	}
	if *a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
	}
	return nil
}
