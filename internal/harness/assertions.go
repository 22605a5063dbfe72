package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/nowhere/internal/engine"
	"github.com/roach88/nowhere/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s clock=%d\n", event.Seq, event.Step, event.Actor, event.Outcome, event.Clock)
	}
	return buf.String()
}

// tamperer is a blob store whose bytes can be corrupted in place.
type tamperer interface {
	Tamper(ref ir.BlobRef, fn func([]byte) []byte) bool
	Delete(ref ir.BlobRef)
}

// counter is a sink that can report how many rows it holds.
type counter interface {
	Count(ctx context.Context) (int, error)
}

func (h *harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertReplay:
		return h.assertReplay(ctx, a)
	case AssertCapsuleCount:
		return h.assertCapsuleCount(ctx, a)
	case AssertClockOrder:
		return h.assertClockOrder(a)
	case AssertPendingCount:
		return h.assertPendingCount(ctx, a)
	case AssertEvidenceCount:
		return h.assertEvidenceCount(ctx, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertReplay verifies a step's capsule, tampering with its blob first if
// asked. Tampering is permanent for the rest of the scenario.
func (h *harness) assertReplay(ctx context.Context, a Assertion) error {
	ref, ok := h.refs[a.Step]
	if !ok {
		return fmt.Errorf("step %q recorded no capsule", a.Step)
	}
	mode, err := engine.ParseReplayMode(a.Mode)
	if err != nil {
		return err
	}
	if a.Tamper != "" {
		if err := h.tamper(ctx, ref, a.Tamper); err != nil {
			return err
		}
	}

	report, err := h.verify.VerifyCapsule(ctx, ref, mode)
	if err != nil {
		return fmt.Errorf("replay %s: %w", a.Step, err)
	}
	h.results.Replays = append(h.results.Replays, ReplayEvent{Step: a.Step, Tamper: a.Tamper, Report: report})
	h.logger.Debug("harness.replay", "step", a.Step, "mode", mode, "state", report.State, "reason", report.Reason)

	if string(report.State) != a.State || (a.Reason != "" && string(report.Reason) != a.Reason) {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: fmt.Sprintf("%s %s", a.State, a.Reason),
			Actual:   fmt.Sprintf("%s %s %v", report.State, report.Reason, report.Fields),
			Trace:    h.results.Trace,
		}
	}
	return nil
}

func (h *harness) tamper(ctx context.Context, ref ir.CapsuleRef, how string) error {
	t, ok := h.target.Blobs.(tamperer)
	if !ok {
		return fmt.Errorf("blob store %T does not support tampering", h.target.Blobs)
	}
	c, ok, err := h.target.Ledger.Get(ctx, ref)
	if err != nil {
		return err
	}
	if !ok || c.BlobRef == "" {
		return fmt.Errorf("capsule %s has no blob to tamper with", ref)
	}

	switch how {
	case TamperDelete:
		t.Delete(c.BlobRef)
		return nil
	case TamperFlip:
		ok = t.Tamper(c.BlobRef, func(b []byte) []byte {
			if len(b) > 0 {
				b[len(b)/2] ^= 0x01
			}
			return b
		})
	case TamperAppend:
		ok = t.Tamper(c.BlobRef, func(b []byte) []byte {
			return append(b, '\n')
		})
	}
	if !ok {
		return fmt.Errorf("blob %s is not stored", c.BlobRef)
	}
	return nil
}

func (h *harness) assertCapsuleCount(ctx context.Context, a Assertion) error {
	n := 0
	for _, err := range h.target.Ledger.ListByActor(ctx, a.Actor) {
		if err != nil {
			return err
		}
		n++
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertCapsuleCount,
			Expected: fmt.Sprintf("%d capsules for %s", *a.Count, a.Actor),
			Actual:   fmt.Sprintf("%d capsules", n),
			Trace:    h.results.Trace,
		}
	}
	return nil
}

func (h *harness) assertClockOrder(a Assertion) error {
	var prev int64
	for i, name := range a.Steps {
		e, ok := h.results.Event(name)
		if !ok || !e.Recorded() {
			return fmt.Errorf("step %q recorded no capsule", name)
		}
		if i > 0 && e.Clock <= prev {
			return &AssertionError{
				Type:     AssertClockOrder,
				Expected: fmt.Sprintf("clocks increasing along %v", a.Steps),
				Actual:   fmt.Sprintf("%s has clock %d after %d", name, e.Clock, prev),
				Trace:    h.results.Trace,
			}
		}
		prev = e.Clock
	}
	return nil
}

func (h *harness) assertPendingCount(ctx context.Context, a Assertion) error {
	pending, err := h.target.Ledger.PendingEffects(ctx)
	if err != nil {
		return err
	}
	if len(pending) != *a.Count {
		return &AssertionError{
			Type:     AssertPendingCount,
			Expected: fmt.Sprintf("%d pending capsules", *a.Count),
			Actual:   fmt.Sprintf("%d pending capsules", len(pending)),
			Trace:    h.results.Trace,
		}
	}
	return nil
}

func (h *harness) assertEvidenceCount(ctx context.Context, a Assertion) error {
	c, ok := h.target.Sink.(counter)
	if !ok {
		return fmt.Errorf("sink %T cannot count its rows", h.target.Sink)
	}
	n, err := c.Count(ctx)
	if err != nil {
		return err
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertEvidenceCount,
			Expected: fmt.Sprintf("%d evidence rows", *a.Count),
			Actual:   fmt.Sprintf("%d evidence rows", n),
			Trace:    h.results.Trace,
		}
	}
	return nil
}
