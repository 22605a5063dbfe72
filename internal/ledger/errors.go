package ledger

import (
	"errors"
	"fmt"

	"github.com/roach88/nowhere/internal/ir"
)

var (
	// ErrUnsortedParents is returned when a capsule's parent list is not in
	// normalized (sorted, de-duplicated) form.
	ErrUnsortedParents = errors.New("ledger: parents are not normalized")

	// ErrInvocationConflict is returned when a different capsule already
	// records the same invocation.
	ErrInvocationConflict = errors.New("ledger: invocation already recorded by a different capsule")

	// ErrUnknownCapsule is returned by journal operations on capsules that
	// were never appended.
	ErrUnknownCapsule = errors.New("ledger: unknown capsule")
)

// HashMismatchError reports a capsule whose recorded hash does not match
// the hash recomputed from its contents.
type HashMismatchError struct {
	Field    string
	Recorded string
	Computed string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("ledger: %s mismatch: recorded %s, computed %s", e.Field, e.Recorded, e.Computed)
}

// UnknownParentError reports a parent reference that is not in the ledger.
type UnknownParentError struct {
	Parent ir.CapsuleRef
}

func (e *UnknownParentError) Error() string {
	return fmt.Sprintf("ledger: unknown parent %s", e.Parent)
}

// ClockOrderError reports a capsule whose clock does not exceed a parent's.
type ClockOrderError struct {
	Clock       int64
	Parent      ir.CapsuleRef
	ParentClock int64
}

func (e *ClockOrderError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("ledger: clock %d is not positive", e.Clock)
	}
	return fmt.Sprintf("ledger: clock %d does not exceed parent %s clock %d", e.Clock, e.Parent, e.ParentClock)
}

// IsHashMismatch returns true if err is (or wraps) a HashMismatchError.
func IsHashMismatch(err error) bool {
	var he *HashMismatchError
	return errors.As(err, &he)
}

// IsUnknownParent returns true if err is (or wraps) an UnknownParentError.
func IsUnknownParent(err error) bool {
	var ue *UnknownParentError
	return errors.As(err, &ue)
}

// IsClockOrder returns true if err is (or wraps) a ClockOrderError.
func IsClockOrder(err error) bool {
	var ce *ClockOrderError
	return errors.As(err, &ce)
}
