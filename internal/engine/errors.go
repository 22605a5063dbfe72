package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/nowhere/internal/ir"
)

var (
	// ErrCancelled is returned by any operation attempted after the
	// scheduler's cancellation signal fired.
	ErrCancelled = errors.New("engine: cancelled")

	// ErrTicketConsumed is returned when a ticket is sealed twice.
	ErrTicketConsumed = errors.New("engine: ticket already consumed")

	// ErrNotSealed is returned when effects are committed for a capsule the
	// ledger does not hold, or with effects other than the sealed ones.
	ErrNotSealed = errors.New("engine: capsule not sealed")

	// ErrCapsuleFlagged is returned when effects are committed for a capsule
	// replay found divergent.
	ErrCapsuleFlagged = errors.New("engine: capsule flagged as divergent")

	// ErrUnknownKind is returned when no projector is registered for a
	// request kind.
	ErrUnknownKind = errors.New("engine: unknown request kind")

	// ErrCapsuleNotFound is returned by replay when the requested capsule is
	// not in the ledger.
	ErrCapsuleNotFound = errors.New("engine: capsule not found")
)

// RuntimeError represents a failure inside one step of the pipeline.
//
// Runtime errors include:
//   - Rate limit exhausted: the actor's token bucket could not admit the call
//   - External call failure: the collaborator returned an error
//   - Incomplete capsule: a hashed field could not be computed
//   - Effect apply failure: the sink kept failing after bounded retries
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// ActorID identifies the actor whose step failed.
	ActorID string

	// Capsule identifies the affected capsule (effect failures).
	Capsule ir.CapsuleRef

	// Attempts is how many times the failing operation was tried.
	Attempts int

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeRateLimitExhausted indicates the actor's rate limit rejected the call.
	ErrCodeRateLimitExhausted RuntimeErrorCode = "RATE_LIMIT_EXHAUSTED"

	// ErrCodeExternalCall indicates the collaborator call failed.
	ErrCodeExternalCall RuntimeErrorCode = "EXTERNAL_CALL_FAILURE"

	// ErrCodeIncompleteCapsule indicates a capsule could not be sealed.
	ErrCodeIncompleteCapsule RuntimeErrorCode = "INCOMPLETE_CAPSULE"

	// ErrCodeEffectApply indicates effects could not be applied.
	ErrCodeEffectApply RuntimeErrorCode = "EFFECT_APPLY_FAILURE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Capsule != "":
		msg += fmt.Sprintf(" (capsule=%s, attempts=%d)", e.Capsule, e.Attempts)
	case e.ActorID != "":
		msg += fmt.Sprintf(" (actor=%s)", e.ActorID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsRateLimitExhausted returns true if err is a rate limit error.
// Uses errors.As to handle wrapped errors.
func IsRateLimitExhausted(err error) bool {
	return hasCode(err, ErrCodeRateLimitExhausted)
}

// IsExternalCallFailure returns true if err is an external call error.
func IsExternalCallFailure(err error) bool {
	return hasCode(err, ErrCodeExternalCall)
}

// IsIncompleteCapsule returns true if err is an incomplete capsule error.
func IsIncompleteCapsule(err error) bool {
	return hasCode(err, ErrCodeIncompleteCapsule)
}

// IsEffectApplyFailure returns true if err is an effect apply error.
func IsEffectApplyFailure(err error) bool {
	return hasCode(err, ErrCodeEffectApply)
}

// NewRateLimitError creates a RuntimeError for a rejected call.
func NewRateLimitError(actorID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRateLimitExhausted,
		Message: "rate limit exhausted",
		ActorID: actorID,
		Err:     err,
	}
}

// NewExternalCallError creates a RuntimeError for a failed collaborator call.
func NewExternalCallError(actorID string, attempts int, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeExternalCall,
		Message:  fmt.Sprintf("external call failed after %d attempt(s)", attempts),
		ActorID:  actorID,
		Attempts: attempts,
		Err:      err,
	}
}

// NewIncompleteCapsuleError creates a RuntimeError for a capsule that
// cannot be sealed.
func NewIncompleteCapsuleError(actorID, reason string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeIncompleteCapsule,
		Message: reason,
		ActorID: actorID,
		Err:     err,
	}
}

// NewEffectApplyError creates a RuntimeError for effects that could not be
// applied.
func NewEffectApplyError(ref ir.CapsuleRef, attempts int, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeEffectApply,
		Message:  "effect apply failed",
		Capsule:  ref,
		Attempts: attempts,
		Err:      err,
	}
}
