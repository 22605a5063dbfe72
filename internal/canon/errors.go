package canon

import (
	"errors"
	"fmt"
)

// MalformedInputError reports input whose structure cannot be normalized
// (non-UTF-8 text, unparsable bodies, unsupported value types).
type MalformedInputError struct {
	// Field locates the offending value ("params.query", "body", ...).
	Field string

	// Reason is a short human-readable description.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *MalformedInputError) Error() string {
	msg := fmt.Sprintf("malformed input: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// IsMalformed returns true if err is (or wraps) a MalformedInputError.
func IsMalformed(err error) bool {
	var me *MalformedInputError
	return errors.As(err, &me)
}

func malformed(field, reason string, err error) *MalformedInputError {
	return &MalformedInputError{Field: field, Reason: reason, Err: err}
}
