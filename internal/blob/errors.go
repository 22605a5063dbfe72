package blob

import (
	"errors"
	"fmt"

	"github.com/roach88/nowhere/internal/ir"
)

// BlobMissingError reports a Read of a ref that was never committed (or was
// lost).
type BlobMissingError struct {
	Ref ir.BlobRef
}

func (e *BlobMissingError) Error() string {
	return fmt.Sprintf("blob %s: missing", e.Ref)
}

// IntegrityError reports stored bytes that no longer hash to their key.
type IntegrityError struct {
	Ref    ir.BlobRef
	Actual ir.BlobRef
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("blob %s: integrity check failed (content hashes to %s)", e.Ref, e.Actual)
}

// IsMissing returns true if err is (or wraps) a BlobMissingError.
func IsMissing(err error) bool {
	var me *BlobMissingError
	return errors.As(err, &me)
}

// IsIntegrity returns true if err is (or wraps) an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
