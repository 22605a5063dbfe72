// Package blob is the content-addressed store for raw external payloads.
//
// A blob is keyed by the plain SHA-256 of its bytes (ir.ContentHash). Commit
// is idempotent, and Read re-hashes what it returns: a blob whose stored bytes
// no longer match its key is reported as an *IntegrityError, never returned.
package blob
