package engine

import (
	"github.com/google/uuid"
)

// CorrelationKeyGenerator supplies correlation keys for requests whose caller
// did not provide one. UUIDv7Generator is the default; tests pin a fixed key.
type CorrelationKeyGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 correlation keys.
//
// UUIDv7 embeds a timestamp in the most significant bits, making keys
// sortable by creation time, which helps when reading traces.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
