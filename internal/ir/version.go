package ir

// Version constants for the capsule format and engine.
const (
	// FormatVersion is the capsule wire/storage format version.
	// Bumping it implies new hash domains (see hash.go).
	FormatVersion = "1"

	// EngineVersion is the provenance engine version.
	EngineVersion = "0.1.0"
)
