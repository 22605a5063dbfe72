// Package ir provides the canonical value model and capsule record types for
// the provenance core.
//
// This package contains types, canonical JSON encoding and hashing only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// the capsule wire format in one place with no circular dependencies.
//
// Key design constraints:
//   - NO float types in hashed values - numbers are int64, decimals are strings
//   - All JSON tags use snake_case
//   - Logical clocks only, never wall-clock timestamps, in hashed fields
//   - Every content-addressed identity goes through MarshalCanonical + SHA-256
package ir
