// Package canon normalizes external requests and responses into byte-stable
// canonical forms before they are hashed.
//
// Guarantees:
//   - map-like structures serialize with keys in RFC 8785 order
//   - header names are lowercased and sorted
//   - response digests are deterministic projections: field order, whitespace
//     and capitalization of non-semantic text never change a digest
//
// Every failure to normalize is reported as a *MalformedInputError.
package canon
