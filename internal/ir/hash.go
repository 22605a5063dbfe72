package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRequest    = "nowhere/request/v1"
	DomainResponse   = "nowhere/response/v1"
	DomainInvocation = "nowhere/invocation/v1"
	DomainCapsule    = "nowhere/capsule/v1"
	DomainText       = "nowhere/text/v1"
)

// ErrIncompleteSeal is returned by CapsuleHash when a required hashed field
// is empty.
var ErrIncompleteSeal = errors.New("capsule is missing request_hash or response_hash")

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL for security
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the blob key for raw bytes: plain SHA-256, no domain,
// so anyone holding the bytes can check the key independently.
func ContentHash(data []byte) BlobRef {
	sum := sha256.Sum256(data)
	return BlobRef(hex.EncodeToString(sum[:]))
}

// TextHash hashes an already-normalized string (digest identifiers and
// content fields).
func TextHash(s string) string {
	return hashWithDomain(DomainText, []byte(s))
}

// RequestHash computes the content-addressed hash of a canonical request.
func RequestHash(req CanonicalRequest) (string, error) {
	canonical, err := MarshalCanonical(req.ToIR())
	if err != nil {
		return "", fmt.Errorf("RequestHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// ResponseHash computes the content-addressed hash of a response digest.
func ResponseHash(d ResponseDigest) (string, error) {
	canonical, err := MarshalCanonical(d.ToIR())
	if err != nil {
		return "", fmt.Errorf("ResponseHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainResponse, canonical), nil
}

// InvocationID computes the content-addressed ID of one invocation.
// The ID is stable across restarts and replays given the same inputs, which
// is what makes two independent runs seal identical capsules.
func InvocationID(actorID, requestHash string, clock int64) (string, error) {
	obj := IRObject{
		"actor_id":     IRString(actorID),
		"request_hash": IRString(requestHash),
		"clock":        IRInt(clock),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("InvocationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInvocation, canonical), nil
}

// CapsuleHash computes the seal of a capsule over its structural fields.
// The Hash and Telemetry fields of c are ignored.
func CapsuleHash(c Capsule) (CapsuleRef, error) {
	if c.RequestHash == "" || c.ResponseHash == "" {
		return "", ErrIncompleteSeal
	}
	canonical, err := MarshalCanonical(c.SealIR())
	if err != nil {
		return "", fmt.Errorf("CapsuleHash: failed to marshal: %w", err)
	}
	return CapsuleRef(hashWithDomain(DomainCapsule, canonical)), nil
}

// MarshalCapsule encodes the full capsule (including telemetry) in canonical
// JSON. This is the persistence and export encoding.
func MarshalCapsule(c Capsule) ([]byte, error) {
	obj := c.SealIR()
	obj["hash"] = IRString(c.Hash)
	obj["request"] = c.Request.ToIR()
	obj["digest"] = c.Digest.ToIR()
	obj["telemetry"] = IRObject{
		"latency_ms": IRInt(c.Telemetry.LatencyMillis),
		"attempts":   IRInt(c.Telemetry.Attempts),
		"mode":       IRString(c.Telemetry.Mode),
	}
	return MarshalCanonical(obj)
}

// UnmarshalCapsule decodes the MarshalCapsule encoding.
func UnmarshalCapsule(data []byte) (Capsule, error) {
	var c Capsule
	if err := json.Unmarshal(data, &c); err != nil {
		return Capsule{}, fmt.Errorf("unmarshal capsule: %w", err)
	}
	c.Parents = NormalizeParents(c.Parents)
	return c, nil
}
