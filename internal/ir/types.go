package ir

import (
	"slices"
	"strconv"
)

// CapsuleRef is the content-addressed identity of a sealed capsule
// (hex SHA-256, see CapsuleHash).
type CapsuleRef string

// BlobRef is the content hash of a stored blob (hex SHA-256 of the exact
// stored bytes). Invariant: ContentHash(content) == ref.
type BlobRef string

// CanonicalRequest is the normalized input of one actor invocation.
// Params is already canonical (sorted keys, normalized strings); identical
// logical input always serializes identically.
type CanonicalRequest struct {
	ActorID        string   `json:"actor_id"`
	Kind           string   `json:"kind"`
	Params         IRObject `json:"params"`
	CorrelationKey string   `json:"correlation_key"`
	Seed           uint64   `json:"seed,string"`
}

// ToIR returns the canonical object used for hashing and storage.
// Seed is encoded as a decimal string: uint64 does not fit the int64 IR range.
func (r CanonicalRequest) ToIR() IRObject {
	params := r.Params
	if params == nil {
		params = IRObject{}
	}
	return IRObject{
		"actor_id":        IRString(r.ActorID),
		"kind":            IRString(r.Kind),
		"params":          params,
		"correlation_key": IRString(r.CorrelationKey),
		"seed":            IRString(strconv.FormatUint(r.Seed, 10)),
	}
}

// Header is a single canonical header (lowercased name, trimmed value).
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RawPayload is the literal external response. It only lives in memory
// until committed to the blob store; afterwards it is referenced by hash.
type RawPayload struct {
	Status  int      `json:"status"`
	Headers []Header `json:"headers"`
	Body    []byte   `json:"body"`
}

// DigestItem is the derivation-relevant projection of one result item.
type DigestItem struct {
	IDHash      string `json:"id_hash"`
	ContentHash string `json:"content_hash"`
	Rank        int64  `json:"rank"`
	Category    string `json:"category"`
}

// ResponseDigest is the formatting-insensitive extraction of a RawPayload.
type ResponseDigest struct {
	Status int64        `json:"status"`
	Items  []DigestItem `json:"items"`
}

// ToIR returns the canonical object used for hashing and storage.
func (d ResponseDigest) ToIR() IRObject {
	items := make(IRArray, len(d.Items))
	for i, it := range d.Items {
		items[i] = IRObject{
			"id_hash":      IRString(it.IDHash),
			"content_hash": IRString(it.ContentHash),
			"rank":         IRInt(it.Rank),
			"category":     IRString(it.Category),
		}
	}
	return IRObject{
		"status": IRInt(d.Status),
		"items":  items,
	}
}

// Effect is a deferred, idempotent state change derived from a sealed
// capsule's digests. Sinks apply effects upsert-by-(Kind, Key).
type Effect struct {
	Kind    string   `json:"kind"`
	Key     string   `json:"key"`
	Payload IRObject `json:"payload"`
}

// ToIR returns the canonical object used for hashing and storage.
func (e Effect) ToIR() IRObject {
	payload := e.Payload
	if payload == nil {
		payload = IRObject{}
	}
	return IRObject{
		"kind":    IRString(e.Kind),
		"key":     IRString(e.Key),
		"payload": payload,
	}
}

// Clone returns a deep copy of the effect.
func (e Effect) Clone() Effect {
	return Effect{Kind: e.Kind, Key: e.Key, Payload: e.Payload.Clone()}
}

// Telemetry is informational and never part of the capsule hash.
type Telemetry struct {
	LatencyMillis int64  `json:"latency_ms"`
	Attempts      int    `json:"attempts"`
	Mode          string `json:"mode"` // "live" or "replay"
}

// Capsule is the immutable, hash-identified record of one actor invocation.
//
// Hash covers ActorID, InvocationID, Parents, Clock, RequestHash,
// ResponseHash, Effects and BlobRef. Request and Digest are carried so replay
// can recompute their hashes; they are bound into Hash through RequestHash and
// ResponseHash. Telemetry is excluded.
type Capsule struct {
	ActorID      string           `json:"actor_id"`
	InvocationID string           `json:"invocation_id"`
	Parents      []CapsuleRef     `json:"parents"`
	Clock        int64            `json:"clock"`
	Request      CanonicalRequest `json:"request"`
	RequestHash  string           `json:"request_hash"`
	Digest       ResponseDigest   `json:"digest"`
	ResponseHash string           `json:"response_hash"`
	Effects      []Effect         `json:"effects"`
	BlobRef      BlobRef          `json:"blob_ref,omitempty"`
	Telemetry    Telemetry        `json:"telemetry"`
	Hash         CapsuleRef       `json:"hash"`
}

// SealIR returns the structural fields covered by Hash.
func (c Capsule) SealIR() IRObject {
	parents := make(IRArray, len(c.Parents))
	for i, p := range c.Parents {
		parents[i] = IRString(p)
	}
	effects := make(IRArray, len(c.Effects))
	for i, e := range c.Effects {
		effects[i] = e.ToIR()
	}
	return IRObject{
		"actor_id":      IRString(c.ActorID),
		"invocation_id": IRString(c.InvocationID),
		"parents":       parents,
		"clock":         IRInt(c.Clock),
		"request_hash":  IRString(c.RequestHash),
		"response_hash": IRString(c.ResponseHash),
		"effects":       effects,
		"blob_ref":      IRString(c.BlobRef),
	}
}

// Clone returns a deep copy so stored capsules cannot be mutated through
// values handed to callers.
func (c Capsule) Clone() Capsule {
	out := c
	out.Parents = slices.Clone(c.Parents)
	out.Request.Params = c.Request.Params.Clone()
	out.Digest.Items = slices.Clone(c.Digest.Items)
	if c.Effects != nil {
		out.Effects = make([]Effect, len(c.Effects))
		for i, e := range c.Effects {
			out.Effects[i] = e.Clone()
		}
	}
	return out
}

// NormalizeParents returns the parent set sorted and de-duplicated, the only
// form in which parents are hashed or stored.
func NormalizeParents(parents []CapsuleRef) []CapsuleRef {
	out := slices.Clone(parents)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []CapsuleRef{}
	}
	return out
}
