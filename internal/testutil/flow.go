package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/nowhere/internal/ir"
)

// ErrTransient is the failure a Responder injects for its first calls.
var ErrTransient = errors.New("testutil: transient collaborator failure")

// FixedKeyGenerator returns the same correlation key every time.
//
// The same scenario run twice with the same key produces byte-identical
// capsules.
//
// Thread-safety: FixedKeyGenerator is stateless and safe for concurrent use.
type FixedKeyGenerator struct {
	key string
}

// NewFixedKeyGenerator creates a generator for key. If key is empty,
// Generate returns "test-corr-default".
func NewFixedKeyGenerator(key string) *FixedKeyGenerator {
	if key == "" {
		key = "test-corr-default"
	}
	return &FixedKeyGenerator{key: key}
}

// Generate returns the fixed key.
func (g *FixedKeyGenerator) Generate() string {
	return g.key
}

// Responder is a scripted collaborator. It returns its payloads in order and
// repeats the last one once they run out.
type Responder struct {
	mu       sync.Mutex
	payloads []ir.RawPayload
	failures int
	calls    int
	requests []ir.CanonicalRequest
}

// NewResponder creates a Responder. With no payloads it answers 200 with an
// empty body.
func NewResponder(payloads ...ir.RawPayload) *Responder {
	if len(payloads) == 0 {
		payloads = []ir.RawPayload{{Status: 200}}
	}
	return &Responder{payloads: payloads}
}

// FailFirst makes the first n calls fail with ErrTransient.
func (r *Responder) FailFirst(n int) *Responder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
	return r
}

// Invoke returns the next scripted payload.
func (r *Responder) Invoke(ctx context.Context, req ir.CanonicalRequest) (ir.RawPayload, error) {
	if err := ctx.Err(); err != nil {
		return ir.RawPayload{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	r.requests = append(r.requests, req)
	if r.failures > 0 {
		r.failures--
		return ir.RawPayload{}, ErrTransient
	}
	p := r.payloads[0]
	if len(r.payloads) > 1 {
		r.payloads = r.payloads[1:]
	}
	return p, nil
}

// Calls returns how many times Invoke ran.
func (r *Responder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Requests returns the canonical requests Invoke received.
func (r *Responder) Requests() []ir.CanonicalRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.CanonicalRequest(nil), r.requests...)
}

// Gate is a collaborator that blocks inside Invoke until released, so tests
// can act while a step is mid-flight.
type Gate struct {
	payload ir.RawPayload
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewGate creates a Gate answering payload once released.
func NewGate(payload ir.RawPayload) *Gate {
	return &Gate{
		payload: payload,
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

// Entered signals each time a call reaches the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets every pending and future call through.
func (g *Gate) Release() { g.once.Do(func() { close(g.release) }) }

// Invoke blocks until Release or ctx is done.
func (g *Gate) Invoke(ctx context.Context, _ ir.CanonicalRequest) (ir.RawPayload, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return g.payload, nil
	case <-ctx.Done():
		return ir.RawPayload{}, ctx.Err()
	}
}

// SearchResult is one entry of a SearchPayload.
type SearchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// SearchPayload builds a 200 JSON payload in the web-search shape.
func SearchPayload(results ...SearchResult) ir.RawPayload {
	if results == nil {
		results = []SearchResult{}
	}
	body, err := json.Marshal(map[string]any{"web": map[string]any{"results": results}})
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal search payload: %v", err))
	}
	return ir.RawPayload{
		Status:  200,
		Headers: []ir.Header{{Name: "Content-Type", Value: "application/json"}},
		Body:    body,
	}
}
