package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/nowhere/internal/ir"
)

// Collaborator performs the external call for one request. Live HTTP,
// search and social clients implement it outside this module.
type Collaborator interface {
	Invoke(ctx context.Context, req ir.CanonicalRequest) (ir.RawPayload, error)
}

// CollaboratorFunc adapts a function to the Collaborator interface.
type CollaboratorFunc func(ctx context.Context, req ir.CanonicalRequest) (ir.RawPayload, error)

// Invoke implements Collaborator.
func (f CollaboratorFunc) Invoke(ctx context.Context, req ir.CanonicalRequest) (ir.RawPayload, error) {
	return f(ctx, req)
}

// RateLimit configures a per-actor token bucket.
type RateLimit struct {
	// QPS is the sustained rate. Zero or less disables limiting.
	QPS float64

	// Burst is the bucket size (minimum 1).
	Burst int

	// MaxWait bounds how long a call may wait for a token. Zero means the
	// call waits as long as its context allows.
	MaxWait time.Duration
}

// RateLimited wraps a Collaborator with a token bucket.
//
// A call that cannot get a token within MaxWait (or before its context
// deadline) fails with a RATE_LIMIT_EXHAUSTED RuntimeError without reaching
// the wrapped collaborator. Cancellation of the caller's context is returned
// as-is.
type RateLimited struct {
	next    Collaborator
	actorID string
	limiter *rate.Limiter
	maxWait time.Duration
}

// NewRateLimited wraps next. A RateLimit with QPS <= 0 returns a wrapper
// that never waits.
func NewRateLimited(actorID string, next Collaborator, rl RateLimit) *RateLimited {
	limit := rate.Inf
	if rl.QPS > 0 {
		limit = rate.Limit(rl.QPS)
	}
	return &RateLimited{
		next:    next,
		actorID: actorID,
		limiter: rate.NewLimiter(limit, max(rl.Burst, 1)),
		maxWait: rl.MaxWait,
	}
}

// Invoke implements Collaborator.
func (r *RateLimited) Invoke(ctx context.Context, req ir.CanonicalRequest) (ir.RawPayload, error) {
	waitCtx := ctx
	if r.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.maxWait)
		defer cancel()
	}
	if err := r.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ir.RawPayload{}, ctx.Err()
		}
		return ir.RawPayload{}, NewRateLimitError(r.actorID, err)
	}
	return r.next.Invoke(ctx, req)
}
