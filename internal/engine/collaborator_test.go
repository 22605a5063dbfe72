package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/testutil"
)

func TestRateLimited_ExhaustedWithoutCallingThrough(t *testing.T) {
	next := testutil.NewResponder()
	rl := NewRateLimited("a", next, RateLimit{QPS: 0.001, Burst: 1, MaxWait: 10 * time.Millisecond})
	ctx := context.Background()

	_, err := rl.Invoke(ctx, ir.CanonicalRequest{})
	require.NoError(t, err)

	_, err = rl.Invoke(ctx, ir.CanonicalRequest{})
	require.Error(t, err)
	assert.True(t, IsRateLimitExhausted(err))
	assert.Equal(t, 1, next.Calls())
}

func TestRateLimited_CallerCancellation(t *testing.T) {
	rl := NewRateLimited("a", testutil.NewResponder(), RateLimit{QPS: 0.001, Burst: 1})
	_, err := rl.Invoke(context.Background(), ir.CanonicalRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rl.Invoke(ctx, ir.CanonicalRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRateLimitExhausted(err))
}

func TestRateLimited_DisabledNeverWaits(t *testing.T) {
	next := testutil.NewResponder()
	rl := NewRateLimited("a", next, RateLimit{})
	for range 100 {
		_, err := rl.Invoke(context.Background(), ir.CanonicalRequest{})
		require.NoError(t, err)
	}
	assert.Equal(t, 100, next.Calls())
}
