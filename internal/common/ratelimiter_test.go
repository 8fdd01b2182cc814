package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter([]Restriction{{Requests: 3, Duration: time.Hour}}, nil)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestRateLimiter_IgnoresInvalidRestrictions(t *testing.T) {
	rl := NewRateLimiter([]Restriction{{Requests: 0, Duration: time.Second}, {Requests: 5, Duration: 0}}, nil)

	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow())
	}
}

func TestRateLimiter_AllowDoesNotConsumeOnRejection(t *testing.T) {
	rl := NewRateLimiter([]Restriction{
		{Requests: 10, Duration: time.Hour},
		{Requests: 1, Duration: time.Hour},
	}, nil)

	assert.True(t, rl.Allow())
	// The second restriction rejects, the first must keep its tokens
	for i := 0; i < 5; i++ {
		assert.False(t, rl.Allow())
	}
	assert.InDelta(t, 9, rl.limiters[0].Tokens(), 0.01)
}

func TestRateLimiter_Cooldown(t *testing.T) {
	rl := NewRateLimiter(nil, nil)
	rl.ReceivedRateLimit(time.Hour)

	assert.False(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter([]Restriction{{Requests: 1, Duration: time.Hour}}, nil)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}
