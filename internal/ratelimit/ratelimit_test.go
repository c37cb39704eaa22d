package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/internal/localstore"
	"github.com/thoughtforge/thoughtsync/pkg/config"
)

var defaultLimits = config.RateLimitConfig{Quota: 5, Window: time.Minute}

func TestWindowBoundary(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	limiter := New(localstore.New(localstore.NewMemoryKV(), nil), clk, defaultLimits, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := limiter.Check(ctx)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i+1)
		clk.Advance(5 * time.Second)
	}

	res, err := limiter.Check(ctx)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.True(t, start.Add(time.Minute).Equal(res.ResetAt), "reset at %v", res.ResetAt)

	clk.Advance(res.ResetAt.Sub(clk.Now()) + time.Millisecond)
	res, err = limiter.Check(ctx)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a new window starts after reset")

	remaining, err := limiter.Remaining()
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestWindowSurvivesReload(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	kv := localstore.NewMemoryKV()
	ctx := context.Background()

	first := New(localstore.New(kv, nil), clk, defaultLimits, nil)
	for i := 0; i < 5; i++ {
		_, err := first.Check(ctx)
		require.NoError(t, err)
	}

	reloaded := New(localstore.New(kv, nil), clk, defaultLimits, nil)
	res, err := reloaded.Check(ctx)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestCorruptedWindowStartsFresh(t *testing.T) {
	kv := localstore.NewMemoryKV()
	require.NoError(t, kv.SetItem(localstore.KeyRateLimit, "not json"))
	limiter := New(localstore.New(kv, nil), clock.NewFake(time.Unix(0, 0)), defaultLimits, nil)

	res, err := limiter.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
