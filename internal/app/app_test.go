package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtforge/thoughtsync/internal/generation"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/realtime"
	"github.com/thoughtforge/thoughtsync/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Local:     config.LocalConfig{Path: ":memory:"},
		Governor:  config.GovernorConfig{ReadTimeout: time.Second, WriteTimeout: time.Second, StatsTimeout: time.Second, Linger: time.Second},
		RateLimit: config.RateLimitConfig{Quota: 5, Window: time.Minute},
		Realtime: config.RealtimeConfig{
			FeedWindow:        20,
			HeartbeatInterval: 30 * time.Second,
			PresenceTTL:       90 * time.Second,
			ConnectingTimeout: 15 * time.Second,
		},
	}
}

func TestBuildLocalOnly(t *testing.T) {
	a, err := Build(testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Facade.Configured())
	assert.IsType(t, &realtime.Hub{}, a.Broker)
	assert.IsType(t, &realtime.MemoryPresence{}, a.Presence)

	res, err := a.Generator.Generate(context.Background(), generation.Request{Topic: "fog", Mood: models.MoodHumorous}, generation.Caller{})
	require.NoError(t, err)
	assert.True(t, res.Persisted)

	stored, err := a.Store.Thoughts()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, res.Thought.ID, stored[0].ID)

	deps := a.APIDeps()
	assert.Contains(t, deps.Health, "local")
	assert.NotContains(t, deps.Health, "database")
	require.NoError(t, deps.Health["local"](context.Background()))
}

func TestBuildWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis = config.RedisConfig{URL: "redis://" + mr.Addr(), Enabled: true, Namespace: "test"}

	a, err := Build(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &realtime.RedisBroker{}, a.Broker)
	assert.IsType(t, &realtime.RedisPresence{}, a.Presence)
	require.NoError(t, a.APIDeps().Health["redis"](context.Background()))
}
