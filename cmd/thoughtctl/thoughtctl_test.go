package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/app"
	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/generation"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/pkg/config"
)

// testBuilder keeps the local store in a temp file so state survives
// between command runs.
func testBuilder(t *testing.T) builder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "local.db")
	return func() (*app.App, *zap.Logger, error) {
		cfg := &config.Config{
			Local:     config.LocalConfig{Path: path},
			Governor:  config.GovernorConfig{ReadTimeout: time.Second, WriteTimeout: time.Second, StatsTimeout: time.Second, Linger: time.Second},
			RateLimit: config.RateLimitConfig{Quota: 5, Window: time.Minute},
			Realtime:  config.RealtimeConfig{FeedWindow: 20, HeartbeatInterval: 30 * time.Second, PresenceTTL: 90 * time.Second},
		}
		a, err := app.Build(cfg, zap.NewNop())
		return a, zap.NewNop(), err
	}
}

func run(t *testing.T, b builder, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(b)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateListFavorite(t *testing.T) {
	b := testBuilder(t)

	out, err := run(t, b, "generate", "--topic", "owls", "--mood", "humorous", "--json")
	require.NoError(t, err)
	var res generation.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, res.Persisted)
	assert.Contains(t, res.Thought.Tags, "owls")

	out, err = run(t, b, "list", "--json")
	require.NoError(t, err)
	var list []models.Thought
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, res.Thought.ID, list[0].ID)

	_, err = run(t, b, "favorites", "add", res.Thought.ID.String())
	require.NoError(t, err)

	out, err = run(t, b, "stats", "--json")
	require.NoError(t, err)
	var stats models.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 1, stats.TotalThoughts)
	assert.EqualValues(t, 1, stats.TotalFavorites)

	out, err = run(t, b, "favorites")
	require.NoError(t, err)
	assert.Contains(t, out, "Favorites (1)")
}

func TestMigrateNeedsUserAndRemote(t *testing.T) {
	b := testBuilder(t)

	_, err := run(t, b, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")

	_, err = run(t, b, "migrate", "--user", "u1")
	assert.ErrorIs(t, err, apperr.ErrRemoteNotConfigured)
}

func TestFavoriteUnknownThought(t *testing.T) {
	_, err := run(t, testBuilder(t), "favorites", "add", "1760864400000-deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in your recent history")
}

func TestRenderSync(t *testing.T) {
	s := newStyles()
	assert.Contains(t, renderSync(apperr.SyncCounts{ThoughtsMigrated: 3}, true, s), "3 migrated")
	assert.Contains(t, renderSync(apperr.SyncCounts{FavoritesSkipped: 1}, false, s), "stay local")
}
