package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/internal/governor"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/localstore"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/persistence"
	"github.com/thoughtforge/thoughtsync/internal/remote"
)

type fixture struct {
	clock   *clock.Fake
	kv      *localstore.MemoryKV
	store   *localstore.Store
	backend *remote.MemoryBackend
	gov     *governor.Governor
	facade  *persistence.Facade
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	kv := localstore.NewMemoryKV()
	store := localstore.New(kv, nil)
	gen := ids.NewGenerator(clk, nil)
	gov := governor.New(clk, governor.DefaultLinger, nil)
	backend := remote.NewMemoryBackend(clk)
	remoteRepo := persistence.NewRemoteRepository(backend, gov, governor.DefaultPolicy(), gen, clk, nil)

	return &fixture{
		clock:   clk,
		kv:      kv,
		store:   store,
		backend: backend,
		gov:     gov,
		facade:  persistence.NewFacade(persistence.NewLocalRepository(store, gen, clk, nil), remoteRepo, nil),
		engine:  New(store, remoteRepo, gov, nil),
	}
}

// saveLocal stores a thought while signed out and optionally favorites it.
func (f *fixture) saveLocal(t *testing.T, content string, favorite bool) models.Thought {
	t.Helper()
	ctx := context.Background()
	saved, err := f.facade.SaveThought(ctx, models.Thought{
		Content: content,
		Mood:    models.MoodScientific,
		Source:  models.SourceTemplate,
	}, "")
	require.NoError(t, err)
	require.True(t, saved.ID.IsLocal())
	if favorite {
		require.NoError(t, f.facade.AddFavorite(ctx, saved, ""))
	}
	f.clock.Advance(time.Millisecond)
	return saved
}

func (f *fixture) failContent(content string) {
	f.backend.FailWhen = func(op string, arg any) error {
		if t, ok := arg.(models.Thought); ok && op == "insert_thought" && t.Content == content {
			return apperr.Remote(op, apperr.CodeInternal, errors.New("rejected"))
		}
		return nil
	}
}

func TestIDStabilityAcrossSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local := f.saveLocal(t, "T", true)

	res, err := f.engine.MigrateLocalToRemote(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ThoughtsMigrated)
	assert.Equal(t, 1, res.FavoritesMigrated)

	thoughts, err := f.backend.ListThoughts(ctx, "u1", 0, 0)
	require.NoError(t, err)
	require.Len(t, thoughts, 1)
	favs, err := f.backend.ListFavorites(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, favs, 1)

	assert.True(t, thoughts[0].ID.IsCanonical())
	assert.Equal(t, thoughts[0].ID, favs[0].ThoughtID)
	assert.NotEqual(t, local.ID, favs[0].ThoughtID)

	for _, key := range []string{localstore.KeyThoughts, localstore.KeyFavorites} {
		_, found, err := f.kv.GetItem(key)
		require.NoError(t, err)
		assert.False(t, found, key)
	}
}

func TestSingleFailureLeavesLocalKeyUntouched(t *testing.T) {
	f := newFixture(t)
	f.saveLocal(t, "only", true)
	before, _, err := f.kv.GetItem(localstore.KeyThoughts)
	require.NoError(t, err)
	favsBefore, _, err := f.kv.GetItem(localstore.KeyFavorites)
	require.NoError(t, err)
	f.failContent("only")

	res, err := f.engine.MigrateLocalToRemote(context.Background(), "u1")
	var partial *apperr.PartialSyncError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 0, res.ThoughtsMigrated)
	assert.Equal(t, 1, res.ThoughtsFailed)
	assert.Equal(t, 1, res.FavoritesSkipped)

	after, found, err := f.kv.GetItem(localstore.KeyThoughts)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, before, after)
	favsAfter, _, err := f.kv.GetItem(localstore.KeyFavorites)
	require.NoError(t, err)
	assert.Equal(t, favsBefore, favsAfter)
}

func TestPartialSuccessKeepsOnlyUnmigrated(t *testing.T) {
	f := newFixture(t)
	f.saveLocal(t, "good", false)
	bad := f.saveLocal(t, "bad", false)
	f.failContent("bad")

	res, err := f.engine.MigrateLocalToRemote(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, 1, res.ThoughtsMigrated)
	assert.Equal(t, 1, res.ThoughtsFailed)

	left, err := f.store.Thoughts()
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, bad.ID, left[0].ID)

	f.backend.FailWhen = nil
	f.clock.Advance(governor.DefaultLinger)
	res, err = f.engine.MigrateLocalToRemote(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ThoughtsMigrated)

	remoteThoughts, err := f.backend.ListThoughts(context.Background(), "u1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, remoteThoughts, 2, "retry never double-migrates")
}

func TestFavoriteOfFailedThoughtIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.saveLocal(t, "good", true)
	bad := f.saveLocal(t, "bad", true)
	f.failContent("bad")

	res, err := f.engine.MigrateLocalToRemote(ctx, "u1")
	require.Error(t, err)
	assert.Equal(t, 1, res.FavoritesMigrated)
	assert.Equal(t, 1, res.FavoritesSkipped)

	favs, err := f.backend.ListFavorites(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.True(t, favs[0].ThoughtID.IsCanonical())

	localFavs, err := f.store.Favorites()
	require.NoError(t, err)
	require.Len(t, localFavs, 1)
	assert.Equal(t, bad.ID, localFavs[0].ThoughtID)
}

func TestFailedFavoriteMigratesOnRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local := f.saveLocal(t, "kept", true)
	f.backend.FailWhen = func(op string, _ any) error {
		if op == "insert_favorite" {
			return apperr.Remote(op, apperr.CodeUnavailable, errors.New("down"))
		}
		return nil
	}

	res, err := f.engine.MigrateLocalToRemote(ctx, "u1")
	var partial *apperr.PartialSyncError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, res.ThoughtsMigrated)
	assert.Equal(t, 1, res.FavoritesFailed)

	thoughts, err := f.backend.ListThoughts(ctx, "u1", 0, 0)
	require.NoError(t, err)
	require.Len(t, thoughts, 1)

	localThoughts, err := f.store.Thoughts()
	require.NoError(t, err)
	assert.Empty(t, localThoughts)
	localFavs, err := f.store.Favorites()
	require.NoError(t, err)
	require.Len(t, localFavs, 1, "the failed favorite stays local")
	assert.Equal(t, thoughts[0].ID, localFavs[0].ThoughtID, "and follows its migrated thought")
	assert.NotEqual(t, local.ID, localFavs[0].ThoughtID)

	f.backend.FailWhen = nil
	f.clock.Advance(governor.DefaultLinger)
	res, err = f.engine.MigrateLocalToRemote(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.FavoritesMigrated)
	assert.Zero(t, res.FavoritesSkipped)

	favs, err := f.backend.ListFavorites(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, thoughts[0].ID, favs[0].ThoughtID)

	thoughts, err = f.backend.ListThoughts(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, thoughts, 1, "the thought is not saved twice")
	_, found, err := f.kv.GetItem(localstore.KeyFavorites)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestThoughtsPhasePrecedesFavorites(t *testing.T) {
	f := newFixture(t)
	for _, c := range []string{"a", "b", "c"} {
		f.saveLocal(t, c, true)
	}

	var mu sync.Mutex
	var ops []string
	f.backend.FailWhen = func(op string, _ any) error {
		if op == "insert_thought" || op == "insert_favorite" {
			mu.Lock()
			ops = append(ops, op)
			mu.Unlock()
		}
		return nil
	}

	_, err := f.engine.MigrateLocalToRemote(context.Background(), "u1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"insert_thought", "insert_thought", "insert_thought",
		"insert_favorite", "insert_favorite", "insert_favorite",
	}, ops)
}

func TestFavoriteOrderSurvivesSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.saveLocal(t, "a", true)
	b := f.saveLocal(t, "b", true)
	require.NoError(t, f.facade.ReorderFavorites(ctx, "", []ids.ID{b.ID, a.ID}))

	_, err := f.engine.MigrateLocalToRemote(ctx, "u1")
	require.NoError(t, err)

	favs, err := f.backend.ListFavorites(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, "b", favs[0].Content)
	assert.Equal(t, "a", favs[1].Content)
}

func TestSyncInvalidatesGovernor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.facade.ListThoughts(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, before)

	f.saveLocal(t, "late", false)
	_, err = f.engine.MigrateLocalToRemote(ctx, "u1")
	require.NoError(t, err)

	after, err := f.facade.ListThoughts(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, after, 1, "cached empty page must not be served after a sync")
}

func TestOnePassPerUser(t *testing.T) {
	f := newFixture(t)
	f.saveLocal(t, "slow", false)
	release := make(chan struct{})
	f.backend.FailWhen = func(op string, _ any) error {
		if op == "insert_thought" {
			<-release
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.MigrateLocalToRemote(context.Background(), "u1")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.backend.Calls("insert_thought") == 1 }, time.Second, time.Millisecond)

	_, err := f.engine.MigrateLocalToRemote(context.Background(), "u1")
	assert.ErrorIs(t, err, apperr.ErrSyncInFlight)

	require.True(t, f.engine.acquire("u2"), "other users are not blocked")
	f.engine.release("u2")

	close(release)
	require.NoError(t, <-done)
}

func TestPreconditions(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.MigrateLocalToRemote(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoUser)

	localOnly := New(f.store, nil, f.gov, nil)
	_, err = localOnly.MigrateLocalToRemote(context.Background(), "u1")
	assert.ErrorIs(t, err, apperr.ErrRemoteNotConfigured)

	res, err := f.engine.MigrateLocalToRemote(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestAuthWatcherTriggersOnSignInOnly(t *testing.T) {
	f := newFixture(t)
	w := NewAuthWatcher(f.engine, nil)
	ctx := context.Background()

	assert.False(t, w.Observe(ctx, AuthState{}))
	f.saveLocal(t, "first", false)

	assert.True(t, w.Observe(ctx, AuthState{UserID: "u1", Authenticated: true}))
	assert.Equal(t, 1, f.backend.Calls("insert_thought"))

	f.saveLocal(t, "second", false)
	assert.False(t, w.Observe(ctx, AuthState{UserID: "u1", Authenticated: true}), "still signed in")
	assert.False(t, w.Observe(ctx, AuthState{}), "sign-out")
	assert.Equal(t, 1, f.backend.Calls("insert_thought"))

	assert.True(t, w.Observe(ctx, AuthState{UserID: "u1", Authenticated: true}))
	assert.Equal(t, 2, f.backend.Calls("insert_thought"))
}

func TestAuthWatcherSwallowsFailures(t *testing.T) {
	f := newFixture(t)
	f.saveLocal(t, "doomed", false)
	f.failContent("doomed")

	w := NewAuthWatcher(f.engine, nil)
	assert.True(t, w.Observe(context.Background(), AuthState{UserID: "u1", Authenticated: true}))

	left, err := f.store.Thoughts()
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
