package persistence

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/thoughtforge/thoughtsync/internal/remote"
)

type fixture struct {
	clock   *clock.Fake
	store   *localstore.Store
	backend *remote.MemoryBackend
	gov     *governor.Governor
	facade  *Facade
}

func newFixture(t *testing.T, withRemote bool) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	store := localstore.New(localstore.NewMemoryKV(), nil)
	gen := ids.NewGenerator(clk, nil)
	gov := governor.New(clk, governor.DefaultLinger, nil)

	f := &fixture{clock: clk, store: store, gov: gov}
	var remoteRepo *RemoteRepository
	if withRemote {
		f.backend = remote.NewMemoryBackend(clk)
		remoteRepo = NewRemoteRepository(f.backend, gov, governor.DefaultPolicy(), gen, clk, nil)
	}
	f.facade = NewFacade(NewLocalRepository(store, gen, clk, nil), remoteRepo, nil)
	return f
}

func thought(content string) models.Thought {
	return models.Thought{
		Content: content,
		Mood:    models.MoodPhilosophical,
		Source:  models.SourceTemplate,
		Tags:    []string{"test"},
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		configured bool
		userID     string
		want       Route
	}{
		{false, "", RouteLocal},
		{false, "u1", RouteLocal},
		{true, "", RouteLocal},
		{true, "u1", RouteRemote},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%q", tt.configured, tt.userID), func(t *testing.T) {
			assert.Equal(t, tt.want, Select(tt.configured, tt.userID))
		})
	}
}

func TestRoutingIsPerCall(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	local, err := f.facade.SaveThought(ctx, thought("signed out"), "")
	require.NoError(t, err)
	assert.True(t, local.ID.IsLocal())

	remoteSaved, err := f.facade.SaveThought(ctx, thought("signed in"), "u1")
	require.NoError(t, err)
	assert.True(t, remoteSaved.ID.IsCanonical())

	stored, err := f.store.Thoughts()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, 1, f.backend.Calls("insert_thought"))
}

func TestSaveRejectsInvalidThought(t *testing.T) {
	f := newFixture(t, false)
	bad := thought("")
	_, err := f.facade.SaveThought(context.Background(), bad, "")
	assert.Error(t, err)
}

func TestLocalHistoryIsCappedRingBuffer(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	var first models.Thought
	for i := 0; i < localstore.HistoryCapacity+1; i++ {
		saved, err := f.facade.SaveThought(ctx, thought(fmt.Sprintf("thought %d", i)), "")
		require.NoError(t, err)
		assert.Zero(t, saved.Views)
		if i == 0 {
			first = saved
		}
		f.clock.Advance(time.Millisecond)
	}

	list, err := f.facade.ListThoughts(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, localstore.HistoryCapacity)
	assert.Equal(t, "thought 100", list[0].Content)
	assert.Equal(t, "thought 1", list[len(list)-1].Content)
	for _, th := range list {
		assert.NotEqual(t, first.ID, th.ID)
	}

	paged, err := f.facade.ListThoughts(ctx, "", 10, 5)
	require.NoError(t, err)
	require.Len(t, paged, 10)
	assert.Equal(t, "thought 95", paged[0].Content)
}

func TestLocalFavorites(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	a, err := f.facade.SaveThought(ctx, thought("a"), "")
	require.NoError(t, err)
	b, err := f.facade.SaveThought(ctx, thought("b"), "")
	require.NoError(t, err)

	require.NoError(t, f.facade.AddFavorite(ctx, a, ""))
	require.NoError(t, f.facade.AddFavorite(ctx, a, ""))
	require.NoError(t, f.facade.AddFavorite(ctx, b, ""))

	favs, err := f.facade.ListFavorites(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, "a", favs[0].Content)

	ok, err := f.facade.IsFavorited(ctx, b.ID, "")
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := f.facade.ListThoughts(ctx, "", 0, 0)
	require.NoError(t, err)
	for _, th := range list {
		assert.True(t, th.IsFavorite)
	}

	require.NoError(t, f.facade.DeleteThought(ctx, a.ID, ""))
	favs, err = f.facade.ListFavorites(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, b.ID, favs[0].ThoughtID)
	assert.Equal(t, 0, favs[0].OrderIndex)

	require.NoError(t, f.facade.RemoveFavorite(ctx, b.ID, ""))
	_, found, err := f.store.KV().GetItem(localstore.KeyFavorites)
	require.NoError(t, err)
	assert.False(t, found, "empty favorites remove the key")
}

func TestIdempotentRemoteFavorite(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	saved, err := f.facade.SaveThought(ctx, thought("once"), "u1")
	require.NoError(t, err)

	require.NoError(t, f.facade.AddFavorite(ctx, saved, "u1"))
	f.clock.Advance(governor.DefaultLinger)
	require.NoError(t, f.facade.AddFavorite(ctx, saved, "u1"))

	assert.Equal(t, 2, f.backend.Calls("insert_favorite"))
	count, err := f.backend.CountFavorites(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRemoteFavoriteNeedsCanonicalID(t *testing.T) {
	f := newFixture(t, true)
	local := thought("x")
	local.ID = ids.NewGenerator(f.clock, nil).NewLocal()

	err := f.facade.AddFavorite(context.Background(), local, "u1")
	assert.ErrorIs(t, err, apperr.ErrInvalidIdentifier)

	ok, err := f.facade.IsFavorited(context.Background(), local.ID, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentListThoughtsShareOneCall(t *testing.T) {
	f := newFixture(t, true)
	release := make(chan struct{})
	f.backend.FailWhen = func(op string, _ any) error {
		if op == "list_thoughts" {
			<-release
		}
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.facade.ListThoughts(context.Background(), "u1", 10, 0)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return f.gov.Hits() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.backend.Calls("list_thoughts"))
}

func TestRemoteListBackfillsIsFavorite(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a, err := f.facade.SaveThought(ctx, thought("a"), "u1")
	require.NoError(t, err)
	_, err = f.facade.SaveThought(ctx, thought("b"), "u1")
	require.NoError(t, err)
	require.NoError(t, f.facade.AddFavorite(ctx, a, "u1"))

	list, err := f.facade.ListThoughts(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, th := range list {
		assert.Equal(t, th.ID == a.ID, th.IsFavorite, th.Content)
	}
	assert.Equal(t, 2, f.backend.Calls("favorite_exists"))
}

func TestRemoteSaveIdentifiers(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	gen := ids.NewGenerator(f.clock, nil)

	assigned, err := f.facade.SaveThought(ctx, thought("zero"), "u1")
	require.NoError(t, err)
	assert.True(t, assigned.ID.IsCanonical())
	assert.Equal(t, "u1", assigned.UserID)

	withLocal := thought("local")
	withLocal.ID = gen.NewLocal()
	withLocal.Views = 7
	coerced, err := f.facade.SaveThought(ctx, withLocal, "u1")
	require.NoError(t, err)
	assert.True(t, coerced.ID.IsCanonical())
	assert.NotEqual(t, withLocal.ID, coerced.ID)
	assert.Zero(t, coerced.Views)

	canonical := thought("canonical")
	canonical.ID = gen.NewCanonical()
	kept, err := f.facade.SaveThought(ctx, canonical, "u1")
	require.NoError(t, err)
	assert.Equal(t, canonical.ID, kept.ID)
}

func seedFavorites(t *testing.T, f *fixture, userID string, contents ...string) []ids.ID {
	t.Helper()
	ctx := context.Background()
	var out []ids.ID
	for _, c := range contents {
		saved, err := f.facade.SaveThought(ctx, thought(c), userID)
		require.NoError(t, err)
		require.NoError(t, f.facade.AddFavorite(ctx, saved, userID))
		out = append(out, saved.ID)
		f.clock.Advance(governor.DefaultLinger)
	}
	return out
}

func favoriteOrder(t *testing.T, f *fixture, userID string) []ids.ID {
	t.Helper()
	favs, err := f.facade.ListFavorites(context.Background(), userID, 0)
	require.NoError(t, err)
	out := make([]ids.ID, len(favs))
	for i, fav := range favs {
		out[i] = fav.ThoughtID
	}
	return out
}

func TestReorderDeterminism(t *testing.T) {
	for _, userID := range []string{"", "u1"} {
		t.Run(string(Select(true, userID)), func(t *testing.T) {
			f := newFixture(t, true)
			ctx := context.Background()
			abc := seedFavorites(t, f, userID, "A", "B", "C")
			require.Equal(t, abc, favoriteOrder(t, f, userID))

			target := []ids.ID{abc[2], abc[0], abc[1]}
			require.NoError(t, f.facade.ReorderFavorites(ctx, userID, target))
			assert.Equal(t, target, favoriteOrder(t, f, userID))
		})
	}
}

func TestReorderRejectsPartialList(t *testing.T) {
	for _, userID := range []string{"", "u1"} {
		t.Run(string(Select(true, userID)), func(t *testing.T) {
			f := newFixture(t, true)
			abc := seedFavorites(t, f, userID, "A", "B", "C")

			err := f.facade.ReorderFavorites(context.Background(), userID, abc[:2])
			assert.ErrorIs(t, err, ErrIncompleteOrder)

			err = f.facade.ReorderFavorites(context.Background(), userID, []ids.ID{abc[0], abc[0], abc[1]})
			assert.ErrorIs(t, err, ErrIncompleteOrder)
		})
	}
}

func TestReorderKeepsWrittenPrefix(t *testing.T) {
	f := newFixture(t, true)
	abc := seedFavorites(t, f, "u1", "A", "B", "C")
	boom := errors.New("boom")
	f.backend.FailWhen = func(op string, arg any) error {
		if op == "set_favorite_order" && arg == abc[0] {
			return apperr.Remote(op, apperr.CodeInternal, boom)
		}
		return nil
	}

	err := f.facade.ReorderFavorites(context.Background(), "u1", []ids.ID{abc[2], abc[0], abc[1]})
	var reorderErr *ReorderError
	require.ErrorAs(t, err, &reorderErr)
	assert.Equal(t, 1, reorderErr.Position)
	assert.Equal(t, abc[0], reorderErr.ThoughtID)
	assert.ErrorIs(t, err, boom)

	f.backend.FailWhen = nil
	favs, err := f.backend.ListFavorites(context.Background(), "u1", 0)
	require.NoError(t, err)
	for _, fav := range favs {
		if fav.ThoughtID == abc[2] {
			assert.Equal(t, 0, fav.OrderIndex, "position 0 stays written")
		}
	}
}

func TestRemoteSavesWithoutIDAreNeverShared(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a, err := f.facade.SaveThought(ctx, thought("same"), "u1")
	require.NoError(t, err)
	b, err := f.facade.SaveThought(ctx, thought("same"), "u1")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, f.backend.Calls("insert_thought"))
	stored, err := f.backend.ListThoughts(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRemoteRemoveKeepsOrderDense(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	abc := seedFavorites(t, f, "u1", "A", "B", "C")

	require.NoError(t, f.facade.RemoveFavorite(ctx, abc[0], "u1"))
	d := seedFavorites(t, f, "u1", "D")

	favs, err := f.backend.ListFavorites(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, favs, 3)
	for i, fav := range favs {
		assert.Equal(t, i, fav.OrderIndex)
	}
	assert.Equal(t, []ids.ID{abc[1], abc[2], d[0]}, favoriteOrder(t, f, "u1"))
}

func TestReorderSeesFavoriteAddedMomentsAgo(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	ab := seedFavorites(t, f, "u1", "A", "B")
	require.Equal(t, ab, favoriteOrder(t, f, "u1"))

	c, err := f.facade.SaveThought(ctx, thought("C"), "u1")
	require.NoError(t, err)
	require.NoError(t, f.facade.AddFavorite(ctx, c, "u1"))

	target := []ids.ID{c.ID, ab[0], ab[1]}
	require.NoError(t, f.facade.ReorderFavorites(ctx, "u1", target))
	assert.Equal(t, target, favoriteOrder(t, f, "u1"))
}

func TestRemoteTimeoutSurfacesAsErrTimeout(t *testing.T) {
	f := newFixture(t, true)
	release := make(chan struct{})
	defer close(release)
	f.backend.FailWhen = func(op string, _ any) error {
		if op == "stats" {
			<-release
		}
		return nil
	}

	errc := make(chan error, 1)
	go func() {
		_, err := f.facade.Stats(context.Background(), "u1")
		errc <- err
	}()

	require.Eventually(t, func() bool { return f.clock.Pending() == 1 }, time.Second, time.Millisecond)
	f.clock.Advance(governor.DefaultPolicy().Stats)

	err := <-errc
	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.True(t, apperr.IsRetryable(err))
}

func TestStats(t *testing.T) {
	for _, userID := range []string{"", "u1"} {
		t.Run(string(Select(true, userID)), func(t *testing.T) {
			f := newFixture(t, true)
			ctx := context.Background()
			seedFavorites(t, f, userID, "A", "B")
			humorous := thought("C")
			humorous.Mood = models.MoodHumorous
			_, err := f.facade.SaveThought(ctx, humorous, userID)
			require.NoError(t, err)

			stats, err := f.facade.Stats(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, int64(3), stats.TotalThoughts)
			assert.Equal(t, int64(2), stats.TotalFavorites)
			assert.Equal(t, int64(1), stats.ByMood[models.MoodHumorous])
			assert.Equal(t, int64(3), stats.BySource[models.SourceTemplate])
		})
	}
}

func TestCountersAndNotifications(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	owned, err := f.facade.SaveThought(ctx, thought("mine"), "owner")
	require.NoError(t, err)

	liked, found, err := f.facade.RecordLike(ctx, owned.ID, "fan")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), liked.Likes)

	_, _, err = f.facade.RecordLike(ctx, owned.ID, "owner")
	require.NoError(t, err)
	_, _, err = f.facade.RecordView(ctx, owned.ID, "fan")
	require.NoError(t, err)
	require.NoError(t, f.facade.AddFavorite(ctx, owned, "fan"))

	notes, err := f.facade.ListNotifications(ctx, "owner", 0)
	require.NoError(t, err)
	require.Len(t, notes, 2, "one like from fan, one favorite from fan")

	unread, err := f.facade.UnreadCount(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	_, err = f.facade.MarkNotificationRead(ctx, "owner", notes[0].ID, true)
	require.NoError(t, err)
	f.clock.Advance(governor.DefaultLinger)
	unread, err = f.facade.UnreadCount(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	_, found, err = f.facade.RecordShare(ctx, ids.NewGenerator(f.clock, nil).NewCanonical(), "fan")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocalCountersAndNotifications(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	saved, err := f.facade.SaveThought(ctx, thought("here"), "")
	require.NoError(t, err)
	viewed, found, err := f.facade.RecordView(ctx, saved.ID, "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), viewed.Views)

	list, err := f.facade.ListThoughts(ctx, "", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list[0].Views)

	_, found, err = f.facade.RecordLike(ctx, ids.NewGenerator(f.clock, nil).NewLocal(), "")
	require.NoError(t, err)
	assert.False(t, found)

	notes, err := f.facade.ListNotifications(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
	n, err := f.facade.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = f.facade.MarkNotificationRead(ctx, "u1", ids.NewGenerator(f.clock, nil).NewCanonical(), true)
	assert.ErrorIs(t, err, apperr.ErrRemoteNotConfigured)
}
