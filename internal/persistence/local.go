package persistence

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/localstore"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// LocalRepository keeps thoughts in the capped local history and favorites
// in their own key.
type LocalRepository struct {
	store  *localstore.Store
	gen    *ids.Generator
	clock  clock.Clock
	logger *zap.Logger
}

var _ Repository = (*LocalRepository)(nil)

// NewLocalRepository returns the local strategy.
func NewLocalRepository(store *localstore.Store, gen *ids.Generator, c clock.Clock, logger *zap.Logger) *LocalRepository {
	if c == nil {
		c = clock.Real{}
	}
	return &LocalRepository{store: store, gen: gen, clock: c, logger: logging.OrNop(logger)}
}

// SaveThought assigns a local id when absent and prepends to the history.
func (r *LocalRepository) SaveThought(ctx context.Context, t models.Thought, _ string) (models.Thought, error) {
	if t.ID.IsZero() {
		t.ID = r.gen.NewLocal()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.clock.Now().UTC()
	}
	t.IsFavorite = false
	if err := r.store.PrependThought(t); err != nil {
		return models.Thought{}, err
	}
	logging.FromContext(ctx, r.logger).Debug("saved thought locally", zap.String("id", t.ID.String()))
	return t, nil
}

func (r *LocalRepository) ListThoughts(ctx context.Context, _ string, limit, offset int) ([]models.Thought, error) {
	list, err := r.store.Thoughts()
	if err != nil {
		return nil, err
	}
	favs, err := r.favoriteSet()
	if err != nil {
		return nil, err
	}
	out := page(list, limit, offset)
	for i := range out {
		_, out[i].IsFavorite = favs[out[i].ID]
	}
	return out, nil
}

// DeleteThought removes the thought and any favorite pointing at it.
func (r *LocalRepository) DeleteThought(ctx context.Context, id ids.ID, _ string) error {
	gone := map[ids.ID]struct{}{id: {}}
	if err := r.store.RemoveThoughts(gone); err != nil {
		return err
	}
	return r.store.UpdateFavorites(func(list []models.Favorite) ([]models.Favorite, error) {
		return densify(dropFavorites(list, gone)), nil
	})
}

// AddFavorite appends t to the favorites. Adding twice is a no-op.
func (r *LocalRepository) AddFavorite(ctx context.Context, t models.Thought, _ string) error {
	return r.store.UpdateFavorites(func(list []models.Favorite) ([]models.Favorite, error) {
		for _, f := range list {
			if f.ThoughtID == t.ID {
				return list, nil
			}
		}
		return append(list, models.FavoriteOf(t, "", len(list), r.clock.Now().UTC())), nil
	})
}

func (r *LocalRepository) RemoveFavorite(ctx context.Context, thoughtID ids.ID, _ string) error {
	return r.store.UpdateFavorites(func(list []models.Favorite) ([]models.Favorite, error) {
		return densify(dropFavorites(list, map[ids.ID]struct{}{thoughtID: {}})), nil
	})
}

func (r *LocalRepository) ListFavorites(ctx context.Context, _ string, limit int) ([]models.Favorite, error) {
	list, err := r.store.Favorites()
	if err != nil {
		return nil, err
	}
	sortFavorites(list)
	return page(list, limit, 0), nil
}

func (r *LocalRepository) IsFavorited(ctx context.Context, thoughtID ids.ID, _ string) (bool, error) {
	favs, err := r.favoriteSet()
	if err != nil {
		return false, err
	}
	_, ok := favs[thoughtID]
	return ok, nil
}

// ReorderFavorites rewrites every orderIndex in one store write.
func (r *LocalRepository) ReorderFavorites(ctx context.Context, _ string, ordered []ids.ID) error {
	return r.store.UpdateFavorites(func(list []models.Favorite) ([]models.Favorite, error) {
		current := make([]ids.ID, len(list))
		byID := make(map[ids.ID]models.Favorite, len(list))
		for i, f := range list {
			current[i] = f.ThoughtID
			byID[f.ThoughtID] = f
		}
		if err := checkOrder(current, ordered); err != nil {
			return nil, err
		}
		out := make([]models.Favorite, len(ordered))
		for i, id := range ordered {
			f := byID[id]
			f.OrderIndex = i
			out[i] = f
		}
		return out, nil
	})
}

func (r *LocalRepository) Stats(ctx context.Context, _ string) (models.Stats, error) {
	list, err := r.store.Thoughts()
	if err != nil {
		return models.Stats{}, err
	}
	favs, err := r.store.Favorites()
	if err != nil {
		return models.Stats{}, err
	}
	stats := models.NewStats()
	for _, t := range list {
		stats.Add(t)
	}
	stats.TotalFavorites = int64(len(favs))
	return stats, nil
}

// RecordCounter bumps the counter on the history entry in place.
func (r *LocalRepository) RecordCounter(ctx context.Context, id ids.ID, _ string, counter models.Counter) (models.Thought, bool, error) {
	var (
		updated models.Thought
		found   bool
	)
	err := r.store.UpdateThoughts(func(list []models.Thought) ([]models.Thought, error) {
		for i := range list {
			if list[i].ID == id {
				list[i].Bump(counter)
				updated, found = list[i], true
				break
			}
		}
		return list, nil
	})
	return updated, found, err
}

func (r *LocalRepository) favoriteSet() (map[ids.ID]struct{}, error) {
	favs, err := r.store.Favorites()
	if err != nil {
		return nil, err
	}
	set := make(map[ids.ID]struct{}, len(favs))
	for _, f := range favs {
		set[f.ThoughtID] = struct{}{}
	}
	return set, nil
}

func dropFavorites(list []models.Favorite, gone map[ids.ID]struct{}) []models.Favorite {
	kept := list[:0]
	for _, f := range list {
		if _, drop := gone[f.ThoughtID]; !drop {
			kept = append(kept, f)
		}
	}
	return kept
}

// densify renumbers orderIndex 0..n-1 keeping the current display order.
func densify(list []models.Favorite) []models.Favorite {
	sortFavorites(list)
	for i := range list {
		list[i].OrderIndex = i
	}
	return list
}

func sortFavorites(list []models.Favorite) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].OrderIndex < list[j].OrderIndex
	})
}
