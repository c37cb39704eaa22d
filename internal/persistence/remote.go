package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/cache"
	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/internal/governor"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/remote"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// backfillParallelism caps concurrent isFavorited lookups per page.
const backfillParallelism = 8

// RemoteRepository sends every call through the Governor to the backend.
// Keys always carry the user id.
type RemoteRepository struct {
	backend remote.Backend
	gov     *governor.Governor
	policy  governor.Policy
	gen     *ids.Generator
	clock   clock.Clock
	logger  *zap.Logger
}

var _ Repository = (*RemoteRepository)(nil)

// NewRemoteRepository returns the remote strategy.
func NewRemoteRepository(backend remote.Backend, gov *governor.Governor, policy governor.Policy, gen *ids.Generator, c clock.Clock, logger *zap.Logger) *RemoteRepository {
	if c == nil {
		c = clock.Real{}
	}
	return &RemoteRepository{
		backend: backend,
		gov:     gov,
		policy:  policy,
		gen:     gen,
		clock:   c,
		logger:  logging.OrNop(logger).With(zap.String("route", string(RouteRemote))),
	}
}

// SaveThought lets the backend assign the id when t has none. A local id
// is replaced by a fresh canonical one; a canonical id is kept. Only saves
// of an identified record share a call: two id-less saves are two thoughts,
// even with identical content.
func (r *RemoteRepository) SaveThought(ctx context.Context, t models.Thought, userID string) (models.Thought, error) {
	t.UserID = userID
	if t.ID.IsZero() {
		return governor.Bounded(ctx, r.gov, "save-thought", r.policy.Write, func(ctx context.Context) (models.Thought, error) {
			return r.backend.InsertThought(ctx, t)
		})
	}

	key := governor.Key("save-thought", userID, t.ID, cache.HashKey(t.Content, string(t.Mood), t.Topic, t.Category))
	if t.ID.IsLocal() {
		t.ID = r.gen.Coerce(t.ID)
	}
	return governor.Guard(ctx, r.gov, key, r.policy.Write, func(ctx context.Context) (models.Thought, error) {
		return r.backend.InsertThought(ctx, t)
	})
}

// ListThoughts pages the user's thoughts and back-fills IsFavorite with one
// isFavorited call per row.
func (r *RemoteRepository) ListThoughts(ctx context.Context, userID string, limit, offset int) ([]models.Thought, error) {
	key := governor.Key("user-thoughts", userID, limit, offset)
	shared, err := governor.Guard(ctx, r.gov, key, r.policy.Read, func(ctx context.Context) ([]models.Thought, error) {
		list, err := r.backend.ListThoughts(ctx, userID, limit, offset)
		if err != nil {
			return nil, err
		}
		r.backfill(ctx, userID, list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]models.Thought(nil), shared...), nil
}

// backfill marks favorites in place. A failed lookup leaves the flag false.
func (r *RemoteRepository) backfill(ctx context.Context, userID string, list []models.Thought) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillParallelism)
	for i := range list {
		i := i
		g.Go(func() error {
			fav, err := r.IsFavorited(gctx, list[i].ID, userID)
			if err != nil {
				logging.FromContext(ctx, r.logger).Warn("isFavorited back-fill failed",
					zap.String("thought_id", list[i].ID.String()), zap.Error(err))
				return nil
			}
			list[i].IsFavorite = fav
			return nil
		})
	}
	_ = g.Wait()
}

func (r *RemoteRepository) DeleteThought(ctx context.Context, id ids.ID, userID string) error {
	if !id.IsCanonical() {
		return apperr.InvalidID(id.String())
	}
	key := governor.Key("delete-thought", userID, id)
	_, err := governor.Guard(ctx, r.gov, key, r.policy.Write, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.backend.DeleteThought(ctx, userID, id)
	})
	return err
}

// AddFavorite appends t to the user's favorites. A duplicate is success.
// Favoriting another user's thought notifies its owner.
func (r *RemoteRepository) AddFavorite(ctx context.Context, t models.Thought, userID string) error {
	if !t.ID.IsCanonical() {
		return apperr.InvalidID(t.ID.String())
	}
	key := governor.Key("add-favorite", userID, t.ID)
	added, err := governor.Guard(ctx, r.gov, key, r.policy.Write, func(ctx context.Context) (bool, error) {
		n, err := r.backend.CountFavorites(ctx, userID)
		if err != nil {
			return false, err
		}
		fav := models.FavoriteOf(t, userID, int(n), r.clock.Now().UTC())
		if err := r.backend.InsertFavorite(ctx, fav); err != nil {
			if apperr.IsDuplicateKey(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if added && t.UserID != "" && t.UserID != userID {
		r.notify(ctx, models.Notification{
			UserID:  t.UserID,
			Type:    models.NotifyFavorite,
			Title:   "Your thought was favorited",
			Message: excerpt(t.Content),
		})
	}
	return nil
}

// RemoveFavorite deletes the favorite; the backend closes the gap in the
// order so the remaining indexes stay 0..n-1.
func (r *RemoteRepository) RemoveFavorite(ctx context.Context, thoughtID ids.ID, userID string) error {
	if !thoughtID.IsCanonical() {
		return apperr.InvalidID(thoughtID.String())
	}
	key := governor.Key("remove-favorite", userID, thoughtID)
	_, err := governor.Guard(ctx, r.gov, key, r.policy.Write, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.backend.DeleteFavorite(ctx, userID, thoughtID)
	})
	return err
}

func (r *RemoteRepository) ListFavorites(ctx context.Context, userID string, limit int) ([]models.Favorite, error) {
	key := governor.Key("user-favorites", userID, limit)
	shared, err := governor.Guard(ctx, r.gov, key, r.policy.Read, func(ctx context.Context) ([]models.Favorite, error) {
		return r.backend.ListFavorites(ctx, userID, limit)
	})
	if err != nil {
		return nil, err
	}
	return append([]models.Favorite(nil), shared...), nil
}

// IsFavorited is false for ids the backend could never hold.
func (r *RemoteRepository) IsFavorited(ctx context.Context, thoughtID ids.ID, userID string) (bool, error) {
	if !thoughtID.IsCanonical() {
		return false, nil
	}
	key := governor.Key("is-favorited", userID, thoughtID)
	return governor.Guard(ctx, r.gov, key, r.policy.Read, func(ctx context.Context) (bool, error) {
		return r.backend.FavoriteExists(ctx, userID, thoughtID)
	})
}

// ReorderFavorites writes orderIndex row by row, each under its own
// deadline. On failure the rows already written stay written.
func (r *RemoteRepository) ReorderFavorites(ctx context.Context, userID string, ordered []ids.ID) error {
	// a shared read could predate a favorite added a moment ago
	favs, err := governor.Bounded(ctx, r.gov, "reorder-read", r.policy.Read,
		func(ctx context.Context) ([]models.Favorite, error) {
			return r.backend.ListFavorites(ctx, userID, 0)
		})
	if err != nil {
		return err
	}
	current := make([]ids.ID, len(favs))
	for i, f := range favs {
		current[i] = f.ThoughtID
	}
	if err := checkOrder(current, ordered); err != nil {
		return err
	}

	for pos, id := range ordered {
		pos, id := pos, id
		_, err := governor.Bounded(ctx, r.gov, "reorder-favorite", r.policy.Write, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.backend.SetFavoriteOrder(ctx, userID, id, pos)
		})
		if err != nil {
			logging.FromContext(ctx, r.logger).Warn("reorder stopped",
				zap.Int("position", pos), zap.String("thought_id", id.String()), zap.Error(err))
			return &ReorderError{Position: pos, ThoughtID: id, Err: err}
		}
	}
	r.gov.Invalidate()
	return nil
}

func (r *RemoteRepository) Stats(ctx context.Context, userID string) (models.Stats, error) {
	key := governor.Key("user-stats", userID)
	return governor.Guard(ctx, r.gov, key, r.policy.Stats, func(ctx context.Context) (models.Stats, error) {
		return r.backend.Stats(ctx, userID)
	})
}

// RecordCounter increments atomically on the backend. Each call counts, so
// it is bounded but never shared. Liking another user's thought notifies its
// owner.
func (r *RemoteRepository) RecordCounter(ctx context.Context, id ids.ID, userID string, counter models.Counter) (models.Thought, bool, error) {
	if !counter.Valid() {
		return models.Thought{}, false, fmt.Errorf("unknown counter %q", counter)
	}
	if !id.IsCanonical() {
		return models.Thought{}, false, apperr.InvalidID(id.String())
	}
	t, err := governor.Bounded(ctx, r.gov, "record-"+string(counter), r.policy.Write, func(ctx context.Context) (models.Thought, error) {
		return r.backend.IncrementCounter(ctx, id, counter)
	})
	if apperr.IsNotFound(err) {
		return models.Thought{}, false, nil
	}
	if err != nil {
		return models.Thought{}, false, err
	}
	if counter == models.CounterLikes && t.UserID != "" && t.UserID != userID {
		r.notify(ctx, models.Notification{
			UserID:  t.UserID,
			Type:    models.NotifyLike,
			Title:   "Someone liked your thought",
			Message: excerpt(t.Content),
		})
	}
	return t, true, nil
}

// ListNotifications returns the user's notifications, newest first.
func (r *RemoteRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	key := governor.Key("user-notifications", userID, limit)
	shared, err := governor.Guard(ctx, r.gov, key, r.policy.Read, func(ctx context.Context) ([]models.Notification, error) {
		return r.backend.ListNotifications(ctx, userID, limit)
	})
	if err != nil {
		return nil, err
	}
	return append([]models.Notification(nil), shared...), nil
}

// MarkNotificationRead toggles the read flag.
func (r *RemoteRepository) MarkNotificationRead(ctx context.Context, userID string, id ids.ID, read bool) (models.Notification, error) {
	if !id.IsCanonical() {
		return models.Notification{}, apperr.InvalidID(id.String())
	}
	key := governor.Key("mark-notification", userID, id, read)
	return governor.Guard(ctx, r.gov, key, r.policy.Write, func(ctx context.Context) (models.Notification, error) {
		return r.backend.SetNotificationRead(ctx, userID, id, read)
	})
}

// UnreadCount counts unread notifications.
func (r *RemoteRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	key := governor.Key("unread-notifications", userID)
	return governor.Guard(ctx, r.gov, key, r.policy.Read, func(ctx context.Context) (int64, error) {
		return r.backend.UnreadCount(ctx, userID)
	})
}

// notify writes n on a best-effort basis.
func (r *RemoteRepository) notify(ctx context.Context, n models.Notification) {
	_, err := governor.Bounded(ctx, r.gov, "insert-notification", r.policy.Write, func(ctx context.Context) (models.Notification, error) {
		return r.backend.InsertNotification(ctx, n)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.FromContext(ctx, r.logger).Warn("notification not written",
			zap.String("user_id", n.UserID), zap.String("type", string(n.Type)), zap.Error(err))
	}
}

func excerpt(s string) string {
	const max = 80
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
