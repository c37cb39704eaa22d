// Package syncer migrates on-device thoughts and favorites to the remote
// backend after sign-in.
//
// A pass runs in two strictly ordered phases. Phase 1 saves every local
// thought remotely and records localID -> remoteID. Phase 2 re-adds each
// local favorite using the mapped remote id; a favorite whose thought did not
// migrate is skipped. Only records confirmed migrated are removed from the
// local store, so a failed record is retried on the next pass. A favorite
// that fails after its thought migrated is kept pointing at the remote id,
// which the next pass uses directly.
package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/governor"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/localstore"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/persistence"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
	"github.com/thoughtforge/thoughtsync/pkg/telemetry"
)

// ErrNoUser is returned when a pass is requested without a user id.
var ErrNoUser = errors.New("sync requires a user id")

// Result counts what one pass did.
type Result = apperr.SyncCounts

// Engine runs sync passes. At most one pass per user runs at a time.
type Engine struct {
	store  *localstore.Store
	remote *persistence.RemoteRepository
	gov    *governor.Governor
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New returns an engine. remote may be nil, in which case every pass fails
// with apperr.ErrRemoteNotConfigured.
func New(store *localstore.Store, remote *persistence.RemoteRepository, gov *governor.Governor, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		remote:   remote,
		gov:      gov,
		logger:   logging.OrNop(logger).With(zap.String("component", "syncer")),
		inflight: make(map[string]struct{}),
	}
}

// MigrateLocalToRemote runs one pass for userID. When some records could not
// be migrated the counts are returned together with a *apperr.PartialSyncError.
func (e *Engine) MigrateLocalToRemote(ctx context.Context, userID string) (res Result, err error) {
	if e.remote == nil {
		return Result{}, apperr.ErrRemoteNotConfigured
	}
	if userID == "" {
		return Result{}, ErrNoUser
	}
	if !e.acquire(userID) {
		return Result{}, apperr.ErrSyncInFlight
	}
	defer e.release(userID)

	ctx, span := telemetry.StartSpan(ctx, "syncer.migrate", trace.WithAttributes(attribute.String("user_id", userID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := logging.FromContext(ctx, e.logger).With(zap.String("user_id", userID))
	ctx = logging.WithContext(ctx, log)

	thoughts, err := e.store.Thoughts()
	if err != nil {
		return Result{}, err
	}
	favorites, err := e.store.Favorites()
	if err != nil {
		return Result{}, err
	}
	if len(thoughts) == 0 && len(favorites) == 0 {
		return Result{}, nil
	}
	log.Info("sync pass started", zap.Int("thoughts", len(thoughts)), zap.Int("favorites", len(favorites)))

	mapping, err := e.migrateThoughts(ctx, userID, thoughts, &res)
	if err != nil {
		return res, err
	}
	if err := e.migrateFavorites(ctx, userID, favorites, mapping, &res); err != nil {
		return res, err
	}

	e.gov.Invalidate()

	m := telemetry.Metrics()
	m.ThoughtsMigrated.Add(ctx, int64(res.ThoughtsMigrated))
	m.FavoritesMigrated.Add(ctx, int64(res.FavoritesMigrated))

	log.Info("sync pass finished",
		zap.Int("thoughts_migrated", res.ThoughtsMigrated),
		zap.Int("thoughts_failed", res.ThoughtsFailed),
		zap.Int("favorites_migrated", res.FavoritesMigrated),
		zap.Int("favorites_failed", res.FavoritesFailed),
		zap.Int("favorites_skipped", res.FavoritesSkipped))

	if res.ThoughtsFailed > 0 || res.FavoritesFailed > 0 || res.FavoritesSkipped > 0 {
		return res, &apperr.PartialSyncError{Counts: res}
	}
	return res, nil
}

// migrateThoughts is phase 1. It returns the localID -> remoteID mapping.
func (e *Engine) migrateThoughts(ctx context.Context, userID string, thoughts []models.Thought, res *Result) (map[ids.ID]ids.ID, error) {
	log := logging.FromContext(ctx, e.logger)
	mapping := make(map[ids.ID]ids.ID, len(thoughts))
	migrated := make(map[ids.ID]struct{}, len(thoughts))

	// oldest first so remote creation order follows local creation order
	for i := len(thoughts) - 1; i >= 0; i-- {
		t := thoughts[i]
		saved, err := e.remote.SaveThought(ctx, t, userID)
		if err != nil {
			res.ThoughtsFailed++
			log.Warn("thought not migrated", zap.String("local_id", t.ID.String()), zap.Error(err))
			continue
		}
		mapping[t.ID] = saved.ID
		migrated[t.ID] = struct{}{}
		res.ThoughtsMigrated++
	}

	if len(migrated) > 0 {
		if err := e.store.RemoveThoughts(migrated); err != nil {
			return mapping, err
		}
	}
	return mapping, nil
}

// migrateFavorites is phase 2. It never writes a local id remotely.
func (e *Engine) migrateFavorites(ctx context.Context, userID string, favorites []models.Favorite, mapping map[ids.ID]ids.ID, res *Result) error {
	log := logging.FromContext(ctx, e.logger)
	sort.SliceStable(favorites, func(i, j int) bool { return favorites[i].OrderIndex < favorites[j].OrderIndex })
	migrated := make(map[ids.ID]struct{}, len(favorites))
	repoint := make(map[ids.ID]ids.ID)

	for _, fav := range favorites {
		remoteID, ok := mapping[fav.ThoughtID]
		if !ok && fav.ThoughtID.IsCanonical() {
			// left over from an earlier pass that migrated the thought
			remoteID, ok = fav.ThoughtID, true
		}
		if !ok {
			res.FavoritesSkipped++
			log.Info("favorite skipped, its thought did not migrate", zap.String("local_id", fav.ThoughtID.String()))
			continue
		}
		t := models.Thought{
			ID:      remoteID,
			UserID:  userID,
			Content: fav.Content,
			Mood:    fav.Mood,
			Source:  fav.Source,
		}
		if err := e.remote.AddFavorite(ctx, t, userID); err != nil {
			res.FavoritesFailed++
			log.Warn("favorite not migrated", zap.String("remote_id", remoteID.String()), zap.Error(err))
			if remoteID != fav.ThoughtID {
				repoint[fav.ThoughtID] = remoteID
			}
			continue
		}
		migrated[fav.ThoughtID] = struct{}{}
		res.FavoritesMigrated++
	}

	if len(migrated) > 0 {
		if err := e.store.RemoveFavorites(migrated); err != nil {
			return err
		}
	}
	if len(repoint) == 0 {
		return nil
	}
	// the local thought is gone, so the favorite must follow it
	return e.store.UpdateFavorites(func(list []models.Favorite) ([]models.Favorite, error) {
		for i := range list {
			if remoteID, ok := repoint[list[i].ThoughtID]; ok {
				list[i].ThoughtID = remoteID
			}
		}
		return list, nil
	})
}

func (e *Engine) acquire(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[userID]; busy {
		return false
	}
	e.inflight[userID] = struct{}{}
	return true
}

func (e *Engine) release(userID string) {
	e.mu.Lock()
	delete(e.inflight, userID)
	e.mu.Unlock()
}
