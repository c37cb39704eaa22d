package persistence

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
	"github.com/thoughtforge/thoughtsync/pkg/telemetry"
)

// DefaultNotificationLimit is used when callers pass no limit.
const DefaultNotificationLimit = 50

// Facade is the single entry point for thought and favorite persistence.
// The route is re-evaluated on every call because sign-in state can change
// between calls.
type Facade struct {
	local  *LocalRepository
	remote *RemoteRepository // nil when no backend is configured
	logger *zap.Logger
}

// NewFacade wires both strategies. remote may be nil.
func NewFacade(local *LocalRepository, remote *RemoteRepository, logger *zap.Logger) *Facade {
	return &Facade{local: local, remote: remote, logger: logging.OrNop(logger).With(zap.String("component", "facade"))}
}

// Configured reports whether a remote backend is available.
func (f *Facade) Configured() bool {
	return f.remote != nil
}

// Route reports where a call for userID would go.
func (f *Facade) Route(userID string) Route {
	return Select(f.Configured(), userID)
}

// Local exposes the local strategy.
func (f *Facade) Local() *LocalRepository { return f.local }

// Remote exposes the remote strategy; nil when not configured.
func (f *Facade) Remote() *RemoteRepository { return f.remote }

func (f *Facade) pick(userID string) Repository {
	if f.Route(userID) == RouteRemote {
		return f.remote
	}
	return f.local
}

func (f *Facade) span(ctx context.Context, op, userID string) (context.Context, trace.Span) {
	ctx, span := telemetry.StartSpan(ctx, "persistence."+op,
		trace.WithAttributes(attribute.String("route", string(f.Route(userID)))))
	l := logging.FromContext(ctx, f.logger).With(zap.String("op", op), zap.String("route", string(f.Route(userID))))
	return logging.WithContext(ctx, l), span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SaveThought validates t and persists it. The returned thought carries the
// id that is now authoritative for the active backend.
func (f *Facade) SaveThought(ctx context.Context, t models.Thought, userID string) (saved models.Thought, err error) {
	ctx, span := f.span(ctx, "save_thought", userID)
	defer func() { finish(span, err) }()

	t.Tags = models.NormalizeTags(t.Tags)
	if err := models.Validate(&t); err != nil {
		return models.Thought{}, err
	}
	return f.pick(userID).SaveThought(ctx, t, userID)
}

func (f *Facade) ListThoughts(ctx context.Context, userID string, limit, offset int) (list []models.Thought, err error) {
	ctx, span := f.span(ctx, "list_thoughts", userID)
	defer func() { finish(span, err) }()
	return f.pick(userID).ListThoughts(ctx, userID, limit, offset)
}

func (f *Facade) DeleteThought(ctx context.Context, id ids.ID, userID string) (err error) {
	ctx, span := f.span(ctx, "delete_thought", userID)
	defer func() { finish(span, err) }()
	return f.pick(userID).DeleteThought(ctx, id, userID)
}

// AddFavorite is idempotent on both routes.
func (f *Facade) AddFavorite(ctx context.Context, t models.Thought, userID string) (err error) {
	ctx, span := f.span(ctx, "add_favorite", userID)
	defer func() { finish(span, err) }()
	return f.pick(userID).AddFavorite(ctx, t, userID)
}

func (f *Facade) RemoveFavorite(ctx context.Context, thoughtID ids.ID, userID string) (err error) {
	ctx, span := f.span(ctx, "remove_favorite", userID)
	defer func() { finish(span, err) }()
	return f.pick(userID).RemoveFavorite(ctx, thoughtID, userID)
}

func (f *Facade) ListFavorites(ctx context.Context, userID string, limit int) (list []models.Favorite, err error) {
	ctx, span := f.span(ctx, "list_favorites", userID)
	defer func() { finish(span, err) }()
	return f.pick(userID).ListFavorites(ctx, userID, limit)
}

func (f *Facade) IsFavorited(ctx context.Context, thoughtID ids.ID, userID string) (ok bool, err error) {
	ctx, span := f.span(ctx, "is_favorited", userID)
	defer func() { finish(span, err) }()
	return f.pick(userID).IsFavorited(ctx, thoughtID, userID)
}

// ReorderFavorites needs the full ordered id list. After a *ReorderError
// callers should re-read the order.
func (f *Facade) ReorderFavorites(ctx context.Context, userID string, ordered []ids.ID) (err error) {
	ctx, span := f.span(ctx, "reorder_favorites", userID)
	defer func() { finish(span, err) }()
	return f.pick(userID).ReorderFavorites(ctx, userID, ordered)
}

func (f *Facade) Stats(ctx context.Context, userID string) (stats models.Stats, err error) {
	ctx, span := f.span(ctx, "stats", userID)
	defer func() { finish(span, err) }()
	return f.pick(userID).Stats(ctx, userID)
}

// RecordView, RecordLike and RecordShare bump engagement counters.
func (f *Facade) RecordView(ctx context.Context, id ids.ID, userID string) (models.Thought, bool, error) {
	return f.record(ctx, id, userID, models.CounterViews)
}

func (f *Facade) RecordLike(ctx context.Context, id ids.ID, userID string) (models.Thought, bool, error) {
	return f.record(ctx, id, userID, models.CounterLikes)
}

func (f *Facade) RecordShare(ctx context.Context, id ids.ID, userID string) (models.Thought, bool, error) {
	return f.record(ctx, id, userID, models.CounterShares)
}

func (f *Facade) record(ctx context.Context, id ids.ID, userID string, counter models.Counter) (t models.Thought, found bool, err error) {
	ctx, span := f.span(ctx, "record_"+string(counter), userID)
	defer func() { finish(span, err) }()
	return f.pick(userID).RecordCounter(ctx, id, userID, counter)
}

// ListNotifications is empty in local mode.
func (f *Facade) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if f.Route(userID) == RouteLocal {
		return []models.Notification{}, nil
	}
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	return f.remote.ListNotifications(ctx, userID, limit)
}

// MarkNotificationRead needs the remote backend.
func (f *Facade) MarkNotificationRead(ctx context.Context, userID string, id ids.ID, read bool) (models.Notification, error) {
	if f.Route(userID) == RouteLocal {
		return models.Notification{}, apperr.ErrRemoteNotConfigured
	}
	return f.remote.MarkNotificationRead(ctx, userID, id, read)
}

// UnreadCount is zero in local mode.
func (f *Facade) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if f.Route(userID) == RouteLocal {
		return 0, nil
	}
	return f.remote.UnreadCount(ctx, userID)
}
