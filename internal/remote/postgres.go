package remote

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/thoughtforge/thoughtsync/internal/db"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// PostgresBackend implements Backend on the GORM repositories.
type PostgresBackend struct {
	thoughts      *db.ThoughtRepository
	favorites     *db.FavoriteRepository
	notifications *db.NotificationRepository
	logger        *zap.Logger
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend builds a backend over gdb.
func NewPostgresBackend(gdb *gorm.DB, logger *zap.Logger) *PostgresBackend {
	repo := db.NewRepository(gdb)
	return &PostgresBackend{
		thoughts:      db.NewThoughtRepository(repo),
		favorites:     db.NewFavoriteRepository(repo),
		notifications: db.NewNotificationRepository(repo),
		logger:        logging.OrNop(logger).With(zap.String("component", "postgres-backend")),
	}
}

func (b *PostgresBackend) InsertThought(ctx context.Context, t models.Thought) (models.Thought, error) {
	if !t.ID.IsZero() {
		if err := requireCanonical(t.ID); err != nil {
			return models.Thought{}, err
		}
	}
	t.Views, t.Likes, t.Shares = 0, 0, 0
	t.CreatedAt = time.Time{}
	t.IsFavorite = false
	if err := b.thoughts.Create(ctx, &t); err != nil {
		return models.Thought{}, translate("insert_thought", err)
	}
	return t, nil
}

func (b *PostgresBackend) GetThought(ctx context.Context, id ids.ID) (models.Thought, error) {
	if err := requireCanonical(id); err != nil {
		return models.Thought{}, err
	}
	t, err := b.thoughts.GetByID(ctx, id)
	if err != nil {
		return models.Thought{}, translate("get_thought", err)
	}
	if t == nil {
		return models.Thought{}, notFound("get_thought")
	}
	return *t, nil
}

func (b *PostgresBackend) ListThoughts(ctx context.Context, userID string, limit, offset int) ([]models.Thought, error) {
	list, err := b.thoughts.ListByUser(ctx, userID, limit, offset)
	return list, translate("list_thoughts", err)
}

func (b *PostgresBackend) DeleteThought(ctx context.Context, userID string, id ids.ID) error {
	if err := requireCanonical(id); err != nil {
		return err
	}
	n, err := b.thoughts.Delete(ctx, userID, id)
	if err != nil {
		return translate("delete_thought", err)
	}
	if n == 0 {
		return notFound("delete_thought")
	}
	return nil
}

func (b *PostgresBackend) IncrementCounter(ctx context.Context, id ids.ID, counter models.Counter) (models.Thought, error) {
	if err := requireCanonical(id); err != nil {
		return models.Thought{}, err
	}
	t, err := b.thoughts.Increment(ctx, id, counter)
	if err != nil {
		return models.Thought{}, translate("increment_counter", err)
	}
	if t == nil {
		return models.Thought{}, notFound("increment_counter")
	}
	return *t, nil
}

func (b *PostgresBackend) InsertFavorite(ctx context.Context, fav models.Favorite) error {
	if err := requireCanonical(fav.ThoughtID); err != nil {
		return err
	}
	return translate("insert_favorite", b.favorites.Create(ctx, &fav))
}

func (b *PostgresBackend) DeleteFavorite(ctx context.Context, userID string, thoughtID ids.ID) error {
	if err := requireCanonical(thoughtID); err != nil {
		return err
	}
	return translate("delete_favorite", b.favorites.Delete(ctx, userID, thoughtID))
}

func (b *PostgresBackend) ListFavorites(ctx context.Context, userID string, limit int) ([]models.Favorite, error) {
	list, err := b.favorites.ListByUser(ctx, userID, limit)
	return list, translate("list_favorites", err)
}

func (b *PostgresBackend) FavoriteExists(ctx context.Context, userID string, thoughtID ids.ID) (bool, error) {
	if !thoughtID.IsCanonical() {
		return false, nil
	}
	ok, err := b.favorites.Exists(ctx, userID, thoughtID)
	return ok, translate("favorite_exists", err)
}

func (b *PostgresBackend) CountFavorites(ctx context.Context, userID string) (int64, error) {
	n, err := b.favorites.Count(ctx, userID)
	return n, translate("count_favorites", err)
}

func (b *PostgresBackend) SetFavoriteOrder(ctx context.Context, userID string, thoughtID ids.ID, index int) error {
	if err := requireCanonical(thoughtID); err != nil {
		return err
	}
	n, err := b.favorites.SetOrder(ctx, userID, thoughtID, index)
	if err != nil {
		return translate("set_favorite_order", err)
	}
	if n == 0 {
		return notFound("set_favorite_order")
	}
	return nil
}

func (b *PostgresBackend) Stats(ctx context.Context, userID string) (models.Stats, error) {
	stats, err := b.thoughts.Stats(ctx, userID)
	if err != nil {
		return models.Stats{}, translate("stats", err)
	}
	favs, err := b.favorites.Count(ctx, userID)
	if err != nil {
		return models.Stats{}, translate("stats", err)
	}
	stats.TotalFavorites = favs
	return stats, nil
}

func (b *PostgresBackend) InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	n.ID = ids.ID{}
	n.CreatedAt = time.Time{}
	if err := b.notifications.Create(ctx, &n); err != nil {
		return models.Notification{}, translate("insert_notification", err)
	}
	return n, nil
}

func (b *PostgresBackend) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	list, err := b.notifications.ListByUser(ctx, userID, limit)
	return list, translate("list_notifications", err)
}

func (b *PostgresBackend) SetNotificationRead(ctx context.Context, userID string, id ids.ID, read bool) (models.Notification, error) {
	if err := requireCanonical(id); err != nil {
		return models.Notification{}, err
	}
	n, err := b.notifications.SetRead(ctx, userID, id, read)
	if err != nil {
		return models.Notification{}, translate("set_notification_read", err)
	}
	if n == nil {
		return models.Notification{}, notFound("set_notification_read")
	}
	return *n, nil
}

func (b *PostgresBackend) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := b.notifications.CountUnread(ctx, userID)
	return n, translate("unread_count", err)
}
