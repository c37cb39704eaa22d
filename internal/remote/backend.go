// Package remote is the row-oriented remote backend: thoughts, favorites
// and notifications keyed by canonical ids.
package remote

import (
	"context"

	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
)

// Table names used on the change stream.
const (
	TableThoughts      = "thoughts"
	TableFavorites     = "favorites"
	TableNotifications = "notifications"
)

// Backend is the remote store contract. Implementations return
// *apperr.RemoteError for rejections; duplicate inserts carry
// apperr.CodeDuplicateKey. Local ids are never accepted as keys.
type Backend interface {
	// InsertThought persists t. A zero id is assigned by the backend; the
	// returned thought carries the stored id, creation time and counters.
	InsertThought(ctx context.Context, t models.Thought) (models.Thought, error)
	GetThought(ctx context.Context, id ids.ID) (models.Thought, error)
	ListThoughts(ctx context.Context, userID string, limit, offset int) ([]models.Thought, error)
	DeleteThought(ctx context.Context, userID string, id ids.ID) error
	IncrementCounter(ctx context.Context, id ids.ID, counter models.Counter) (models.Thought, error)

	InsertFavorite(ctx context.Context, fav models.Favorite) error
	// DeleteFavorite shifts later favorites down so order stays dense.
	DeleteFavorite(ctx context.Context, userID string, thoughtID ids.ID) error
	ListFavorites(ctx context.Context, userID string, limit int) ([]models.Favorite, error)
	FavoriteExists(ctx context.Context, userID string, thoughtID ids.ID) (bool, error)
	CountFavorites(ctx context.Context, userID string) (int64, error)
	SetFavoriteOrder(ctx context.Context, userID string, thoughtID ids.ID, index int) error

	Stats(ctx context.Context, userID string) (models.Stats, error)

	InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	SetNotificationRead(ctx context.Context, userID string, id ids.ID, read bool) (models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

func requireCanonical(id ids.ID) error {
	if !id.IsCanonical() {
		return invalidID(id)
	}
	return nil
}
