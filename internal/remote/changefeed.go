package remote

import (
	"context"

	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/realtime"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// ChangeFeed publishes a realtime.Change after every successful write.
// Publish failures are logged; the write has already happened.
type ChangeFeed struct {
	Backend
	pub    realtime.Publisher
	logger *zap.Logger
}

// WithChangeFeed decorates next so writes are announced on pub.
func WithChangeFeed(next Backend, pub realtime.Publisher, logger *zap.Logger) *ChangeFeed {
	return &ChangeFeed{
		Backend: next,
		pub:     pub,
		logger:  logging.OrNop(logger).With(zap.String("component", "changefeed")),
	}
}

func userColumns(userID string) map[string]string {
	return map[string]string{"user_id": userID}
}

func (f *ChangeFeed) emit(ctx context.Context, table string, typ realtime.EventType, record any, userID string) {
	change, err := realtime.NewChange(table, typ, record, userColumns(userID))
	if err != nil {
		f.logger.Warn("encode change", zap.Error(err))
		return
	}
	f.send(ctx, change)
}

func (f *ChangeFeed) send(ctx context.Context, change realtime.Change) {
	if err := f.pub.Publish(context.WithoutCancel(ctx), change); err != nil {
		f.logger.Warn("publish change",
			zap.String("table", change.Table),
			zap.String("type", string(change.Type)),
			zap.Error(err))
	}
}

func (f *ChangeFeed) InsertThought(ctx context.Context, t models.Thought) (models.Thought, error) {
	stored, err := f.Backend.InsertThought(ctx, t)
	if err == nil {
		f.emit(ctx, TableThoughts, realtime.Insert, stored, stored.UserID)
	}
	return stored, err
}

func (f *ChangeFeed) DeleteThought(ctx context.Context, userID string, id ids.ID) error {
	err := f.Backend.DeleteThought(ctx, userID, id)
	if err == nil {
		f.send(ctx, realtime.DeleteChange(TableThoughts, id.String(), userColumns(userID)))
	}
	return err
}

func (f *ChangeFeed) IncrementCounter(ctx context.Context, id ids.ID, counter models.Counter) (models.Thought, error) {
	t, err := f.Backend.IncrementCounter(ctx, id, counter)
	if err == nil {
		f.emit(ctx, TableThoughts, realtime.Update, t, t.UserID)
	}
	return t, err
}

func (f *ChangeFeed) InsertFavorite(ctx context.Context, fav models.Favorite) error {
	err := f.Backend.InsertFavorite(ctx, fav)
	if err == nil {
		fav.Thought = nil
		f.emit(ctx, TableFavorites, realtime.Insert, fav, fav.UserID)
	}
	return err
}

func (f *ChangeFeed) DeleteFavorite(ctx context.Context, userID string, thoughtID ids.ID) error {
	err := f.Backend.DeleteFavorite(ctx, userID, thoughtID)
	if err == nil {
		f.send(ctx, realtime.DeleteChange(TableFavorites, thoughtID.String(), userColumns(userID)))
	}
	return err
}

func (f *ChangeFeed) InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	stored, err := f.Backend.InsertNotification(ctx, n)
	if err == nil {
		f.emit(ctx, TableNotifications, realtime.Insert, stored, stored.UserID)
	}
	return stored, err
}

func (f *ChangeFeed) SetNotificationRead(ctx context.Context, userID string, id ids.ID, read bool) (models.Notification, error) {
	n, err := f.Backend.SetNotificationRead(ctx, userID, id, read)
	if err == nil {
		f.emit(ctx, TableNotifications, realtime.Update, n, userID)
	}
	return n, err
}
