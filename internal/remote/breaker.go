package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// BreakerConfig tunes the circuit breaker in front of a Backend.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig returns the production breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "remote",
		MaxRequests:  5,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.8,
	}
}

// Breaker wraps a Backend in a circuit breaker. Duplicate-key, not-found and
// identifier errors are answers from a healthy backend and do not count as
// failures. While open, calls fail fast with CodeUnavailable.
type Breaker struct {
	next Backend
	cb   *gobreaker.CircuitBreaker
}

var _ Backend = (*Breaker)(nil)

// WithBreaker decorates next.
func WithBreaker(next Backend, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	logger = logging.OrNop(logger)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				apperr.IsDuplicateKey(err) ||
				apperr.IsNotFound(err) ||
				errors.Is(err, apperr.ErrInvalidIdentifier) ||
				errors.Is(err, context.Canceled)
		},
	})
	return &Breaker{next: next, cb: cb}
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func guarded[T any](b *Breaker, op string, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, apperr.Remote(op, apperr.CodeUnavailable, err)
		}
		return zero, err
	}
	return v.(T), nil
}

func guardedErr(b *Breaker, op string, fn func() error) error {
	_, err := guarded(b, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *Breaker) InsertThought(ctx context.Context, t models.Thought) (models.Thought, error) {
	return guarded(b, "insert_thought", func() (models.Thought, error) { return b.next.InsertThought(ctx, t) })
}

func (b *Breaker) GetThought(ctx context.Context, id ids.ID) (models.Thought, error) {
	return guarded(b, "get_thought", func() (models.Thought, error) { return b.next.GetThought(ctx, id) })
}

func (b *Breaker) ListThoughts(ctx context.Context, userID string, limit, offset int) ([]models.Thought, error) {
	return guarded(b, "list_thoughts", func() ([]models.Thought, error) {
		return b.next.ListThoughts(ctx, userID, limit, offset)
	})
}

func (b *Breaker) DeleteThought(ctx context.Context, userID string, id ids.ID) error {
	return guardedErr(b, "delete_thought", func() error { return b.next.DeleteThought(ctx, userID, id) })
}

func (b *Breaker) IncrementCounter(ctx context.Context, id ids.ID, counter models.Counter) (models.Thought, error) {
	return guarded(b, "increment_counter", func() (models.Thought, error) {
		return b.next.IncrementCounter(ctx, id, counter)
	})
}

func (b *Breaker) InsertFavorite(ctx context.Context, fav models.Favorite) error {
	return guardedErr(b, "insert_favorite", func() error { return b.next.InsertFavorite(ctx, fav) })
}

func (b *Breaker) DeleteFavorite(ctx context.Context, userID string, thoughtID ids.ID) error {
	return guardedErr(b, "delete_favorite", func() error { return b.next.DeleteFavorite(ctx, userID, thoughtID) })
}

func (b *Breaker) ListFavorites(ctx context.Context, userID string, limit int) ([]models.Favorite, error) {
	return guarded(b, "list_favorites", func() ([]models.Favorite, error) {
		return b.next.ListFavorites(ctx, userID, limit)
	})
}

func (b *Breaker) FavoriteExists(ctx context.Context, userID string, thoughtID ids.ID) (bool, error) {
	return guarded(b, "favorite_exists", func() (bool, error) {
		return b.next.FavoriteExists(ctx, userID, thoughtID)
	})
}

func (b *Breaker) CountFavorites(ctx context.Context, userID string) (int64, error) {
	return guarded(b, "count_favorites", func() (int64, error) { return b.next.CountFavorites(ctx, userID) })
}

func (b *Breaker) SetFavoriteOrder(ctx context.Context, userID string, thoughtID ids.ID, index int) error {
	return guardedErr(b, "set_favorite_order", func() error {
		return b.next.SetFavoriteOrder(ctx, userID, thoughtID, index)
	})
}

func (b *Breaker) Stats(ctx context.Context, userID string) (models.Stats, error) {
	return guarded(b, "stats", func() (models.Stats, error) { return b.next.Stats(ctx, userID) })
}

func (b *Breaker) InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	return guarded(b, "insert_notification", func() (models.Notification, error) {
		return b.next.InsertNotification(ctx, n)
	})
}

func (b *Breaker) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return guarded(b, "list_notifications", func() ([]models.Notification, error) {
		return b.next.ListNotifications(ctx, userID, limit)
	})
}

func (b *Breaker) SetNotificationRead(ctx context.Context, userID string, id ids.ID, read bool) (models.Notification, error) {
	return guarded(b, "set_notification_read", func() (models.Notification, error) {
		return b.next.SetNotificationRead(ctx, userID, id, read)
	})
}

func (b *Breaker) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return guarded(b, "unread_count", func() (int64, error) { return b.next.UnreadCount(ctx, userID) })
}
