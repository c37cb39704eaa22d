package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ThoughtRepository provides thought-related database operations
type ThoughtRepository struct {
	*Repository
}

// NewThoughtRepository creates a new thought repository
func NewThoughtRepository(repo *Repository) *ThoughtRepository {
	return &ThoughtRepository{Repository: repo}
}

// Create inserts a thought; the database fills in the id when it is zero.
func (r *ThoughtRepository) Create(ctx context.Context, thought *models.Thought) error {
	return r.db.WithContext(ctx).Create(thought).Error
}

// GetByID retrieves a thought by ID
func (r *ThoughtRepository) GetByID(ctx context.Context, id ids.ID) (*models.Thought, error) {
	var thought models.Thought
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&thought).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &thought, nil
}

// ListByUser pages through a user's thoughts, newest first
func (r *ThoughtRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Thought, error) {
	var thoughts []models.Thought
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limitOrAll(limit)).
		Offset(offset).
		Find(&thoughts).Error
	if err != nil {
		return nil, err
	}
	return thoughts, nil
}

// Delete removes a user's thought and reports how many rows went away
func (r *ThoughtRepository) Delete(ctx context.Context, userID string, id ids.ID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Thought{})
	return res.RowsAffected, res.Error
}

// Increment bumps one engagement counter atomically and returns the row
func (r *ThoughtRepository) Increment(ctx context.Context, id ids.ID, counter models.Counter) (*models.Thought, error) {
	column := string(counter)
	res := r.db.WithContext(ctx).
		Model(&models.Thought{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

type statsRow struct {
	Mood   models.Mood
	Source models.Source
	Count  int64
	Views  int64
	Likes  int64
	Shares int64
}

// Stats aggregates a user's thoughts by mood and source
func (r *ThoughtRepository) Stats(ctx context.Context, userID string) (models.Stats, error) {
	var rows []statsRow
	err := r.db.WithContext(ctx).
		Model(&models.Thought{}).
		Select("mood, source, COUNT(*) AS count, COALESCE(SUM(views),0) AS views, COALESCE(SUM(likes),0) AS likes, COALESCE(SUM(shares),0) AS shares").
		Where("user_id = ?", userID).
		Group("mood, source").
		Scan(&rows).Error
	if err != nil {
		return models.Stats{}, err
	}

	stats := models.NewStats()
	for _, row := range rows {
		stats.TotalThoughts += row.Count
		stats.TotalViews += row.Views
		stats.TotalLikes += row.Likes
		stats.TotalShares += row.Shares
		stats.ByMood[row.Mood] += row.Count
		stats.BySource[row.Source] += row.Count
	}
	return stats, nil
}

// FavoriteRepository provides favorite-related database operations
type FavoriteRepository struct {
	*Repository
}

// NewFavoriteRepository creates a new favorite repository
func NewFavoriteRepository(repo *Repository) *FavoriteRepository {
	return &FavoriteRepository{Repository: repo}
}

// Create inserts a favorite. The (user_id, thought_id) primary key makes a
// second insert for the same pair fail with a unique violation.
func (r *FavoriteRepository) Create(ctx context.Context, fav *models.Favorite) error {
	return r.db.WithContext(ctx).Omit("Thought").Create(fav).Error
}

// Delete removes a favorite and closes the gap it leaves in order_index
func (r *FavoriteRepository) Delete(ctx context.Context, userID string, thoughtID ids.ID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fav models.Favorite
		err := tx.Where("user_id = ? AND thought_id = ?", userID, thoughtID).
			Limit(1).Find(&fav).Error
		if err != nil {
			return err
		}
		res := tx.Where("user_id = ? AND thought_id = ?", userID, thoughtID).
			Delete(&models.Favorite{})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		return tx.Model(&models.Favorite{}).
			Where("user_id = ? AND order_index > ?", userID, fav.OrderIndex).
			UpdateColumn("order_index", gorm.Expr("order_index - 1")).Error
	})
}

// ListByUser returns favorites in display order
func (r *FavoriteRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Favorite, error) {
	var favs []models.Favorite
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("order_index ASC").
		Order("created_at ASC").
		Limit(limitOrAll(limit)).
		Find(&favs).Error
	if err != nil {
		return nil, err
	}
	return favs, nil
}

// Exists reports whether the user has favorited the thought
func (r *FavoriteRepository) Exists(ctx context.Context, userID string, thoughtID ids.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Favorite{}).
		Where("user_id = ? AND thought_id = ?", userID, thoughtID).
		Count(&count).Error
	return count > 0, err
}

// Count returns how many favorites the user has
func (r *FavoriteRepository) Count(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Favorite{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// SetOrder writes one favorite's position
func (r *FavoriteRepository) SetOrder(ctx context.Context, userID string, thoughtID ids.ID, index int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Favorite{}).
		Where("user_id = ? AND thought_id = ?", userID, thoughtID).
		UpdateColumn("order_index", index)
	return res.RowsAffected, res.Error
}

// NotificationRepository provides notification-related database operations
type NotificationRepository struct {
	*Repository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(repo *Repository) *NotificationRepository {
	return &NotificationRepository{Repository: repo}
}

// Create creates a new notification
func (r *NotificationRepository) Create(ctx context.Context, notif *models.Notification) error {
	return r.db.WithContext(ctx).Create(notif).Error
}

// ListByUser returns a user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var notifs []models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limitOrAll(limit)).
		Find(&notifs).Error
	if err != nil {
		return nil, err
	}
	return notifs, nil
}

// SetRead toggles the read flag and returns the updated row
func (r *NotificationRepository) SetRead(ctx context.Context, userID string, id ids.ID, read bool) (*models.Notification, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		UpdateColumn("read", read)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var notif models.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&notif).Error; err != nil {
		return nil, err
	}
	return &notif, nil
}

// CountUnread returns the number of unread notifications
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// limitOrAll maps a non-positive limit to GORM's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
