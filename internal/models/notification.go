package models

import (
	"time"

	"github.com/thoughtforge/thoughtsync/internal/ids"
)

// NotificationType classifies a notification
type NotificationType string

const (
	NotifyLike     NotificationType = "like"
	NotifyComment  NotificationType = "comment"
	NotifyFavorite NotificationType = "favorite"
	NotifyOther    NotificationType = "other"
)

// Notification is append-only from the backend's side; clients only toggle Read.
type Notification struct {
	ID        ids.ID           `gorm:"primaryKey;type:uuid;default:gen_random_uuid();column:id" json:"id"`
	UserID    string           `gorm:"type:text;not null;index:idx_notifications_user_created,priority:1;column:user_id" json:"userId"`
	Type      NotificationType `gorm:"type:varchar(16);not null;column:type" json:"type"`
	Title     string           `gorm:"type:varchar(255);not null;column:title" json:"title"`
	Message   string           `gorm:"type:text;column:message" json:"message"`
	Read      bool             `gorm:"not null;default:false;column:read" json:"read"`
	CreatedAt time.Time        `gorm:"not null;index:idx_notifications_user_created,priority:2;column:created_at" json:"createdAt"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}
