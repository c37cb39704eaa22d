package models

import (
	"time"

	"github.com/thoughtforge/thoughtsync/internal/ids"
)

// Favorite is a user's saved reference to a thought. Content, mood and
// source are copied from the thought so the favorite stays displayable after
// the thought leaves the capped local history.
type Favorite struct {
	UserID     string    `gorm:"primaryKey;type:text;column:user_id" json:"userId,omitempty"`
	ThoughtID  ids.ID    `gorm:"primaryKey;type:uuid;column:thought_id" json:"thoughtId"`
	Content    string    `gorm:"type:text;not null;column:content" json:"content"`
	Mood       Mood      `gorm:"type:varchar(32);not null;column:mood" json:"mood"`
	Source     Source    `gorm:"type:varchar(16);not null;column:source" json:"source"`
	OrderIndex int       `gorm:"not null;default:0;index;column:order_index" json:"orderIndex"`
	CreatedAt  time.Time `gorm:"not null;column:created_at" json:"createdAt"`

	Thought *Thought `gorm:"foreignKey:ThoughtID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Favorite
func (Favorite) TableName() string {
	return "favorites"
}

// FavoriteOf snapshots t as a favorite for userID.
func FavoriteOf(t Thought, userID string, orderIndex int, now time.Time) Favorite {
	return Favorite{
		UserID:     userID,
		ThoughtID:  t.ID,
		Content:    t.Content,
		Mood:       t.Mood,
		Source:     t.Source,
		OrderIndex: orderIndex,
		CreatedAt:  now,
	}
}
