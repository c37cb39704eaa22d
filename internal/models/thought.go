package models

import (
	"strings"
	"time"

	"github.com/thoughtforge/thoughtsync/internal/ids"
)

// Mood is the tone a thought was generated in
type Mood string

const (
	MoodPhilosophical Mood = "philosophical"
	MoodHumorous      Mood = "humorous"
	MoodScientific    Mood = "scientific"
)

// Moods lists every valid mood
var Moods = []Mood{MoodPhilosophical, MoodHumorous, MoodScientific}

// Source records how the content was produced
type Source string

const (
	SourceTemplate  Source = "template"
	SourceGenerated Source = "generated"
)

// Thought is a generated piece of text with engagement counters.
// IsFavorite is derived per reader and never stored.
type Thought struct {
	ID         ids.ID    `gorm:"primaryKey;type:uuid;default:gen_random_uuid();column:id" json:"id"`
	UserID     string    `gorm:"type:text;index;column:user_id" json:"userId,omitempty"`
	Content    string    `gorm:"type:text;not null;column:content" json:"content" validate:"required,max=4000"`
	Topic      string    `gorm:"type:varchar(255);column:topic" json:"topic,omitempty" validate:"max=255"`
	Mood       Mood      `gorm:"type:varchar(32);not null;column:mood" json:"mood" validate:"required,oneof=philosophical humorous scientific"`
	Category   string    `gorm:"type:varchar(255);column:category" json:"category,omitempty" validate:"max=255"`
	Tags       []string  `gorm:"serializer:json;type:jsonb;column:tags" json:"tags" validate:"max=32,dive,required,max=64"`
	Source     Source    `gorm:"type:varchar(16);not null;column:source" json:"source" validate:"required,oneof=template generated"`
	TokensUsed *int      `gorm:"column:tokens_used" json:"tokensUsed,omitempty"`
	Cost       *float64  `gorm:"type:decimal(12,6);column:cost" json:"cost,omitempty"`
	Views      int64     `gorm:"not null;default:0;column:views" json:"views"`
	Likes      int64     `gorm:"not null;default:0;column:likes" json:"likes"`
	Shares     int64     `gorm:"not null;default:0;column:shares" json:"shares"`
	CreatedAt  time.Time `gorm:"not null;index;column:created_at" json:"createdAt"`
	IsFavorite bool      `gorm:"-" json:"isFavorite"`
}

// TableName specifies the table name for Thought
func (Thought) TableName() string {
	return "thoughts"
}

// NormalizeTags trims, drops empties and removes duplicates keeping first
// occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Counter names an engagement counter column
type Counter string

const (
	CounterViews  Counter = "views"
	CounterLikes  Counter = "likes"
	CounterShares Counter = "shares"
)

// Valid reports whether c is a known counter.
func (c Counter) Valid() bool {
	switch c {
	case CounterViews, CounterLikes, CounterShares:
		return true
	}
	return false
}

// Bump increments the named counter in place.
func (t *Thought) Bump(c Counter) {
	switch c {
	case CounterViews:
		t.Views++
	case CounterLikes:
		t.Likes++
	case CounterShares:
		t.Shares++
	}
}
