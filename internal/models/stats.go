package models

// Stats summarises a user's (or the device's) thoughts
type Stats struct {
	TotalThoughts  int64            `json:"totalThoughts"`
	TotalFavorites int64            `json:"totalFavorites"`
	TotalViews     int64            `json:"totalViews"`
	TotalLikes     int64            `json:"totalLikes"`
	TotalShares    int64            `json:"totalShares"`
	ByMood         map[Mood]int64   `json:"byMood"`
	BySource       map[Source]int64 `json:"bySource"`
}

// NewStats returns Stats with initialised maps.
func NewStats() Stats {
	return Stats{
		ByMood:   make(map[Mood]int64, len(Moods)),
		BySource: make(map[Source]int64, 2),
	}
}

// Add folds t into s.
func (s *Stats) Add(t Thought) {
	s.TotalThoughts++
	s.TotalViews += t.Views
	s.TotalLikes += t.Likes
	s.TotalShares += t.Shares
	s.ByMood[t.Mood]++
	s.BySource[t.Source]++
}
