package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/realtime"
)

type styles struct {
	title   lipgloss.Style
	meta    lipgloss.Style
	empty   lipgloss.Style
	warn    lipgloss.Style
	content lipgloss.Style
	moods   map[models.Mood]lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		meta:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		empty:   lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		content: lipgloss.NewStyle().PaddingLeft(2).Width(78),
		moods: map[models.Mood]lipgloss.Style{
			models.MoodPhilosophical: lipgloss.NewStyle().Foreground(lipgloss.Color("69")),
			models.MoodHumorous:      lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
			models.MoodScientific:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		},
	}
}

func (s styles) mood(m models.Mood) string {
	if st, ok := s.moods[m]; ok {
		return st.Render(string(m))
	}
	return string(m)
}

func renderThought(t models.Thought, s styles) string {
	header := fmt.Sprintf("%s  %s", s.mood(t.Mood), s.meta.Render(t.ID.String()))
	if t.IsFavorite {
		header += " ★"
	}
	meta := fmt.Sprintf("%s · %d views · %d likes · %d shares", t.CreatedAt.Format("2006-01-02 15:04"), t.Views, t.Likes, t.Shares)
	if len(t.Tags) > 0 {
		meta += " · #" + strings.Join(t.Tags, " #")
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, s.content.Render(t.Content), s.meta.Render(meta))
}

func renderThoughts(title string, list []models.Thought, s styles) string {
	lines := []string{s.title.Render(fmt.Sprintf("%s (%d)", title, len(list)))}
	if len(list) == 0 {
		lines = append(lines, s.empty.Render("Nothing here yet."))
	}
	for _, t := range list {
		lines = append(lines, renderThought(t, s))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderFavorites(list []models.Favorite, s styles) string {
	lines := []string{s.title.Render(fmt.Sprintf("Favorites (%d)", len(list)))}
	if len(list) == 0 {
		lines = append(lines, s.empty.Render("No favorites yet."))
	}
	for _, f := range list {
		lines = append(lines, fmt.Sprintf("%2d. %s  %s", f.OrderIndex+1, s.mood(f.Mood), s.meta.Render(f.ThoughtID.String())),
			s.content.Render(f.Content))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderStats(st models.Stats, s styles) string {
	lines := []string{
		s.title.Render("Stats"),
		fmt.Sprintf("thoughts  %d", st.TotalThoughts),
		fmt.Sprintf("favorites %d", st.TotalFavorites),
		fmt.Sprintf("views     %d", st.TotalViews),
		fmt.Sprintf("likes     %d", st.TotalLikes),
		fmt.Sprintf("shares    %d", st.TotalShares),
	}
	for _, m := range models.Moods {
		lines = append(lines, fmt.Sprintf("%-22s %d", s.mood(m), st.ByMood[m]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderNotifications(list []models.Notification, unread int64, s styles) string {
	lines := []string{s.title.Render(fmt.Sprintf("Notifications (%d unread)", unread))}
	if len(list) == 0 {
		lines = append(lines, s.empty.Render("No notifications."))
	}
	for _, n := range list {
		marker := " "
		if !n.Read {
			marker = "•"
		}
		lines = append(lines, fmt.Sprintf("%s %s  %s", marker, n.Title, s.meta.Render(n.ID.String())))
		if n.Message != "" {
			lines = append(lines, s.content.Render(n.Message))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSync(counts apperr.SyncCounts, complete bool, s styles) string {
	title := s.title.Render("Sync complete")
	if !complete {
		title = s.warn.Render("Sync partial: unmigrated records stay local for the next pass")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		fmt.Sprintf("thoughts  %d migrated, %d failed", counts.ThoughtsMigrated, counts.ThoughtsFailed),
		fmt.Sprintf("favorites %d migrated, %d failed, %d skipped", counts.FavoritesMigrated, counts.FavoritesFailed, counts.FavoritesSkipped),
	)
}

func renderPresence(records []realtime.Record, s styles) string {
	names := make([]string, 0, len(records))
	for _, r := range records {
		name := r.DisplayName
		if name == "" {
			name = r.UserID
		}
		if r.Page != "" {
			name += " (" + r.Page + ")"
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return s.meta.Render("online: nobody")
	}
	return s.meta.Render("online: " + strings.Join(names, ", "))
}
