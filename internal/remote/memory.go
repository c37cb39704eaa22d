package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
)

// MemoryBackend is an in-process Backend with the same key rules as the
// Postgres one. It backs tests and the local development server.
type MemoryBackend struct {
	// FailWhen, when set, is consulted before every operation. A non-nil
	// return aborts the operation with that error.
	FailWhen func(op string, arg any) error

	clock clock.Clock
	gen   *ids.Generator

	mu            sync.Mutex
	thoughts      map[ids.ID]models.Thought
	favorites     map[string]map[ids.ID]models.Favorite
	notifications map[ids.ID]models.Notification
	calls         map[string]int
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty backend using c for timestamps.
func NewMemoryBackend(c clock.Clock) *MemoryBackend {
	return &MemoryBackend{
		clock:         c,
		gen:           ids.NewGenerator(c, nil),
		thoughts:      make(map[ids.ID]models.Thought),
		favorites:     make(map[string]map[ids.ID]models.Favorite),
		notifications: make(map[ids.ID]models.Notification),
		calls:         make(map[string]int),
	}
}

// Calls reports how many times op was invoked, failed calls included.
func (m *MemoryBackend) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MemoryBackend) enter(op string, arg any) error {
	m.mu.Lock()
	m.calls[op]++
	fail := m.FailWhen
	m.mu.Unlock()
	if fail != nil {
		return fail(op, arg)
	}
	return nil
}

func (m *MemoryBackend) InsertThought(ctx context.Context, t models.Thought) (models.Thought, error) {
	if err := m.enter("insert_thought", t); err != nil {
		return models.Thought{}, err
	}
	if t.ID.IsZero() {
		t.ID = m.gen.NewCanonical()
	} else if err := requireCanonical(t.ID); err != nil {
		return models.Thought{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.thoughts[t.ID]; ok {
		return models.Thought{}, apperr.Remote("insert_thought", apperr.CodeDuplicateKey, nil)
	}
	t.Views, t.Likes, t.Shares = 0, 0, 0
	t.IsFavorite = false
	t.CreatedAt = m.clock.Now().UTC()
	m.thoughts[t.ID] = t
	return t, nil
}

func (m *MemoryBackend) GetThought(ctx context.Context, id ids.ID) (models.Thought, error) {
	if err := m.enter("get_thought", id); err != nil {
		return models.Thought{}, err
	}
	if err := requireCanonical(id); err != nil {
		return models.Thought{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.thoughts[id]
	if !ok {
		return models.Thought{}, notFound("get_thought")
	}
	return t, nil
}

func (m *MemoryBackend) ListThoughts(ctx context.Context, userID string, limit, offset int) ([]models.Thought, error) {
	if err := m.enter("list_thoughts", userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	var out []models.Thought
	for _, t := range m.thoughts {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (m *MemoryBackend) DeleteThought(ctx context.Context, userID string, id ids.ID) error {
	if err := m.enter("delete_thought", id); err != nil {
		return err
	}
	if err := requireCanonical(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.thoughts[id]
	if !ok || t.UserID != userID {
		return notFound("delete_thought")
	}
	delete(m.thoughts, id)
	for _, favs := range m.favorites {
		delete(favs, id)
	}
	return nil
}

func (m *MemoryBackend) IncrementCounter(ctx context.Context, id ids.ID, counter models.Counter) (models.Thought, error) {
	if err := m.enter("increment_counter", id); err != nil {
		return models.Thought{}, err
	}
	if err := requireCanonical(id); err != nil {
		return models.Thought{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.thoughts[id]
	if !ok {
		return models.Thought{}, notFound("increment_counter")
	}
	t.Bump(counter)
	m.thoughts[id] = t
	return t, nil
}

func (m *MemoryBackend) InsertFavorite(ctx context.Context, fav models.Favorite) error {
	if err := m.enter("insert_favorite", fav); err != nil {
		return err
	}
	if err := requireCanonical(fav.ThoughtID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	favs := m.favorites[fav.UserID]
	if favs == nil {
		favs = make(map[ids.ID]models.Favorite)
		m.favorites[fav.UserID] = favs
	}
	if _, ok := favs[fav.ThoughtID]; ok {
		return apperr.Remote("insert_favorite", apperr.CodeDuplicateKey, nil)
	}
	if fav.CreatedAt.IsZero() {
		fav.CreatedAt = m.clock.Now().UTC()
	}
	fav.Thought = nil
	favs[fav.ThoughtID] = fav
	return nil
}

func (m *MemoryBackend) DeleteFavorite(ctx context.Context, userID string, thoughtID ids.ID) error {
	if err := m.enter("delete_favorite", thoughtID); err != nil {
		return err
	}
	if err := requireCanonical(thoughtID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	favs := m.favorites[userID]
	gone, ok := favs[thoughtID]
	if !ok {
		return nil
	}
	delete(favs, thoughtID)
	for id, f := range favs {
		if f.OrderIndex > gone.OrderIndex {
			f.OrderIndex--
			favs[id] = f
		}
	}
	return nil
}

func (m *MemoryBackend) ListFavorites(ctx context.Context, userID string, limit int) ([]models.Favorite, error) {
	if err := m.enter("list_favorites", userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]models.Favorite, 0, len(m.favorites[userID]))
	for _, f := range m.favorites[userID] {
		out = append(out, f)
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, 0), nil
}

func (m *MemoryBackend) FavoriteExists(ctx context.Context, userID string, thoughtID ids.ID) (bool, error) {
	if err := m.enter("favorite_exists", thoughtID); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.favorites[userID][thoughtID]
	return ok, nil
}

func (m *MemoryBackend) CountFavorites(ctx context.Context, userID string) (int64, error) {
	if err := m.enter("count_favorites", userID); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.favorites[userID])), nil
}

func (m *MemoryBackend) SetFavoriteOrder(ctx context.Context, userID string, thoughtID ids.ID, index int) error {
	if err := m.enter("set_favorite_order", thoughtID); err != nil {
		return err
	}
	if err := requireCanonical(thoughtID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.favorites[userID][thoughtID]
	if !ok {
		return notFound("set_favorite_order")
	}
	f.OrderIndex = index
	m.favorites[userID][thoughtID] = f
	return nil
}

func (m *MemoryBackend) Stats(ctx context.Context, userID string) (models.Stats, error) {
	if err := m.enter("stats", userID); err != nil {
		return models.Stats{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := models.NewStats()
	for _, t := range m.thoughts {
		if t.UserID == userID {
			stats.Add(t)
		}
	}
	stats.TotalFavorites = int64(len(m.favorites[userID]))
	return stats, nil
}

func (m *MemoryBackend) InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	if err := m.enter("insert_notification", n); err != nil {
		return models.Notification{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = m.gen.NewCanonical()
	n.CreatedAt = m.clock.Now().UTC()
	m.notifications[n.ID] = n
	return n, nil
}

func (m *MemoryBackend) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if err := m.enter("list_notifications", userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	var out []models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, 0), nil
}

func (m *MemoryBackend) SetNotificationRead(ctx context.Context, userID string, id ids.ID, read bool) (models.Notification, error) {
	if err := m.enter("set_notification_read", id); err != nil {
		return models.Notification{}, err
	}
	if err := requireCanonical(id); err != nil {
		return models.Notification{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return models.Notification{}, notFound("set_notification_read")
	}
	n.Read = read
	m.notifications[id] = n
	return n, nil
}

func (m *MemoryBackend) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if err := m.enter("unread_count", userID); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, notif := range m.notifications {
		if notif.UserID == userID && !notif.Read {
			n++
		}
	}
	return n, nil
}

func page[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return []T{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
