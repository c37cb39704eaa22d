package localstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// Fixed storage keys.
const (
	KeyThoughts  = "thoughts.history"
	KeyFavorites = "thoughts.favorites"
	KeyRateLimit = "thoughts.rate_limit"
)

// HistoryCapacity is the size of the local thought ring buffer.
const HistoryCapacity = 100

// Store keeps typed collections in a KV. Missing keys read as empty;
// undecodable values are logged and read as empty so corrupted device data
// never takes the caller down.
type Store struct {
	kv     KV
	logger *zap.Logger

	// serializes read-modify-write cycles
	mu sync.Mutex
}

// New wraps kv.
func New(kv KV, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: logging.OrNop(logger)}
}

// KV exposes the underlying key-value store.
func (s *Store) KV() KV {
	return s.kv
}

// Thoughts returns the local history, newest first.
func (s *Store) Thoughts() ([]models.Thought, error) {
	var out []models.Thought
	if err := s.load(KeyThoughts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Favorites returns the local favorites in stored order.
func (s *Store) Favorites() ([]models.Favorite, error) {
	var out []models.Favorite
	if err := s.load(KeyFavorites, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PrependThought pushes t onto the front of the history and evicts the
// oldest entries beyond HistoryCapacity.
func (s *Store) PrependThought(t models.Thought) error {
	return s.UpdateThoughts(func(list []models.Thought) ([]models.Thought, error) {
		list = append([]models.Thought{t}, list...)
		if len(list) > HistoryCapacity {
			list = list[:HistoryCapacity]
		}
		return list, nil
	})
}

// UpdateThoughts applies fn to the history atomically with respect to other
// Store writers. An empty result removes the key.
func (s *Store) UpdateThoughts(fn func([]models.Thought) ([]models.Thought, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []models.Thought
	if err := s.load(KeyThoughts, &list); err != nil {
		return err
	}
	next, err := fn(list)
	if err != nil {
		return err
	}
	return s.storeOrRemove(KeyThoughts, next, len(next))
}

// UpdateFavorites is UpdateThoughts for favorites.
func (s *Store) UpdateFavorites(fn func([]models.Favorite) ([]models.Favorite, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []models.Favorite
	if err := s.load(KeyFavorites, &list); err != nil {
		return err
	}
	next, err := fn(list)
	if err != nil {
		return err
	}
	return s.storeOrRemove(KeyFavorites, next, len(next))
}

// RemoveThoughts drops the given ids from the history.
func (s *Store) RemoveThoughts(remove map[ids.ID]struct{}) error {
	return s.UpdateThoughts(func(list []models.Thought) ([]models.Thought, error) {
		kept := list[:0]
		for _, t := range list {
			if _, gone := remove[t.ID]; !gone {
				kept = append(kept, t)
			}
		}
		return kept, nil
	})
}

// RemoveFavorites drops favorites whose thought id is in remove.
func (s *Store) RemoveFavorites(remove map[ids.ID]struct{}) error {
	return s.UpdateFavorites(func(list []models.Favorite) ([]models.Favorite, error) {
		kept := list[:0]
		for _, f := range list {
			if _, gone := remove[f.ThoughtID]; !gone {
				kept = append(kept, f)
			}
		}
		return kept, nil
	})
}

// ClearThoughts removes the history key.
func (s *Store) ClearThoughts() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.RemoveItem(KeyThoughts)
}

// ClearFavorites removes the favorites key.
func (s *Store) ClearFavorites() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.RemoveItem(KeyFavorites)
}

// LoadJSON decodes key into v with the same fail-open policy as the
// collections. It reports whether a usable value was found.
func (s *Store) LoadJSON(key string, v any) (bool, error) {
	raw, ok, err := s.kv.GetItem(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Warn("discarding corrupted local value", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// SaveJSON encodes v under key.
func (s *Store) SaveJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.SetItem(key, string(data))
}

func (s *Store) load(key string, v any) error {
	_, err := s.LoadJSON(key, v)
	return err
}

func (s *Store) storeOrRemove(key string, v any, n int) error {
	if n == 0 {
		return s.kv.RemoveItem(key)
	}
	return s.SaveJSON(key, v)
}
