// Package persistence routes every thought and favorite operation to the
// on-device store or the remote backend.
//
// The choice is made per call by Select: the remote backend is used only
// when it is configured and a user id is present. Both strategies satisfy
// Repository so callers never branch on the backend themselves.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
)

// Route names a storage strategy.
type Route string

const (
	RouteLocal  Route = "local"
	RouteRemote Route = "remote"
)

// Select picks the route for one call.
func Select(configured bool, userID string) Route {
	if configured && userID != "" {
		return RouteRemote
	}
	return RouteLocal
}

// Repository is the contract both strategies implement. userID is ignored
// by the local strategy.
type Repository interface {
	SaveThought(ctx context.Context, t models.Thought, userID string) (models.Thought, error)
	ListThoughts(ctx context.Context, userID string, limit, offset int) ([]models.Thought, error)
	DeleteThought(ctx context.Context, id ids.ID, userID string) error
	AddFavorite(ctx context.Context, t models.Thought, userID string) error
	RemoveFavorite(ctx context.Context, thoughtID ids.ID, userID string) error
	ListFavorites(ctx context.Context, userID string, limit int) ([]models.Favorite, error)
	IsFavorited(ctx context.Context, thoughtID ids.ID, userID string) (bool, error)
	ReorderFavorites(ctx context.Context, userID string, ordered []ids.ID) error
	Stats(ctx context.Context, userID string) (models.Stats, error)
	// RecordCounter bumps one engagement counter. A thought the strategy
	// does not hold is a no-op returning found=false.
	RecordCounter(ctx context.Context, id ids.ID, userID string, counter models.Counter) (t models.Thought, found bool, err error)
}

// ErrIncompleteOrder is returned when a reorder does not name every
// favorite exactly once.
var ErrIncompleteOrder = errors.New("reorder must list every favorite exactly once")

// ReorderError reports the first position that could not be written. The
// positions before it were written and are kept.
type ReorderError struct {
	Position  int
	ThoughtID ids.ID
	Err       error
}

func (e *ReorderError) Error() string {
	return fmt.Sprintf("reorder stopped at position %d (%s): %v", e.Position, e.ThoughtID, e.Err)
}

func (e *ReorderError) Unwrap() error {
	return e.Err
}

// checkOrder verifies ordered is a permutation of current.
func checkOrder(current []ids.ID, ordered []ids.ID) error {
	if len(current) != len(ordered) {
		return fmt.Errorf("%w: got %d ids for %d favorites", ErrIncompleteOrder, len(ordered), len(current))
	}
	want := make(map[ids.ID]struct{}, len(current))
	for _, id := range current {
		want[id] = struct{}{}
	}
	for _, id := range ordered {
		if _, ok := want[id]; !ok {
			return fmt.Errorf("%w: unknown or repeated id %s", ErrIncompleteOrder, id)
		}
		delete(want, id)
	}
	return nil
}

func page[T any](list []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return []T{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
