package realtime

import (
	"errors"
	"sync"
)

// Window is a bounded collection kept current by a change stream. Changes
// applied before Load are held back and replayed, in arrival order, on top
// of the loaded rows, so a subscription can be opened before the initial
// read without losing what is published in between.
type Window[T any] struct {
	mu      sync.Mutex
	items   []T
	pending []Change
	loaded  bool
	key     func(T) string
	size    int
}

// NewWindow returns an unloaded window of at most size rows.
func NewWindow[T any](key func(T) string, size int) *Window[T] {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Window[T]{key: key, size: size}
}

// Apply merges c, or buffers it while the window is not loaded. It reports
// whether the visible rows may have changed.
func (w *Window[T]) Apply(c Change) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded {
		w.pending = append(w.pending, c)
		return false, nil
	}
	next, err := Merge(w.items, c, w.key, w.size)
	w.items = next
	return err == nil, err
}

// Load installs the initial rows and replays buffered changes. Changes that
// cannot be decoded are skipped and reported together.
func (w *Window[T]) Load(initial []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(initial) > w.size {
		initial = initial[:w.size]
	}
	w.items = append([]T(nil), initial...)
	var errs []error
	for _, c := range w.pending {
		next, err := Merge(w.items, c, w.key, w.size)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		w.items = next
	}
	w.pending = nil
	w.loaded = true
	return errors.Join(errs...)
}

// Loaded reports whether Load has run.
func (w *Window[T]) Loaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// Items returns a copy of the visible rows.
func (w *Window[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append(make([]T, 0, len(w.items)), w.items...)
}
