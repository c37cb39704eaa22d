package realtime

import (
	"encoding/json"
	"fmt"
)

// DefaultWindow bounds live collections fed by inserts.
const DefaultWindow = 20

// Merge applies c to items and returns the new collection; items is not
// modified. Inserts prepend (replacing any entry with the same key) and the
// result is capped to window when window > 0. Updates replace by key and are
// a no-op when the key is absent. Deletes remove by key. key extracts a
// record's identifier.
func Merge[T any](items []T, c Change, key func(T) string, window int) ([]T, error) {
	switch c.Type {
	case Insert:
		rec, err := decode[T](c)
		if err != nil {
			return items, err
		}
		k := key(rec)
		out := make([]T, 0, len(items)+1)
		out = append(out, rec)
		for _, it := range items {
			if key(it) != k {
				out = append(out, it)
			}
		}
		if window > 0 && len(out) > window {
			out = out[:window]
		}
		return out, nil

	case Update:
		rec, err := decode[T](c)
		if err != nil {
			return items, err
		}
		k := key(rec)
		for i, it := range items {
			if key(it) == k {
				out := append([]T(nil), items...)
				out[i] = rec
				return out, nil
			}
		}
		return items, nil

	case Delete:
		k := c.OldID
		if k == "" && len(c.Record) > 0 {
			rec, err := decode[T](c)
			if err != nil {
				return items, err
			}
			k = key(rec)
		}
		out := make([]T, 0, len(items))
		for _, it := range items {
			if key(it) != k {
				out = append(out, it)
			}
		}
		return out, nil

	default:
		return items, fmt.Errorf("unknown change type %q", c.Type)
	}
}

func decode[T any](c Change) (T, error) {
	var rec T
	if err := json.Unmarshal(c.Record, &rec); err != nil {
		return rec, fmt.Errorf("decode %s %s record: %w", c.Table, c.Type, err)
	}
	return rec, nil
}
