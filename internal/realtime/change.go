// Package realtime carries row-level change events and presence between the
// remote backend and the features that display live data.
package realtime

import (
	"encoding/json"
	"fmt"
)

// EventType is a change kind. All matches every kind in an allowlist.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
	All    EventType = "*"
)

// Change is one row-level notification as it travels on the wire.
type Change struct {
	Table   string            `json:"table"`
	Type    EventType         `json:"type"`
	Record  json.RawMessage   `json:"record,omitempty"`
	OldID   string            `json:"oldId,omitempty"`
	Columns map[string]string `json:"columns,omitempty"`
}

// NewChange encodes record into a Change. columns carries the values row
// filters may match on (for example user_id).
func NewChange(table string, typ EventType, record any, columns map[string]string) (Change, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Change{}, fmt.Errorf("encode %s change: %w", table, err)
	}
	return Change{Table: table, Type: typ, Record: raw, Columns: columns}, nil
}

// DeleteChange builds a delete notification for id.
func DeleteChange(table, id string, columns map[string]string) Change {
	return Change{Table: table, Type: Delete, OldID: id, Columns: columns}
}

// Filter is an equality match on one column, e.g. user_id=eq.<id>.
type Filter struct {
	Column string
	Value  string
}

// Matches reports whether c passes f. A zero filter matches everything.
func (f Filter) Matches(c Change) bool {
	if f.Column == "" {
		return true
	}
	return c.Columns[f.Column] == f.Value
}

// Spec selects which changes a subscription receives.
type Spec struct {
	Table  string
	Filter Filter
	Events []EventType // empty means All
}

// Wants reports whether c should be delivered under s.
func (s Spec) Wants(c Change) bool {
	if c.Table != s.Table || !s.Filter.Matches(c) {
		return false
	}
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == All || e == c.Type {
			return true
		}
	}
	return false
}
