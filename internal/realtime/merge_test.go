package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func itemKey(i item) string { return i.ID }

func mustChange(t *testing.T, typ EventType, rec item) Change {
	t.Helper()
	c, err := NewChange("thoughts", typ, rec, nil)
	require.NoError(t, err)
	return c
}

func TestMergeUpdateThenDelete(t *testing.T) {
	items := []item{{ID: "t1", Text: "one"}, {ID: "t2", Text: "two"}}

	got, err := Merge(items, mustChange(t, Update, item{ID: "t1", Text: "one'"}), itemKey, DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "t1", Text: "one'"}, {ID: "t2", Text: "two"}}, got)
	assert.Equal(t, "one", items[0].Text, "input must not be modified")

	got, err = Merge(got, DeleteChange("thoughts", "t2", nil), itemKey, DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "t1", Text: "one'"}}, got)
}

func TestMergeUpdateUnknownIsNoop(t *testing.T) {
	items := []item{{ID: "t1"}}
	got, err := Merge(items, mustChange(t, Update, item{ID: "zz", Text: "x"}), itemKey, DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestMergeInsertPrependsAndCaps(t *testing.T) {
	var items []item
	for i := 0; i < 5; i++ {
		var err error
		items, err = Merge(items, mustChange(t, Insert, item{ID: string(rune('a' + i))}), itemKey, 3)
		require.NoError(t, err)
	}
	assert.Equal(t, []item{{ID: "e"}, {ID: "d"}, {ID: "c"}}, items)
}

func TestMergeInsertDoesNotDuplicate(t *testing.T) {
	items := []item{{ID: "a", Text: "old"}, {ID: "b"}}
	got, err := Merge(items, mustChange(t, Insert, item{ID: "b", Text: "new"}), itemKey, DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "b", Text: "new"}, {ID: "a", Text: "old"}}, got)
}

func TestMergeDeleteByRecord(t *testing.T) {
	items := []item{{ID: "a"}, {ID: "b"}}
	got, err := Merge(items, mustChange(t, Delete, item{ID: "a"}), itemKey, DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "b"}}, got)
}

func TestMergeRejectsBadRecord(t *testing.T) {
	items := []item{{ID: "a"}}
	got, err := Merge(items, Change{Table: "thoughts", Type: Insert, Record: []byte("{")}, itemKey, DefaultWindow)
	assert.Error(t, err)
	assert.Equal(t, items, got)

	_, err = Merge(items, Change{Type: All}, itemKey, DefaultWindow)
	assert.Error(t, err)
}

func TestSpecWants(t *testing.T) {
	c := Change{Table: "notifications", Type: Insert, Columns: map[string]string{"user_id": "u1"}}

	tests := []struct {
		name string
		spec Spec
		want bool
	}{
		{"table only", Spec{Table: "notifications"}, true},
		{"other table", Spec{Table: "thoughts"}, false},
		{"matching filter", Spec{Table: "notifications", Filter: Filter{Column: "user_id", Value: "u1"}}, true},
		{"other user", Spec{Table: "notifications", Filter: Filter{Column: "user_id", Value: "u2"}}, false},
		{"insert allowed", Spec{Table: "notifications", Events: []EventType{Insert}}, true},
		{"only deletes", Spec{Table: "notifications", Events: []EventType{Delete}}, false},
		{"wildcard", Spec{Table: "notifications", Events: []EventType{All}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.Wants(c))
		})
	}
}

func TestWindowReplaysChangesFromBeforeLoad(t *testing.T) {
	w := NewWindow(itemKey, 3)

	changed, err := w.Apply(mustChange(t, Insert, item{ID: "t3", Text: "three"}))
	require.NoError(t, err)
	assert.False(t, changed)
	_, err = w.Apply(mustChange(t, Update, item{ID: "t1", Text: "one'"}))
	require.NoError(t, err)
	assert.False(t, w.Loaded())
	assert.Empty(t, w.Items())

	require.NoError(t, w.Load([]item{{ID: "t1", Text: "one"}, {ID: "t2", Text: "two"}}))
	assert.Equal(t, []item{{ID: "t3", Text: "three"}, {ID: "t1", Text: "one'"}, {ID: "t2", Text: "two"}}, w.Items())

	changed, err = w.Apply(DeleteChange("thoughts", "t2", nil))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []item{{ID: "t3", Text: "three"}, {ID: "t1", Text: "one'"}}, w.Items())
}

func TestWindowLoadCapsAndReportsBadChanges(t *testing.T) {
	w := NewWindow(itemKey, 2)
	_, err := w.Apply(Change{Table: "thoughts", Type: Insert, Record: []byte(`"nope"`)})
	require.NoError(t, err)

	err = w.Load([]item{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	assert.Error(t, err)
	assert.Equal(t, []item{{ID: "a"}, {ID: "b"}}, w.Items())
}
