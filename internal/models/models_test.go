package models

import (
	"testing"
)

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" zen ", "", "zen", "time", "time ", "space"})
	want := []string{"zen", "time", "space"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeTags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeTags()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		thought Thought
		wantErr bool
	}{
		{"valid", Thought{Content: "x", Mood: MoodHumorous, Source: SourceTemplate}, false},
		{"missing content", Thought{Mood: MoodHumorous, Source: SourceTemplate}, true},
		{"bad mood", Thought{Content: "x", Mood: "angry", Source: SourceTemplate}, true},
		{"bad source", Thought{Content: "x", Mood: MoodScientific, Source: "scraped"}, true},
		{"empty tag", Thought{Content: "x", Mood: MoodScientific, Source: SourceGenerated, Tags: []string{""}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.thought)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatsAdd(t *testing.T) {
	s := NewStats()
	s.Add(Thought{Mood: MoodHumorous, Source: SourceTemplate, Views: 3, Likes: 1})
	s.Add(Thought{Mood: MoodHumorous, Source: SourceGenerated, Shares: 2})

	if s.TotalThoughts != 2 || s.TotalViews != 3 || s.TotalLikes != 1 || s.TotalShares != 2 {
		t.Errorf("unexpected totals: %+v", s)
	}
	if s.ByMood[MoodHumorous] != 2 || s.BySource[SourceTemplate] != 1 {
		t.Errorf("unexpected breakdown: %+v", s)
	}
}

func TestCounterBump(t *testing.T) {
	th := Thought{}
	for _, c := range []Counter{CounterViews, CounterLikes, CounterShares, CounterLikes} {
		if !c.Valid() {
			t.Fatalf("%s should be valid", c)
		}
		th.Bump(c)
	}
	if th.Views != 1 || th.Likes != 2 || th.Shares != 1 {
		t.Errorf("unexpected counters: %+v", th)
	}
	if Counter("hugs").Valid() {
		t.Error("unknown counter must be invalid")
	}
}
