package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

func TestValidEventTypeNames(t *testing.T) {
	names := ValidEventTypeNames()
	if len(names) == 0 {
		t.Fatal("ValidEventTypeNames() is empty")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("ValidEventTypeNames() not sorted: %q > %q", names[i-1], names[i])
		}
	}
	for _, want := range []string{"kill", "match_start", "task_finish", "custom"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("ValidEventTypeNames() missing %q", want)
		}
	}
}

func TestNormalizeEventTypes(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []event.Kind
		wantErr string
	}{
		{name: "nil", in: nil, want: nil},
		{name: "single", in: []string{"kill"}, want: []event.Kind{event.KindKill}},
		{name: "case and space", in: []string{" Kill ", "ROUND_END"}, want: []event.Kind{event.KindKill, event.KindRoundEnd}},
		{name: "duplicates dropped", in: []string{"death", "kill", "DEATH"}, want: []event.Kind{event.KindDeath, event.KindKill}},
		{name: "unknown", in: []string{"kill", "headshot"}, wantErr: `unknown event type "headshot"`},
		{name: "empty", in: []string{"kill", "  "}, wantErr: "empty event type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEventTypes(tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("NormalizeEventTypes(%q) error = %v, want %q", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeEventTypes(%q) error = %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeEventTypes(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRejectOverlap(t *testing.T) {
	if err := RejectOverlap([]event.Kind{event.KindKill}, []event.Kind{event.KindDeath}); err != nil {
		t.Errorf("RejectOverlap() disjoint error = %v", err)
	}
	if err := RejectOverlap(nil, []event.Kind{event.KindDeath}); err != nil {
		t.Errorf("RejectOverlap() nil includes error = %v", err)
	}
	err := RejectOverlap([]event.Kind{event.KindKill, event.KindDeath}, []event.Kind{event.KindDeath})
	if err == nil || !strings.Contains(err.Error(), "death") {
		t.Errorf("RejectOverlap() overlap error = %v, want mention of death", err)
	}
}

func TestKindFilters(t *testing.T) {
	inc, exc, err := kindFilters([]string{"kill"}, []string{"death"})
	if err != nil {
		t.Fatalf("kindFilters() error = %v", err)
	}
	if !reflect.DeepEqual(inc, []event.Kind{event.KindKill}) || !reflect.DeepEqual(exc, []event.Kind{event.KindDeath}) {
		t.Errorf("kindFilters() = %v, %v", inc, exc)
	}
	if _, _, err := kindFilters([]string{"kill"}, []string{"Kill"}); err == nil {
		t.Error("kindFilters() expected overlap error")
	}
	if _, _, err := kindFilters(nil, []string{"nope"}); err == nil {
		t.Error("kindFilters() expected unknown type error")
	}
}
