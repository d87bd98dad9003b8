package main

import (
	"fmt"
	"strings"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// ValidEventTypeNames returns the sorted event type names accepted by
// --types and friends.
func ValidEventTypeNames() []string {
	return event.TypeNames()
}

// NormalizeEventTypes converts flag values to kinds. Matching is
// case-insensitive and duplicates are dropped.
func NormalizeEventTypes(values []string) ([]event.Kind, error) {
	if len(values) == 0 {
		return nil, nil
	}

	result := make([]event.Kind, 0, len(values))
	seen := make(map[event.Kind]struct{})

	for _, raw := range values {
		if strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("empty event type provided (input: %q); valid types: %s", raw, strings.Join(ValidEventTypeNames(), ", "))
		}

		k, ok := event.ParseKind(raw)
		if !ok {
			return nil, fmt.Errorf("unknown event type %q (valid: %s)", raw, strings.Join(ValidEventTypeNames(), ", "))
		}

		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, k)
	}

	return result, nil
}

// RejectOverlap returns an error if any kind is both included and excluded.
func RejectOverlap(includes, excludes []event.Kind) error {
	ex := make(map[event.Kind]struct{}, len(excludes))
	for _, k := range excludes {
		ex[k] = struct{}{}
	}
	for _, k := range includes {
		if _, ok := ex[k]; ok {
			return fmt.Errorf("event type %q cannot be both included and excluded", k)
		}
	}
	return nil
}

// kindFilters normalizes the include/exclude flag pair.
func kindFilters(include, exclude []string) ([]event.Kind, []event.Kind, error) {
	inc, err := NormalizeEventTypes(include)
	if err != nil {
		return nil, nil, err
	}
	exc, err := NormalizeEventTypes(exclude)
	if err != nil {
		return nil, nil, err
	}
	if err := RejectOverlap(inc, exc); err != nil {
		return nil, nil, err
	}
	return inc, exc, nil
}
