package gamewatch

import "github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"

// compiledFilter decides which kinds a watcher forwards to its bus.
type compiledFilter struct {
	include map[event.Kind]struct{}
	exclude map[event.Kind]struct{}
}

// newCompiledFilter returns nil when both lists are empty.
func newCompiledFilter(include, exclude []event.Kind) *compiledFilter {
	if len(include) == 0 && len(exclude) == 0 {
		return nil
	}
	return &compiledFilter{
		include: kindSet(include),
		exclude: kindSet(exclude),
	}
}

func kindSet(kinds []event.Kind) map[event.Kind]struct{} {
	if len(kinds) == 0 {
		return nil
	}
	m := make(map[event.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		m[k] = struct{}{}
	}
	return m
}

// Allows reports whether k passes. Exclude takes precedence over include.
func (f *compiledFilter) Allows(k event.Kind) bool {
	if f == nil {
		return true
	}
	if len(f.include) > 0 {
		if _, ok := f.include[k]; !ok {
			return false
		}
	}
	if _, ok := f.exclude[k]; ok {
		return false
	}
	return true
}
