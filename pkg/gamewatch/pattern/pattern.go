// Package pattern lets users describe a game's log lines in YAML instead of
// writing a parser. Each matching pattern produces a custom event whose data
// holds the regex's named captures.
package pattern

// PatternFile is the YAML document.
//
//	version: 1
//	timestamp_layout: "2006-01-02 15:04:05"
//	patterns:
//	  - id: loot_drop
//	    event_type: loot
//	    regex: '^(?P<time>\S+ \S+) Looted (?P<item>.+) x(?P<count>\d+)$'
//
// The event time is read from the "time" capture if the regex has one,
// otherwise from the start of the line, using TimestampLayout (Go reference
// time syntax). Lines without a parseable time are stamped with the clock.
type PatternFile struct {
	Version int `yaml:"version"`

	// TimestampLayout is a Go time layout. Empty disables timestamp parsing.
	TimestampLayout string `yaml:"timestamp_layout,omitempty"`

	Patterns []Pattern `yaml:"patterns"`
}

// Pattern is one rule.
type Pattern struct {
	// ID must be unique within the file.
	ID string `yaml:"id"`

	// EventType becomes event.Custom.Type.
	EventType string `yaml:"event_type"`

	// Regex uses RE2 syntax. Named groups go into event.Custom.Data.
	Regex string `yaml:"regex"`
}

// TimeGroup is the capture group name holding the event timestamp.
const TimeGroup = "time"
