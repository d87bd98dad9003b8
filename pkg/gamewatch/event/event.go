// Package event defines the events produced by gamewatch watchers.
//
// It is separate from package gamewatch so that the internal parsers can
// build events without importing the watcher.
package event

import (
	"sort"
	"strings"
	"time"
)

// Kind identifies what happened.
type Kind string

const (
	KindMatchStart  Kind = "match_start"
	KindMatchEnd    Kind = "match_end"
	KindRoundStart  Kind = "round_start"
	KindRoundLive   Kind = "round_live"
	KindRoundEnd    Kind = "round_end"
	KindBombPlanted Kind = "bomb_planted"
	KindKill        Kind = "kill"
	KindDeath       Kind = "death"
	KindAssist      Kind = "assist"
	KindPlayerLogin Kind = "player_login"
	KindConnect     Kind = "connect"
	KindDisconnect  Kind = "disconnect"
	KindTaskStart   Kind = "task_start"
	KindTaskFinish  Kind = "task_finish"

	// KindCustom is produced by pattern files and plugins.
	KindCustom Kind = "custom"
)

// allKinds is the canonical list. Add new kinds here and in payloadKinds.
var allKinds = []Kind{
	KindMatchStart, KindMatchEnd,
	KindRoundStart, KindRoundLive, KindRoundEnd,
	KindBombPlanted,
	KindKill, KindDeath, KindAssist,
	KindPlayerLogin, KindConnect, KindDisconnect,
	KindTaskStart, KindTaskFinish,
	KindCustom,
}

// TypeNames returns the sorted names of all kinds.
func TypeNames() []string {
	names := make([]string, len(allKinds))
	for i, k := range allKinds {
		names[i] = string(k)
	}
	sort.Strings(names)
	return names
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(allKinds))
	for _, k := range allKinds {
		m[string(k)] = k
	}
	return m
}()

// ParseKind converts a name to a Kind, case-insensitively and ignoring
// surrounding whitespace.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// Event is one occurrence of a Kind.
type Event struct {
	Kind    Kind      `json:"type"`
	Time    time.Time `json:"timestamp"`
	Payload Payload   `json:"payload,omitempty"`
}

// Valid reports whether the payload type is the one defined for the kind.
// A nil payload is valid for every known kind.
func (e Event) Valid() bool {
	return Accepts(e.Kind, e.Payload)
}
