package event

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   Kind
		wantOK bool
	}{
		{"exact", "kill", KindKill, true},
		{"uppercase", "MATCH_START", KindMatchStart, true},
		{"mixed case", "Round_Live", KindRoundLive, true},
		{"whitespace", "\ttask_finish ", KindTaskFinish, true},
		{"unknown", "headshot", "", false},
		{"empty", "", "", false},
		{"internal space", "match start", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseKind(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypeNames(t *testing.T) {
	names := TypeNames()
	assert.Len(t, names, len(allKinds))
	assert.True(t, sort.StringsAreSorted(names))

	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
		k, ok := ParseKind(n)
		require.True(t, ok)
		assert.Equal(t, n, string(k))
	}
}

func TestAccepts(t *testing.T) {
	tests := []struct {
		kind Kind
		p    Payload
		want bool
	}{
		{KindMatchStart, MatchStart{}, true},
		{KindMatchEnd, MatchEnd{}, true},
		{KindMatchEnd, MatchStart{}, false},
		{KindRoundStart, Round{}, true},
		{KindRoundLive, Round{}, true},
		{KindRoundEnd, Round{}, true},
		{KindBombPlanted, BombPlanted{}, true},
		{KindKill, Kill{}, true},
		{KindDeath, Kill{}, true},
		{KindAssist, Kill{}, true},
		{KindKill, Round{}, false},
		{KindPlayerLogin, PlayerLogin{}, true},
		{KindConnect, Connection{}, true},
		{KindDisconnect, Connection{}, true},
		{KindTaskStart, Task{}, true},
		{KindTaskFinish, Task{}, true},
		{KindCustom, Custom{}, true},
		{KindCustom, Task{}, false},
		{KindKill, nil, true},
		{Kind("bogus"), nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Accepts(tt.kind, tt.p), "%s %T", tt.kind, tt.p)
	}
}

func TestEvent_JSON(t *testing.T) {
	ts := time.Date(2024, 3, 1, 20, 15, 0, 0, time.UTC)
	ev := Event{
		Kind: KindKill,
		Time: ts,
		Payload: Kill{
			Round:      3,
			Killer:     "76561198000000001",
			Weapon:     "weapon_ak47",
			Headshot:   true,
			BestEffort: true,
		},
	}
	require.True(t, ev.Valid())

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "kill",
		"timestamp": "2024-03-01T20:15:00Z",
		"payload": {"round": 3, "killer": "76561198000000001", "weapon": "weapon_ak47", "headshot": true, "best_effort": true}
	}`, string(data))
}
