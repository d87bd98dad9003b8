package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamewatch/gamewatch-go/internal/parser"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

func fixedNow() time.Time {
	return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
}

func TestParse_Events(t *testing.T) {
	p := New(time.UTC, fixedNow)

	events, matched, err := p.Parse("--- Log opened 2024-01-15 ---")
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Empty(t, events)

	tests := []struct {
		input string
		want  event.Event
	}{
		{
			input: "[21:04:05] Connecting to 203.0.113.7:27015",
			want: event.Event{
				Kind:    event.KindConnect,
				Time:    time.Date(2024, 1, 15, 21, 4, 5, 0, time.UTC),
				Payload: event.Connection{Server: "203.0.113.7:27015"},
			},
		},
		{
			input: "[21:04:06] Logged in as Alice Smith (id=7656119)\r",
			want: event.Event{
				Kind:    event.KindPlayerLogin,
				Time:    time.Date(2024, 1, 15, 21, 4, 6, 0, time.UTC),
				Payload: event.PlayerLogin{Name: "Alice Smith", ID: "7656119"},
			},
		},
		{
			input: "[23:59:59] Disconnected: kicked by server",
			want: event.Event{
				Kind:    event.KindDisconnect,
				Time:    time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC),
				Payload: event.Connection{Reason: "kicked by server"},
			},
		},
		{
			input: "[00:00:10] Connecting to lobby.example.net",
			want: event.Event{
				Kind:    event.KindConnect,
				Time:    time.Date(2024, 1, 16, 0, 0, 10, 0, time.UTC),
				Payload: event.Connection{Server: "lobby.example.net"},
			},
		},
		{
			input: "[00:01:00] Disconnected",
			want: event.Event{
				Kind:    event.KindDisconnect,
				Time:    time.Date(2024, 1, 16, 0, 1, 0, 0, time.UTC),
				Payload: event.Connection{},
			},
		},
	}

	for _, tt := range tests {
		events, matched, err := p.Parse(tt.input)
		require.NoError(t, err, tt.input)
		assert.True(t, matched, tt.input)
		require.Len(t, events, 1, tt.input)
		assert.Equal(t, tt.want, events[0], tt.input)
	}
}

func TestParse_NoHeaderUsesClockDate(t *testing.T) {
	p := New(time.UTC, fixedNow)

	events, _, err := p.Parse("[08:30:00] Connecting to 10.0.0.1:7777")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC), events[0].Time)
}

func TestParse_Unmatched(t *testing.T) {
	p := New(time.UTC, fixedNow)
	for _, line := range []string{
		"",
		"[21:04:05] Loading textures",
		"Connecting to 10.0.0.1",
		"random noise",
	} {
		events, matched, err := p.Parse(line)
		require.NoError(t, err, line)
		assert.False(t, matched, line)
		assert.Empty(t, events, line)
	}
}

func TestParse_Malformed(t *testing.T) {
	p := New(time.UTC, fixedNow)

	_, _, err := p.Parse("[25:00:00] Connecting to 10.0.0.1")
	assert.ErrorIs(t, err, parser.ErrMalformed)

	_, _, err = p.Parse("Log opened 2024-02-30")
	assert.ErrorIs(t, err, parser.ErrMalformed)
}
