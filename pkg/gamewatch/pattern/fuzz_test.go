package pattern

import (
	"context"
	"testing"
)

func FuzzRegexParser_ParseLine(f *testing.F) {
	p, err := NewRegexParser(&PatternFile{
		Version:         1,
		TimestampLayout: "2006-01-02 15:04:05",
		Patterns: []Pattern{
			{ID: "plain", EventType: "plain", Regex: `Test: (\w+)`},
			{ID: "named", EventType: "named", Regex: `Player (?P<name>\w+) score (?P<points>\d+)`},
			{ID: "timed", EventType: "timed", Regex: `^(?P<time>\S+ \S+) won (?P<amount>\d+)`},
		},
	})
	if err != nil {
		f.Fatalf("creating parser: %v", err)
	}

	f.Add("2024-01-15 23:59:59 Test: ABC123")
	f.Add("2024-01-15 23:59:59 Player Alice score 100")
	f.Add("9999-99-99 99:99:99 won 5")
	f.Add("")
	f.Add(string([]byte{0xff, 0xfe, 0xfd}))

	f.Fuzz(func(t *testing.T, line string) {
		result, err := p.ParseLine(context.Background(), line)
		if err != nil {
			t.Fatalf("ParseLine returned error: %v", err)
		}
		if result.Matched != (len(result.Events) > 0) {
			t.Fatalf("Matched=%v with %d events", result.Matched, len(result.Events))
		}
		for _, ev := range result.Events {
			if !ev.Valid() {
				t.Fatalf("invalid event %+v", ev)
			}
		}
	})
}
