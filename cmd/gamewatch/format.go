package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// ValidFormats lists all valid output formats.
var ValidFormats = map[string]bool{
	"jsonl":  true,
	"pretty": true,
}

// validateFormat rejects unknown --format values before any work starts.
func validateFormat(format string) error {
	if !ValidFormats[format] {
		return fmt.Errorf("invalid format %q (valid: jsonl, pretty)", format)
	}
	return nil
}

// OutputEvent writes an event in the specified format to the writer.
func OutputEvent(format string, ev event.Event, out io.Writer) error {
	switch format {
	case "jsonl":
		return OutputJSON(ev, out)
	case "pretty":
		return OutputPretty(ev, out)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// OutputJSON writes an event as one JSON line.
func OutputJSON(ev event.Event, out io.Writer) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// OutputPretty writes an event in human-readable format.
func OutputPretty(ev event.Event, out io.Writer) error {
	_, err := fmt.Fprintf(out, "[%s] %s\n", ev.Time.Format("15:04:05"), describe(ev))
	return err
}

func describe(ev event.Event) string {
	switch p := ev.Payload.(type) {
	case event.MatchStart:
		return fmt.Sprintf("> match started on %s (%s)", p.Map, p.Mode)
	case event.MatchEnd:
		return fmt.Sprintf("< match ended on %s: %s after %d rounds (K/D/A %d/%d/%d)",
			p.Map, p.Reason, p.Rounds, p.Totals.Kills, p.Totals.Deaths, p.Totals.Assists)
	case event.Round:
		switch ev.Kind {
		case event.KindRoundStart:
			return fmt.Sprintf("# round %d", p.Index)
		case event.KindRoundLive:
			return fmt.Sprintf("# round %d live", p.Index)
		default:
			if p.WinMethod != "" {
				return fmt.Sprintf("# round %d won by %s (%s)", p.Index, p.WinTeam, p.WinMethod)
			}
			return fmt.Sprintf("# round %d won by %s", p.Index, p.WinTeam)
		}
	case event.BombPlanted:
		return fmt.Sprintf("! bomb planted in round %d", p.Round)
	case event.Kill:
		return describeKill(ev.Kind, p)
	case event.PlayerLogin:
		return fmt.Sprintf("+ %s logged in", p.Name)
	case event.Connection:
		verb := "connected"
		if ev.Kind == event.KindDisconnect {
			verb = "disconnected"
		}
		if p.Server != "" {
			verb += " " + p.Server
		}
		if p.Reason != "" {
			verb += ": " + p.Reason
		}
		return "~ " + verb
	case event.Task:
		if ev.Kind == event.KindTaskStart {
			return fmt.Sprintf("> task %s started", p.Name)
		}
		return fmt.Sprintf("< task %s %s after %s", p.Name, p.Outcome, p.Duration)
	case event.Custom:
		if len(p.Data) > 0 {
			return fmt.Sprintf("* %s: %s", p.Type, formatData(p.Data))
		}
		return "* " + p.Type
	}
	return "? " + string(ev.Kind)
}

func describeKill(kind event.Kind, k event.Kill) string {
	var sb strings.Builder
	switch kind {
	case event.KindDeath:
		sb.WriteString("x died")
	case event.KindAssist:
		sb.WriteString("x assist")
	default:
		sb.WriteString("x kill")
		if k.Weapon != "" {
			sb.WriteString(" with " + k.Weapon)
		}
	}
	fmt.Fprintf(&sb, " (round %d)", k.Round)
	var flags []string
	if k.Headshot {
		flags = append(flags, "headshot")
	}
	if k.Flashed {
		flags = append(flags, "flashed")
	}
	if k.Smoked {
		flags = append(flags, "smoked")
	}
	if len(flags) > 0 {
		sb.WriteString(" [" + strings.Join(flags, ",") + "]")
	}
	return sb.String()
}

// formatData formats a map as sorted key=value pairs.
// Values are quoted if they contain spaces, equals signs, quotes, or control characters.
func formatData(data map[string]string) string {
	if len(data) == 0 {
		return ""
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(data))
	for _, k := range keys {
		parts = append(parts, quoteIfNeeded(k)+"="+quoteIfNeeded(data[k]))
	}
	return strings.Join(parts, " ")
}

// quoteIfNeeded quotes v if it holds a space, '=', a quote, a backslash or
// a control character.
func quoteIfNeeded(v string) string {
	if v == "" {
		return `""`
	}

	needsQuote := false
	for _, c := range v {
		if c == ' ' || c == '=' || c == '"' || c == '\\' || c < 0x20 || c == 0x7F {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return v
	}

	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range v {
		switch {
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '"':
			sb.WriteString(`\"`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c == 0x7F:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteRune(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// eventWriter serializes events from concurrent handlers onto one writer.
// The first write error is kept and reported through onError.
type eventWriter struct {
	mu      sync.Mutex
	format  string
	out     io.Writer
	err     error
	onError func(error)
}

func newEventWriter(format string, out io.Writer, onError func(error)) *eventWriter {
	return &eventWriter{format: format, out: out, onError: onError}
}

// Handle writes ev. It matches gamewatch.Handler.
func (w *eventWriter) Handle(ev event.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if err := OutputEvent(w.format, ev, w.out); err != nil {
		w.err = fmt.Errorf("output error: %w", err)
		if w.onError != nil {
			w.onError(w.err)
		}
	}
}

// Err returns the first write error.
func (w *eventWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
