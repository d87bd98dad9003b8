// Package tasklog parses task logs of the form
//
//	2024-01-15 21:04:05.123 [Task] Started: Daily Bounty (id=42)
//	2024-01-15 21:09:30.000 [Task] Completed: Daily Bounty (id=42)
//
// into task_start and task_finish events.
package tasklog

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gamewatch/gamewatch-go/internal/parser"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

const timestampLayout = "2006-01-02 15:04:05"

// marker is checked before running the regex.
const marker = "[Task]"

var linePattern = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d{1,9})?) \[Task\] (Started|Completed|Abandoned): (.+?)(?: \(id=([^)\s]+)\))?$`,
)

// Parser tracks open tasks so finish events carry a duration.
type Parser struct {
	loc  *time.Location
	open map[string]time.Time
}

// New returns a parser reading timestamps in loc. Nil means time.Local.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{loc: loc, open: make(map[string]time.Time)}
}

// Open returns the number of started but unfinished tasks.
func (p *Parser) Open() int {
	return len(p.open)
}

// Parse implements parser.LineParser.
func (p *Parser) Parse(line string) ([]event.Event, bool, error) {
	line = parser.TrimLine(line)
	if !strings.Contains(line, marker) {
		return nil, false, nil
	}

	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false, fmt.Errorf("%w: task line does not match format", parser.ErrMalformed)
	}

	ts, err := time.ParseInLocation(timestampLayout, m[1], p.loc)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", parser.ErrMalformed, err)
	}

	task := event.Task{Name: strings.TrimSpace(m[3]), ID: m[4]}
	key := task.ID
	if key == "" {
		key = task.Name
	}

	switch m[2] {
	case "Started":
		p.open[key] = ts
		return []event.Event{{Kind: event.KindTaskStart, Time: ts, Payload: task}}, true, nil
	case "Completed":
		task.Outcome = event.OutcomeCompleted
	default:
		task.Outcome = event.OutcomeAbandoned
	}

	if started, ok := p.open[key]; ok {
		if d := ts.Sub(started); d >= 0 {
			task.Duration = d
		}
		delete(p.open, key)
	}
	return []event.Event{{Kind: event.KindTaskFinish, Time: ts, Payload: task}}, true, nil
}

var _ parser.LineParser = (*Parser)(nil)
