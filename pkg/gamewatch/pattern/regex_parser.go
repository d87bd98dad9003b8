package pattern

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// RegexParser matches lines against every pattern of a file and emits one
// custom event per matching pattern, in file order.
//
// RegexParser is safe for concurrent use.
type RegexParser struct {
	patterns []*compiledPattern
	layout   string
	loc      *time.Location
	now      func() time.Time
}

type compiledPattern struct {
	id        string
	eventType string
	regex     *regexp.Regexp
	names     []string // SubexpNames, index-aligned with matches
	timeIdx   int      // index of the time group, or -1
}

// Option configures a RegexParser.
type Option func(*RegexParser)

// WithLocation interprets timestamps in loc. Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(p *RegexParser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithClock stamps lines without a timestamp. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *RegexParser) {
		if now != nil {
			p.now = now
		}
	}
}

// NewRegexParser compiles every pattern of pf.
func NewRegexParser(pf *PatternFile, opts ...Option) (*RegexParser, error) {
	if pf == nil {
		return nil, fmt.Errorf("pattern file is nil")
	}

	p := &RegexParser{
		layout: pf.TimestampLayout,
		loc:    time.Local,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	p.patterns = make([]*compiledPattern, 0, len(pf.Patterns))
	for i, pat := range pf.Patterns {
		re, err := regexp.Compile(pat.Regex)
		if err != nil {
			return nil, &PatternError{
				Index:   i,
				ID:      pat.ID,
				Field:   "regex",
				Message: fmt.Sprintf("invalid regular expression: %v", err),
				Cause:   err,
			}
		}
		p.patterns = append(p.patterns, &compiledPattern{
			id:        pat.ID,
			eventType: pat.EventType,
			regex:     re,
			names:     re.SubexpNames(),
			timeIdx:   re.SubexpIndex(TimeGroup),
		})
	}
	return p, nil
}

// NewRegexParserFromFile loads path and compiles it.
func NewRegexParserFromFile(path string, opts ...Option) (*RegexParser, error) {
	pf, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewRegexParser(pf, opts...)
}

// ParseLine implements gamewatch.Parser.
func (p *RegexParser) ParseLine(ctx context.Context, line string) (gamewatch.ParseResult, error) {
	var events []event.Event

	for _, cp := range p.patterns {
		m := cp.regex.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		var data map[string]string
		for i := 1; i < len(cp.names) && i < len(m); i++ {
			if cp.names[i] == "" {
				continue
			}
			if data == nil {
				data = make(map[string]string, len(cp.names))
			}
			data[cp.names[i]] = m[i]
		}

		events = append(events, event.Event{
			Kind:    event.KindCustom,
			Time:    p.timestamp(line, cp, m),
			Payload: event.Custom{Type: cp.eventType, Data: data},
		})
	}

	if len(events) == 0 {
		return gamewatch.ParseResult{}, nil
	}
	return gamewatch.ParseResult{Events: events, Matched: true}, nil
}

func (p *RegexParser) timestamp(line string, cp *compiledPattern, m []string) time.Time {
	if p.layout == "" {
		return p.now()
	}
	src := ""
	switch {
	case cp.timeIdx > 0 && cp.timeIdx < len(m):
		src = m[cp.timeIdx]
	case len(line) >= len(p.layout):
		src = line[:len(p.layout)]
	}
	if ts, err := time.ParseInLocation(p.layout, src, p.loc); err == nil {
		return ts
	}
	return p.now()
}

var _ gamewatch.Parser = (*RegexParser)(nil)
