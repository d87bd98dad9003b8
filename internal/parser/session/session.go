// Package session parses game client console logs:
//
//	--- Log opened 2024-01-15 ---
//	[21:04:05] Connecting to 203.0.113.7:27015
//	[21:04:06] Logged in as Alice (id=7656119)
//	[23:59:59] Disconnected: kicked by server
//
// Lines carry only a time of day. The date comes from the last "Log opened"
// header and rolls over when the time of day goes backwards.
package session

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gamewatch/gamewatch-go/internal/parser"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

var (
	headerPattern = regexp.MustCompile(`Log opened:? (\d{4}-\d{2}-\d{2})`)
	linePattern   = regexp.MustCompile(`^\[(\d{1,2}):(\d{2}):(\d{2})\] (.*)$`)

	connectPattern    = regexp.MustCompile(`^Connecting to (\S+)`)
	disconnectPattern = regexp.MustCompile(`^Disconnected(?:: (.*))?$`)
	loginPattern      = regexp.MustCompile(`^Logged in as (.+?)(?: \(id=([^)\s]+)\))?$`)
)

// Parser carries the log date between lines.
type Parser struct {
	loc  *time.Location
	now  func() time.Time
	date time.Time
	last time.Time
}

// New returns a parser that interprets times in loc (nil: time.Local).
// Lines before the first header are dated with now (nil: time.Now).
func New(loc *time.Location, now func() time.Time) *Parser {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Parser{loc: loc, now: now}
}

// Parse implements parser.LineParser.
func (p *Parser) Parse(line string) ([]event.Event, bool, error) {
	line = parser.TrimLine(line)

	if m := headerPattern.FindStringSubmatch(line); m != nil {
		d, err := time.ParseInLocation("2006-01-02", m[1], p.loc)
		if err != nil {
			return nil, false, fmt.Errorf("%w: log header date: %v", parser.ErrMalformed, err)
		}
		p.date = d
		p.last = time.Time{}
		return nil, true, nil
	}

	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false, nil
	}
	body := m[4]

	var kind event.Kind
	var payload event.Payload
	switch {
	case connectPattern.MatchString(body):
		kind = event.KindConnect
		payload = event.Connection{Server: connectPattern.FindStringSubmatch(body)[1]}
	case disconnectPattern.MatchString(body):
		kind = event.KindDisconnect
		payload = event.Connection{Reason: strings.TrimSpace(disconnectPattern.FindStringSubmatch(body)[1])}
	case loginPattern.MatchString(body):
		lm := loginPattern.FindStringSubmatch(body)
		kind = event.KindPlayerLogin
		payload = event.PlayerLogin{Name: strings.TrimSpace(lm[1]), ID: lm[2]}
	default:
		return nil, false, nil
	}

	ts, err := p.stamp(m[1], m[2], m[3])
	if err != nil {
		return nil, false, err
	}
	return []event.Event{{Kind: kind, Time: ts, Payload: payload}}, true, nil
}

func (p *Parser) stamp(hh, mm, ss string) (time.Time, error) {
	var h, m, s int
	if _, err := fmt.Sscanf(hh+":"+mm+":"+ss, "%d:%d:%d", &h, &m, &s); err != nil {
		return time.Time{}, fmt.Errorf("%w: time of day: %v", parser.ErrMalformed, err)
	}
	if h > 23 || m > 59 || s > 59 {
		return time.Time{}, fmt.Errorf("%w: time of day %s:%s:%s out of range", parser.ErrMalformed, hh, mm, ss)
	}

	if p.date.IsZero() {
		y, mo, d := p.now().In(p.loc).Date()
		p.date = time.Date(y, mo, d, 0, 0, 0, 0, p.loc)
	}

	ts := time.Date(p.date.Year(), p.date.Month(), p.date.Day(), h, m, s, 0, p.loc)
	if !p.last.IsZero() && ts.Before(p.last) {
		p.date = p.date.AddDate(0, 0, 1)
		ts = ts.AddDate(0, 0, 1)
	}
	p.last = ts
	return ts, nil
}

var _ parser.LineParser = (*Parser)(nil)
