// Package combatlog parses comma-separated combat log records:
//
//	1/15 21:04:05.123  PARTY_KILL,Player-1,"Alice",0x511,0x0,Creature-9,"Hogger, the Mighty",0xa48,0x0
//
// The timestamp has no year; it is supplied by the caller.
package combatlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/gamewatch/gamewatch-go/internal/parser"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

const timestampLayout = "2006 1/2 15:04:05"

// Record types handled by the parser.
const (
	partyKill      = "PARTY_KILL"
	unitDied       = "UNIT_DIED"
	encounterStart = "ENCOUNTER_START"
	encounterEnd   = "ENCOUNTER_END"
)

// Unit records carry source GUID, name, flags, raid flags, then the same
// four for the destination.
const (
	fieldSrcName  = 2
	fieldDestName = 6
	unitFields    = 9
)

// Parser converts combat log records into kill, death and encounter events.
type Parser struct {
	year int
	loc  *time.Location

	encounter string
}

// New returns a parser stamping records with year in loc (nil: time.Local).
// A zero year means the current year.
func New(year int, loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	if year == 0 {
		year = time.Now().In(loc).Year()
	}
	return &Parser{year: year, loc: loc}
}

// Parse implements parser.LineParser.
func (p *Parser) Parse(line string) ([]event.Event, bool, error) {
	line = parser.TrimLine(line)
	stamp, record, ok := strings.Cut(line, "  ")
	if !ok {
		return nil, false, nil
	}

	typ, _, _ := strings.Cut(record, ",")
	switch typ {
	case partyKill, unitDied, encounterStart, encounterEnd:
	default:
		return nil, false, nil
	}

	ts, err := time.ParseInLocation(timestampLayout, fmt.Sprintf("%d %s", p.year, strings.TrimSpace(stamp)), p.loc)
	if err != nil {
		return nil, false, fmt.Errorf("%w: timestamp: %v", parser.ErrMalformed, err)
	}

	fields, err := parser.SplitQuoted(record, ',')
	if err != nil {
		return nil, false, err
	}

	switch typ {
	case partyKill, unitDied:
		if len(fields) < unitFields {
			return nil, false, fmt.Errorf("%w: %s has %d fields, want %d", parser.ErrMalformed, typ, len(fields), unitFields)
		}
		if typ == unitDied {
			return []event.Event{{
				Kind:    event.KindDeath,
				Time:    ts,
				Payload: event.Kill{Victim: fields[fieldDestName]},
			}}, true, nil
		}
		return []event.Event{{
			Kind: event.KindKill,
			Time: ts,
			Payload: event.Kill{
				Killer: fields[fieldSrcName],
				Victim: fields[fieldDestName],
			},
		}}, true, nil

	case encounterStart:
		// ENCOUNTER_START,id,"name",difficulty,groupSize
		if len(fields) < 5 {
			return nil, false, fmt.Errorf("%w: %s has %d fields, want 5", parser.ErrMalformed, typ, len(fields))
		}
		p.encounter = fields[2]
		return []event.Event{{
			Kind:    event.KindMatchStart,
			Time:    ts,
			Payload: event.MatchStart{Map: fields[2], Mode: fields[3]},
		}}, true, nil
	}

	// ENCOUNTER_END,id,"name",difficulty,groupSize,success
	if len(fields) < 6 {
		return nil, false, fmt.Errorf("%w: %s has %d fields, want 6", parser.ErrMalformed, typ, len(fields))
	}
	p.encounter = ""
	reason := event.EndGameOver
	if fields[5] != "1" {
		reason = event.EndWipe
	}
	return []event.Event{{
		Kind:    event.KindMatchEnd,
		Time:    ts,
		Payload: event.MatchEnd{Map: fields[2], Mode: fields[3], Reason: reason},
	}}, true, nil
}

// Encounter returns the name of the encounter in progress, if any.
func (p *Parser) Encounter() string {
	return p.encounter
}

var _ parser.LineParser = (*Parser)(nil)
