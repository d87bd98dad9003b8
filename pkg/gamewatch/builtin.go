package gamewatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gamewatch/gamewatch-go/internal/parser"
	"github.com/gamewatch/gamewatch-go/internal/parser/combatlog"
	"github.com/gamewatch/gamewatch-go/internal/parser/session"
	"github.com/gamewatch/gamewatch-go/internal/parser/tasklog"
)

// BuiltinOptions tunes the built-in parsers.
type BuiltinOptions struct {
	// Location for timestamps without a zone. Nil means time.Local.
	Location *time.Location

	// Year for combat logs, whose timestamps omit it. Zero means this year.
	Year int
}

var builtins = map[string]func(BuiltinOptions) parser.LineParser{
	"tasklog": func(o BuiltinOptions) parser.LineParser {
		return tasklog.New(o.Location)
	},
	"session": func(o BuiltinOptions) parser.LineParser {
		return session.New(o.Location, nil)
	},
	"combatlog": func(o BuiltinOptions) parser.LineParser {
		return combatlog.New(o.Year, o.Location)
	},
}

// BuiltinNames lists the built-in parser names.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewBuiltinParser returns a fresh instance of a built-in game parser.
// Each instance keeps its own state and must not be shared between files.
func NewBuiltinParser(name string, opts BuiltinOptions) (Parser, error) {
	ctor, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown parser %q (available: %v)", name, BuiltinNames())
	}
	return &lineParser{p: ctor(opts)}, nil
}

// lineParser adapts a stateful internal parser to Parser.
type lineParser struct {
	mu sync.Mutex
	p  parser.LineParser
}

func (l *lineParser) ParseLine(ctx context.Context, line string) (ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return ParseResult{}, err
	}
	l.mu.Lock()
	events, matched, err := l.p.Parse(line)
	l.mu.Unlock()
	if err != nil {
		return ParseResult{}, err
	}
	return ParseResult{Events: events, Matched: matched}, nil
}
