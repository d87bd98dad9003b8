package gamewatch

import (
	"context"
	"errors"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// ParseResult is the outcome of parsing one line.
type ParseResult struct {
	Events []event.Event

	// Matched can be true with no Events, e.g. for a header line that only
	// updates parser state.
	Matched bool
}

// Parser turns a log line into events.
//
// Unrecognised lines return Matched=false and a nil error. An error means the
// line looked like something the parser handles but was malformed; the
// watcher logs it and moves on.
type Parser interface {
	ParseLine(ctx context.Context, line string) (ParseResult, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, line string) (ParseResult, error)

// ParseLine implements Parser.
func (f ParserFunc) ParseLine(ctx context.Context, line string) (ParseResult, error) {
	return f(ctx, line)
}

// ChainMode specifies how ParserChain runs its parsers.
type ChainMode int

const (
	// ChainAll runs every parser and combines the results (default).
	ChainAll ChainMode = iota

	// ChainFirst stops at the first parser that matches.
	ChainFirst

	// ChainContinueOnError skips failing parsers and returns their errors
	// joined, together with whatever the others produced.
	ChainContinueOnError
)

// String returns the mode name.
func (m ChainMode) String() string {
	switch m {
	case ChainAll:
		return "all"
	case ChainFirst:
		return "first"
	case ChainContinueOnError:
		return "continue-on-error"
	}
	return "unknown"
}

// ParserChain combines parsers.
type ParserChain struct {
	Mode    ChainMode
	Parsers []Parser
}

// ParseLine implements Parser.
//
// On context cancellation it returns the events collected so far along with
// the context error.
func (c *ParserChain) ParseLine(ctx context.Context, line string) (ParseResult, error) {
	var all []event.Event
	var errs []error
	matched := false

	for _, p := range c.Parsers {
		if err := ctx.Err(); err != nil {
			return ParseResult{Events: all, Matched: matched}, err
		}
		if p == nil {
			continue
		}

		result, err := p.ParseLine(ctx, line)
		if err != nil {
			if c.Mode == ChainContinueOnError {
				errs = append(errs, err)
				continue
			}
			return ParseResult{}, err
		}
		if !result.Matched {
			continue
		}
		matched = true
		all = append(all, result.Events...)
		if c.Mode == ChainFirst {
			break
		}
	}

	if len(errs) > 0 {
		return ParseResult{Events: all, Matched: matched}, errors.Join(errs...)
	}
	return ParseResult{Events: all, Matched: matched}, nil
}

var (
	_ Parser = ParserFunc(nil)
	_ Parser = (*ParserChain)(nil)
)
