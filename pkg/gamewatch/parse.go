package gamewatch

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/gamewatch/gamewatch-go/internal/tailer"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// ParseFile parses a whole file with p and returns its events in file order.
// The time gate does not apply; use WithParseTimeRange to narrow the result.
//
// Malformed lines are logged and skipped unless WithParseStopOnError is set.
func ParseFile(ctx context.Context, path string, p Parser, opts ...ParseOption) ([]event.Event, error) {
	var out []event.Event
	for ev, err := range ParseFileSeq(ctx, path, p, opts...) {
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// ParseFileSeq is the iterator form of ParseFile. Iteration stops after the
// first yielded error.
func ParseFileSeq(ctx context.Context, path string, p Parser, opts ...ParseOption) iter.Seq2[event.Event, error] {
	return func(yield func(event.Event, error) bool) {
		if p == nil {
			yield(event.Event{}, errors.New("a parser is required"))
			return
		}
		cfg := applyParseOptions(opts)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var lines []string
		t, err := tailer.Open(ctx, path, func(d tailer.LogLinesDelta) {
			lines = append(lines, d...)
		}, tailer.Config{FromStart: true, Once: true}, cfg.logger)
		if err != nil {
			yield(event.Event{}, &WatchError{Op: WatchOpTail, Path: path, Err: err})
			return
		}
		t.Wait()
		if err := ctx.Err(); err != nil {
			yield(event.Event{}, err)
			return
		}

		for _, line := range lines {
			result, err := safeParse(ctx, p, line)
			if err != nil {
				perr := &ParseError{Line: line, Err: err}
				if cfg.stopOnError {
					yield(event.Event{}, fmt.Errorf("%s: %w", path, perr))
					return
				}
				cfg.logger.Warn("skipping malformed line", "path", path, "error", perr)
			}
			for _, ev := range result.Events {
				if !cfg.keep(ev) {
					continue
				}
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

func (c *parseConfig) keep(ev event.Event) bool {
	if !c.filter.Allows(ev.Kind) {
		return false
	}
	if !c.since.IsZero() && ev.Time.Before(c.since) {
		return false
	}
	if !c.until.IsZero() && !ev.Time.Before(c.until) {
		return false
	}
	return true
}
