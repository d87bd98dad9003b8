// Package parser holds the pieces shared by the per-game line parsers in its
// subpackages.
//
// A game parser is a pure function of the line plus a little local state
// (the current date, open tasks). It is not safe for concurrent use; the
// watcher feeds it one line at a time.
package parser

import (
	"errors"
	"strings"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// ErrMalformed marks a line that belongs to the parser's format but could
// not be decoded.
var ErrMalformed = errors.New("malformed line")

// LineParser is implemented by every game parser.
//
// Parse returns matched=false for lines it does not recognise. A line can
// match without producing events, e.g. a header that only updates state.
type LineParser interface {
	Parse(line string) (events []event.Event, matched bool, err error)
}

// TrimLine strips the line terminator left by CRLF logs and trailing blanks.
func TrimLine(line string) string {
	return strings.TrimRight(line, "\r\n \t")
}
