package parser

import (
	"fmt"
	"strings"
)

// SplitQuoted splits s on sep, treating double-quoted sections as opaque.
// Quotes are removed from the returned fields.
func SplitQuoted(s string, sep byte) ([]string, error) {
	var fields []string
	var b strings.Builder
	inQuotes := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == sep && !inQuotes:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("%w: unterminated quote", ErrMalformed)
	}
	return append(fields, b.String()), nil
}
