package pattern

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gamewatch/gamewatch-go/internal/safefile"
)

const (
	// MaxPatternFileSize bounds the YAML file.
	MaxPatternFileSize = 1 << 20

	// MaxPatternLength bounds a single regex.
	MaxPatternLength = 512

	// MaxPatternCount bounds the number of patterns per file.
	MaxPatternCount = 1000

	// SupportedVersion is the only accepted file version.
	SupportedVersion = 1
)

// sanitizePathError drops the path from an *os.PathError so it is not echoed
// back to users of a service that loads their files.
func sanitizePathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", pathErr.Op, pathErr.Err)
	}
	return err
}

// Load reads and validates the pattern file at path.
//
// Only regular files are accepted; a FIFO or device is rejected before any
// read. The file is read through a limit of MaxPatternFileSize bytes and the
// error never includes the path.
//
// Example:
//
//	pf, err := pattern.Load("combat-patterns.yaml")
//	if err != nil {
//	    log.Fatalf("loading patterns: %v", err)
//	}
func Load(path string) (*PatternFile, error) {
	data, err := safefile.ReadRegular(path, MaxPatternFileSize)
	switch {
	case errors.Is(err, safefile.ErrNotRegularFile):
		return nil, errors.New("pattern file must be a regular file")
	case errors.Is(err, safefile.ErrTooLarge):
		return nil, fmt.Errorf("pattern file too large (max %d bytes)", MaxPatternFileSize)
	case err != nil:
		return nil, fmt.Errorf("reading pattern file: %w", sanitizePathError(err))
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates a pattern file held in memory.
//
// Example:
//
//	data := []byte("version: 1\npatterns:\n  - id: dmg\n    event_type: damage\n    regex: ...")
//	pf, err := pattern.LoadBytes(data)
func LoadBytes(data []byte) (*PatternFile, error) {
	if len(data) == 0 {
		return nil, errors.New("pattern file is empty")
	}
	if len(data) > MaxPatternFileSize {
		return nil, fmt.Errorf("pattern file too large: %d bytes (max %d)", len(data), MaxPatternFileSize)
	}

	var pf PatternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return &pf, nil
}

// Validate checks the schema:
//   - version equals SupportedVersion
//   - between 1 and MaxPatternCount patterns
//   - id, event_type and regex are set on every pattern
//   - ids are unique
//   - no regex exceeds MaxPatternLength
//
// Regexes are not compiled here; NewRegexParser does that.
func (pf *PatternFile) Validate() error {
	if pf.Version != SupportedVersion {
		return &ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (only version %d is supported)", pf.Version, SupportedVersion),
		}
	}
	if len(pf.Patterns) == 0 {
		return &ValidationError{Field: "patterns", Message: "at least one pattern is required"}
	}
	if len(pf.Patterns) > MaxPatternCount {
		return &ValidationError{
			Field:   "patterns",
			Message: fmt.Sprintf("too many patterns (%d), maximum allowed is %d", len(pf.Patterns), MaxPatternCount),
		}
	}

	seen := make(map[string]int, len(pf.Patterns))
	for i, p := range pf.Patterns {
		switch {
		case p.ID == "":
			return &PatternError{Index: i, Field: "id", Message: "id is required"}
		case p.EventType == "":
			return &PatternError{Index: i, ID: p.ID, Field: "event_type", Message: "event_type is required"}
		case p.Regex == "":
			return &PatternError{Index: i, ID: p.ID, Field: "regex", Message: "regex is required"}
		case len(p.Regex) > MaxPatternLength:
			return &PatternError{
				Index:   i,
				ID:      p.ID,
				Field:   "regex",
				Message: fmt.Sprintf("pattern too long: %d bytes (max %d)", len(p.Regex), MaxPatternLength),
			}
		}
		if prev, dup := seen[p.ID]; dup {
			return &PatternError{
				Index:   i,
				ID:      p.ID,
				Field:   "id",
				Message: fmt.Sprintf("duplicate id (previously defined at pattern[%d])", prev),
			}
		}
		seen[p.ID] = i
	}
	return nil
}
