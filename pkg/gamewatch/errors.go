package gamewatch

import (
	"errors"
	"fmt"

	"github.com/gamewatch/gamewatch-go/internal/logfinder"
)

// Sentinel errors returned by this package.
var (
	// ErrLogDirNotFound is returned when no log directory could be resolved.
	ErrLogDirNotFound = logfinder.ErrLogDirNotFound

	// ErrNoLogFiles is returned when the log directory holds no matching file.
	ErrNoLogFiles = logfinder.ErrNoLogFiles

	// ErrWatcherClosed is returned by Start after Stop.
	ErrWatcherClosed = errors.New("watcher closed")

	// ErrAlreadyWatching is returned by a second Start.
	ErrAlreadyWatching = errors.New("already watching")
)

// WatchOp names the watcher step that failed.
type WatchOp string

const (
	WatchOpFindDir    WatchOp = "find_dir"
	WatchOpFindLatest WatchOp = "find_latest"
	WatchOpTail       WatchOp = "tail"
	WatchOpParse      WatchOp = "parse"
)

// WatchError is a setup failure of a Watcher.
type WatchError struct {
	Op   WatchOp
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("watch %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("watch %s: %v", e.Op, e.Err)
}

func (e *WatchError) Unwrap() error {
	return e.Err
}

// ParseError wraps a parser failure with the offending line.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", truncate(e.Line, 120), e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
