// Package plugin runs WebAssembly line parsers.
//
// A plugin module exports four functions:
//
//	abi_version() -> i32
//	alloc(size i32) -> i32
//	free(ptr i32, size i32)
//	parse_line(ptr i32, len i32) -> i64   // (out_len << 32) | out_ptr
//
// The host writes {"line": "..."} into a buffer obtained from alloc and reads
// back {"ok": true, "events": [{"type": "...", "time": "RFC 3339", "data": {...}}]}
// or {"ok": false, "error": "...", "code": "..."}.
//
// The "env" host module provides regex_match, regex_find_submatch, log and now_ms.
package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrABIVersionMismatch is returned when abi_version() is not ABIVersion.
	ErrABIVersionMismatch = errors.New("abi version mismatch")

	// ErrTimeout is returned when parse_line runs past the call timeout.
	ErrTimeout = errors.New("plugin timeout")

	// ErrTooLarge is returned for oversized modules, inputs and outputs.
	ErrTooLarge = errors.New("too large")

	// ErrClosed is returned by ParseLine after Close.
	ErrClosed = errors.New("plugin is closed")
)

// ABIError reports a missing or misbehaving export.
type ABIError struct {
	Function string
	Reason   string
}

func (e *ABIError) Error() string {
	return fmt.Sprintf("abi error in %s: %s", e.Function, e.Reason)
}

// PluginError is an error reported by the plugin itself.
type PluginError struct {
	Code    string
	Message string
}

func (e *PluginError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("plugin error %s: %s", e.Code, e.Message)
	}
	return "plugin error: " + e.Message
}

// RuntimeError wraps a wazero failure.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("wasm runtime error during %s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
