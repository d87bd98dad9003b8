//go:build tinygo

// echo returns one "echo" event carrying the line. Lines starting with "fail"
// produce a plugin error.
package main

import (
	"encoding/json"
	"strings"
	"unsafe"
)

var keep [][]byte

//export abi_version
func abiVersion() uint32 { return 1 }

//export alloc
func alloc(size uint32) uint32 {
	buf := make([]byte, size+1)
	keep = append(keep, buf)
	return uint32(uintptr(unsafe.Pointer(&buf[0])))
}

//export free
func free(ptr, size uint32) {}

//export parse_line
func parseLine(ptr, size uint32) uint64 {
	var in struct {
		Line string `json:"line"`
	}
	if err := json.Unmarshal(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), size), &in); err != nil {
		return write(map[string]any{"ok": false, "error": "bad input"})
	}
	if strings.HasPrefix(in.Line, "fail") {
		return write(map[string]any{"ok": false, "error": "asked to fail", "code": "E_FAIL"})
	}
	return write(map[string]any{
		"ok": true,
		"events": []any{map[string]any{
			"type": "echo",
			"time": "2024-01-01T00:00:00Z",
			"data": map[string]string{"line": in.Line},
		}},
	})
}

func write(v any) uint64 {
	out, _ := json.Marshal(v)
	p := alloc(uint32(len(out)))
	copy(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(p))), len(out)), out)
	return uint64(len(out))<<32 | uint64(p)
}

func main() {}
