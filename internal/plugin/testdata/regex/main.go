//go:build tinygo

// regex uses the host regex functions to turn "[Loot] <item> x<n>" into a
// "loot" event.
package main

import (
	"encoding/json"
	"unsafe"
)

//go:wasmimport env regex_find_submatch
func regexFindSubmatch(strPtr, strLen, rePtr, reLen, outPtr, outLen uint32) uint32

//go:wasmimport env log
func hostLog(level, ptr, size uint32)

const pattern = `\[Loot\] (.+) x(\d+)`

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

	line := []byte(in.Line)
	re := []byte(pattern)
	out := make([]byte, 1024)
	n := regexFindSubmatch(ptrOf(line), uint32(len(line)), ptrOf(re), uint32(len(re)), ptrOf(out), uint32(len(out)))
	if n == 0 || n == 0xFFFFFFFF {
		return write(map[string]any{"ok": true, "events": []any{}})
	}

	var groups []string
	if err := json.Unmarshal(out[:n], &groups); err != nil || len(groups) != 3 {
		return write(map[string]any{"ok": false, "error": "bad submatch"})
	}
	msg := []byte("loot " + groups[1])
	hostLog(1, ptrOf(msg), uint32(len(msg)))

	return write(map[string]any{
		"ok": true,
		"events": []any{map[string]any{
			"type": "loot",
			"data": map[string]string{"item": groups[1], "count": groups[2]},
		}},
	})
}

func ptrOf(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(&b[0])))
}

func write(v any) uint64 {
	out, _ := json.Marshal(v)
	p := alloc(uint32(len(out)))
	copy(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(p))), len(out)), out)
	return uint64(len(out))<<32 | uint64(p)
}

func main() {}
