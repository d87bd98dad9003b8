//go:build tinygo

// slow never returns from parse_line.
package main

import "unsafe"

//export abi_version
func abiVersion() uint32 { return 1 }

//export alloc
func alloc(size uint32) uint32 {
	buf := make([]byte, size+1)
	return uint32(uintptr(unsafe.Pointer(&buf[0])))
}

//export free
func free(ptr, size uint32) {}

//export parse_line
func parseLine(ptr, size uint32) uint64 {
	for {
	}
}

func main() {}
