//go:build wasip1

package abi

import "unsafe"

// DefaultArenaSize is the size of the region the guest heap manages.
// Allocations beyond it fail and collect returns the null descriptor.
const DefaultArenaSize = 4 << 20 // 4 MiB

// arena is pinned for the lifetime of the module by this package-level reference.
// The Go collector does not move heap objects, so its address is stable.
var arena = make([]byte, DefaultArenaSize)

var defaultHeap = NewHeap(arena, uint32(uintptr(unsafe.Pointer(unsafe.SliceData(arena))))) //nolint:gosec // G103,G115: wasm32 linear memory address

// DefaultHeap returns the heap shared by the module's exports.
func DefaultHeap() *Heap {
	return defaultHeap
}
