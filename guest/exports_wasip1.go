//go:build wasip1

package guest

import (
	"github.com/reglet-dev/reglet-collect/internal/abi"
	"github.com/reglet-dev/reglet-collect/wireformat"
)

// DefaultHeap is the heap plugins should hand to NewCollector.
func DefaultHeap() *abi.Heap {
	return abi.DefaultHeap()
}

//go:wasmexport collect
func collect(capability int32) int32 {
	c := current()
	if c == nil {
		return 0
	}
	return int32(c.Collect(capability)) //nolint:gosec // G115: wasm32 address returned as i32
}

//go:wasmexport deallocate
func deallocate(addr int32) {
	if c := current(); c != nil {
		c.Deallocate(uint32(addr)) //nolint:gosec // G115: wasm32 address passed as i32
	}
}

//go:wasmexport abi_version
func abiVersion() int32 {
	return int32(wireformat.LayoutVersion)
}
