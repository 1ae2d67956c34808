//go:build wasip1

package log

import (
	"runtime"
	"unsafe"

	"github.com/reglet-dev/reglet-collect/internal/abi"
)

// hostLogMessage is collect_host.log_message, registered by the host runtime.
//
//go:wasmimport collect_host log_message
func hostLogMessage(messagePacked uint64)

// sendToHost passes the payload to the host by pointer and length. The host
// copies it before returning, so the buffer only needs to live for the call.
func sendToHost(payload []byte) {
	if len(payload) == 0 {
		return
	}
	ptr := uint32(uintptr(unsafe.Pointer(unsafe.SliceData(payload)))) //nolint:gosec // G115: wasm32 pointers fit in 32 bits
	hostLogMessage(abi.PackPtrLen(ptr, uint32(len(payload))))        //nolint:gosec // G115: log records are far below 4 GiB
	runtime.KeepAlive(payload)
}
