//go:build !wasip1

package log

import "os"

// sendToHost writes the record to stderr as a JSON line outside wasm, so
// plugin code can run natively in tests and tools.
func sendToHost(payload []byte) {
	_, _ = os.Stderr.Write(append(payload, '\n'))
}
