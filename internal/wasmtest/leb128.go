package wasmtest

import "bytes"

// writeU32 writes an unsigned LEB128 value.
func writeU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// writeS64 writes a signed LEB128 value. i32 immediates use it too.
func writeS64(w *bytes.Buffer, v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

func writeName(w *bytes.Buffer, name string) {
	writeU32(w, uint32(len(name))) //nolint:gosec // G115: test fixture names are short
	w.WriteString(name)
}

func writeBytes(w *bytes.Buffer, b []byte) {
	writeU32(w, uint32(len(b))) //nolint:gosec // G115: fixture sections are far below 4 GiB
	w.Write(b)
}
