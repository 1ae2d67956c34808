package testutil

import "github.com/reglet-dev/reglet-collect/domain/ports"

var _ ports.Memory = (*Memory)(nil)

// Memory is a growable linear memory over a byte slice.
type Memory struct {
	Data []byte

	// Reads counts calls to Read.
	Reads int
}

// NewMemory returns a zeroed memory of size bytes.
func NewMemory(size int) *Memory {
	return &Memory{Data: make([]byte, size)}
}

// Size implements ports.Memory.
func (m *Memory) Size() uint32 { return uint32(len(m.Data)) } //nolint:gosec // G115: test memories are small

// Read implements ports.Memory with the same bounds rule as wazero.
func (m *Memory) Read(offset, byteCount uint32) ([]byte, bool) {
	m.Reads++
	if uint64(offset)+uint64(byteCount) > uint64(len(m.Data)) {
		return nil, false
	}
	return m.Data[offset : offset+byteCount : offset+byteCount], true
}

// Grow appends n zero bytes.
func (m *Memory) Grow(n int) {
	m.Data = append(m.Data, make([]byte, n)...)
}

// Write copies b to offset, growing the memory if needed.
func (m *Memory) Write(offset uint32, b []byte) {
	if end := int(offset) + len(b); end > len(m.Data) {
		m.Grow(end - len(m.Data))
	}
	copy(m.Data[offset:], b)
}
