package ports

// Memory is a read-only view of a guest's linear memory.
// wazero's api.Memory satisfies it.
type Memory interface {
	// Size returns the current size in bytes. It can grow between calls.
	Size() uint32

	// Read returns a view of byteCount bytes at offset, or false if out of range.
	// The view aliases guest memory and is only valid until the guest runs again.
	Read(offset, byteCount uint32) ([]byte, bool)
}

// Allocator reserves and releases blocks in a guest's linear memory.
// Addresses are linear memory addresses and 0 is never a valid block.
type Allocator interface {
	// Alloc reserves size bytes and returns the block address.
	Alloc(size uint32) (uint32, error)

	// Free releases the block at addr using the size recorded for that block.
	Free(addr uint32) error

	// Bytes returns a writable window of size bytes starting at addr.
	// The window must lie within a single live block.
	Bytes(addr, size uint32) ([]byte, error)

	// BlockSize returns the size the block at addr was allocated with.
	BlockSize(addr uint32) (uint32, error)
}
