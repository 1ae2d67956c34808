// Package abi provides the guest-side heap that backs collect responses.
//
// Every block carries its own header, so a block is always released with the
// size it was allocated with:
//
//	[0:4] requested size (little-endian uint32)
//	[4:8] blockMagic
//	[8:]  data, 8-byte aligned when the heap base is
package abi

import (
	"encoding/binary"
	stdErrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/reglet-dev/reglet-collect/domain/errors"
)

const (
	headerSize = 8
	blockAlign = 8
	blockMagic = 0xB10CA110

	// minSplit is the smallest remainder worth keeping as a separate free block.
	minSplit = headerSize + blockAlign
)

var (
	// ErrZeroSize is returned for zero-byte allocation requests.
	ErrZeroSize = stdErrors.New("abi: zero-size allocation")

	// ErrInvalidFree is returned when freeing an address that is not a live block.
	ErrInvalidFree = stdErrors.New("abi: address is not a live block")
)

type span struct {
	off  uint32 // offset of the header within mem
	size uint32 // total block size including header
}

// Heap is a first-fit allocator over a region of linear memory.
// It is safe for concurrent use.
type Heap struct {
	live  map[uint32]uint32 // data address -> total block size
	mem   []byte
	free  []span // sorted by off, coalesced
	mu    sync.Mutex
	base  uint32 // linear memory address of mem[0]
	start uint32
	next  uint32 // bump offset
	inUse int    // sum of requested sizes of live blocks
}

// NewHeap creates a heap over mem, which lives at linear memory address base.
// The first block is placed so that no data address is ever 0.
func NewHeap(mem []byte, base uint32) *Heap {
	start := (blockAlign - base%blockAlign) % blockAlign
	return &Heap{
		live:  make(map[uint32]uint32),
		mem:   mem,
		base:  base,
		start: start,
		next:  start,
	}
}

// Base returns the linear memory address of the heap region.
func (h *Heap) Base() uint32 { return h.base }

// Capacity returns the size of the heap region in bytes.
func (h *Heap) Capacity() int { return len(h.mem) }

// Alloc reserves size bytes and returns the address of the data.
func (h *Heap) Alloc(size uint32) (uint32, error) {
	if size == 0 {
		return 0, ErrZeroSize
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	need := uint64(headerSize) + uint64(size)
	need = (need + blockAlign - 1) &^ (blockAlign - 1)
	if need > uint64(len(h.mem)) {
		return 0, h.exhausted(size)
	}
	total := uint32(need)

	off, got, ok := h.takeFree(total)
	if !ok {
		if uint64(h.next)+uint64(total) > uint64(len(h.mem)) {
			return 0, h.exhausted(size)
		}
		off, got = h.next, total
		h.next += total
	}

	hdr := h.mem[off : off+headerSize]
	binary.LittleEndian.PutUint32(hdr[0:4], size)
	binary.LittleEndian.PutUint32(hdr[4:8], blockMagic)
	clear(h.mem[off+headerSize : off+got])

	addr := h.base + off + headerSize
	h.live[addr] = got
	h.inUse += int(size)
	return addr, nil
}

// Free releases the block at addr. The size comes from the block header.
func (h *Heap) Free(addr uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	total, ok := h.live[addr]
	if !ok {
		return fmt.Errorf("%w: %#x", ErrInvalidFree, addr)
	}
	off := addr - h.base - headerSize
	hdr := h.mem[off : off+headerSize]
	if binary.LittleEndian.Uint32(hdr[4:8]) != blockMagic {
		return fmt.Errorf("%w: %#x has a corrupt header", ErrInvalidFree, addr)
	}

	h.inUse -= int(binary.LittleEndian.Uint32(hdr[0:4]))
	binary.LittleEndian.PutUint32(hdr[4:8], 0)
	delete(h.live, addr)
	h.release(span{off: off, size: total})
	return nil
}

// Bytes returns a writable window of size bytes at the start of the live block addr.
func (h *Heap) Bytes(addr, size uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	requested, err := h.blockSize(addr)
	if err != nil {
		return nil, err
	}
	if size > requested {
		return nil, fmt.Errorf("abi: window of %d bytes exceeds block %#x of %d bytes", size, addr, requested)
	}
	off := addr - h.base
	return h.mem[off : off+size : off+size], nil
}

// BlockSize returns the requested size recorded in the header of block addr.
func (h *Heap) BlockSize(addr uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blockSize(addr)
}

// Stats returns the number of live blocks and the sum of their requested sizes.
func (h *Heap) Stats() (blocks, bytes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live), h.inUse
}

// Reset frees every block. Used when a guest recovers from a panic.
func (h *Heap) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.live)
	h.free = h.free[:0]
	h.next = h.start
	h.inUse = 0
}

func (h *Heap) blockSize(addr uint32) (uint32, error) {
	if _, ok := h.live[addr]; !ok {
		return 0, fmt.Errorf("%w: %#x", ErrInvalidFree, addr)
	}
	off := addr - h.base - headerSize
	return binary.LittleEndian.Uint32(h.mem[off : off+4]), nil
}

func (h *Heap) exhausted(size uint32) error {
	return &errors.MemoryError{Requested: int(size), Current: h.inUse, Limit: len(h.mem)}
}

// takeFree finds the first free span of at least total bytes, splitting it
// when the remainder is large enough to be useful.
func (h *Heap) takeFree(total uint32) (off, size uint32, ok bool) {
	for i, s := range h.free {
		if s.size < total {
			continue
		}
		if s.size-total >= minSplit {
			h.free[i] = span{off: s.off + total, size: s.size - total}
			return s.off, total, true
		}
		h.free = append(h.free[:i], h.free[i+1:]...)
		return s.off, s.size, true
	}
	return 0, 0, false
}

// release returns a span to the free list, merging neighbours and giving
// trailing space back to the bump region.
func (h *Heap) release(s span) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].off > s.off })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = s

	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}

	if n := len(h.free); n > 0 && h.free[n-1].off+h.free[n-1].size == h.next {
		h.next = h.free[n-1].off
		h.free = h.free[:n-1]
	}
}
